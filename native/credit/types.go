package credit

import (
	"fmt"
	"math/big"
	"strings"
)

// LoanStatus represents the lifecycle states of a loan record.
type LoanStatus uint8

const (
	LoanRequested LoanStatus = iota
	LoanActive
	LoanRepaid
	LoanDefaulted
	LoanLiquidated
)

// Valid reports whether the status value is within the supported range.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanRequested, LoanActive, LoanRepaid, LoanDefaulted, LoanLiquidated:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further custodial activity.
func (s LoanStatus) Terminal() bool {
	switch s {
	case LoanRepaid, LoanDefaulted, LoanLiquidated:
		return true
	default:
		return false
	}
}

func (s LoanStatus) String() string {
	switch s {
	case LoanRequested:
		return "requested"
	case LoanActive:
		return "active"
	case LoanRepaid:
		return "repaid"
	case LoanDefaulted:
		return "defaulted"
	case LoanLiquidated:
		return "liquidated"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// CollateralType tags which concrete asset variant a loan's collateral is
// denominated in. TypeUnset is the placeholder a loan carries until the first
// deposit binds a concrete variant; binding is a one-way latch.
type CollateralType uint8

const (
	TypeUnset CollateralType = iota
	TypeSol
	TypeUsdc
	TypeAksh
)

// Valid reports whether the type value is within the supported range.
func (t CollateralType) Valid() bool {
	switch t {
	case TypeUnset, TypeSol, TypeUsdc, TypeAksh:
		return true
	default:
		return false
	}
}

func (t CollateralType) String() string {
	switch t {
	case TypeUnset:
		return "unset"
	case TypeSol:
		return "sol"
	case TypeUsdc:
		return "usdc"
	case TypeAksh:
		return "aksh"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseCollateralType resolves the string form used on the RPC surface into a
// concrete variant. The placeholder form is accepted here and rejected later by
// the engine so callers receive the proper deposit-time error.
func ParseCollateralType(s string) (CollateralType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sol":
		return TypeSol, nil
	case "usdc":
		return TypeUsdc, nil
	case "aksh":
		return TypeAksh, nil
	case "unset", "":
		return TypeUnset, nil
	default:
		return TypeUnset, fmt.Errorf("credit: unknown collateral type %q", s)
	}
}

// Durations (seconds) accepted for a loan term at creation. Any other value is
// rejected with ErrInvalidTimestamp.
var allowedDurations = map[uint32]struct{}{
	60:   {},
	300:  {},
	1200: {},
	3600: {},
	7200: {},
}

// ValidDuration reports whether the term is one of the accepted durations.
func ValidDuration(seconds uint32) bool {
	_, ok := allowedDurations[seconds]
	return ok
}

// Loan is the authoritative per-loan record. The identifier is derived from
// the borrower and the profile's running loan counter, so every initialize
// allocates a fresh record and the per-borrower index is a true multi-loan
// ledger.
type Loan struct {
	ID             [32]byte
	Borrower       [20]byte
	Lender         [20]byte
	Principal      *big.Int
	InterestBps    uint16
	CollateralMint string
	// CollateralAmount starts at the creation-time target and grows with
	// every deposit; CollateralAmount - CollateralTarget mirrors the vault
	// balance exactly.
	CollateralAmount *big.Int
	CollateralTarget *big.Int
	StartTs          int64
	DueTs            int64
	Status           LoanStatus
	CollateralType   CollateralType
	ExistingUser     bool
}

// Clone returns a deep copy of the loan so callers can safely mutate the copy
// without affecting the stored instance.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Principal != nil {
		clone.Principal = new(big.Int).Set(l.Principal)
	} else {
		clone.Principal = big.NewInt(0)
	}
	if l.CollateralAmount != nil {
		clone.CollateralAmount = new(big.Int).Set(l.CollateralAmount)
	} else {
		clone.CollateralAmount = big.NewInt(0)
	}
	if l.CollateralTarget != nil {
		clone.CollateralTarget = new(big.Int).Set(l.CollateralTarget)
	} else {
		clone.CollateralTarget = big.NewInt(0)
	}
	return &clone
}

// Deposited returns the collateral actually escrowed so far, i.e. the portion
// of CollateralAmount contributed by deposits rather than the creation seed.
func (l *Loan) Deposited() *big.Int {
	if l == nil || l.CollateralAmount == nil || l.CollateralTarget == nil {
		return big.NewInt(0)
	}
	deposited := new(big.Int).Sub(l.CollateralAmount, l.CollateralTarget)
	if deposited.Sign() < 0 {
		return big.NewInt(0)
	}
	return deposited
}

// SanitizeLoan validates and normalises the supplied loan record, returning a
// cloned instance with canonical mint casing and non-nil amount fields. The
// function does not mutate the original value.
func SanitizeLoan(l *Loan) (*Loan, error) {
	if l == nil {
		return nil, fmt.Errorf("credit: nil loan")
	}
	clone := l.Clone()
	clone.CollateralMint = strings.ToUpper(strings.TrimSpace(clone.CollateralMint))
	if clone.CollateralMint == "" {
		return nil, fmt.Errorf("credit: collateral mint required")
	}
	if clone.Principal.Sign() < 0 {
		return nil, fmt.Errorf("credit: principal must be non-negative")
	}
	if clone.CollateralAmount.Sign() < 0 {
		return nil, fmt.Errorf("credit: collateral amount must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("credit: invalid loan status: %d", clone.Status)
	}
	if !clone.CollateralType.Valid() {
		return nil, fmt.Errorf("credit: invalid collateral type: %d", clone.CollateralType)
	}
	return clone, nil
}

// UserProfile is the per-borrower reputation ledger.
type UserProfile struct {
	User             [20]byte
	TotalLoansTaken  uint64
	TotalLoansRepaid uint64
	TotalDefaults    uint64
	ReputationScore  uint64
	LastLoanTs       int64
}

// Clone returns a copy of the profile.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// UserTier buckets borrowers by reputation score.
type UserTier uint8

const (
	Tier0 UserTier = iota
	Tier1
	Tier2
	Tier3
)

// Tier derives the borrower's tier from the reputation score.
func (p *UserProfile) Tier() UserTier {
	switch {
	case p == nil || p.ReputationScore <= 200:
		return Tier0
	case p.ReputationScore <= 500:
		return Tier1
	case p.ReputationScore <= 800:
		return Tier2
	default:
		return Tier3
	}
}
