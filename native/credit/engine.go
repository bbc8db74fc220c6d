package credit

import (
	"encoding/binary"
	"errors"
	"math/big"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"microlend/core/events"
	"microlend/core/types"
)

var errNilState = errors.New("credit engine: state not configured")

const (
	reputationRepayBonus   = 25
	reputationDefaultSlash = 50
	loanSeedPrefix         = "credit/loan/"
)

type engineState interface {
	LoanPut(*Loan) error
	LoanGet(id [32]byte) (*Loan, bool)
	TokenExists(symbol string) bool
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	CreditVaultAddress(mint string, borrower [20]byte) ([20]byte, error)
	CreditEscrowAddress(borrower [20]byte) ([20]byte, error)
}

type creditEvent struct {
	evt *types.Event
}

func (e creditEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e creditEvent) Event() *types.Event { return e.evt }

// Engine orchestrates the loan lifecycle state transitions: creation,
// collateral deposit, withdrawal and the default transition. Each exported
// method validates fully before mutating, so a rejected call leaves no partial
// state behind.
type Engine struct {
	state   engineState
	ledger  *Ledger
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a credit engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the profile and loan-index ledger.
func (e *Engine) SetLedger(ledger *Ledger) { e.ledger = ledger }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(creditEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// LoanID derives the deterministic record identifier for the borrower's n-th
// loan. Any caller can reproduce the derivation.
func LoanID(borrower [20]byte, sequence uint64) [32]byte {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	return ethcrypto.Keccak256Hash([]byte(loanSeedPrefix), borrower[:], seq[:])
}

func (e *Engine) loadLoan(id [32]byte) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, ok := e.state.LoanGet(id)
	if !ok {
		return nil, ErrLoanNotFound
	}
	return loan, nil
}

func (e *Engine) storeLoan(loan *Loan) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.LoanPut(loan)
}

// transferToken moves amount of the given mint between holding balances. The
// balance check runs before either side is written, so a failed transfer never
// mutates state.
func (e *Engine) transferToken(from, to [20]byte, mint string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return ErrInvalidAmount
	}
	fromBal, err := e.state.Balance(from[:], mint)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := e.state.Balance(to[:], mint)
	if err != nil {
		return err
	}
	if err := e.state.SetBalance(from[:], mint, new(big.Int).Sub(fromBal, amt)); err != nil {
		return err
	}
	return e.state.SetBalance(to[:], mint, new(big.Int).Add(toBal, amt))
}

// InitializeLoan allocates a new loan record together with the borrower's
// profile and loan index when they do not exist yet. No value moves in this
// step; the collateral amount is seeded with the creation-time target and
// deposits accumulate on top of it.
func (e *Engine) InitializeLoan(borrower [20]byte, principal *big.Int, interestBps uint16, collateralMint string, collateralTarget *big.Int, dueSeconds uint32, existingUser bool) (*Loan, error) {
	if e == nil || e.state == nil || e.ledger == nil {
		return nil, errNilState
	}
	if principal == nil || principal.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if collateralTarget == nil || collateralTarget.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !ValidDuration(dueSeconds) {
		return nil, ErrInvalidTimestamp
	}
	mint := strings.ToUpper(strings.TrimSpace(collateralMint))
	if mint == "" || !e.state.TokenExists(mint) {
		return nil, ErrInvalidCollateralMint
	}

	profile, ok, err := e.ledger.ProfileGet(borrower)
	if err != nil {
		return nil, err
	}
	if !ok {
		profile = &UserProfile{User: borrower}
	}

	now := e.now()
	loan := &Loan{
		ID:               LoanID(borrower, profile.TotalLoansTaken),
		Borrower:         borrower,
		Principal:        cloneBigInt(principal),
		InterestBps:      interestBps,
		CollateralMint:   mint,
		CollateralAmount: cloneBigInt(collateralTarget),
		CollateralTarget: cloneBigInt(collateralTarget),
		StartTs:          now,
		DueTs:            now + int64(dueSeconds),
		Status:           LoanRequested,
		CollateralType:   TypeUnset,
		ExistingUser:     existingUser,
	}
	if err := e.storeLoan(loan); err != nil {
		return nil, err
	}

	profile.TotalLoansTaken++
	profile.LastLoanTs = now
	if err := e.ledger.ProfilePut(profile); err != nil {
		return nil, err
	}
	if err := e.ledger.IndexAppend(borrower, loan.ID); err != nil {
		return nil, err
	}

	e.emit(NewLoanCreatedEvent(loan))
	return loan.Clone(), nil
}

// DepositCollateral moves collateral from the borrower's holding balance into
// the loan's vault and accumulates it on the record. The first successful
// deposit binds the loan's collateral type for its lifetime; later deposits
// must re-assert the bound type.
func (e *Engine) DepositCollateral(caller [20]byte, id [32]byte, mint string, amount *big.Int, collateralType CollateralType) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if loan.Borrower != caller {
		return ErrUnauthorized
	}
	if loan.Status.Terminal() {
		return ErrLoanClosed
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if collateralType == TypeUnset || !collateralType.Valid() {
		return ErrInvalidCollateralType
	}
	presented := strings.ToUpper(strings.TrimSpace(mint))
	if presented != loan.CollateralMint {
		return ErrInvalidCollateralMint
	}
	if loan.CollateralType != TypeUnset && loan.CollateralType != collateralType {
		return ErrInvalidCollateralType
	}

	vault, err := e.state.CreditVaultAddress(loan.CollateralMint, loan.Borrower)
	if err != nil {
		return err
	}
	if err := e.transferToken(loan.Borrower, vault, loan.CollateralMint, amount); err != nil {
		return err
	}

	loan.CollateralType = collateralType
	loan.CollateralAmount = new(big.Int).Add(loan.CollateralAmount, amount)
	activated := false
	if loan.Status == LoanRequested && loan.Deposited().Cmp(loan.CollateralTarget) >= 0 {
		loan.Status = LoanActive
		activated = true
	}
	if err := e.storeLoan(loan); err != nil {
		return err
	}

	e.emit(NewCollateralDepositedEvent(loan, amount))
	if activated {
		e.emit(NewLoanActivatedEvent(loan))
	}
	return nil
}

// WithdrawLoan drains the loan's vault back to the borrower under the escrow
// authority's control and closes the record. Withdrawal is gated on a clean
// default history and a non-empty loan index. The returned amount is the vault
// balance that was released.
func (e *Engine) WithdrawLoan(caller [20]byte, id [32]byte) (*big.Int, error) {
	if e == nil || e.state == nil || e.ledger == nil {
		return nil, errNilState
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	if loan.Borrower != caller {
		return nil, ErrUnauthorized
	}
	profile, ok, err := e.ledger.ProfileGet(caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProfileNotFound
	}
	if profile.TotalDefaults > 0 {
		return nil, ErrUserHasDefaults
	}
	open, err := e.ledger.IndexLoans(caller)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, ErrNoActiveLoans
	}
	if loan.Status.Terminal() {
		return nil, ErrLoanClosed
	}

	// The vault address is derived through the escrow authority, so only
	// this derivation path can move value out of it.
	vault, err := e.state.CreditVaultAddress(loan.CollateralMint, loan.Borrower)
	if err != nil {
		return nil, err
	}
	balance, err := e.state.Balance(vault[:], loan.CollateralMint)
	if err != nil {
		return nil, err
	}
	if err := e.transferToken(vault, loan.Borrower, loan.CollateralMint, balance); err != nil {
		return nil, err
	}

	loan.Status = LoanRepaid
	loan.CollateralAmount = big.NewInt(0)
	if err := e.storeLoan(loan); err != nil {
		return nil, err
	}
	if err := e.ledger.IndexRemove(caller, id); err != nil {
		return nil, err
	}
	profile.TotalLoansRepaid++
	profile.ReputationScore += reputationRepayBonus
	if err := e.ledger.ProfilePut(profile); err != nil {
		return nil, err
	}

	e.emit(NewCollateralWithdrawnEvent(loan, balance))
	return cloneBigInt(balance), nil
}

// MarkDefaulted transitions an overdue loan to the defaulted state and records
// the default on the borrower's profile. Anyone may invoke the transition once
// the due timestamp has elapsed; calling it on an already defaulted loan is a
// no-op. Collateral stays in the vault pending flows outside this engine.
func (e *Engine) MarkDefaulted(id [32]byte, now int64) error {
	if e == nil || e.state == nil || e.ledger == nil {
		return errNilState
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if loan.Status == LoanDefaulted {
		return nil
	}
	if loan.Status.Terminal() {
		return ErrLoanClosed
	}
	if now <= loan.DueTs {
		return ErrLoanNotDue
	}

	loan.Status = LoanDefaulted
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	if err := e.ledger.IndexRemove(loan.Borrower, id); err != nil {
		return err
	}
	profile, ok, err := e.ledger.ProfileGet(loan.Borrower)
	if err != nil {
		return err
	}
	if !ok {
		profile = &UserProfile{User: loan.Borrower}
	}
	profile.TotalDefaults++
	if profile.ReputationScore > reputationDefaultSlash {
		profile.ReputationScore -= reputationDefaultSlash
	} else {
		profile.ReputationScore = 0
	}
	if err := e.ledger.ProfilePut(profile); err != nil {
		return err
	}

	e.emit(NewLoanDefaultedEvent(loan))
	return nil
}

// VaultBalance reports the collateral currently escrowed for the loan.
func (e *Engine) VaultBalance(id [32]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	vault, err := e.state.CreditVaultAddress(loan.CollateralMint, loan.Borrower)
	if err != nil {
		return nil, err
	}
	return e.state.Balance(vault[:], loan.CollateralMint)
}
