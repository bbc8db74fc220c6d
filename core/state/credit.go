package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"microlend/native/credit"
)

var (
	creditEscrowSeed = []byte("credit/escrow/")
	creditVaultSeed  = []byte("credit/vault/")
	loanRecordPrefix = []byte("credit/record/")
)

func loanRecordKey(id [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", loanRecordPrefix, id))
}

// storedLoan is the RLP-safe persisted form of credit.Loan.
type storedLoan struct {
	ID               [32]byte
	Borrower         [20]byte
	Lender           [20]byte
	Principal        *big.Int
	InterestBps      uint16
	CollateralMint   string
	CollateralAmount *big.Int
	CollateralTarget *big.Int
	StartTs          uint64
	DueTs            uint64
	Status           uint8
	CollateralType   uint8
	ExistingUser     bool
}

// CreditEscrowAddress derives the escrow authority for a borrower: a
// deterministic, data-free identity that exclusively controls the borrower's
// vaults on behalf of the protocol.
func (m *Manager) CreditEscrowAddress(borrower [20]byte) ([20]byte, error) {
	digest := ethcrypto.Keccak256(creditEscrowSeed, borrower[:])
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr, nil
}

// CreditVaultAddress derives the vault holding address for a (borrower, mint)
// pair. The derivation routes through the escrow authority, so vault custody
// follows the authority rather than the borrower.
func (m *Manager) CreditVaultAddress(mint string, borrower [20]byte) ([20]byte, error) {
	normalized := normalizeSymbol(mint)
	if normalized == "" {
		return [20]byte{}, fmt.Errorf("credit: vault mint required")
	}
	authority, err := m.CreditEscrowAddress(borrower)
	if err != nil {
		return [20]byte{}, err
	}
	digest := ethcrypto.Keccak256(creditVaultSeed, []byte(normalized), authority[:])
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr, nil
}

// LoanPut validates and persists a loan record.
func (m *Manager) LoanPut(loan *credit.Loan) error {
	sanitized, err := credit.SanitizeLoan(loan)
	if err != nil {
		return err
	}
	stored := storedLoan{
		ID:               sanitized.ID,
		Borrower:         sanitized.Borrower,
		Lender:           sanitized.Lender,
		Principal:        sanitized.Principal,
		InterestBps:      sanitized.InterestBps,
		CollateralMint:   sanitized.CollateralMint,
		CollateralAmount: sanitized.CollateralAmount,
		CollateralTarget: sanitized.CollateralTarget,
		Status:           uint8(sanitized.Status),
		CollateralType:   uint8(sanitized.CollateralType),
		ExistingUser:     sanitized.ExistingUser,
	}
	if sanitized.StartTs > 0 {
		stored.StartTs = uint64(sanitized.StartTs)
	}
	if sanitized.DueTs > 0 {
		stored.DueTs = uint64(sanitized.DueTs)
	}
	return m.KVPut(loanRecordKey(sanitized.ID), &stored)
}

// LoanGet retrieves a loan record by id. The returned record is a copy that
// callers may mutate freely.
func (m *Manager) LoanGet(id [32]byte) (*credit.Loan, bool) {
	var stored storedLoan
	ok, err := m.KVGet(loanRecordKey(id), &stored)
	if err != nil || !ok {
		return nil, false
	}
	loan := &credit.Loan{
		ID:               stored.ID,
		Borrower:         stored.Borrower,
		Lender:           stored.Lender,
		Principal:        stored.Principal,
		InterestBps:      stored.InterestBps,
		CollateralMint:   stored.CollateralMint,
		CollateralAmount: stored.CollateralAmount,
		CollateralTarget: stored.CollateralTarget,
		StartTs:          int64(stored.StartTs),
		DueTs:            int64(stored.DueTs),
		Status:           credit.LoanStatus(stored.Status),
		CollateralType:   credit.CollateralType(stored.CollateralType),
		ExistingUser:     stored.ExistingUser,
	}
	return loan.Clone(), true
}
