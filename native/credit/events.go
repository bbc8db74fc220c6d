package credit

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"microlend/core/types"
)

const (
	EventTypeLoanCreated         = "credit.loan.created"
	EventTypeCollateralDeposited = "credit.loan.collateral_deposited"
	EventTypeLoanActivated       = "credit.loan.activated"
	EventTypeCollateralWithdrawn = "credit.loan.collateral_withdrawn"
	EventTypeLoanDefaulted       = "credit.loan.defaulted"
)

// NewLoanCreatedEvent returns the canonical event payload for a newly
// initialized loan.
func NewLoanCreatedEvent(l *Loan) *types.Event {
	return newLoanEvent(EventTypeLoanCreated, l, nil)
}

// NewCollateralDepositedEvent returns the canonical event payload emitted when
// collateral lands in the vault.
func NewCollateralDepositedEvent(l *Loan, amount *big.Int) *types.Event {
	return newLoanEvent(EventTypeCollateralDeposited, l, amount)
}

// NewLoanActivatedEvent returns the canonical event payload emitted when
// deposits reach the creation-time collateral target.
func NewLoanActivatedEvent(l *Loan) *types.Event {
	return newLoanEvent(EventTypeLoanActivated, l, nil)
}

// NewCollateralWithdrawnEvent returns the canonical event payload for a vault
// drain back to the borrower.
func NewCollateralWithdrawnEvent(l *Loan, amount *big.Int) *types.Event {
	return newLoanEvent(EventTypeCollateralWithdrawn, l, amount)
}

// NewLoanDefaultedEvent returns the canonical event payload emitted when a
// loan passes its due timestamp unpaid.
func NewLoanDefaultedEvent(l *Loan) *types.Event {
	return newLoanEvent(EventTypeLoanDefaulted, l, nil)
}

func newLoanEvent(eventType string, l *Loan, amount *big.Int) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeLoan(l)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(sanitized.ID[:])
	attrs["borrower"] = hex.EncodeToString(sanitized.Borrower[:])
	attrs["mint"] = sanitized.CollateralMint
	attrs["principal"] = sanitized.Principal.String()
	attrs["collateralAmount"] = sanitized.CollateralAmount.String()
	attrs["status"] = sanitized.Status.String()
	attrs["collateralType"] = sanitized.CollateralType.String()
	attrs["dueTs"] = strconv.FormatInt(sanitized.DueTs, 10)
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
