package credit

import "errors"

var (
	// ErrInvalidAmount marks a principal, collateral target, or deposit
	// amount outside the valid positive range.
	ErrInvalidAmount = errors.New("credit engine: amount must be positive")
	// ErrInvalidTimestamp marks a loan term that is not one of the accepted
	// durations.
	ErrInvalidTimestamp = errors.New("credit engine: invalid loan term")
	// ErrInvalidCollateralMint marks a deposit whose presented asset does
	// not match the loan's bound collateral mint, or a creation against an
	// unregistered mint.
	ErrInvalidCollateralMint = errors.New("credit engine: collateral mint mismatch")
	// ErrInvalidCollateralType marks a deposit asserting the unset
	// placeholder type, or a type that conflicts with the bound one.
	ErrInvalidCollateralType = errors.New("credit engine: invalid collateral type")
	// ErrUserHasDefaults gates withdrawal while the borrower carries
	// recorded defaults.
	ErrUserHasDefaults = errors.New("credit engine: user has defaults on record")
	// ErrNoActiveLoans gates withdrawal while the borrower's loan index is
	// empty.
	ErrNoActiveLoans = errors.New("credit engine: no active loans")
	// ErrLoanNotFound marks operations referencing a loan record that was
	// never created.
	ErrLoanNotFound = errors.New("credit engine: loan not found")
	// ErrProfileNotFound marks operations referencing a borrower with no
	// profile on the ledger.
	ErrProfileNotFound = errors.New("credit engine: user profile not found")
	// ErrUnauthorized marks callers acting on a loan they do not own.
	ErrUnauthorized = errors.New("credit engine: caller is not the borrower")
	// ErrLoanClosed marks custodial operations against a loan in a terminal
	// status.
	ErrLoanClosed = errors.New("credit engine: loan is closed")
	// ErrLoanNotDue marks a default transition attempted before the due
	// timestamp has elapsed.
	ErrLoanNotDue = errors.New("credit engine: loan term has not elapsed")
	// ErrInsufficientBalance marks a deposit exceeding the borrower's
	// holding balance.
	ErrInsufficientBalance = errors.New("credit engine: insufficient balance")
)
