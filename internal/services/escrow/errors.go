package escrow

import "errors"

// Service errors
var (
	// ErrInvalidAmount covers non-positive or malformed amounts. Never
	// retried.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds signals a ledger inconsistency: the held
	// balance cannot cover the requested movement. Fatal for the
	// operation, never auto-retried, always logged for manual
	// reconciliation.
	ErrInsufficientFunds = errors.New("insufficient held funds")

	// ErrPaymentVerification means the processor has not (yet) settled
	// the payment. The account is untouched; the caller may retry.
	ErrPaymentVerification = errors.New("payment verification failed")

	ErrAccountFrozen          = errors.New("escrow account frozen by dispute")
	ErrAccountNotFundable     = errors.New("account cannot be funded in its current state")
	ErrMilestoneNotReleasable = errors.New("milestone is not in a releasable state")
	ErrNoPayoutDestination    = errors.New("contractor has no payout destination")
)
