package dispute

import "errors"

// Service errors
var (
	// ErrDuplicateDispute means the booking already has an active
	// dispute. Business rule violation, surfaced to the caller.
	ErrDuplicateDispute = errors.New("an active dispute already exists for this booking")

	// ErrExecutionFailed means the resolution was persisted but the
	// settlement action failed. The dispute stays resolved and is
	// flagged unsettled for manual retry; never silently lost.
	ErrExecutionFailed = errors.New("resolution execution failed")

	ErrDisputeTerminal  = errors.New("dispute is in a terminal state")
	ErrAlreadyEscalated = errors.New("dispute was already escalated")
	ErrThreadClosed     = errors.New("evidence and messages are only accepted while open or in mediation")
	ErrNoMediators      = errors.New("no active mediators available")
)
