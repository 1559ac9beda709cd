package dispute

import (
	"context"
	"log"

	"taskpay/internal/models"
)

// Notification event types
const (
	EventDisputeCreated   = "dispute_created"
	EventDisputeEscalated = "dispute_escalated"
	EventDisputeResolved  = "dispute_resolved"
)

// Event is the structured payload handed to the notification
// dispatcher. Delivery mechanics live outside this service.
type Event struct {
	Type        string                 `json:"type"`
	DisputeID   uint                   `json:"dispute_id"`
	RecipientID uint                   `json:"recipient_id"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// Notifier receives dispute lifecycle events for delivery.
type Notifier interface {
	Dispatch(ctx context.Context, event Event) error
}

// LogNotifier is the default Notifier; it only logs.
type LogNotifier struct{}

func (LogNotifier) Dispatch(_ context.Context, event Event) error {
	log.Printf("notify %s: dispute %d -> user %d", event.Type, event.DisputeID, event.RecipientID)
	return nil
}

// EscrowLedger is the slice of the escrow service the dispute state
// machine drives: freeze on open, settle on resolution.
type EscrowLedger interface {
	GetByBooking(ctx context.Context, bookingID uint) (*models.EscrowAccount, error)
	Freeze(ctx context.Context, accountID uint) error
	Unfreeze(ctx context.Context, accountID uint) error
	ExecuteResolution(ctx context.Context, accountID, disputeID uint, refundAmount, releaseAmount float64, reason string) error
}

// MilestoneRoller rolls milestones back for redo_work resolutions.
type MilestoneRoller interface {
	RollbackForRedo(bookingID uint) error
}

// ReviewReader is the read-only view of the rating service used by
// auto-resolution.
type ReviewReader interface {
	AverageRating(ctx context.Context, contractorID uint) (avg float64, count int, err error)
}

// OpenRequest carries the inputs for opening a dispute.
type OpenRequest struct {
	BookingID   uint
	InitiatorID uint
	Type        models.DisputeType
	Description string
	Amount      float64
}

// PriorityFor computes dispute priority as a pure function of amount
// and type.
func PriorityFor(amount float64, t models.DisputeType) models.DisputePriority {
	switch {
	case amount > 5000:
		return models.DisputePriorityUrgent
	case amount > 2000:
		return models.DisputePriorityHigh
	case t == models.DisputeTypePayment:
		return models.DisputePriorityHigh
	case t == models.DisputeTypeQuality, t == models.DisputeTypeTimeline:
		return models.DisputePriorityMedium
	default:
		return models.DisputePriorityLow
	}
}
