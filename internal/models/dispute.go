package models

import (
	"errors"
	"time"
)

type DisputeType string
type DisputeStatus string
type DisputePriority string

const (
	DisputeTypePayment       DisputeType = "payment"
	DisputeTypeQuality       DisputeType = "quality"
	DisputeTypeTimeline      DisputeType = "timeline"
	DisputeTypeCommunication DisputeType = "communication"
	DisputeTypeCancellation  DisputeType = "cancellation"
	DisputeTypeOther         DisputeType = "other"
)

const (
	DisputeStatusOpen        DisputeStatus = "open"
	DisputeStatusInMediation DisputeStatus = "in_mediation"
	DisputeStatusEscalated   DisputeStatus = "escalated"
	DisputeStatusResolved    DisputeStatus = "resolved"
	DisputeStatusClosed      DisputeStatus = "closed"
)

const (
	DisputePriorityLow    DisputePriority = "low"
	DisputePriorityMedium DisputePriority = "medium"
	DisputePriorityHigh   DisputePriority = "high"
	DisputePriorityUrgent DisputePriority = "urgent"
)

// Dispute is a single dispute case for a booking. At most one dispute
// per booking may be active (open, in_mediation or escalated) at a time.
type Dispute struct {
	ID              uint            `gorm:"primarykey" json:"id"`
	BookingID       uint            `gorm:"not null;index" json:"booking_id"`
	EscrowAccountID *uint           `gorm:"index" json:"escrow_account_id,omitempty"`
	CustomerID      uint            `gorm:"not null;index" json:"customer_id"`
	ContractorID    uint            `gorm:"not null;index" json:"contractor_id"`
	InitiatedBy     uint            `gorm:"not null" json:"initiated_by"`
	Type            DisputeType     `gorm:"type:varchar(20);not null" json:"type"`
	Status          DisputeStatus   `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Priority        DisputePriority `gorm:"type:varchar(10);not null;default:'low'" json:"priority"`
	AmountDisputed  float64         `gorm:"type:decimal(12,2);not null" json:"amount_disputed"`
	Description     string          `gorm:"type:text" json:"description"`
	MediatorID      *uint           `gorm:"index" json:"mediator_id,omitempty"`
	Settled         bool            `gorm:"default:false" json:"settled"`
	SettlementError string          `gorm:"type:text" json:"settlement_error,omitempty"`
	EscalatedAt     *time.Time      `json:"escalated_at,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	Evidence []DisputeEvidence `gorm:"foreignKey:DisputeID" json:"evidence,omitempty"`
	Messages []DisputeMessage  `gorm:"foreignKey:DisputeID" json:"messages,omitempty"`
}

func (Dispute) TableName() string {
	return "disputes"
}

// Active reports whether the dispute still blocks a new one for the
// same booking.
func (d *Dispute) Active() bool {
	switch d.Status {
	case DisputeStatusOpen, DisputeStatusInMediation, DisputeStatusEscalated:
		return true
	}
	return false
}

// Terminal reports whether the dispute reached an immutable state.
func (d *Dispute) Terminal() bool {
	return d.Status == DisputeStatusResolved || d.Status == DisputeStatusClosed
}

// Evidence types
const (
	EvidenceTypePhoto    = "photo"
	EvidenceTypeDocument = "document"
	EvidenceTypeMessage  = "message"
	EvidenceTypeReceipt  = "receipt"
	EvidenceTypeVideo    = "video"
)

// DisputeEvidence is an attachment record, immutable once submitted.
type DisputeEvidence struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	DisputeID   uint      `gorm:"not null;index" json:"dispute_id"`
	SubmittedBy uint      `gorm:"not null" json:"submitted_by"`
	Type        string    `gorm:"type:varchar(20);not null" json:"type"`
	FileURL     string    `gorm:"type:text" json:"file_url,omitempty"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (DisputeEvidence) TableName() string {
	return "dispute_evidence"
}

// DisputeMessage is one entry in the dispute thread. System messages
// (mediator assignment, auto-resolution notes) carry SenderID 0.
type DisputeMessage struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	DisputeID uint      `gorm:"not null;index" json:"dispute_id"`
	SenderID  uint      `json:"sender_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	System    bool      `gorm:"default:false" json:"system"`
	CreatedAt time.Time `json:"created_at"`
}

func (DisputeMessage) TableName() string {
	return "dispute_messages"
}

type ResolutionType string

const (
	ResolutionFullRefund        ResolutionType = "full_refund"
	ResolutionPartialRefund     ResolutionType = "partial_refund"
	ResolutionNoRefund          ResolutionType = "no_refund"
	ResolutionRedoWork          ResolutionType = "redo_work"
	ResolutionPartialPayment    ResolutionType = "partial_payment"
	ResolutionMediatedAgreement ResolutionType = "mediated_agreement"
)

// DisputeResolution is the terminal artifact of a dispute, created
// exactly once. Each resolution type admits only the amounts it needs;
// Validate rejects contradictory shapes.
type DisputeResolution struct {
	ID                   uint           `gorm:"primarykey" json:"id"`
	DisputeID            uint           `gorm:"uniqueIndex;not null" json:"dispute_id"`
	ResolutionType       ResolutionType `gorm:"type:varchar(30);not null" json:"resolution_type"`
	RefundAmount         float64        `gorm:"type:decimal(12,2);default:0" json:"refund_amount"`
	PaymentReleaseAmount float64        `gorm:"type:decimal(12,2);default:0" json:"payment_release_amount"`
	CustomerAgreed       bool           `gorm:"default:false" json:"customer_agreed"`
	ContractorAgreed     bool           `gorm:"default:false" json:"contractor_agreed"`
	ResolvedBy           uint           `json:"resolved_by"` // 0 for auto-resolution
	Notes                string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

func (DisputeResolution) TableName() string {
	return "dispute_resolutions"
}

var ErrInvalidResolution = errors.New("invalid resolution shape")

// Validate enforces the per-type shape of a resolution so a refund-only
// outcome can never carry a release amount and vice versa.
func (r *DisputeResolution) Validate() error {
	switch r.ResolutionType {
	case ResolutionFullRefund, ResolutionPartialRefund:
		if r.RefundAmount <= 0 || r.PaymentReleaseAmount != 0 {
			return ErrInvalidResolution
		}
	case ResolutionNoRefund, ResolutionRedoWork:
		if r.RefundAmount != 0 || r.PaymentReleaseAmount != 0 {
			return ErrInvalidResolution
		}
	case ResolutionPartialPayment:
		if r.PaymentReleaseAmount <= 0 || r.RefundAmount != 0 {
			return ErrInvalidResolution
		}
	case ResolutionMediatedAgreement:
		if r.RefundAmount < 0 || r.PaymentReleaseAmount < 0 ||
			r.RefundAmount+r.PaymentReleaseAmount <= 0 {
			return ErrInvalidResolution
		}
	default:
		return ErrInvalidResolution
	}
	return nil
}

// Mediation session statuses
const (
	MediationStatusScheduled = "scheduled"
	MediationStatusHeld      = "held"
	MediationStatusCancelled = "cancelled"
)

// MediationSession is the scheduling record created when a dispute
// escalates to a human mediator.
type MediationSession struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	DisputeID   uint      `gorm:"not null;index" json:"dispute_id"`
	MediatorID  uint      `gorm:"not null;index" json:"mediator_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `gorm:"type:varchar(20);not null;default:'scheduled'" json:"status"`
	Notes       string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (MediationSession) TableName() string {
	return "mediation_sessions"
}
