package models

import (
	"time"
)

// Escrow account statuses
const (
	EscrowStatusCreated        = "created"
	EscrowStatusFunded         = "funded"
	EscrowStatusPartialRelease = "partial_release"
	EscrowStatusCompleted      = "completed"
	EscrowStatusDisputed       = "disputed"
)

// EscrowAccount holds a booking's funds until milestones are approved.
// Amounts always satisfy held = total - released - refunded.
type EscrowAccount struct {
	ID             uint       `gorm:"primarykey" json:"id"`
	BookingID      uint       `gorm:"uniqueIndex;not null" json:"booking_id"`
	TotalAmount    float64    `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	HeldAmount     float64    `gorm:"type:decimal(12,2);default:0" json:"held_amount"`
	ReleasedAmount float64    `gorm:"type:decimal(12,2);default:0" json:"released_amount"`
	RefundedAmount float64    `gorm:"type:decimal(12,2);default:0" json:"refunded_amount"`
	Currency       string     `gorm:"default:'USD'" json:"currency"`
	Status         string     `gorm:"type:varchar(20);not null;default:'created'" json:"status"`
	FrozenAt       *time.Time `json:"frozen_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (EscrowAccount) TableName() string {
	return "escrow_accounts"
}

// Frozen reports whether the account is under a dispute hold.
func (a *EscrowAccount) Frozen() bool {
	return a.Status == EscrowStatusDisputed
}
