package models

import (
	"time"
)

// Transaction types
const (
	TransactionTypeDeposit     = "deposit"
	TransactionTypeRelease     = "release"
	TransactionTypeRefund      = "refund"
	TransactionTypeDisputeHold = "dispute_hold"
)

// Transaction statuses
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Transaction is an immutable ledger entry. Every money-moving escrow
// operation appends one; rows are never mutated after reaching a
// terminal status.
type Transaction struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	EscrowAccountID uint      `gorm:"not null;index" json:"escrow_account_id"`
	BookingID       uint      `gorm:"not null;index" json:"booking_id"`
	MilestoneID     *uint     `gorm:"index" json:"milestone_id,omitempty"`
	Type            string    `gorm:"not null" json:"type"`
	Amount          float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
	PlatformFee     float64   `gorm:"type:decimal(12,2);default:0" json:"platform_fee"`
	ProcessorFee    float64   `gorm:"type:decimal(12,2);default:0" json:"processor_fee"`
	NetAmount       float64   `gorm:"type:decimal(12,2);default:0" json:"net_amount"`
	Status          string    `gorm:"not null;default:'pending';index:idx_tx_status_created" json:"status"`
	Currency        string    `gorm:"default:'USD'" json:"currency"`
	ExternalRef     string    `gorm:"index" json:"external_ref"` // processor intent/payout/refund id
	IdempotencyKey  string    `gorm:"uniqueIndex" json:"-"`
	Description     string    `json:"description,omitempty"`
	Metadata        JSON      `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt       time.Time `gorm:"index:idx_tx_status_created" json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
