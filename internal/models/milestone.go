package models

import (
	"time"
)

// Milestone statuses. Transitions only move forward, except that a
// redo_work dispute resolution rolls completed milestones back to
// in_progress.
const (
	MilestoneStatusPending    = "pending"
	MilestoneStatusInProgress = "in_progress"
	MilestoneStatusCompleted  = "completed"
	MilestoneStatusApproved   = "approved"
	MilestoneStatusDisputed   = "disputed"
)

// PaymentMilestone is one stage of a booking's payment plan. The sum of
// all milestone amounts for a booking equals its escrow total.
type PaymentMilestone struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	BookingID   uint       `gorm:"not null;index" json:"booking_id"`
	Title       string     `gorm:"not null" json:"title"`
	Amount      float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status      string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_milestone_status_completed" json:"status"`
	SortOrder   int        `gorm:"not null;default:0" json:"sort_order"`
	CompletedAt *time.Time `gorm:"index:idx_milestone_status_completed" json:"completed_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (PaymentMilestone) TableName() string {
	return "project_milestones"
}
