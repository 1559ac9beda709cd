package models

import (
	"time"
)

// Booking statuses written back by dispute resolution
const (
	BookingStatusPending    = "pending"
	BookingStatusConfirmed  = "confirmed"
	BookingStatusInProgress = "in_progress"
	BookingStatusCompleted  = "completed"
	BookingStatusCancelled  = "cancelled"
)

// Booking is the marketplace project the escrow account belongs to.
// Only its status is written by this service; everything else is owned
// by the booking workflow upstream.
type Booking struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CustomerID   uint      `gorm:"not null;index" json:"customer_id"`
	ContractorID uint      `gorm:"not null;index" json:"contractor_id"`
	Title        string    `json:"title"`
	Price        float64   `gorm:"type:decimal(12,2);not null" json:"price"`
	Status       string    `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Booking) TableName() string {
	return "bookings"
}
