package repositories

import (
	"errors"
	"fmt"

	"taskpay/internal/models"

	"gorm.io/gorm"
)

// BookingRepository is the narrow view of the booking service this
// subsystem consumes: read a booking, write its status. Nothing else.
type BookingRepository interface {
	GetByID(id uint) (*models.Booking, error)
	UpdateStatus(id uint, status string) error
}

type bookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) GetByID(id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.First(&booking, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

func (r *bookingRepository) UpdateStatus(id uint, status string) error {
	result := r.db.Model(&models.Booking{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update booking status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBookingNotFound
	}
	return nil
}
