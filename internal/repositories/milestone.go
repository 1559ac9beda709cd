package repositories

import (
	"errors"
	"fmt"
	"time"

	"taskpay/internal/models"

	"gorm.io/gorm"
)

type MilestoneRepository interface {
	BulkCreate(milestones []*models.PaymentMilestone) error
	GetByID(id uint) (*models.PaymentMilestone, error)
	Update(milestone *models.PaymentMilestone) error
	FindByBooking(bookingID uint) ([]models.PaymentMilestone, error)

	// FindCompletedBefore returns completed-but-unapproved milestones
	// whose completion predates the cutoff, for the grace-period
	// auto-release sweep. Bounded working set via limit.
	FindCompletedBefore(cutoff time.Time, limit int) ([]models.PaymentMilestone, error)

	WithTx(tx *gorm.DB) MilestoneRepository
}

type milestoneRepository struct {
	db *gorm.DB
}

func NewMilestoneRepository(db *gorm.DB) MilestoneRepository {
	return &milestoneRepository{db: db}
}

func (r *milestoneRepository) BulkCreate(milestones []*models.PaymentMilestone) error {
	if err := r.db.Create(milestones).Error; err != nil {
		return fmt.Errorf("failed to create milestones: %w", err)
	}
	return nil
}

func (r *milestoneRepository) GetByID(id uint) (*models.PaymentMilestone, error) {
	var m models.PaymentMilestone
	if err := r.db.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMilestoneNotFound
		}
		return nil, fmt.Errorf("failed to get milestone: %w", err)
	}
	return &m, nil
}

func (r *milestoneRepository) Update(milestone *models.PaymentMilestone) error {
	if err := r.db.Save(milestone).Error; err != nil {
		return fmt.Errorf("failed to update milestone: %w", err)
	}
	return nil
}

func (r *milestoneRepository) FindByBooking(bookingID uint) ([]models.PaymentMilestone, error) {
	var milestones []models.PaymentMilestone
	err := r.db.Where("booking_id = ?", bookingID).
		Order("sort_order ASC").Find(&milestones).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	return milestones, nil
}

func (r *milestoneRepository) FindCompletedBefore(cutoff time.Time, limit int) ([]models.PaymentMilestone, error) {
	var milestones []models.PaymentMilestone
	err := r.db.Where("status = ? AND completed_at < ?",
		models.MilestoneStatusCompleted, cutoff).
		Order("completed_at ASC").Limit(limit).Find(&milestones).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find completed milestones: %w", err)
	}
	return milestones, nil
}

func (r *milestoneRepository) WithTx(tx *gorm.DB) MilestoneRepository {
	return &milestoneRepository{db: tx}
}
