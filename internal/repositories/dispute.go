package repositories

import (
	"errors"
	"fmt"

	"taskpay/internal/models"

	"gorm.io/gorm"
)

type DisputeRepository interface {
	Create(dispute *models.Dispute) error
	GetByID(id uint) (*models.Dispute, error)
	Update(dispute *models.Dispute) error

	// ActiveExistsForBooking reports whether the booking already has a
	// dispute in open, in_mediation or escalated state.
	ActiveExistsForBooking(bookingID uint) (bool, error)

	AddEvidence(evidence *models.DisputeEvidence) error
	AddMessage(message *models.DisputeMessage) error
	ListEvidence(disputeID uint) ([]models.DisputeEvidence, error)
	ListMessages(disputeID uint) ([]models.DisputeMessage, error)

	CreateResolution(resolution *models.DisputeResolution) error
	GetResolution(disputeID uint) (*models.DisputeResolution, error)
	CreateMediationSession(session *models.MediationSession) error

	WithTx(tx *gorm.DB) DisputeRepository
}

type disputeRepository struct {
	db *gorm.DB
}

func NewDisputeRepository(db *gorm.DB) DisputeRepository {
	return &disputeRepository{db: db}
}

func (r *disputeRepository) Create(dispute *models.Dispute) error {
	if err := r.db.Create(dispute).Error; err != nil {
		return fmt.Errorf("failed to create dispute: %w", err)
	}
	return nil
}

func (r *disputeRepository) GetByID(id uint) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := r.db.First(&dispute, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	return &dispute, nil
}

func (r *disputeRepository) Update(dispute *models.Dispute) error {
	if err := r.db.Save(dispute).Error; err != nil {
		return fmt.Errorf("failed to update dispute: %w", err)
	}
	return nil
}

func (r *disputeRepository) ActiveExistsForBooking(bookingID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Dispute{}).
		Where("booking_id = ? AND status IN ?", bookingID, []string{
			string(models.DisputeStatusOpen),
			string(models.DisputeStatusInMediation),
			string(models.DisputeStatusEscalated),
		}).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count active disputes: %w", err)
	}
	return count > 0, nil
}

func (r *disputeRepository) AddEvidence(evidence *models.DisputeEvidence) error {
	if err := r.db.Create(evidence).Error; err != nil {
		return fmt.Errorf("failed to add evidence: %w", err)
	}
	return nil
}

func (r *disputeRepository) AddMessage(message *models.DisputeMessage) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

func (r *disputeRepository) ListEvidence(disputeID uint) ([]models.DisputeEvidence, error) {
	var evidence []models.DisputeEvidence
	err := r.db.Where("dispute_id = ?", disputeID).
		Order("created_at ASC").Find(&evidence).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	return evidence, nil
}

func (r *disputeRepository) ListMessages(disputeID uint) ([]models.DisputeMessage, error) {
	var messages []models.DisputeMessage
	err := r.db.Where("dispute_id = ?", disputeID).
		Order("created_at ASC").Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (r *disputeRepository) CreateResolution(resolution *models.DisputeResolution) error {
	if err := r.db.Create(resolution).Error; err != nil {
		return fmt.Errorf("failed to create resolution: %w", err)
	}
	return nil
}

func (r *disputeRepository) GetResolution(disputeID uint) (*models.DisputeResolution, error) {
	var resolution models.DisputeResolution
	if err := r.db.Where("dispute_id = ?", disputeID).First(&resolution).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResolutionNotFound
		}
		return nil, fmt.Errorf("failed to get resolution: %w", err)
	}
	return &resolution, nil
}

func (r *disputeRepository) CreateMediationSession(session *models.MediationSession) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("failed to create mediation session: %w", err)
	}
	return nil
}

func (r *disputeRepository) WithTx(tx *gorm.DB) DisputeRepository {
	return &disputeRepository{db: tx}
}
