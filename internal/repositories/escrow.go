package repositories

import (
	"errors"
	"fmt"

	"taskpay/internal/models"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound     = errors.New("escrow account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrMilestoneNotFound   = errors.New("milestone not found")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrDisputeNotFound     = errors.New("dispute not found")
	ErrResolutionNotFound  = errors.New("resolution not found")
	ErrUserNotFound        = errors.New("user not found")
)

// EscrowRepository defines escrow account persistence. Accounts are
// never deleted; the transaction ledger is the audit trail.
type EscrowRepository interface {
	Create(account *models.EscrowAccount) error
	GetByID(id uint) (*models.EscrowAccount, error)
	GetByBookingID(bookingID uint) (*models.EscrowAccount, error)
	Update(account *models.EscrowAccount) error

	// WithTx returns a repository bound to an open database transaction.
	WithTx(tx *gorm.DB) EscrowRepository
}

type escrowRepository struct {
	db *gorm.DB
}

func NewEscrowRepository(db *gorm.DB) EscrowRepository {
	return &escrowRepository{db: db}
}

func (r *escrowRepository) Create(account *models.EscrowAccount) error {
	if err := r.db.Create(account).Error; err != nil {
		return fmt.Errorf("failed to create escrow account: %w", err)
	}
	return nil
}

func (r *escrowRepository) GetByID(id uint) (*models.EscrowAccount, error) {
	var account models.EscrowAccount
	if err := r.db.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get escrow account: %w", err)
	}
	return &account, nil
}

func (r *escrowRepository) GetByBookingID(bookingID uint) (*models.EscrowAccount, error) {
	var account models.EscrowAccount
	if err := r.db.Where("booking_id = ?", bookingID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get escrow account: %w", err)
	}
	return &account, nil
}

func (r *escrowRepository) Update(account *models.EscrowAccount) error {
	if err := r.db.Save(account).Error; err != nil {
		return fmt.Errorf("failed to update escrow account: %w", err)
	}
	return nil
}

func (r *escrowRepository) WithTx(tx *gorm.DB) EscrowRepository {
	return &escrowRepository{db: tx}
}
