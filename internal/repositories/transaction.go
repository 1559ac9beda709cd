package repositories

import (
	"errors"
	"fmt"
	"time"

	"taskpay/internal/models"

	"gorm.io/gorm"
)

// TransactionRepository is append-mostly: entries are created on every
// money-moving operation and only their status/external reference may
// change until they reach a terminal status.
type TransactionRepository interface {
	Create(tx *models.Transaction) error
	GetByID(id uint) (*models.Transaction, error)
	GetByExternalRef(ref string) (*models.Transaction, error)

	// GetByIdempotencyKey returns the entry created under the given
	// idempotency key. Dispute settlements use deterministic keys so a
	// retried settlement can detect legs that already committed.
	GetByIdempotencyKey(key string) (*models.Transaction, error)

	Update(tx *models.Transaction) error
	ListByAccount(accountID uint) ([]models.Transaction, error)

	// FindPendingDeposit returns the open funding transaction for an
	// account, if any. Used to make Fund idempotent.
	FindPendingDeposit(accountID uint) (*models.Transaction, error)

	// FindCompletedDeposit returns the settled funding transaction for
	// an account. Refunds are issued against its external reference.
	FindCompletedDeposit(accountID uint) (*models.Transaction, error)

	// FindPendingOlderThan returns pending entries created before the
	// cutoff, for the reconciliation sweep.
	FindPendingOlderThan(cutoff time.Time, limit int) ([]models.Transaction, error)

	WithTx(tx *gorm.DB) TransactionRepository
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(tx *models.Transaction) error {
	if err := r.db.Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) GetByID(id uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.First(&tx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) GetByExternalRef(ref string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.Where("external_ref = ?", ref).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) GetByIdempotencyKey(key string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.Where("idempotency_key = ?", key).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) Update(tx *models.Transaction) error {
	if err := r.db.Save(tx).Error; err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) ListByAccount(accountID uint) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("escrow_account_id = ?", accountID).
		Order("created_at DESC").Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (r *transactionRepository) FindPendingDeposit(accountID uint) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("escrow_account_id = ? AND type = ? AND status = ?",
		accountID, models.TransactionTypeDeposit, models.TransactionStatusPending).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find pending deposit: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) FindCompletedDeposit(accountID uint) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("escrow_account_id = ? AND type = ? AND status = ?",
		accountID, models.TransactionTypeDeposit, models.TransactionStatusCompleted).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find completed deposit: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) FindPendingOlderThan(cutoff time.Time, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("status = ? AND created_at < ?",
		models.TransactionStatusPending, cutoff).
		Order("created_at ASC").Limit(limit).Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pending transactions: %w", err)
	}
	return txs, nil
}

func (r *transactionRepository) WithTx(tx *gorm.DB) TransactionRepository {
	return &transactionRepository{db: tx}
}
