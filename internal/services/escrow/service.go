package escrow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"taskpay/internal/gateway"
	"taskpay/internal/models"
	"taskpay/internal/repositories"
	"taskpay/internal/syncutil"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// amountEpsilon absorbs float comparison noise on 2dp amounts.
const amountEpsilon = 0.005

type service struct {
	db         repositories.TxRunner
	accounts   repositories.EscrowRepository
	txs        repositories.TransactionRepository
	milestones repositories.MilestoneRepository
	bookings   repositories.BookingRepository
	users      repositories.UserRepository
	gw         gateway.Gateway
	cache      Cache
	locks      syncutil.KeyedMutex
	currency   string
}

// NewService creates the escrow ledger service.
func NewService(
	db repositories.TxRunner,
	accounts repositories.EscrowRepository,
	txs repositories.TransactionRepository,
	milestones repositories.MilestoneRepository,
	bookings repositories.BookingRepository,
	users repositories.UserRepository,
	gw gateway.Gateway,
	cache Cache,
) Service {
	if db == nil {
		panic("db is required")
	}
	if accounts == nil || txs == nil || milestones == nil {
		panic("ledger repositories are required")
	}
	if gw == nil {
		panic("payment gateway is required")
	}
	if cache == nil {
		cache = noopCache{}
	}
	return &service{
		db:         db,
		accounts:   accounts,
		txs:        txs,
		milestones: milestones,
		bookings:   bookings,
		users:      users,
		gw:         gw,
		cache:      cache,
		currency:   "usd",
	}
}

func (s *service) CreateAccount(ctx context.Context, bookingID uint, totalAmount float64) (*models.EscrowAccount, error) {
	if totalAmount <= 0 {
		return nil, fmt.Errorf("total amount must be positive: %w", ErrInvalidAmount)
	}

	account := &models.EscrowAccount{
		BookingID:   bookingID,
		TotalAmount: round2(totalAmount),
		Status:      models.EscrowStatusCreated,
	}
	if err := s.accounts.Create(account); err != nil {
		return nil, err
	}

	s.cache.CacheEscrowAccount(ctx, account)
	return account, nil
}

func (s *service) Fund(ctx context.Context, accountID uint, payerRef string, payerID uint) (*FundingIntent, error) {
	unlock := s.locks.Lock(lockKey(accountID))
	defer unlock()

	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	if account.Status != models.EscrowStatusCreated {
		return nil, ErrAccountNotFundable
	}

	// A second Fund call while a funding intent is open returns the
	// existing intent rather than creating a duplicate.
	if pending, err := s.txs.FindPendingDeposit(accountID); err == nil {
		return &FundingIntent{
			IntentRef:    pending.ExternalRef,
			ClientSecret: metadataString(pending.Metadata, "client_secret"),
		}, nil
	} else if !errors.Is(err, repositories.ErrTransactionNotFound) {
		return nil, err
	}

	key := uuid.NewString()
	intent, err := s.gw.CreatePaymentIntent(ctx, gateway.PaymentIntentRequest{
		Amount:         gateway.MinorUnits(account.TotalAmount),
		Currency:       s.currency,
		PayerRef:       payerRef,
		IdempotencyKey: key,
		Metadata: map[string]string{
			"booking_id": fmt.Sprint(account.BookingID),
			"account_id": fmt.Sprint(account.ID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	deposit := &models.Transaction{
		EscrowAccountID: account.ID,
		BookingID:       account.BookingID,
		Type:            models.TransactionTypeDeposit,
		Amount:          account.TotalAmount,
		Status:          models.TransactionStatusPending,
		ExternalRef:     intent.IntentRef,
		IdempotencyKey:  key,
		Description:     fmt.Sprintf("Escrow funding by user %d", payerID),
		Metadata:        models.JSON{"client_secret": intent.ClientSecret},
	}
	if err := s.txs.Create(deposit); err != nil {
		return nil, err
	}

	return &FundingIntent{IntentRef: intent.IntentRef, ClientSecret: intent.ClientSecret}, nil
}

func (s *service) ConfirmFunding(ctx context.Context, accountID uint, externalRef string) (*models.EscrowAccount, error) {
	unlock := s.locks.Lock(lockKey(accountID))
	defer unlock()

	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return nil, err
	}

	deposit, err := s.txs.GetByExternalRef(externalRef)
	if err != nil {
		return nil, err
	}
	if deposit.EscrowAccountID != account.ID {
		return nil, fmt.Errorf("payment reference does not belong to account %d: %w",
			accountID, ErrPaymentVerification)
	}

	// Confirming twice with the same reference must not double-credit.
	if deposit.Status == models.TransactionStatusCompleted {
		return account, nil
	}

	status, err := s.gw.VerifyPayment(ctx, externalRef)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}

	switch status {
	case gateway.StatusSucceeded:
		// fall through to credit below
	case gateway.StatusFailed:
		deposit.Status = models.TransactionStatusFailed
		if err := s.txs.Update(deposit); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("processor reports payment failed: %w", ErrPaymentVerification)
	default:
		return nil, fmt.Errorf("payment still processing: %w", ErrPaymentVerification)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		account.HeldAmount = account.TotalAmount
		account.Status = models.EscrowStatusFunded
		if err := s.accounts.WithTx(tx).Update(account); err != nil {
			return err
		}
		deposit.Status = models.TransactionStatusCompleted
		return s.txs.WithTx(tx).Update(deposit)
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateEscrowAccount(ctx, account.BookingID)
	return account, nil
}

func (s *service) ReleaseMilestone(ctx context.Context, milestoneID, approverID uint) (*models.EscrowAccount, error) {
	milestone, err := s.milestones.GetByID(milestoneID)
	if err != nil {
		return nil, err
	}
	if milestone.Status != models.MilestoneStatusCompleted {
		return nil, fmt.Errorf("milestone %d has status %q: %w",
			milestoneID, milestone.Status, ErrMilestoneNotReleasable)
	}

	account, err := s.accounts.GetByBookingID(milestone.BookingID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(lockKey(account.ID))
	defer unlock()

	// Re-read both rows under the lock; a concurrent release may have
	// approved the milestone or moved funds between our first read and
	// acquiring the lock.
	account, err = s.accounts.GetByID(account.ID)
	if err != nil {
		return nil, err
	}
	milestone, err = s.milestones.GetByID(milestoneID)
	if err != nil {
		return nil, err
	}
	if milestone.Status != models.MilestoneStatusCompleted {
		return nil, fmt.Errorf("milestone %d has status %q: %w",
			milestoneID, milestone.Status, ErrMilestoneNotReleasable)
	}
	if account.Frozen() {
		return nil, ErrAccountFrozen
	}
	if account.HeldAmount+amountEpsilon < milestone.Amount {
		log.Printf("LEDGER INCONSISTENCY: account %d held %.2f < milestone %d amount %.2f, manual reconciliation required",
			account.ID, account.HeldAmount, milestone.ID, milestone.Amount)
		return nil, fmt.Errorf("held %.2f, requested %.2f: %w",
			account.HeldAmount, milestone.Amount, ErrInsufficientFunds)
	}

	payeeRef, err := s.contractorPayoutRef(milestone.BookingID)
	if err != nil {
		return nil, err
	}

	fees := CalculateFees(milestone.Amount)
	key := uuid.NewString()
	payoutRef, err := s.gw.CreatePayout(ctx, gateway.PayoutRequest{
		Amount:         gateway.MinorUnits(fees.ContractorPayout),
		Currency:       s.currency,
		PayeeRef:       payeeRef,
		IdempotencyKey: key,
		Metadata: map[string]string{
			"booking_id":   fmt.Sprint(milestone.BookingID),
			"milestone_id": fmt.Sprint(milestone.ID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create payout: %w", err)
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		account.HeldAmount = round2(account.HeldAmount - milestone.Amount)
		account.ReleasedAmount = round2(account.ReleasedAmount + milestone.Amount)
		account.Status = settledStatus(account)
		if err := s.accounts.WithTx(tx).Update(account); err != nil {
			return err
		}

		milestone.Status = models.MilestoneStatusApproved
		milestone.ApprovedAt = &now
		if err := s.milestones.WithTx(tx).Update(milestone); err != nil {
			return err
		}

		return s.txs.WithTx(tx).Create(&models.Transaction{
			EscrowAccountID: account.ID,
			BookingID:       account.BookingID,
			MilestoneID:     &milestone.ID,
			Type:            models.TransactionTypeRelease,
			Amount:          milestone.Amount,
			PlatformFee:     fees.PlatformFee,
			ProcessorFee:    fees.ProcessorFee,
			NetAmount:       fees.ContractorPayout,
			Status:          models.TransactionStatusCompleted,
			ExternalRef:     payoutRef,
			IdempotencyKey:  key,
			Description:     fmt.Sprintf("Milestone %q released by user %d", milestone.Title, approverID),
		})
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateEscrowAccount(ctx, account.BookingID)
	return account, nil
}

func (s *service) Refund(ctx context.Context, accountID uint, amount float64, reason string) (*models.EscrowAccount, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	unlock := s.locks.Lock(lockKey(accountID))
	defer unlock()

	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	if account.Frozen() {
		return nil, ErrAccountFrozen
	}
	if account.HeldAmount+amountEpsilon < amount {
		log.Printf("LEDGER INCONSISTENCY: account %d held %.2f < refund %.2f, manual reconciliation required",
			account.ID, account.HeldAmount, amount)
		return nil, fmt.Errorf("held %.2f, requested %.2f: %w",
			account.HeldAmount, amount, ErrInsufficientFunds)
	}

	account, err = s.refundLocked(ctx, account, amount, reason, uuid.NewString())
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateEscrowAccount(ctx, account.BookingID)
	return account, nil
}

// refundLocked issues a processor refund against the original funding
// transaction and applies the ledger movement under the given
// idempotency key. Caller holds the account lock and has verified
// balances.
func (s *service) refundLocked(ctx context.Context, account *models.EscrowAccount, amount float64, reason, key string) (*models.EscrowAccount, error) {
	deposit, err := s.txs.FindCompletedDeposit(account.ID)
	if err != nil {
		return nil, fmt.Errorf("no settled funding to refund against: %w", err)
	}

	refundRef, err := s.gw.CreateRefund(ctx, gateway.RefundRequest{
		IntentRef:      deposit.ExternalRef,
		Amount:         gateway.MinorUnits(amount),
		Reason:         reason,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		account.HeldAmount = round2(account.HeldAmount - amount)
		account.RefundedAmount = round2(account.RefundedAmount + amount)
		account.Status = settledStatus(account)
		if err := s.accounts.WithTx(tx).Update(account); err != nil {
			return err
		}

		return s.txs.WithTx(tx).Create(&models.Transaction{
			EscrowAccountID: account.ID,
			BookingID:       account.BookingID,
			Type:            models.TransactionTypeRefund,
			Amount:          amount,
			NetAmount:       amount,
			Status:          models.TransactionStatusCompleted,
			ExternalRef:     refundRef,
			IdempotencyKey:  key,
			Description:     reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *service) Freeze(ctx context.Context, accountID uint) error {
	unlock := s.locks.Lock(lockKey(accountID))
	defer unlock()

	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return err
	}
	if account.Frozen() {
		return nil
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		account.Status = models.EscrowStatusDisputed
		account.FrozenAt = &now
		if err := s.accounts.WithTx(tx).Update(account); err != nil {
			return err
		}

		return s.txs.WithTx(tx).Create(&models.Transaction{
			EscrowAccountID: account.ID,
			BookingID:       account.BookingID,
			Type:            models.TransactionTypeDisputeHold,
			Amount:          account.HeldAmount,
			Status:          models.TransactionStatusCompleted,
			IdempotencyKey:  uuid.NewString(),
			Description:     "Dispute hold placed on escrow account",
		})
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateEscrowAccount(ctx, account.BookingID)
	return nil
}

func (s *service) Unfreeze(ctx context.Context, accountID uint) error {
	unlock := s.locks.Lock(lockKey(accountID))
	defer unlock()

	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return err
	}
	if !account.Frozen() {
		return nil
	}

	account.Status = settledStatus(account)
	account.FrozenAt = nil
	if err := s.accounts.Update(account); err != nil {
		return err
	}

	s.cache.InvalidateEscrowAccount(ctx, account.BookingID)
	return nil
}

func (s *service) ExecuteResolution(ctx context.Context, accountID, disputeID uint, refundAmount, releaseAmount float64, reason string) error {
	if refundAmount < 0 || releaseAmount < 0 {
		return ErrInvalidAmount
	}

	unlock := s.locks.Lock(lockKey(accountID))
	defer unlock()

	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return err
	}

	// Settlement legs carry deterministic keys so a retry after a
	// partial failure skips the legs that already committed.
	refundKey := settlementKey(disputeID, "refund")
	releaseKey := settlementKey(disputeID, "release")
	if refundAmount > 0 {
		done, err := s.legCommitted(refundKey)
		if err != nil {
			return err
		}
		if done {
			refundAmount = 0
		}
	}
	if releaseAmount > 0 {
		done, err := s.legCommitted(releaseKey)
		if err != nil {
			return err
		}
		if done {
			releaseAmount = 0
		}
	}

	if account.HeldAmount+amountEpsilon < refundAmount+releaseAmount {
		log.Printf("LEDGER INCONSISTENCY: account %d held %.2f < settlement %.2f, manual reconciliation required",
			account.ID, account.HeldAmount, refundAmount+releaseAmount)
		return fmt.Errorf("held %.2f, settlement needs %.2f: %w",
			account.HeldAmount, refundAmount+releaseAmount, ErrInsufficientFunds)
	}

	if refundAmount > 0 {
		if account, err = s.refundLocked(ctx, account, refundAmount, reason, refundKey); err != nil {
			return err
		}
	}

	if releaseAmount > 0 {
		if err := s.releaseDirectLocked(ctx, account, releaseAmount, reason, releaseKey); err != nil {
			return err
		}
	}

	// Settlement done; lift the dispute hold.
	account.Status = settledStatus(account)
	account.FrozenAt = nil
	if err := s.accounts.Update(account); err != nil {
		return err
	}

	s.cache.InvalidateEscrowAccount(ctx, account.BookingID)
	return nil
}

// releaseDirectLocked pays the contractor outside the milestone path,
// used only by dispute settlement. Caller holds the account lock.
func (s *service) releaseDirectLocked(ctx context.Context, account *models.EscrowAccount, amount float64, reason, key string) error {
	payeeRef, err := s.contractorPayoutRef(account.BookingID)
	if err != nil {
		return err
	}

	fees := CalculateFees(amount)
	payoutRef, err := s.gw.CreatePayout(ctx, gateway.PayoutRequest{
		Amount:         gateway.MinorUnits(fees.ContractorPayout),
		Currency:       s.currency,
		PayeeRef:       payeeRef,
		IdempotencyKey: key,
		Metadata:       map[string]string{"booking_id": fmt.Sprint(account.BookingID)},
	})
	if err != nil {
		return fmt.Errorf("create payout: %w", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		account.HeldAmount = round2(account.HeldAmount - amount)
		account.ReleasedAmount = round2(account.ReleasedAmount + amount)
		if err := s.accounts.WithTx(tx).Update(account); err != nil {
			return err
		}

		return s.txs.WithTx(tx).Create(&models.Transaction{
			EscrowAccountID: account.ID,
			BookingID:       account.BookingID,
			Type:            models.TransactionTypeRelease,
			Amount:          amount,
			PlatformFee:     fees.PlatformFee,
			ProcessorFee:    fees.ProcessorFee,
			NetAmount:       fees.ContractorPayout,
			Status:          models.TransactionStatusCompleted,
			ExternalRef:     payoutRef,
			IdempotencyKey:  key,
			Description:     reason,
		})
	})
}

func (s *service) GetAccount(ctx context.Context, accountID uint) (*models.EscrowAccount, error) {
	return s.accounts.GetByID(accountID)
}

func (s *service) GetByBooking(ctx context.Context, bookingID uint) (*models.EscrowAccount, error) {
	if account, err := s.cache.GetEscrowAccount(ctx, bookingID); err == nil && account != nil {
		return account, nil
	}

	account, err := s.accounts.GetByBookingID(bookingID)
	if err != nil {
		return nil, err
	}

	s.cache.CacheEscrowAccount(ctx, account)
	return account, nil
}

func (s *service) ListTransactions(ctx context.Context, accountID uint) ([]models.Transaction, error) {
	return s.txs.ListByAccount(accountID)
}

// contractorPayoutRef resolves the processor payee reference for the
// booking's contractor.
func (s *service) contractorPayoutRef(bookingID uint) (string, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return "", err
	}
	contractor, err := s.users.GetByID(booking.ContractorID)
	if err != nil {
		return "", err
	}
	if contractor.PayoutRef == "" {
		return "", fmt.Errorf("contractor %d: %w", contractor.ID, ErrNoPayoutDestination)
	}
	return contractor.PayoutRef, nil
}

// settledStatus derives the account status from its balances. Not used
// while a dispute hold is active.
func settledStatus(a *models.EscrowAccount) string {
	switch {
	case a.HeldAmount <= amountEpsilon && a.ReleasedAmount+a.RefundedAmount > 0:
		return models.EscrowStatusCompleted
	case a.ReleasedAmount > 0 || a.RefundedAmount > 0:
		return models.EscrowStatusPartialRelease
	case a.HeldAmount > 0:
		return models.EscrowStatusFunded
	default:
		return models.EscrowStatusCreated
	}
}

func lockKey(accountID uint) string {
	return fmt.Sprintf("escrow:%d", accountID)
}

// settlementKey is the deterministic idempotency key for one leg of a
// dispute settlement. Leg entries are only ever written as completed,
// so finding one means the leg already moved money.
func settlementKey(disputeID uint, leg string) string {
	return fmt.Sprintf("dispute:%d:%s", disputeID, leg)
}

func (s *service) legCommitted(key string) (bool, error) {
	tx, err := s.txs.GetByIdempotencyKey(key)
	if errors.Is(err, repositories.ErrTransactionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tx.Status == models.TransactionStatusCompleted, nil
}

func metadataString(m models.JSON, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

type noopCache struct{}

func (noopCache) CacheEscrowAccount(context.Context, *models.EscrowAccount) error { return nil }
func (noopCache) GetEscrowAccount(context.Context, uint) (*models.EscrowAccount, error) {
	return nil, nil
}
func (noopCache) InvalidateEscrowAccount(context.Context, uint) error { return nil }
