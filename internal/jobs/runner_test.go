package jobs

import (
	"context"
	"testing"
	"time"

	"taskpay/internal/gateway"
	"taskpay/internal/models"
	"taskpay/internal/repositories"
	"taskpay/internal/services/escrow"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// fakeEscrow records which operations the jobs drive.
type fakeEscrow struct {
	released   []uint
	releaseErr map[uint]error
	confirmed  []string
	confirmErr error
}

func (f *fakeEscrow) CreateAccount(context.Context, uint, float64) (*models.EscrowAccount, error) {
	return nil, nil
}

func (f *fakeEscrow) Fund(context.Context, uint, string, uint) (*escrow.FundingIntent, error) {
	return nil, nil
}

func (f *fakeEscrow) ConfirmFunding(ctx context.Context, accountID uint, externalRef string) (*models.EscrowAccount, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	f.confirmed = append(f.confirmed, externalRef)
	return &models.EscrowAccount{ID: accountID}, nil
}

func (f *fakeEscrow) ReleaseMilestone(ctx context.Context, milestoneID, approverID uint) (*models.EscrowAccount, error) {
	if err := f.releaseErr[milestoneID]; err != nil {
		return nil, err
	}
	f.released = append(f.released, milestoneID)
	return &models.EscrowAccount{}, nil
}

func (f *fakeEscrow) Refund(context.Context, uint, float64, string) (*models.EscrowAccount, error) {
	return nil, nil
}

func (f *fakeEscrow) Freeze(context.Context, uint) error   { return nil }
func (f *fakeEscrow) Unfreeze(context.Context, uint) error { return nil }

func (f *fakeEscrow) ExecuteResolution(context.Context, uint, uint, float64, float64, string) error {
	return nil
}

func (f *fakeEscrow) GetAccount(context.Context, uint) (*models.EscrowAccount, error) {
	return nil, nil
}

func (f *fakeEscrow) GetByBooking(context.Context, uint) (*models.EscrowAccount, error) {
	return nil, nil
}

func (f *fakeEscrow) ListTransactions(context.Context, uint) ([]models.Transaction, error) {
	return nil, nil
}

type fakeMilestones struct {
	completed []models.PaymentMilestone
	gotCutoff time.Time
}

func (f *fakeMilestones) BulkCreate([]*models.PaymentMilestone) error { return nil }
func (f *fakeMilestones) GetByID(uint) (*models.PaymentMilestone, error) {
	return nil, repositories.ErrMilestoneNotFound
}
func (f *fakeMilestones) Update(*models.PaymentMilestone) error { return nil }
func (f *fakeMilestones) FindByBooking(uint) ([]models.PaymentMilestone, error) {
	return nil, nil
}

func (f *fakeMilestones) FindCompletedBefore(cutoff time.Time, limit int) ([]models.PaymentMilestone, error) {
	f.gotCutoff = cutoff
	if len(f.completed) > limit {
		return f.completed[:limit], nil
	}
	return f.completed, nil
}

func (f *fakeMilestones) WithTx(*gorm.DB) repositories.MilestoneRepository { return f }

type fakeTxs struct {
	pending []models.Transaction
	updated []models.Transaction
}

func (f *fakeTxs) Create(*models.Transaction) error { return nil }
func (f *fakeTxs) GetByID(uint) (*models.Transaction, error) {
	return nil, repositories.ErrTransactionNotFound
}
func (f *fakeTxs) GetByExternalRef(string) (*models.Transaction, error) {
	return nil, repositories.ErrTransactionNotFound
}
func (f *fakeTxs) GetByIdempotencyKey(string) (*models.Transaction, error) {
	return nil, repositories.ErrTransactionNotFound
}

func (f *fakeTxs) Update(tx *models.Transaction) error {
	f.updated = append(f.updated, *tx)
	return nil
}

func (f *fakeTxs) ListByAccount(uint) ([]models.Transaction, error) { return nil, nil }
func (f *fakeTxs) FindPendingDeposit(uint) (*models.Transaction, error) {
	return nil, repositories.ErrTransactionNotFound
}
func (f *fakeTxs) FindCompletedDeposit(uint) (*models.Transaction, error) {
	return nil, repositories.ErrTransactionNotFound
}

func (f *fakeTxs) FindPendingOlderThan(cutoff time.Time, limit int) ([]models.Transaction, error) {
	return f.pending, nil
}

func (f *fakeTxs) WithTx(*gorm.DB) repositories.TransactionRepository { return f }

type fakeVerifier struct {
	statuses map[string]gateway.PaymentStatus
}

func (f *fakeVerifier) CreatePaymentIntent(context.Context, gateway.PaymentIntentRequest) (*gateway.PaymentIntentResult, error) {
	return nil, nil
}

func (f *fakeVerifier) VerifyPayment(ctx context.Context, ref string) (gateway.PaymentStatus, error) {
	return f.statuses[ref], nil
}

func (f *fakeVerifier) CreatePayout(context.Context, gateway.PayoutRequest) (string, error) {
	return "", nil
}

func (f *fakeVerifier) CreateRefund(context.Context, gateway.RefundRequest) (string, error) {
	return "", nil
}

func testConfig() Config {
	return Config{
		GracePeriod:    72 * time.Hour,
		ReconcileAfter: 30 * time.Minute,
		BatchSize:      100,
	}
}

func TestAutoReleaseSweep(t *testing.T) {
	t.Run("releases lapsed milestones and skips blocked ones", func(t *testing.T) {
		escrowSvc := &fakeEscrow{releaseErr: map[uint]error{
			2: escrow.ErrAccountFrozen,
			3: escrow.ErrInsufficientFunds,
		}}
		milestones := &fakeMilestones{completed: []models.PaymentMilestone{
			{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4},
		}}

		r := NewRunner(escrowSvc, milestones, &fakeTxs{}, &fakeVerifier{}, testConfig())
		r.AutoReleaseSweep()

		assert.Equal(t, []uint{1, 4}, escrowSvc.released,
			"frozen and inconsistent accounts are skipped, the rest release")
	})

	t.Run("cutoff reflects the grace period", func(t *testing.T) {
		milestones := &fakeMilestones{}
		r := NewRunner(&fakeEscrow{}, milestones, &fakeTxs{}, &fakeVerifier{}, testConfig())
		r.AutoReleaseSweep()

		expected := time.Now().Add(-72 * time.Hour)
		assert.WithinDuration(t, expected, milestones.gotCutoff, time.Minute)
	})
}

func TestReconcilePending(t *testing.T) {
	t.Run("settled deposits get confirmed", func(t *testing.T) {
		escrowSvc := &fakeEscrow{}
		txs := &fakeTxs{pending: []models.Transaction{
			{ID: 1, EscrowAccountID: 5, Type: models.TransactionTypeDeposit, ExternalRef: "pi_settled", Status: models.TransactionStatusPending},
		}}
		gw := &fakeVerifier{statuses: map[string]gateway.PaymentStatus{
			"pi_settled": gateway.StatusSucceeded,
		}}

		r := NewRunner(escrowSvc, &fakeMilestones{}, txs, gw, testConfig())
		r.ReconcilePending()

		assert.Equal(t, []string{"pi_settled"}, escrowSvc.confirmed)
		assert.Empty(t, txs.updated)
	})

	t.Run("failed deposits are marked failed", func(t *testing.T) {
		txs := &fakeTxs{pending: []models.Transaction{
			{ID: 1, EscrowAccountID: 5, Type: models.TransactionTypeDeposit, ExternalRef: "pi_dead", Status: models.TransactionStatusPending},
		}}
		gw := &fakeVerifier{statuses: map[string]gateway.PaymentStatus{
			"pi_dead": gateway.StatusFailed,
		}}

		r := NewRunner(&fakeEscrow{}, &fakeMilestones{}, txs, gw, testConfig())
		r.ReconcilePending()

		if assert.Len(t, txs.updated, 1) {
			assert.Equal(t, models.TransactionStatusFailed, txs.updated[0].Status)
		}
	})

	t.Run("processing deposits are left for the next run", func(t *testing.T) {
		escrowSvc := &fakeEscrow{}
		txs := &fakeTxs{pending: []models.Transaction{
			{ID: 1, EscrowAccountID: 5, Type: models.TransactionTypeDeposit, ExternalRef: "pi_slow", Status: models.TransactionStatusPending},
		}}
		gw := &fakeVerifier{statuses: map[string]gateway.PaymentStatus{
			"pi_slow": gateway.StatusProcessing,
		}}

		r := NewRunner(escrowSvc, &fakeMilestones{}, txs, gw, testConfig())
		r.ReconcilePending()

		assert.Empty(t, escrowSvc.confirmed)
		assert.Empty(t, txs.updated)
	})

	t.Run("non-deposit transactions are never auto-touched", func(t *testing.T) {
		escrowSvc := &fakeEscrow{}
		txs := &fakeTxs{pending: []models.Transaction{
			{ID: 1, Type: models.TransactionTypeRelease, ExternalRef: "po_stuck", Status: models.TransactionStatusPending},
		}}

		r := NewRunner(escrowSvc, &fakeMilestones{}, txs, &fakeVerifier{}, testConfig())
		r.ReconcilePending()

		assert.Empty(t, escrowSvc.confirmed)
		assert.Empty(t, txs.updated)
	})
}
