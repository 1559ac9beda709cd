package escrow

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taskpay/internal/gateway"
	"taskpay/internal/models"
	"taskpay/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeTxRunner satisfies repositories.TxRunner without a database; the
// fakes commit immediately, so the callback just runs.
type fakeTxRunner struct{}

func (fakeTxRunner) Transaction(fc func(tx *gorm.DB) error, _ ...*sql.TxOptions) error {
	return fc(nil)
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[uint]*models.EscrowAccount
	nextID   uint
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[uint]*models.EscrowAccount{}, nextID: 1}
}

func (r *fakeAccountRepo) Create(a *models.EscrowAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = r.nextID
	r.nextID++
	copied := *a
	r.accounts[a.ID] = &copied
	return nil
}

func (r *fakeAccountRepo) GetByID(id uint) (*models.EscrowAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, repositories.ErrAccountNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *fakeAccountRepo) GetByBookingID(bookingID uint) (*models.EscrowAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.BookingID == bookingID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, repositories.ErrAccountNotFound
}

func (r *fakeAccountRepo) Update(a *models.EscrowAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *a
	r.accounts[a.ID] = &copied
	return nil
}

func (r *fakeAccountRepo) WithTx(*gorm.DB) repositories.EscrowRepository { return r }

type fakeTxRepo struct {
	mu     sync.Mutex
	txs    map[uint]*models.Transaction
	nextID uint
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{txs: map[uint]*models.Transaction{}, nextID: 1}
}

func (r *fakeTxRepo) Create(tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx.ID = r.nextID
	r.nextID++
	copied := *tx
	r.txs[tx.ID] = &copied
	return nil
}

func (r *fakeTxRepo) GetByID(id uint) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, repositories.ErrTransactionNotFound
	}
	copied := *tx
	return &copied, nil
}

func (r *fakeTxRepo) GetByExternalRef(ref string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.ExternalRef == ref {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (r *fakeTxRepo) GetByIdempotencyKey(key string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.IdempotencyKey == key {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (r *fakeTxRepo) Update(tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *tx
	r.txs[tx.ID] = &copied
	return nil
}

func (r *fakeTxRepo) ListByAccount(accountID uint) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, tx := range r.txs {
		if tx.EscrowAccountID == accountID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (r *fakeTxRepo) FindPendingDeposit(accountID uint) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.EscrowAccountID == accountID &&
			tx.Type == models.TransactionTypeDeposit &&
			tx.Status == models.TransactionStatusPending {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (r *fakeTxRepo) FindCompletedDeposit(accountID uint) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.EscrowAccountID == accountID &&
			tx.Type == models.TransactionTypeDeposit &&
			tx.Status == models.TransactionStatusCompleted {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (r *fakeTxRepo) FindPendingOlderThan(cutoff time.Time, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, tx := range r.txs {
		if tx.Status == models.TransactionStatusPending && tx.CreatedAt.Before(cutoff) {
			out = append(out, *tx)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeTxRepo) WithTx(*gorm.DB) repositories.TransactionRepository { return r }

type fakeMilestoneRepo struct {
	mu         sync.Mutex
	milestones map[uint]*models.PaymentMilestone
}

func (r *fakeMilestoneRepo) BulkCreate(ms []*models.PaymentMilestone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range ms {
		m.ID = uint(len(r.milestones) + i + 1)
		copied := *m
		r.milestones[m.ID] = &copied
	}
	return nil
}

func (r *fakeMilestoneRepo) GetByID(id uint) (*models.PaymentMilestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.milestones[id]
	if !ok {
		return nil, repositories.ErrMilestoneNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMilestoneRepo) Update(m *models.PaymentMilestone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *m
	r.milestones[m.ID] = &copied
	return nil
}

func (r *fakeMilestoneRepo) FindByBooking(bookingID uint) ([]models.PaymentMilestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PaymentMilestone
	for _, m := range r.milestones {
		if m.BookingID == bookingID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeMilestoneRepo) FindCompletedBefore(time.Time, int) ([]models.PaymentMilestone, error) {
	return nil, nil
}

func (r *fakeMilestoneRepo) WithTx(*gorm.DB) repositories.MilestoneRepository { return r }

type fakeBookingRepo struct {
	bookings map[uint]*models.Booking
}

func (r *fakeBookingRepo) GetByID(id uint) (*models.Booking, error) {
	b, ok := r.bookings[id]
	if !ok {
		return nil, repositories.ErrBookingNotFound
	}
	return b, nil
}

func (r *fakeBookingRepo) UpdateStatus(id uint, status string) error {
	b, ok := r.bookings[id]
	if !ok {
		return repositories.ErrBookingNotFound
	}
	b.Status = status
	return nil
}

type fakeUserRepo struct {
	users map[uint]*models.User
}

func (r *fakeUserRepo) GetByID(id uint) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) FindActiveMediators() ([]models.User, error) { return nil, nil }

// stubGateway records calls and returns canned results.
type stubGateway struct {
	intents     int
	verifies    int
	payouts     int
	refunds     int
	verifyState gateway.PaymentStatus
	failPayout  error
}

func (g *stubGateway) CreatePaymentIntent(ctx context.Context, req gateway.PaymentIntentRequest) (*gateway.PaymentIntentResult, error) {
	g.intents++
	return &gateway.PaymentIntentResult{IntentRef: "pi_test_1", ClientSecret: "secret_1"}, nil
}

func (g *stubGateway) VerifyPayment(ctx context.Context, ref string) (gateway.PaymentStatus, error) {
	g.verifies++
	return g.verifyState, nil
}

func (g *stubGateway) CreatePayout(ctx context.Context, req gateway.PayoutRequest) (string, error) {
	g.payouts++
	if g.failPayout != nil {
		return "", g.failPayout
	}
	return "po_test_1", nil
}

func (g *stubGateway) CreateRefund(ctx context.Context, req gateway.RefundRequest) (string, error) {
	g.refunds++
	return "re_test_1", nil
}

type testEnv struct {
	accounts *fakeAccountRepo
	txs      *fakeTxRepo
	ms       *fakeMilestoneRepo
	bookings *fakeBookingRepo
	users    *fakeUserRepo
	gw       *stubGateway
	svc      Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		accounts: newFakeAccountRepo(),
		txs:      newFakeTxRepo(),
		ms:       &fakeMilestoneRepo{milestones: map[uint]*models.PaymentMilestone{}},
		bookings: &fakeBookingRepo{bookings: map[uint]*models.Booking{}},
		users:    &fakeUserRepo{users: map[uint]*models.User{}},
		gw:       &stubGateway{verifyState: gateway.StatusSucceeded},
	}
	env.svc = NewService(fakeTxRunner{}, env.accounts, env.txs, env.ms, env.bookings, env.users, env.gw, nil)
	return env
}

func TestCreateAccount(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	t.Run("rejects non-positive totals", func(t *testing.T) {
		_, err := env.svc.CreateAccount(ctx, 1, 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = env.svc.CreateAccount(ctx, 1, -50)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("creates account in created status", func(t *testing.T) {
		account, err := env.svc.CreateAccount(ctx, 7, 1200.005)
		require.NoError(t, err)
		assert.Equal(t, models.EscrowStatusCreated, account.Status)
		assert.Equal(t, 1200.01, account.TotalAmount)
		assert.Zero(t, account.HeldAmount)
		assert.Zero(t, account.ReleasedAmount)
		assert.Zero(t, account.RefundedAmount)
	})
}

func TestFund(t *testing.T) {
	ctx := context.Background()

	t.Run("only created accounts can be funded", func(t *testing.T) {
		env := newTestEnv()
		account := &models.EscrowAccount{BookingID: 1, TotalAmount: 100, Status: models.EscrowStatusFunded}
		require.NoError(t, env.accounts.Create(account))

		_, err := env.svc.Fund(ctx, account.ID, "pm_card", 10)
		assert.ErrorIs(t, err, ErrAccountNotFundable)
		assert.Zero(t, env.gw.intents)
	})

	t.Run("creates a payment intent and pending deposit", func(t *testing.T) {
		env := newTestEnv()
		account, err := env.svc.CreateAccount(ctx, 1, 100)
		require.NoError(t, err)

		intent, err := env.svc.Fund(ctx, account.ID, "pm_card", 10)
		require.NoError(t, err)
		assert.Equal(t, "pi_test_1", intent.IntentRef)
		assert.Equal(t, "secret_1", intent.ClientSecret)
		assert.Equal(t, 1, env.gw.intents)

		deposit, err := env.txs.FindPendingDeposit(account.ID)
		require.NoError(t, err)
		assert.Equal(t, 100.0, deposit.Amount)
		assert.NotEmpty(t, deposit.IdempotencyKey)
	})

	t.Run("second call reuses the open intent", func(t *testing.T) {
		env := newTestEnv()
		account, err := env.svc.CreateAccount(ctx, 1, 100)
		require.NoError(t, err)

		first, err := env.svc.Fund(ctx, account.ID, "pm_card", 10)
		require.NoError(t, err)
		second, err := env.svc.Fund(ctx, account.ID, "pm_card", 10)
		require.NoError(t, err)

		assert.Equal(t, first.IntentRef, second.IntentRef)
		assert.Equal(t, 1, env.gw.intents, "no duplicate intent at the processor")
	})
}

func TestConfirmFunding(t *testing.T) {
	ctx := context.Background()

	t.Run("credits the account once for repeated confirmations", func(t *testing.T) {
		env := newTestEnv()
		account, err := env.svc.CreateAccount(ctx, 1, 100)
		require.NoError(t, err)
		intent, err := env.svc.Fund(ctx, account.ID, "pm_card", 10)
		require.NoError(t, err)

		got, err := env.svc.ConfirmFunding(ctx, account.ID, intent.IntentRef)
		require.NoError(t, err)
		assert.Equal(t, models.EscrowStatusFunded, got.Status)
		assert.Equal(t, 100.0, got.HeldAmount)
		assert.Equal(t, 1, env.gw.verifies)

		deposit, err := env.txs.GetByExternalRef(intent.IntentRef)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusCompleted, deposit.Status)

		again, err := env.svc.ConfirmFunding(ctx, account.ID, intent.IntentRef)
		require.NoError(t, err)
		assert.Equal(t, 100.0, again.HeldAmount, "second confirmation does not double-credit")
		assert.Equal(t, 1, env.gw.verifies, "settled deposits are not re-verified")

		stored, err := env.svc.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, 100.0, stored.HeldAmount)
	})

	t.Run("rejects references belonging to another account", func(t *testing.T) {
		env := newTestEnv()
		a, err := env.svc.CreateAccount(ctx, 1, 100)
		require.NoError(t, err)
		b, err := env.svc.CreateAccount(ctx, 2, 200)
		require.NoError(t, err)

		intent, err := env.svc.Fund(ctx, b.ID, "pm_card", 10)
		require.NoError(t, err)

		_, err = env.svc.ConfirmFunding(ctx, a.ID, intent.IntentRef)
		assert.ErrorIs(t, err, ErrPaymentVerification)
	})

	t.Run("marks the deposit failed when the processor declines", func(t *testing.T) {
		env := newTestEnv()
		env.gw.verifyState = gateway.StatusFailed
		account, err := env.svc.CreateAccount(ctx, 1, 100)
		require.NoError(t, err)
		intent, err := env.svc.Fund(ctx, account.ID, "pm_card", 10)
		require.NoError(t, err)

		_, err = env.svc.ConfirmFunding(ctx, account.ID, intent.IntentRef)
		assert.ErrorIs(t, err, ErrPaymentVerification)

		deposit, err := env.txs.GetByExternalRef(intent.IntentRef)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusFailed, deposit.Status)

		got, err := env.svc.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Zero(t, got.HeldAmount, "declined payment never credits the ledger")
	})

	t.Run("still-processing payments are not credited", func(t *testing.T) {
		env := newTestEnv()
		env.gw.verifyState = gateway.StatusProcessing
		account, err := env.svc.CreateAccount(ctx, 1, 100)
		require.NoError(t, err)
		intent, err := env.svc.Fund(ctx, account.ID, "pm_card", 10)
		require.NoError(t, err)

		_, err = env.svc.ConfirmFunding(ctx, account.ID, intent.IntentRef)
		assert.ErrorIs(t, err, ErrPaymentVerification)
	})
}

// gatedMilestoneRepo blocks the first two GetByID reads until both have
// arrived, so two concurrent releases both observe the milestone as
// completed before either takes the account lock.
type gatedMilestoneRepo struct {
	*fakeMilestoneRepo
	reads int32
	gate  sync.WaitGroup
}

func (r *gatedMilestoneRepo) GetByID(id uint) (*models.PaymentMilestone, error) {
	if atomic.AddInt32(&r.reads, 1) <= 2 {
		r.gate.Done()
		r.gate.Wait()
	}
	return r.fakeMilestoneRepo.GetByID(id)
}

func TestReleaseMilestone(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	setup := func(held float64, milestoneStatus string) (*testEnv, *models.PaymentMilestone, *models.EscrowAccount) {
		env := newTestEnv()
		account := &models.EscrowAccount{
			BookingID:   1,
			TotalAmount: held,
			HeldAmount:  held,
			Status:      models.EscrowStatusFunded,
		}
		require.NoError(t, env.accounts.Create(account))
		env.bookings.bookings[1] = &models.Booking{ID: 1, CustomerID: 10, ContractorID: 20, Price: held}
		contractor := &models.User{Role: models.RoleContractor, PayoutRef: "acct_contractor"}
		contractor.ID = 20
		env.users.users[20] = contractor

		m := &models.PaymentMilestone{
			BookingID:   1,
			Title:       "Project completion",
			Amount:      100,
			Status:      milestoneStatus,
			CompletedAt: &now,
		}
		m.ID = 1
		env.ms.milestones[1] = m
		return env, m, account
	}

	t.Run("moves held to released and pays the contractor", func(t *testing.T) {
		env, m, account := setup(100, models.MilestoneStatusCompleted)

		got, err := env.svc.ReleaseMilestone(ctx, m.ID, 10)
		require.NoError(t, err)
		assert.Zero(t, got.HeldAmount)
		assert.Equal(t, 100.0, got.ReleasedAmount)
		assert.Equal(t, models.EscrowStatusCompleted, got.Status)
		assert.Equal(t, 1, env.gw.payouts)

		updated, err := env.ms.GetByID(m.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MilestoneStatusApproved, updated.Status)
		require.NotNil(t, updated.ApprovedAt)

		entries, err := env.txs.ListByAccount(account.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.TransactionTypeRelease, entries[0].Type)
		assert.Equal(t, 5.0, entries[0].PlatformFee)
		assert.Equal(t, 3.2, entries[0].ProcessorFee)
		assert.Equal(t, 91.8, entries[0].NetAmount)
	})

	t.Run("concurrent releases of one milestone pay out once", func(t *testing.T) {
		env, m, account := setup(1000, models.MilestoneStatusCompleted)
		m.Amount = 400
		require.NoError(t, env.ms.Update(m))

		gated := &gatedMilestoneRepo{fakeMilestoneRepo: env.ms}
		gated.gate.Add(2)
		svc := NewService(fakeTxRunner{}, env.accounts, env.txs, gated, env.bookings, env.users, env.gw, nil)

		errs := make(chan error, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.ReleaseMilestone(ctx, m.ID, 10)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		var failed int
		for err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, ErrMilestoneNotReleasable)
				failed++
			}
		}
		assert.Equal(t, 1, failed, "exactly one of the two releases wins")
		assert.Equal(t, 1, env.gw.payouts)

		got, err := env.accounts.GetByID(account.ID)
		require.NoError(t, err)
		assert.Equal(t, 400.0, got.ReleasedAmount)
		assert.Equal(t, 600.0, got.HeldAmount)
	})

	t.Run("only completed milestones release", func(t *testing.T) {
		env, m, _ := setup(100, models.MilestoneStatusInProgress)
		_, err := env.svc.ReleaseMilestone(ctx, m.ID, 10)
		assert.ErrorIs(t, err, ErrMilestoneNotReleasable)
		assert.Zero(t, env.gw.payouts)
	})

	t.Run("frozen account blocks release", func(t *testing.T) {
		env, m, account := setup(100, models.MilestoneStatusCompleted)
		account.Status = models.EscrowStatusDisputed
		require.NoError(t, env.accounts.Update(account))

		_, err := env.svc.ReleaseMilestone(ctx, m.ID, 10)
		assert.ErrorIs(t, err, ErrAccountFrozen)
		assert.Zero(t, env.gw.payouts)
	})

	t.Run("insufficient held balance fails without moving money", func(t *testing.T) {
		env, m, account := setup(100, models.MilestoneStatusCompleted)
		account.HeldAmount = 40
		require.NoError(t, env.accounts.Update(account))

		_, err := env.svc.ReleaseMilestone(ctx, m.ID, 10)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Zero(t, env.gw.payouts)

		got, err := env.svc.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, 40.0, got.HeldAmount, "a failed release leaves the ledger untouched")
	})

	t.Run("contractor without payout destination", func(t *testing.T) {
		env, m, _ := setup(100, models.MilestoneStatusCompleted)
		env.users.users[20].PayoutRef = ""

		_, err := env.svc.ReleaseMilestone(ctx, m.ID, 10)
		assert.ErrorIs(t, err, ErrNoPayoutDestination)
		assert.Zero(t, env.gw.payouts)
	})
}

func TestRefundPreconditions(t *testing.T) {
	ctx := context.Background()

	newFunded := func(held float64) (*testEnv, *models.EscrowAccount) {
		env := newTestEnv()
		account := &models.EscrowAccount{
			BookingID:   1,
			TotalAmount: held,
			HeldAmount:  held,
			Status:      models.EscrowStatusFunded,
		}
		require.NoError(t, env.accounts.Create(account))
		return env, account
	}

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		env, account := newFunded(100)
		_, err := env.svc.Refund(ctx, account.ID, 0, "test")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("frozen account blocks refund", func(t *testing.T) {
		env, account := newFunded(100)
		account.Status = models.EscrowStatusDisputed
		require.NoError(t, env.accounts.Update(account))

		_, err := env.svc.Refund(ctx, account.ID, 50, "test")
		assert.ErrorIs(t, err, ErrAccountFrozen)
		assert.Zero(t, env.gw.refunds)
	})

	t.Run("refund above held balance fails", func(t *testing.T) {
		env, account := newFunded(100)
		_, err := env.svc.Refund(ctx, account.ID, 150, "test")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Zero(t, env.gw.refunds)
	})
}

func TestExecuteResolution(t *testing.T) {
	ctx := context.Background()

	setup := func(held float64) (*testEnv, *models.EscrowAccount) {
		env := newTestEnv()
		frozen := time.Now()
		account := &models.EscrowAccount{
			BookingID:   1,
			TotalAmount: held,
			HeldAmount:  held,
			Status:      models.EscrowStatusDisputed,
			FrozenAt:    &frozen,
		}
		require.NoError(t, env.accounts.Create(account))
		env.bookings.bookings[1] = &models.Booking{ID: 1, CustomerID: 10, ContractorID: 20, Price: held}
		contractor := &models.User{Role: models.RoleContractor, PayoutRef: "acct_contractor"}
		contractor.ID = 20
		env.users.users[20] = contractor
		require.NoError(t, env.txs.Create(&models.Transaction{
			EscrowAccountID: account.ID,
			BookingID:       1,
			Type:            models.TransactionTypeDeposit,
			Amount:          held,
			Status:          models.TransactionStatusCompleted,
			ExternalRef:     "pi_settled",
		}))
		return env, account
	}

	t.Run("rejects negative amounts", func(t *testing.T) {
		env, account := setup(100)
		err := env.svc.ExecuteResolution(ctx, account.ID, 9, -1, 0, "bad")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("settlement above held balance fails", func(t *testing.T) {
		env, account := setup(100)
		err := env.svc.ExecuteResolution(ctx, account.ID, 9, 80, 30, "over")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Zero(t, env.gw.refunds)
		assert.Zero(t, env.gw.payouts)
	})

	t.Run("refund and release legs settle and lift the hold", func(t *testing.T) {
		env, account := setup(1000)
		err := env.svc.ExecuteResolution(ctx, account.ID, 7, 200, 300, "split settlement")
		require.NoError(t, err)
		assert.Equal(t, 1, env.gw.refunds)
		assert.Equal(t, 1, env.gw.payouts)

		got, err := env.accounts.GetByID(account.ID)
		require.NoError(t, err)
		assert.Equal(t, 500.0, got.HeldAmount)
		assert.Equal(t, 200.0, got.RefundedAmount)
		assert.Equal(t, 300.0, got.ReleasedAmount)
		assert.Nil(t, got.FrozenAt)
		assert.Equal(t, models.EscrowStatusPartialRelease, got.Status)
	})

	t.Run("retried settlement does not move money twice", func(t *testing.T) {
		env, account := setup(1000)
		require.NoError(t, env.svc.ExecuteResolution(ctx, account.ID, 7, 200, 300, "split settlement"))
		require.NoError(t, env.svc.ExecuteResolution(ctx, account.ID, 7, 200, 300, "split settlement"))

		assert.Equal(t, 1, env.gw.refunds, "refund leg issued once")
		assert.Equal(t, 1, env.gw.payouts, "release leg issued once")

		got, err := env.accounts.GetByID(account.ID)
		require.NoError(t, err)
		assert.Equal(t, 500.0, got.HeldAmount)
		assert.Equal(t, 200.0, got.RefundedAmount)
		assert.Equal(t, 300.0, got.ReleasedAmount)
	})
}

func TestSettledStatus(t *testing.T) {
	tests := []struct {
		name    string
		account models.EscrowAccount
		want    string
	}{
		{
			name:    "fully released",
			account: models.EscrowAccount{TotalAmount: 100, HeldAmount: 0, ReleasedAmount: 100},
			want:    models.EscrowStatusCompleted,
		},
		{
			name:    "fully refunded",
			account: models.EscrowAccount{TotalAmount: 100, HeldAmount: 0, RefundedAmount: 100},
			want:    models.EscrowStatusCompleted,
		},
		{
			name:    "partially released",
			account: models.EscrowAccount{TotalAmount: 100, HeldAmount: 50, ReleasedAmount: 50},
			want:    models.EscrowStatusPartialRelease,
		},
		{
			name:    "funded untouched",
			account: models.EscrowAccount{TotalAmount: 100, HeldAmount: 100},
			want:    models.EscrowStatusFunded,
		},
		{
			name:    "never funded",
			account: models.EscrowAccount{TotalAmount: 100},
			want:    models.EscrowStatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, settledStatus(&tt.account))
		})
	}
}
