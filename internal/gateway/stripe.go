package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"taskpay/internal/config"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/paymentintent"
	"github.com/stripe/stripe-go/v72/refund"
	"github.com/stripe/stripe-go/v72/transfer"
)

// StripeConfig controls timeouts and the retry budget for processor
// calls. Retries always reuse the caller's idempotency key.
type StripeConfig struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

func DefaultStripeConfig() StripeConfig {
	return StripeConfig{
		Timeout:     config.GetDurationEnv("STRIPE_TIMEOUT", 15*time.Second),
		MaxRetries:  config.GetIntEnv("STRIPE_MAX_RETRIES", 3),
		BackoffBase: config.GetDurationEnv("STRIPE_BACKOFF_BASE", 500*time.Millisecond),
	}
}

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	cfg StripeConfig
}

func NewStripeGateway(apiKey string, cfg StripeConfig) *StripeGateway {
	stripe.Key = apiKey
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	return &StripeGateway{cfg: cfg}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
	}
	if req.PayerRef != "" {
		params.Customer = stripe.String(req.PayerRef)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	var pi *stripe.PaymentIntent
	err := g.withRetry(ctx, "payment_intent", func() error {
		var err error
		pi, err = paymentintent.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &PaymentIntentResult{IntentRef: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) VerifyPayment(ctx context.Context, intentRef string) (PaymentStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	var pi *stripe.PaymentIntent
	err := g.withRetry(ctx, "verify_payment", func() error {
		var err error
		pi, err = paymentintent.Get(intentRef, params)
		return err
	})
	if err != nil {
		return "", err
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded, nil
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed, nil
	default:
		return StatusProcessing, nil
	}
}

func (g *StripeGateway) CreatePayout(ctx context.Context, req PayoutRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.PayeeRef),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	var tr *stripe.Transfer
	err := g.withRetry(ctx, "payout", func() error {
		var err error
		tr, err = transfer.New(params)
		return err
	})
	if err != nil {
		return "", err
	}
	return tr.ID, nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, req RefundRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentRef),
		Amount:        stripe.Int64(req.Amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	var rf *stripe.Refund
	err := g.withRetry(ctx, "refund", func() error {
		var err error
		rf, err = refund.New(params)
		return err
	})
	if err != nil {
		return "", err
	}
	return rf.ID, nil
}

// withRetry retries transient processor errors with exponential backoff.
// Exhaustion does not mean failure: the call may have landed, so the
// outcome is reported as pending reconciliation.
func (g *StripeGateway) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := g.cfg.BackoffBase
	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !transient(lastErr) {
			return fmt.Errorf("%s: %w", op, ErrPaymentFailed)
		}
		log.Printf("stripe %s attempt %d failed: %v", op, attempt+1, lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ErrPendingReconciliation)
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%s after %d retries: %w", op, g.cfg.MaxRetries, ErrPendingReconciliation)
}

func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeAPIConnection, stripe.ErrorTypeAPI:
			return true
		}
		if stripeErr.Code == stripe.ErrorCodeRateLimit {
			return true
		}
	}
	return false
}
