// Package gateway abstracts the external payment processor. All amounts
// cross this boundary in minor currency units. Every call carries an
// idempotency key so transient-failure retries never double-move money.
package gateway

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrPaymentFailed means the processor definitively rejected the
	// operation. Safe to surface to the caller.
	ErrPaymentFailed = errors.New("payment failed")

	// ErrPendingReconciliation means retries were exhausted without a
	// definitive answer. Money may have moved on the processor side;
	// the local transaction must stay pending until the reconciliation
	// job re-queries the processor.
	ErrPendingReconciliation = errors.New("gateway outcome unknown, pending reconciliation")
)

// PaymentStatus is the processor-side state of a payment intent.
type PaymentStatus string

const (
	StatusSucceeded  PaymentStatus = "succeeded"
	StatusProcessing PaymentStatus = "processing"
	StatusFailed     PaymentStatus = "failed"
)

type PaymentIntentRequest struct {
	Amount         int64 // minor units
	Currency       string
	PayerRef       string
	IdempotencyKey string
	Metadata       map[string]string
}

type PaymentIntentResult struct {
	IntentRef    string
	ClientSecret string // client-side confirmation token
}

type PayoutRequest struct {
	Amount         int64 // minor units
	Currency       string
	PayeeRef       string
	IdempotencyKey string
	Metadata       map[string]string
}

type RefundRequest struct {
	IntentRef      string
	Amount         int64 // minor units
	Reason         string
	IdempotencyKey string
}

// Gateway is the payment processor interface consumed by the escrow
// ledger. Implementations must be safe for concurrent use.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntentResult, error)
	VerifyPayment(ctx context.Context, intentRef string) (PaymentStatus, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (string, error)
	CreateRefund(ctx context.Context, req RefundRequest) (string, error)
}

// MinorUnits converts a decimal amount to minor currency units.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
