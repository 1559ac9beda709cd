package escrow

import (
	"context"

	"taskpay/internal/models"
)

// FundingIntent is returned by Fund: the processor intent reference and
// the client-side confirmation token.
type FundingIntent struct {
	IntentRef    string `json:"intent_ref"`
	ClientSecret string `json:"client_secret"`
}

// Service is the escrow ledger. Per-account operations are serialized:
// two concurrent releases against the same account can never overdraw
// the held balance.
type Service interface {
	CreateAccount(ctx context.Context, bookingID uint, totalAmount float64) (*models.EscrowAccount, error)
	Fund(ctx context.Context, accountID uint, payerRef string, payerID uint) (*FundingIntent, error)
	ConfirmFunding(ctx context.Context, accountID uint, externalRef string) (*models.EscrowAccount, error)
	ReleaseMilestone(ctx context.Context, milestoneID, approverID uint) (*models.EscrowAccount, error)
	Refund(ctx context.Context, accountID uint, amount float64, reason string) (*models.EscrowAccount, error)
	Freeze(ctx context.Context, accountID uint) error
	Unfreeze(ctx context.Context, accountID uint) error

	// ExecuteResolution settles a resolved dispute: an optional refund
	// to the customer and an optional release to the contractor, then
	// clears the dispute hold. The only money-moving path allowed on a
	// frozen account. Idempotent per dispute: legs are keyed on the
	// dispute ID, so a retried settlement never moves money twice.
	ExecuteResolution(ctx context.Context, accountID, disputeID uint, refundAmount, releaseAmount float64, reason string) error

	GetAccount(ctx context.Context, accountID uint) (*models.EscrowAccount, error)
	GetByBooking(ctx context.Context, bookingID uint) (*models.EscrowAccount, error)
	ListTransactions(ctx context.Context, accountID uint) ([]models.Transaction, error)
}

// Cache is the slice of the cache service the ledger needs.
type Cache interface {
	CacheEscrowAccount(ctx context.Context, account *models.EscrowAccount) error
	GetEscrowAccount(ctx context.Context, bookingID uint) (*models.EscrowAccount, error)
	InvalidateEscrowAccount(ctx context.Context, bookingID uint) error
}
