package dispute

import (
	"context"
	"math"
	"time"

	"taskpay/internal/models"
)

// Auto-resolution thresholds
const (
	autoRefundMaxAmount  = 500.0
	autoRefundMaxAge     = 24 * time.Hour
	lowRatingThreshold   = 2.5
	qualityRefundPortion = 0.5
)

// AutoResolutionEngine attempts to settle a freshly opened dispute
// without human mediation. High and urgent priority disputes never
// reach it; they escalate directly.
type AutoResolutionEngine struct {
	reviews ReviewReader
	now     func() time.Time
}

func NewAutoResolutionEngine(reviews ReviewReader) *AutoResolutionEngine {
	return &AutoResolutionEngine{reviews: reviews, now: time.Now}
}

// Evaluate applies the settlement rules in order, first match wins:
//
//  1. Small cancellation disputes opened within 24h refund in full.
//  2. Quality disputes against a contractor rated below 2.5 refund half.
//
// A nil result means no rule applied and the dispute goes to mediation.
func (e *AutoResolutionEngine) Evaluate(ctx context.Context, d *models.Dispute) (*models.DisputeResolution, error) {
	if d.Type == models.DisputeTypeCancellation &&
		d.AmountDisputed < autoRefundMaxAmount &&
		e.now().Sub(d.CreatedAt) < autoRefundMaxAge {
		return &models.DisputeResolution{
			DisputeID:      d.ID,
			ResolutionType: models.ResolutionFullRefund,
			RefundAmount:   d.AmountDisputed,
			Notes:          "Auto-resolved: recent low-value cancellation",
		}, nil
	}

	if d.Type == models.DisputeTypeQuality && e.reviews != nil {
		avg, count, err := e.reviews.AverageRating(ctx, d.ContractorID)
		if err != nil {
			return nil, err
		}
		if count >= 1 && avg < lowRatingThreshold {
			return &models.DisputeResolution{
				DisputeID:      d.ID,
				ResolutionType: models.ResolutionPartialRefund,
				RefundAmount:   round2(d.AmountDisputed * qualityRefundPortion),
				Notes:          "Auto-resolved: quality dispute against low-rated contractor",
			}, nil
		}
	}

	return nil, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
