package escrow

import "math"

// Fee schedule. Each component is rounded to 2 decimal places
// independently so repeated computation over the same amount never
// drifts.
const (
	PlatformFeeRate   = 0.05
	ProcessorFeeRate  = 0.029
	ProcessorFeeFixed = 0.30
)

// FeeBreakdown is the split of a release amount between the platform,
// the processor and the contractor.
type FeeBreakdown struct {
	PlatformFee      float64 `json:"platform_fee"`
	ProcessorFee     float64 `json:"processor_fee"`
	ContractorPayout float64 `json:"contractor_payout"`
}

// CalculateFees computes the deterministic fee split for a payout.
func CalculateFees(amount float64) FeeBreakdown {
	platform := round2(amount * PlatformFeeRate)
	processor := round2(amount*ProcessorFeeRate + ProcessorFeeFixed)
	return FeeBreakdown{
		PlatformFee:      platform,
		ProcessorFee:     processor,
		ContractorPayout: round2(amount - platform - processor),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
