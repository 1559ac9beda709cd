package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"taskpay/internal/services/escrow"
)

// systemApproverID marks releases performed by the sweep rather than a
// human approver.
const systemApproverID uint = 0

// AutoReleaseSweep releases completed milestones whose grace period has
// lapsed without manual approval. Each candidate goes through the same
// ReleaseMilestone path as a manual approval, so the behavior is
// identical: frozen accounts are skipped, insufficient funds halt the
// individual release and get logged for reconciliation.
func (r *Runner) AutoReleaseSweep() {
	ctx := context.Background()
	cutoff := time.Now().Add(-r.cfg.GracePeriod)

	candidates, err := r.milestones.FindCompletedBefore(cutoff, r.cfg.BatchSize)
	if err != nil {
		log.Printf("auto-release sweep: failed to list candidates: %v", err)
		return
	}

	released := 0
	for _, m := range candidates {
		_, err := r.escrow.ReleaseMilestone(ctx, m.ID, systemApproverID)
		switch {
		case err == nil:
			released++
		case errors.Is(err, escrow.ErrAccountFrozen):
			// Disputed booking; the dispute resolution decides.
		case errors.Is(err, escrow.ErrInsufficientFunds):
			log.Printf("auto-release sweep: milestone %d blocked by ledger inconsistency: %v", m.ID, err)
		default:
			log.Printf("auto-release sweep: milestone %d release failed: %v", m.ID, err)
		}
	}

	if len(candidates) > 0 {
		log.Printf("auto-release sweep: released %d of %d candidates", released, len(candidates))
	}
}
