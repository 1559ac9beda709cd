package jobs

import (
	"context"
	"log"
	"time"

	"taskpay/internal/gateway"
	"taskpay/internal/models"
)

// ReconcilePending re-queries the processor for transactions stuck in
// pending. A gateway timeout never implies failure: the payment may
// have settled on the processor side, so the final status comes from
// the processor, not from the timeout.
func (r *Runner) ReconcilePending() {
	ctx := context.Background()
	cutoff := time.Now().Add(-r.cfg.ReconcileAfter)

	pending, err := r.txs.FindPendingOlderThan(cutoff, r.cfg.BatchSize)
	if err != nil {
		log.Printf("reconcile: failed to list pending transactions: %v", err)
		return
	}

	for _, tx := range pending {
		switch tx.Type {
		case models.TransactionTypeDeposit:
			r.reconcileDeposit(ctx, tx)
		default:
			// Non-deposit entries stuck pending mean a payout or refund
			// with an unknown outcome; those need a human.
			log.Printf("reconcile: %s transaction %d pending since %s, manual review required",
				tx.Type, tx.ID, tx.CreatedAt.Format(time.RFC3339))
		}
	}
}

func (r *Runner) reconcileDeposit(ctx context.Context, tx models.Transaction) {
	if tx.ExternalRef == "" {
		log.Printf("reconcile: deposit %d has no processor reference, manual review required", tx.ID)
		return
	}

	status, err := r.gw.VerifyPayment(ctx, tx.ExternalRef)
	if err != nil {
		log.Printf("reconcile: verify deposit %d failed: %v", tx.ID, err)
		return
	}

	switch status {
	case gateway.StatusSucceeded:
		if _, err := r.escrow.ConfirmFunding(ctx, tx.EscrowAccountID, tx.ExternalRef); err != nil {
			log.Printf("reconcile: confirm funding for deposit %d failed: %v", tx.ID, err)
			return
		}
		log.Printf("reconcile: deposit %d confirmed", tx.ID)
	case gateway.StatusFailed:
		tx.Status = models.TransactionStatusFailed
		if err := r.txs.Update(&tx); err != nil {
			log.Printf("reconcile: failed to mark deposit %d failed: %v", tx.ID, err)
			return
		}
		log.Printf("reconcile: deposit %d marked failed", tx.ID)
	default:
		// Still processing; try again next run.
	}
}
