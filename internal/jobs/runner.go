// Package jobs runs the scheduled background work: the grace-period
// milestone auto-release sweep and the pending-transaction
// reconciliation against the payment processor.
package jobs

import (
	"log"
	"time"

	"taskpay/internal/config"
	"taskpay/internal/gateway"
	"taskpay/internal/repositories"
	"taskpay/internal/services/escrow"

	"github.com/robfig/cron/v3"
)

// Config holds the tunables for the background jobs.
type Config struct {
	// GracePeriod is how long a completed milestone waits for manual
	// approval before the sweep releases it.
	GracePeriod time.Duration

	// ReconcileAfter is how old a pending transaction must be before
	// the reconciliation job re-queries the processor.
	ReconcileAfter time.Duration

	// BatchSize bounds the working set of each run.
	BatchSize int
}

func DefaultConfig() Config {
	return Config{
		GracePeriod:    config.GetDurationEnv("MILESTONE_GRACE_PERIOD", 72*time.Hour),
		ReconcileAfter: config.GetDurationEnv("RECONCILE_AFTER", 30*time.Minute),
		BatchSize:      config.GetIntEnv("JOB_BATCH_SIZE", 100),
	}
}

// Runner coordinates all scheduled jobs.
type Runner struct {
	escrow     escrow.Service
	milestones repositories.MilestoneRepository
	txs        repositories.TransactionRepository
	gw         gateway.Gateway
	cfg        Config
	cron       *cron.Cron
}

func NewRunner(
	escrowSvc escrow.Service,
	milestones repositories.MilestoneRepository,
	txs repositories.TransactionRepository,
	gw gateway.Gateway,
	cfg Config,
) *Runner {
	return &Runner{
		escrow:     escrowSvc,
		milestones: milestones,
		txs:        txs,
		gw:         gw,
		cfg:        cfg,
	}
}

// Start schedules the jobs and begins the cron loop.
func (r *Runner) Start() error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc("@hourly", func() {
		r.runWithRecovery("AutoReleaseSweep", r.AutoReleaseSweep)
	}); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc("@every 15m", func() {
		r.runWithRecovery("ReconcilePending", r.ReconcilePending)
	}); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for running jobs.
func (r *Runner) Stop() {
	if r.cron != nil {
		ctx := r.cron.Stop()
		<-ctx.Done()
	}
}

// runWithRecovery wraps job execution with panic recovery.
func (r *Runner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("job %s panicked: %v", jobName, rec)
		}
	}()

	log.Printf("starting job %s", jobName)
	jobFunc()
	log.Printf("job %s completed", jobName)
}
