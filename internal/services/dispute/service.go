// Package dispute implements the dispute case state machine:
// open -> in_mediation -> escalated -> resolved -> closed, with an
// open -> resolved shortcut for auto-resolution. No state re-enters
// open, and a dispute escalates at most once.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"taskpay/internal/models"
	"taskpay/internal/repositories"

	"gorm.io/gorm"
)

type Service struct {
	db         repositories.TxRunner
	repo       repositories.DisputeRepository
	bookings   repositories.BookingRepository
	ledger     EscrowLedger
	milestones MilestoneRoller
	engine     *AutoResolutionEngine
	mediators  *MediatorAssigner
	notifier   Notifier
}

func NewService(
	db repositories.TxRunner,
	repo repositories.DisputeRepository,
	bookings repositories.BookingRepository,
	ledger EscrowLedger,
	milestones MilestoneRoller,
	engine *AutoResolutionEngine,
	mediators *MediatorAssigner,
	notifier Notifier,
) *Service {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Service{
		db:         db,
		repo:       repo,
		bookings:   bookings,
		ledger:     ledger,
		milestones: milestones,
		engine:     engine,
		mediators:  mediators,
		notifier:   notifier,
	}
}

// Open files a new dispute for a booking. It enforces the one-active-
// dispute rule, computes priority, freezes the escrow account for
// payment disputes, then routes the case: high and urgent priorities
// escalate immediately, otherwise the auto-resolution engine gets one
// attempt before the case moves to mediation.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*models.Dispute, error) {
	booking, err := s.bookings.GetByID(req.BookingID)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ActiveExistsForBooking(req.BookingID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateDispute
	}

	dispute := &models.Dispute{
		BookingID:      req.BookingID,
		CustomerID:     booking.CustomerID,
		ContractorID:   booking.ContractorID,
		InitiatedBy:    req.InitiatorID,
		Type:           req.Type,
		Status:         models.DisputeStatusOpen,
		Priority:       PriorityFor(req.Amount, req.Type),
		AmountDisputed: req.Amount,
		Description:    req.Description,
	}

	account, err := s.ledger.GetByBooking(ctx, req.BookingID)
	if err != nil && !errors.Is(err, repositories.ErrAccountNotFound) {
		return nil, err
	}
	if account != nil {
		dispute.EscrowAccountID = &account.ID
	}

	// Freeze before persisting: an active payment dispute must never
	// exist over an unfrozen account, even briefly. If persisting fails
	// the hold is lifted again.
	frozen := false
	if req.Type == models.DisputeTypePayment && account != nil {
		if err := s.ledger.Freeze(ctx, account.ID); err != nil {
			return nil, fmt.Errorf("freeze escrow for payment dispute: %w", err)
		}
		frozen = true
	}

	if err := s.repo.Create(dispute); err != nil {
		if frozen {
			if uerr := s.ledger.Unfreeze(ctx, account.ID); uerr != nil {
				log.Printf("failed to lift orphaned hold on account %d: %v", account.ID, uerr)
			}
		}
		return nil, err
	}

	s.notifyParties(ctx, dispute, EventDisputeCreated)

	return s.route(ctx, dispute)
}

// route runs the post-open decision: escalate, auto-resolve, or move
// to mediation.
func (s *Service) route(ctx context.Context, dispute *models.Dispute) (*models.Dispute, error) {
	if dispute.Priority == models.DisputePriorityHigh || dispute.Priority == models.DisputePriorityUrgent {
		return s.Escalate(ctx, dispute.ID)
	}

	if s.engine != nil {
		resolution, err := s.engine.Evaluate(ctx, dispute)
		if err != nil {
			log.Printf("auto-resolution evaluation failed for dispute %d: %v", dispute.ID, err)
		} else if resolution != nil {
			return s.Resolve(ctx, dispute.ID, resolution)
		}
	}

	dispute.Status = models.DisputeStatusInMediation
	if err := s.repo.Update(dispute); err != nil {
		return nil, err
	}
	s.systemMessage(dispute.ID, "No automatic settlement applies; dispute moved to mediation.")
	return dispute, nil
}

// AddEvidence appends an evidence record. Only open and in_mediation
// disputes accept submissions.
func (s *Service) AddEvidence(ctx context.Context, disputeID, submitterID uint, evidenceType, fileURL, description string) (*models.DisputeEvidence, error) {
	dispute, err := s.repo.GetByID(disputeID)
	if err != nil {
		return nil, err
	}
	if !acceptsSubmissions(dispute) {
		return nil, ErrThreadClosed
	}

	evidence := &models.DisputeEvidence{
		DisputeID:   disputeID,
		SubmittedBy: submitterID,
		Type:        evidenceType,
		FileURL:     fileURL,
		Description: description,
	}
	if err := s.repo.AddEvidence(evidence); err != nil {
		return nil, err
	}
	return evidence, nil
}

// AddMessage appends to the dispute thread under the same rules as
// evidence.
func (s *Service) AddMessage(ctx context.Context, disputeID, senderID uint, body string) (*models.DisputeMessage, error) {
	dispute, err := s.repo.GetByID(disputeID)
	if err != nil {
		return nil, err
	}
	if !acceptsSubmissions(dispute) {
		return nil, ErrThreadClosed
	}

	message := &models.DisputeMessage{
		DisputeID: disputeID,
		SenderID:  senderID,
		Body:      body,
	}
	if err := s.repo.AddMessage(message); err != nil {
		return nil, err
	}
	return message, nil
}

// Escalate moves a dispute to the escalated state and assigns a human
// mediator. A dispute escalates at most once.
func (s *Service) Escalate(ctx context.Context, disputeID uint) (*models.Dispute, error) {
	dispute, err := s.repo.GetByID(disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Terminal() {
		return nil, ErrDisputeTerminal
	}
	if dispute.EscalatedAt != nil {
		return nil, ErrAlreadyEscalated
	}

	now := time.Now()
	dispute.Status = models.DisputeStatusEscalated
	dispute.EscalatedAt = &now

	mediator, err := s.mediators.Pick()
	if err != nil {
		if !errors.Is(err, ErrNoMediators) {
			return nil, err
		}
		// Escalation stands even with an empty directory; assignment
		// is retried out of band.
		log.Printf("dispute %d escalated with no mediator available", disputeID)
	}

	if mediator != nil {
		dispute.MediatorID = &mediator.ID
	}
	if err := s.repo.Update(dispute); err != nil {
		return nil, err
	}

	if mediator != nil {
		session := &models.MediationSession{
			DisputeID:   dispute.ID,
			MediatorID:  mediator.ID,
			ScheduledAt: now.Add(48 * time.Hour),
			Status:      models.MediationStatusScheduled,
		}
		if err := s.repo.CreateMediationSession(session); err != nil {
			return nil, err
		}
		s.systemMessage(dispute.ID, fmt.Sprintf("Mediator %s assigned to this dispute.", mediator.Name))
	}

	s.notifyParties(ctx, dispute, EventDisputeEscalated)
	return dispute, nil
}

// Resolve persists the resolution, marks the dispute resolved, then
// executes the settlement. Resolution persistence and the status change
// commit atomically; a settlement failure afterwards leaves the dispute
// resolved but flagged unsettled and surfaces ErrExecutionFailed.
func (s *Service) Resolve(ctx context.Context, disputeID uint, resolution *models.DisputeResolution) (*models.Dispute, error) {
	dispute, err := s.repo.GetByID(disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Terminal() {
		return nil, ErrDisputeTerminal
	}

	resolution.DisputeID = dispute.ID
	if err := resolution.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateResolution(resolution); err != nil {
			return err
		}
		dispute.Status = models.DisputeStatusResolved
		dispute.ResolvedAt = &now
		return s.repo.WithTx(tx).Update(dispute)
	})
	if err != nil {
		return nil, err
	}

	if err := s.execute(ctx, dispute, resolution); err != nil {
		dispute.Settled = false
		dispute.SettlementError = err.Error()
		if uerr := s.repo.Update(dispute); uerr != nil {
			log.Printf("failed to record settlement error on dispute %d: %v", dispute.ID, uerr)
		}
		return dispute, fmt.Errorf("dispute %d resolved but unsettled: %v: %w",
			dispute.ID, err, ErrExecutionFailed)
	}

	dispute.Settled = true
	dispute.SettlementError = ""
	if err := s.repo.Update(dispute); err != nil {
		return nil, err
	}

	s.notifyParties(ctx, dispute, EventDisputeResolved)
	return dispute, nil
}

// RetrySettlement re-runs the settlement of a resolved-but-unsettled
// dispute. Manual recovery path for ErrExecutionFailed.
func (s *Service) RetrySettlement(ctx context.Context, disputeID uint) (*models.Dispute, error) {
	dispute, err := s.repo.GetByID(disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != models.DisputeStatusResolved || dispute.Settled {
		return nil, ErrDisputeTerminal
	}

	resolution, err := s.repo.GetResolution(disputeID)
	if err != nil {
		return nil, err
	}

	if err := s.execute(ctx, dispute, resolution); err != nil {
		dispute.SettlementError = err.Error()
		if uerr := s.repo.Update(dispute); uerr != nil {
			log.Printf("failed to record settlement error on dispute %d: %v", dispute.ID, uerr)
		}
		return dispute, fmt.Errorf("dispute %d still unsettled: %v: %w",
			dispute.ID, err, ErrExecutionFailed)
	}

	dispute.Settled = true
	dispute.SettlementError = ""
	if err := s.repo.Update(dispute); err != nil {
		return nil, err
	}

	s.notifyParties(ctx, dispute, EventDisputeResolved)
	return dispute, nil
}

// Close moves a settled resolved dispute to closed.
func (s *Service) Close(ctx context.Context, disputeID uint) (*models.Dispute, error) {
	dispute, err := s.repo.GetByID(disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != models.DisputeStatusResolved {
		return nil, ErrDisputeTerminal
	}

	dispute.Status = models.DisputeStatusClosed
	if err := s.repo.Update(dispute); err != nil {
		return nil, err
	}
	return dispute, nil
}

func (s *Service) Get(ctx context.Context, disputeID uint) (*models.Dispute, error) {
	return s.repo.GetByID(disputeID)
}

func (s *Service) ListEvidence(ctx context.Context, disputeID uint) ([]models.DisputeEvidence, error) {
	return s.repo.ListEvidence(disputeID)
}

func (s *Service) ListMessages(ctx context.Context, disputeID uint) ([]models.DisputeMessage, error) {
	return s.repo.ListMessages(disputeID)
}

// execute performs the settlement side effects of a resolution: money
// movement through the escrow ledger, milestone rollback for redo_work,
// and the booking status update.
func (s *Service) execute(ctx context.Context, dispute *models.Dispute, resolution *models.DisputeResolution) error {
	reason := fmt.Sprintf("Dispute %d resolution: %s", dispute.ID, resolution.ResolutionType)

	switch resolution.ResolutionType {
	case models.ResolutionRedoWork:
		if err := s.milestones.RollbackForRedo(dispute.BookingID); err != nil {
			return err
		}
		if err := s.unfreezeIfHeld(ctx, dispute); err != nil {
			return err
		}
	case models.ResolutionNoRefund:
		if err := s.unfreezeIfHeld(ctx, dispute); err != nil {
			return err
		}
	default:
		if dispute.EscrowAccountID == nil {
			return fmt.Errorf("resolution %s requires an escrow account", resolution.ResolutionType)
		}
		err := s.ledger.ExecuteResolution(ctx, *dispute.EscrowAccountID, dispute.ID,
			resolution.RefundAmount, resolution.PaymentReleaseAmount, reason)
		if err != nil {
			return err
		}
	}

	return s.bookings.UpdateStatus(dispute.BookingID, bookingStatusFor(resolution.ResolutionType))
}

func (s *Service) unfreezeIfHeld(ctx context.Context, dispute *models.Dispute) error {
	if dispute.EscrowAccountID == nil {
		return nil
	}
	return s.ledger.Unfreeze(ctx, *dispute.EscrowAccountID)
}

// bookingStatusFor maps a resolution outcome to the booking status
// written back: redo_work reopens the project, a full refund cancels
// it, everything else completes it.
func bookingStatusFor(t models.ResolutionType) string {
	switch t {
	case models.ResolutionRedoWork:
		return models.BookingStatusInProgress
	case models.ResolutionFullRefund:
		return models.BookingStatusCancelled
	default:
		return models.BookingStatusCompleted
	}
}

func acceptsSubmissions(d *models.Dispute) bool {
	return d.Status == models.DisputeStatusOpen || d.Status == models.DisputeStatusInMediation
}

func (s *Service) systemMessage(disputeID uint, body string) {
	err := s.repo.AddMessage(&models.DisputeMessage{
		DisputeID: disputeID,
		Body:      body,
		System:    true,
	})
	if err != nil {
		log.Printf("failed to append system message to dispute %d: %v", disputeID, err)
	}
}

func (s *Service) notifyParties(ctx context.Context, dispute *models.Dispute, eventType string) {
	for _, recipient := range []uint{dispute.CustomerID, dispute.ContractorID} {
		err := s.notifier.Dispatch(ctx, Event{
			Type:        eventType,
			DisputeID:   dispute.ID,
			RecipientID: recipient,
			Payload: map[string]interface{}{
				"booking_id": dispute.BookingID,
				"status":     dispute.Status,
				"priority":   dispute.Priority,
			},
		})
		if err != nil {
			log.Printf("failed to dispatch %s for dispute %d: %v", eventType, dispute.ID, err)
		}
	}
}
