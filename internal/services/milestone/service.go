// Package milestone derives payment schedules from booking totals and
// drives milestone status transitions.
package milestone

import (
	"errors"
	"fmt"
	"math"
	"time"

	"taskpay/internal/models"
	"taskpay/internal/repositories"
)

var (
	// ErrScheduleMismatch means the milestone amounts do not add up to
	// the escrow total within a cent.
	ErrScheduleMismatch = errors.New("milestone schedule does not match escrow total")

	ErrInvalidTransition = errors.New("invalid milestone transition")
)

// Tier boundaries for the schedule template.
const (
	singleMilestoneMax = 500.0
	twoMilestoneMax    = 2000.0
)

// Template is one entry of a derived milestone schedule.
type Template struct {
	Title     string  `json:"title"`
	Amount    float64 `json:"amount"`
	SortOrder int     `json:"sort_order"`
}

type Service struct {
	repo repositories.MilestoneRepository
}

func NewService(repo repositories.MilestoneRepository) *Service {
	return &Service{repo: repo}
}

// ScheduleFor returns the milestone template for a booking total:
// one milestone up to $500, an even split up to $2000, and a
// 30/40/30 split above that. The last milestone absorbs rounding so
// the amounts always sum to the total exactly.
func ScheduleFor(totalAmount float64) []Template {
	switch {
	case totalAmount <= singleMilestoneMax:
		return []Template{
			{Title: "Project completion", Amount: round2(totalAmount), SortOrder: 0},
		}
	case totalAmount <= twoMilestoneMax:
		first := round2(totalAmount * 0.5)
		return []Template{
			{Title: "Project start", Amount: first, SortOrder: 0},
			{Title: "Project completion", Amount: round2(totalAmount - first), SortOrder: 1},
		}
	default:
		first := round2(totalAmount * 0.3)
		second := round2(totalAmount * 0.4)
		return []Template{
			{Title: "Project start", Amount: first, SortOrder: 0},
			{Title: "Midpoint review", Amount: second, SortOrder: 1},
			{Title: "Project completion", Amount: round2(totalAmount - first - second), SortOrder: 2},
		}
	}
}

// Validate checks that milestone amounts sum to the expected escrow
// total within one cent.
func Validate(milestones []models.PaymentMilestone, expectedTotal float64) error {
	var sum float64
	for _, m := range milestones {
		sum += m.Amount
	}
	if math.Abs(sum-expectedTotal) > 0.01 {
		return fmt.Errorf("milestones sum to %.2f, expected %.2f: %w",
			sum, expectedTotal, ErrScheduleMismatch)
	}
	return nil
}

// CreateForBooking materializes the schedule template for a booking and
// persists it after validating the sum against the escrow total.
func (s *Service) CreateForBooking(bookingID uint, totalAmount float64) ([]models.PaymentMilestone, error) {
	templates := ScheduleFor(totalAmount)

	milestones := make([]models.PaymentMilestone, len(templates))
	for i, t := range templates {
		milestones[i] = models.PaymentMilestone{
			BookingID: bookingID,
			Title:     t.Title,
			Amount:    t.Amount,
			Status:    models.MilestoneStatusPending,
			SortOrder: t.SortOrder,
		}
	}
	if err := Validate(milestones, totalAmount); err != nil {
		return nil, err
	}

	rows := make([]*models.PaymentMilestone, len(milestones))
	for i := range milestones {
		rows[i] = &milestones[i]
	}
	if err := s.repo.BulkCreate(rows); err != nil {
		return nil, err
	}
	return milestones, nil
}

// Start moves a pending milestone to in_progress.
func (s *Service) Start(milestoneID uint) (*models.PaymentMilestone, error) {
	m, err := s.repo.GetByID(milestoneID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MilestoneStatusPending {
		return nil, fmt.Errorf("milestone %d has status %q: %w", m.ID, m.Status, ErrInvalidTransition)
	}
	m.Status = models.MilestoneStatusInProgress
	if err := s.repo.Update(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Complete marks an in_progress milestone as completed, which makes it
// eligible for release (manual approval or the grace-period sweep).
func (s *Service) Complete(milestoneID uint) (*models.PaymentMilestone, error) {
	m, err := s.repo.GetByID(milestoneID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MilestoneStatusInProgress {
		return nil, fmt.Errorf("milestone %d has status %q: %w", m.ID, m.Status, ErrInvalidTransition)
	}
	now := time.Now()
	m.Status = models.MilestoneStatusCompleted
	m.CompletedAt = &now
	if err := s.repo.Update(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListForBooking returns a booking's milestones in schedule order.
func (s *Service) ListForBooking(bookingID uint) ([]models.PaymentMilestone, error) {
	return s.repo.FindByBooking(bookingID)
}

// RollbackForRedo reverts completed-but-unapproved milestones to
// in_progress. The only backward transition, driven by a redo_work
// dispute resolution.
func (s *Service) RollbackForRedo(bookingID uint) error {
	milestones, err := s.repo.FindByBooking(bookingID)
	if err != nil {
		return err
	}
	for i := range milestones {
		m := &milestones[i]
		if m.Status != models.MilestoneStatusCompleted {
			continue
		}
		m.Status = models.MilestoneStatusInProgress
		m.CompletedAt = nil
		if err := s.repo.Update(m); err != nil {
			return err
		}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
