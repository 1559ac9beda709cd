package handlers

import (
	"errors"
	"strconv"

	"taskpay/internal/repositories"
	"taskpay/internal/services/milestone"
	"taskpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type MilestoneHandler struct {
	milestoneService *milestone.Service
}

func NewMilestoneHandler(milestoneService *milestone.Service) *MilestoneHandler {
	return &MilestoneHandler{milestoneService: milestoneService}
}

// PreviewSchedule returns the payment schedule a given total would
// produce, without persisting anything. Used by booking checkout UIs.
func (h *MilestoneHandler) PreviewSchedule(c *fiber.Ctx) error {
	total, err := strconv.ParseFloat(c.Query("total"), 64)
	if err != nil || total <= 0 {
		return response.BadRequest(c, "Invalid total amount")
	}
	return response.Success(c, "Schedule preview", milestone.ScheduleFor(total))
}

func (h *MilestoneHandler) Start(c *fiber.Ctx) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid milestone ID")
	}

	m, err := h.milestoneService.Start(id)
	if err != nil {
		return milestoneError(c, err)
	}
	return response.Success(c, "Milestone started", m)
}

func (h *MilestoneHandler) Complete(c *fiber.Ctx) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid milestone ID")
	}

	m, err := h.milestoneService.Complete(id)
	if err != nil {
		return milestoneError(c, err)
	}
	return response.Success(c, "Milestone completed", m)
}

func (h *MilestoneHandler) ListForBooking(c *fiber.Ctx) error {
	bookingID, err := paramUint(c, "bookingID")
	if err != nil {
		return response.BadRequest(c, "Invalid booking ID")
	}

	milestones, err := h.milestoneService.ListForBooking(bookingID)
	if err != nil {
		return response.ServerError(c, err.Error())
	}
	return response.Success(c, "Milestones retrieved", milestones)
}

func milestoneError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, milestone.ErrInvalidTransition),
		errors.Is(err, milestone.ErrScheduleMismatch):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, repositories.ErrMilestoneNotFound):
		return response.NotFound(c, err.Error())
	default:
		return response.ServerError(c, err.Error())
	}
}
