package handlers

import (
	"errors"

	"taskpay/internal/models"
	"taskpay/internal/repositories"
	"taskpay/internal/services/dispute"
	"taskpay/internal/services/escrow"
	"taskpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type DisputeHandler struct {
	disputeService *dispute.Service
}

func NewDisputeHandler(disputeService *dispute.Service) *DisputeHandler {
	return &DisputeHandler{disputeService: disputeService}
}

var validDisputeTypes = map[models.DisputeType]bool{
	models.DisputeTypeQuality:       true,
	models.DisputeTypePayment:       true,
	models.DisputeTypeTimeline:      true,
	models.DisputeTypeCommunication: true,
	models.DisputeTypeCancellation:  true,
	models.DisputeTypeOther:         true,
}

func (h *DisputeHandler) Open(c *fiber.Ctx) error {
	var input struct {
		BookingID   uint    `json:"booking_id"`
		Type        string  `json:"type"`
		Amount      float64 `json:"amount"`
		Description string  `json:"description"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	disputeType := models.DisputeType(input.Type)
	if !validDisputeTypes[disputeType] {
		return response.BadRequest(c, "Unknown dispute type")
	}
	if input.Amount < 0 {
		return response.BadRequest(c, "Disputed amount cannot be negative")
	}

	claims := c.Locals("claims").(*models.UserClaims)
	d, err := h.disputeService.Open(c.Context(), dispute.OpenRequest{
		BookingID:   input.BookingID,
		InitiatorID: claims.UserID,
		Type:        disputeType,
		Amount:      input.Amount,
		Description: input.Description,
	})
	if err != nil {
		return disputeError(c, d, err)
	}

	return response.Created(c, "Dispute opened", d)
}

func (h *DisputeHandler) AddEvidence(c *fiber.Ctx) error {
	disputeID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid dispute ID")
	}

	var input struct {
		Type        string `json:"type"`
		FileURL     string `json:"file_url"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}

	claims := c.Locals("claims").(*models.UserClaims)
	evidence, err := h.disputeService.AddEvidence(c.Context(), disputeID, claims.UserID,
		input.Type, input.FileURL, input.Description)
	if err != nil {
		return disputeError(c, nil, err)
	}
	return response.Created(c, "Evidence submitted", evidence)
}

func (h *DisputeHandler) AddMessage(c *fiber.Ctx) error {
	disputeID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid dispute ID")
	}

	var input struct {
		Body string `json:"body"`
	}
	if err := c.BodyParser(&input); err != nil || input.Body == "" {
		return response.BadRequest(c, "Message body is required")
	}

	claims := c.Locals("claims").(*models.UserClaims)
	message, err := h.disputeService.AddMessage(c.Context(), disputeID, claims.UserID, input.Body)
	if err != nil {
		return disputeError(c, nil, err)
	}
	return response.Created(c, "Message posted", message)
}

func (h *DisputeHandler) Escalate(c *fiber.Ctx) error {
	disputeID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid dispute ID")
	}

	d, err := h.disputeService.Escalate(c.Context(), disputeID)
	if err != nil {
		return disputeError(c, d, err)
	}
	return response.Success(c, "Dispute escalated", d)
}

func (h *DisputeHandler) Resolve(c *fiber.Ctx) error {
	disputeID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid dispute ID")
	}

	var input struct {
		ResolutionType       string  `json:"resolution_type"`
		RefundAmount         float64 `json:"refund_amount"`
		PaymentReleaseAmount float64 `json:"payment_release_amount"`
		Notes                string  `json:"notes"`
		CustomerAgreed       bool    `json:"customer_agreed"`
		ContractorAgreed     bool    `json:"contractor_agreed"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}

	claims := c.Locals("claims").(*models.UserClaims)
	resolution := &models.DisputeResolution{
		ResolutionType:       models.ResolutionType(input.ResolutionType),
		RefundAmount:         input.RefundAmount,
		PaymentReleaseAmount: input.PaymentReleaseAmount,
		Notes:                input.Notes,
		CustomerAgreed:       input.CustomerAgreed,
		ContractorAgreed:     input.ContractorAgreed,
		ResolvedBy:           claims.UserID,
	}

	d, err := h.disputeService.Resolve(c.Context(), disputeID, resolution)
	if err != nil {
		return disputeError(c, d, err)
	}
	return response.Success(c, "Dispute resolved", d)
}

func (h *DisputeHandler) RetrySettlement(c *fiber.Ctx) error {
	disputeID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid dispute ID")
	}

	d, err := h.disputeService.RetrySettlement(c.Context(), disputeID)
	if err != nil {
		return disputeError(c, d, err)
	}
	return response.Success(c, "Settlement completed", d)
}

func (h *DisputeHandler) Close(c *fiber.Ctx) error {
	disputeID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid dispute ID")
	}

	d, err := h.disputeService.Close(c.Context(), disputeID)
	if err != nil {
		return disputeError(c, d, err)
	}
	return response.Success(c, "Dispute closed", d)
}

func (h *DisputeHandler) Get(c *fiber.Ctx) error {
	disputeID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid dispute ID")
	}

	d, err := h.disputeService.Get(c.Context(), disputeID)
	if err != nil {
		return disputeError(c, nil, err)
	}
	return response.Success(c, "Dispute retrieved", d)
}

func (h *DisputeHandler) ListEvidence(c *fiber.Ctx) error {
	disputeID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid dispute ID")
	}

	evidence, err := h.disputeService.ListEvidence(c.Context(), disputeID)
	if err != nil {
		return response.ServerError(c, err.Error())
	}
	return response.Success(c, "Evidence retrieved", evidence)
}

func (h *DisputeHandler) ListMessages(c *fiber.Ctx) error {
	disputeID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid dispute ID")
	}

	messages, err := h.disputeService.ListMessages(c.Context(), disputeID)
	if err != nil {
		return response.ServerError(c, err.Error())
	}
	return response.Success(c, "Messages retrieved", messages)
}

// disputeError maps dispute errors to HTTP statuses. A settlement
// failure after a committed resolution returns 502 with the (resolved,
// unsettled) dispute so callers can retry settlement later.
func disputeError(c *fiber.Ctx, d *models.Dispute, err error) error {
	switch {
	case errors.Is(err, dispute.ErrExecutionFailed):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
			"data":  d,
		})
	case errors.Is(err, dispute.ErrDuplicateDispute),
		errors.Is(err, dispute.ErrAlreadyEscalated),
		errors.Is(err, dispute.ErrDisputeTerminal),
		errors.Is(err, dispute.ErrThreadClosed):
		return response.Conflict(c, err.Error())
	case errors.Is(err, models.ErrInvalidResolution):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, repositories.ErrDisputeNotFound),
		errors.Is(err, repositories.ErrBookingNotFound),
		errors.Is(err, repositories.ErrResolutionNotFound):
		return response.NotFound(c, err.Error())
	case errors.Is(err, escrow.ErrInsufficientFunds):
		return response.Conflict(c, err.Error())
	default:
		return response.ServerError(c, err.Error())
	}
}
