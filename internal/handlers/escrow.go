package handlers

import (
	"errors"
	"strconv"

	"taskpay/internal/models"
	"taskpay/internal/repositories"
	"taskpay/internal/services/escrow"
	"taskpay/internal/services/milestone"
	"taskpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type EscrowHandler struct {
	escrowService    escrow.Service
	milestoneService *milestone.Service
	bookings         repositories.BookingRepository
}

func NewEscrowHandler(escrowService escrow.Service, milestoneService *milestone.Service, bookings repositories.BookingRepository) *EscrowHandler {
	return &EscrowHandler{
		escrowService:    escrowService,
		milestoneService: milestoneService,
		bookings:         bookings,
	}
}

// CreateAccount opens an escrow account for a confirmed booking and
// materializes its milestone schedule.
func (h *EscrowHandler) CreateAccount(c *fiber.Ctx) error {
	var input struct {
		BookingID uint `json:"booking_id"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}

	booking, err := h.bookings.GetByID(input.BookingID)
	if err != nil {
		if errors.Is(err, repositories.ErrBookingNotFound) {
			return response.NotFound(c, "Booking not found")
		}
		return response.ServerError(c, err.Error())
	}

	account, err := h.escrowService.CreateAccount(c.Context(), booking.ID, booking.Price)
	if err != nil {
		return escrowError(c, err)
	}

	milestones, err := h.milestoneService.CreateForBooking(booking.ID, booking.Price)
	if err != nil {
		return response.ServerError(c, err.Error())
	}

	return response.Created(c, "Escrow account created", fiber.Map{
		"account":    account,
		"milestones": milestones,
	})
}

func (h *EscrowHandler) Fund(c *fiber.Ctx) error {
	accountID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid account ID")
	}

	var input struct {
		PaymentMethodRef string `json:"payment_method_ref"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}

	claims := c.Locals("claims").(*models.UserClaims)
	intent, err := h.escrowService.Fund(c.Context(), accountID, input.PaymentMethodRef, claims.UserID)
	if err != nil {
		return escrowError(c, err)
	}

	return response.Success(c, "Funding intent created", intent)
}

func (h *EscrowHandler) ConfirmFunding(c *fiber.Ctx) error {
	accountID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid account ID")
	}

	var input struct {
		ExternalRef string `json:"external_ref"`
	}
	if err := c.BodyParser(&input); err != nil || input.ExternalRef == "" {
		return response.BadRequest(c, "Invalid request format")
	}

	account, err := h.escrowService.ConfirmFunding(c.Context(), accountID, input.ExternalRef)
	if err != nil {
		return escrowError(c, err)
	}

	return response.Success(c, "Funding confirmed", account)
}

func (h *EscrowHandler) ReleaseMilestone(c *fiber.Ctx) error {
	milestoneID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid milestone ID")
	}

	claims := c.Locals("claims").(*models.UserClaims)
	account, err := h.escrowService.ReleaseMilestone(c.Context(), milestoneID, claims.UserID)
	if err != nil {
		return escrowError(c, err)
	}

	return response.Success(c, "Milestone released", account)
}

func (h *EscrowHandler) Refund(c *fiber.Ctx) error {
	accountID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid account ID")
	}

	var input struct {
		Amount float64 `json:"amount"`
		Reason string  `json:"reason"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}

	account, err := h.escrowService.Refund(c.Context(), accountID, input.Amount, input.Reason)
	if err != nil {
		return escrowError(c, err)
	}

	return response.Success(c, "Refund issued", account)
}

func (h *EscrowHandler) GetAccount(c *fiber.Ctx) error {
	accountID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid account ID")
	}

	account, err := h.escrowService.GetAccount(c.Context(), accountID)
	if err != nil {
		return escrowError(c, err)
	}
	return response.Success(c, "Escrow account retrieved", account)
}

func (h *EscrowHandler) GetByBooking(c *fiber.Ctx) error {
	bookingID, err := paramUint(c, "bookingID")
	if err != nil {
		return response.BadRequest(c, "Invalid booking ID")
	}

	account, err := h.escrowService.GetByBooking(c.Context(), bookingID)
	if err != nil {
		return escrowError(c, err)
	}
	return response.Success(c, "Escrow account retrieved", account)
}

func (h *EscrowHandler) ListTransactions(c *fiber.Ctx) error {
	accountID, err := paramUint(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid account ID")
	}

	txs, err := h.escrowService.ListTransactions(c.Context(), accountID)
	if err != nil {
		return response.ServerError(c, err.Error())
	}
	return response.Success(c, "Transactions retrieved", txs)
}

// escrowError maps ledger errors to HTTP statuses. Verification
// failures are retryable and map to 409; ledger inconsistencies map to
// 500 because they need manual investigation.
func escrowError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrAccountNotFundable),
		errors.Is(err, escrow.ErrMilestoneNotReleasable),
		errors.Is(err, escrow.ErrNoPayoutDestination):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, escrow.ErrAccountFrozen),
		errors.Is(err, escrow.ErrInsufficientFunds):
		return response.Conflict(c, err.Error())
	case errors.Is(err, escrow.ErrPaymentVerification):
		return response.Conflict(c, err.Error())
	case errors.Is(err, repositories.ErrAccountNotFound),
		errors.Is(err, repositories.ErrMilestoneNotFound),
		errors.Is(err, repositories.ErrTransactionNotFound):
		return response.NotFound(c, err.Error())
	default:
		return response.ServerError(c, err.Error())
	}
}

func paramUint(c *fiber.Ctx, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Params(name), 10, 32)
	return uint(v), err
}
