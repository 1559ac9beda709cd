// Package routes defines the API routing configuration.
// It wires repositories, services, and handlers, and groups routes by
// functionality with the appropriate middleware.
package routes

import (
	"time"

	"taskpay/internal/config"
	"taskpay/internal/gateway"
	"taskpay/internal/handlers"
	"taskpay/internal/jobs"
	"taskpay/internal/middleware"
	"taskpay/internal/repositories"
	"taskpay/internal/services/dispute"
	"taskpay/internal/services/escrow"
	"taskpay/internal/services/milestone"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupRoutes configures all application routes and returns the
// background job runner, already wired but not started.
func SetupRoutes(app *fiber.App, db *gorm.DB) *jobs.Runner {
	// Initialize repositories
	accountRepo := repositories.NewEscrowRepository(db)
	txRepo := repositories.NewTransactionRepository(db)
	milestoneRepo := repositories.NewMilestoneRepository(db)
	bookingRepo := repositories.NewBookingRepository(db)
	userRepo := repositories.NewUserRepository(db)
	disputeRepo := repositories.NewDisputeRepository(db)
	reviewDir := repositories.NewReviewDirectory(db)

	// Payment gateway
	stripeKey := config.GetEnv("STRIPE_SECRET_KEY", "")
	gw := gateway.NewStripeGateway(stripeKey, gateway.DefaultStripeConfig())

	// Initialize services in dependency order
	escrowService := escrow.NewService(
		db,
		accountRepo,
		txRepo,
		milestoneRepo,
		bookingRepo,
		userRepo,
		gw,
		repositories.CacheService,
	)
	milestoneService := milestone.NewService(milestoneRepo)
	disputeService := dispute.NewService(
		db,
		disputeRepo,
		bookingRepo,
		escrowService,
		milestoneService,
		dispute.NewAutoResolutionEngine(reviewDir),
		dispute.NewMediatorAssigner(userRepo, time.Now().UnixNano()),
		nil,
	)

	// Initialize handlers
	escrowHandler := handlers.NewEscrowHandler(escrowService, milestoneService, bookingRepo)
	milestoneHandler := handlers.NewMilestoneHandler(milestoneService)
	disputeHandler := handlers.NewDisputeHandler(disputeService)

	api := app.Group("/api")

	// Public endpoints (no auth required)
	api.Get("/health", handlers.HealthCheck)
	api.Get("/milestones/schedule", milestoneHandler.PreviewSchedule)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to TaskPay API",
			"version": "1.0.0",
			"docs":    "/api",
		})
	})

	// Protected routes with auth middleware
	protected := api.Use(middleware.Auth())

	setupEscrowRoutes(protected, escrowHandler)
	setupMilestoneRoutes(protected, milestoneHandler, escrowHandler)
	setupDisputeRoutes(protected, disputeHandler)

	return jobs.NewRunner(escrowService, milestoneRepo, txRepo, gw, jobs.DefaultConfig())
}

func setupEscrowRoutes(router fiber.Router, h *handlers.EscrowHandler) {
	group := router.Group("/escrow")
	group.Post("/accounts", h.CreateAccount)
	group.Get("/accounts/:id", h.GetAccount)
	group.Post("/accounts/:id/fund", h.Fund)
	group.Post("/accounts/:id/confirm", h.ConfirmFunding)
	group.Get("/accounts/:id/transactions", h.ListTransactions)
	group.Post("/accounts/:id/refund", middleware.RequireStaff(), h.Refund)
	group.Get("/bookings/:bookingID/account", h.GetByBooking)
}

func setupMilestoneRoutes(router fiber.Router, h *handlers.MilestoneHandler, eh *handlers.EscrowHandler) {
	group := router.Group("/milestones")
	group.Post("/:id/start", h.Start)
	group.Post("/:id/complete", h.Complete)
	group.Post("/:id/release", eh.ReleaseMilestone)
	router.Get("/bookings/:bookingID/milestones", h.ListForBooking)
}

func setupDisputeRoutes(router fiber.Router, h *handlers.DisputeHandler) {
	group := router.Group("/disputes")
	group.Post("/", h.Open)
	group.Get("/:id", h.Get)
	group.Post("/:id/evidence", h.AddEvidence)
	group.Get("/:id/evidence", h.ListEvidence)
	group.Post("/:id/messages", h.AddMessage)
	group.Get("/:id/messages", h.ListMessages)
	group.Post("/:id/escalate", middleware.RequireStaff(), h.Escalate)
	group.Post("/:id/resolve", middleware.RequireStaff(), h.Resolve)
	group.Post("/:id/retry-settlement", middleware.RequireStaff(), h.RetrySettlement)
	group.Post("/:id/close", middleware.RequireStaff(), h.Close)
}
