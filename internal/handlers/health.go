package handlers

import (
	"taskpay/internal/repositories"

	"github.com/gofiber/fiber/v2"
)

// HealthCheck reports service liveness plus database and cache
// connectivity.
func HealthCheck(c *fiber.Ctx) error {
	status := fiber.Map{
		"status":   "ok",
		"database": "up",
		"cache":    "up",
	}

	sqlDB, err := repositories.DB.DB()
	if err != nil || sqlDB.Ping() != nil {
		status["status"] = "degraded"
		status["database"] = "down"
	}

	if repositories.CacheService == nil || repositories.CacheService.Ping(c.Context()) != nil {
		status["status"] = "degraded"
		status["cache"] = "down"
	}

	if status["status"] != "ok" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.JSON(status)
}
