package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	Version string
	store   storage.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, store storage.Store) *HealthHandler {
	return &HealthHandler{
		Version: version,
		store:   store,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "OK",
		"service": "Parking WhatsApp Bot",
		"version": h.Version,
	})
}

// Ready reports whether storage answers queries.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if _, err := h.store.CountUsers(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"error":  "storage not reachable",
		})
	}
	return c.JSON(fiber.Map{
		"status": "ready",
	})
}
