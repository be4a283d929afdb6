package routes

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/config"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/handlers"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/middleware"
)

// SetupRoutes configures all API routes. webhook is nil when the bot
// runs on the whatsmeow transport (no inbound HTTP needed).
func SetupRoutes(
	app *fiber.App,
	cfg *config.Config,
	health *handlers.HealthHandler,
	webhook *handlers.WebhookHandler,
	admin *handlers.AdminHandler,
) {
	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Parking WhatsApp Bot",
			"version": health.Version,
			"endpoints": fiber.Map{
				"health":  "/health",
				"ready":   "/ready",
				"webhook": "/webhook/whatsapp",
				"api":     "/api",
			},
		})
	})

	app.Get("/health", health.Check)
	app.Get("/ready", health.Ready)

	// ========== WEBHOOK ROUTES ==========
	if webhook != nil {
		webhooks := app.Group("/webhook")
		if cfg.TwilioValidateSig {
			webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(cfg.TwilioAuthToken), webhook.HandleWebhook)
		} else {
			// Development: skip validation for ngrok-style tunnels.
			zap.S().Warn("⚠️ WhatsApp webhook signature validation DISABLED")
			webhooks.Post("/whatsapp", webhook.HandleWebhook)
		}

		// Test endpoint (development only)
		app.Post("/test/whatsapp", webhook.HandleTestWebhook)
	}

	// ========== OPS API ==========
	api := app.Group("/api", middleware.RequireAdminToken(cfg.AdminAPIToken))
	api.Get("/whatsapp/qr", admin.GetWhatsAppQR)
	api.Get("/whatsapp/status", admin.GetWhatsAppStatus)
	api.Post("/whatsapp/send", admin.SendMessage)
	api.Get("/stats", admin.GetStats)
}
