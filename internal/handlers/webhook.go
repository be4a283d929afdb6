package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/transport"
)

// WebhookHandler receives Twilio WhatsApp callbacks and feeds them into
// the transport, which hands them to the conversation router.
type WebhookHandler struct {
	twilio *transport.TwilioTransport
}

// NewWebhookHandler creates the Twilio webhook handler
func NewWebhookHandler(twilio *transport.TwilioTransport) *WebhookHandler {
	return &WebhookHandler{twilio: twilio}
}

// TwilioWebhookPayload represents an incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid        string `form:"MessageSid"`
	AccountSid        string `form:"AccountSid"`
	From              string `form:"From"` // whatsapp:+5511999999999
	To                string `form:"To"`
	Body              string `form:"Body"`
	NumMedia          string `form:"NumMedia"`
	MediaUrl0         string `form:"MediaUrl0"`
	MediaContentType0 string `form:"MediaContentType0"`
}

// HandleWebhook processes incoming WhatsApp messages. Replies go out
// asynchronously through the transport, so the webhook only
// acknowledges receipt.
func (h *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		zap.S().Warnf("⚠️ Invalid webhook payload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	from := strings.TrimPrefix(payload.From, "whatsapp:")
	if from == "" {
		// Status callback or malformed event, nothing to route.
		return c.SendStatus(fiber.StatusOK)
	}

	zap.S().Infof("📱 WhatsApp message from %s (media=%s)", from, payload.NumMedia)
	h.twilio.HandleInbound(from, payload.Body, payload.MediaUrl0, payload.MediaContentType0)

	return c.SendStatus(fiber.StatusOK)
}

// TestWebhookPayload is the JSON body of the development-only endpoint.
type TestWebhookPayload struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

// HandleTestWebhook injects a message without Twilio, for development.
func (h *WebhookHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var payload TestWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}

	zap.S().Infof("🧪 Test webhook from %s: %s", payload.From, payload.Message)
	h.twilio.HandleInbound(payload.From, payload.Message, "", "")

	return c.JSON(fiber.Map{
		"success": true,
		"queued":  true,
	})
}
