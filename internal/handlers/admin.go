package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/transport"
)

// AdminHandler exposes the ops API: WhatsApp pairing state, a manual
// send endpoint and facility stats. All routes sit behind the admin
// token middleware.
type AdminHandler struct {
	store         storage.Store
	sender        transport.Sender
	wa            *transport.WhatsmeowTransport // nil when running on Twilio
	transportName string
}

// NewAdminHandler creates a new admin handler. wa may be nil.
func NewAdminHandler(store storage.Store, sender transport.Sender, wa *transport.WhatsmeowTransport, transportName string) *AdminHandler {
	return &AdminHandler{
		store:         store,
		sender:        sender,
		wa:            wa,
		transportName: transportName,
	}
}

// GetWhatsAppQR returns the latest pairing QR string, if any. The
// frontend renders the QR client-side from this value.
func (h *AdminHandler) GetWhatsAppQR(c *fiber.Ctx) error {
	if h.wa == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "QR pairing is only available on the whatsmeow transport",
		})
	}
	code := h.wa.QRCode()
	return c.JSON(fiber.Map{
		"code":   code,
		"has_qr": code != "",
	})
}

// GetWhatsAppStatus returns basic runtime status of the transport.
func (h *AdminHandler) GetWhatsAppStatus(c *fiber.Ctx) error {
	status := "webhook"
	if h.wa != nil {
		status = h.wa.Status()
	}
	return c.JSON(fiber.Map{
		"transport": h.transportName,
		"status":    status,
	})
}

// SendMessageRequest is the manual-send payload.
type SendMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// SendMessage sends one text message through the active transport.
func (h *AdminHandler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.To == "" || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "to and text are required",
		})
	}

	if err := h.sender.Send(c.Context(), req.To, req.Text); err != nil {
		zap.S().Errorf("❌ Manual send to %s failed: %v", req.To, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to send message",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

// GetStats reports facility counters: accounts, drivers, vehicles and
// the cars currently inside.
func (h *AdminHandler) GetStats(c *fiber.Ctx) error {
	users, err := h.store.CountUsers()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch stats",
		})
	}
	drivers, err := h.store.GetAllDrivers()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch stats",
		})
	}
	vehicles, err := h.store.GetAllVehicles()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch stats",
		})
	}
	open, err := h.store.GetOpenParkingLogs()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch stats",
		})
	}

	parked := make([]fiber.Map, 0, len(open))
	for _, p := range open {
		parked = append(parked, fiber.Map{
			"plate":    p.LicensePlate,
			"entry_at": p.EntryAt,
		})
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"users":          users,
		"drivers":        len(drivers),
		"vehicles":       len(vehicles),
		"currently_open": len(open),
		"parked":         parked,
	})
}
