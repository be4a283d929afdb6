package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/recognition"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/transport"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/utils"
)

// handleSendingNotification builds and sends a message to a driver.
// The target can be a registered plate (resolved to the linked
// driver's WhatsApp) or a raw phone number.
func (r *Router) handleSendingNotification(sender string, conv Conversation, msg transport.Message) {
	if conv.Context.Notification == nil {
		r.resetCorrupted(sender, conv)
		return
	}
	if msg.Kind != transport.KindText {
		r.reply(sender, msgHelp(StateSendingNotification))
		return
	}

	n := *conv.Context.Notification
	text := strings.TrimSpace(msg.Text)

	switch n.Step {
	case "target":
		r.resolveNotifyTarget(sender, n, text)

	case "message":
		if text == "" {
			r.reply(sender, msgNotifyMessagePrompt(n.Recipient))
			return
		}
		n.Message = text
		n.Step = "confirm"
		r.saveNotification(sender, n)
		r.reply(sender, msgNotifyConfirm(n.Recipient, n.Message))

	case "confirm":
		switch text {
		case "1":
			r.dispatchNotification(sender, conv.Context, n)
		case "0":
			r.reply(sender, msgCancelled())
			r.backToMenu(sender)
		default:
			r.reply(sender, msgPickListedOption())
		}

	default:
		r.resetCorrupted(sender, conv)
	}
}

// resolveNotifyTarget turns the typed target into a recipient phone.
func (r *Router) resolveNotifyTarget(sender string, n NotificationDraft, text string) {
	plate := strings.ToUpper(strings.ReplaceAll(text, " ", ""))
	if recognition.ValidPlate(plate) {
		vehicle, err := r.store.GetVehicleByPlate(plate)
		if errors.Is(err, storage.ErrNotFound) {
			r.reply(sender, msgNotifyTargetUnknown())
			return
		}
		if err != nil {
			zap.S().Errorf("❌ Vehicle lookup failed for %s: %v", plate, err)
			r.reply(sender, msgInternalError())
			return
		}
		if vehicle.DriverID == "" {
			r.reply(sender, msgNotifyVehicleHasNoDriver(plate))
			return
		}
		driver, err := r.store.GetDriverByID(vehicle.DriverID)
		if err != nil || driver.Phone == "" {
			r.reply(sender, msgNotifyVehicleHasNoDriver(plate))
			return
		}
		n.DriverID = driver.DriverID
		n.Plate = plate
		n.Recipient = driver.Phone
		n.Step = "message"
		r.saveNotification(sender, n)
		r.reply(sender, msgNotifyMessagePrompt(driver.Name))
		return
	}

	digits := utils.Digits(text)
	if len(digits) >= 10 {
		if driver, err := r.store.GetDriverByPhone(digits); err == nil {
			n.DriverID = driver.DriverID
		}
		n.Recipient = digits
		n.Step = "message"
		r.saveNotification(sender, n)
		r.reply(sender, msgNotifyMessagePrompt(digits))
		return
	}

	r.reply(sender, msgNotifyTargetUnknown())
}

// dispatchNotification sends the draft and records the outcome. A
// delivery failure keeps the draft so the operator can retry.
func (r *Router) dispatchNotification(sender string, opCtx Context, n NotificationDraft) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	body := msgNotifyFromParking(opCtx.UserName, n.Plate, n.Message)
	status := "sent"
	if err := r.sender.Send(ctx, n.Recipient, body); err != nil {
		zap.S().Errorf("❌ Notification to %s failed: %v", n.Recipient, err)
		status = "failed"
	}

	if _, err := r.store.CreateNotificationLog(&models.NotificationLog{
		RecipientPhone: n.Recipient,
		DriverID:       n.DriverID,
		Message:        n.Message,
		Status:         status,
		SentBy:         opCtx.UserID,
	}); err != nil {
		zap.S().Warnf("⚠️ Failed to record notification log: %v", err)
	}

	if status == "failed" {
		r.reply(sender, msgNotifyFailed())
		return
	}

	r.bus.Audit(models.AuditNotification, opCtx.UserID, n.Recipient)
	zap.S().Infof("📨 Notification sent to %s by %s", n.Recipient, opCtx.UserID)
	r.reply(sender, msgNotifySent(n.Recipient))
	r.backToMenu(sender)
}

func (r *Router) saveNotification(sender string, n NotificationDraft) {
	r.conversations.UpdateContext(sender, func(c *Context) { c.Notification = &n })
}
