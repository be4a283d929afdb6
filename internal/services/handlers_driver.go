package services

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/transport"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/utils"
)

// handleRegisteringDriver walks the standalone driver registration
// started from the menu: name, CPF, phone, confirm.
func (r *Router) handleRegisteringDriver(sender string, conv Conversation, msg transport.Message) {
	if conv.Context.Driver == nil {
		r.resetCorrupted(sender, conv)
		return
	}
	if msg.Kind != transport.KindText {
		r.reply(sender, msgHelp(StateRegisteringDriver))
		return
	}

	d := *conv.Context.Driver
	text := strings.TrimSpace(msg.Text)

	switch d.Step {
	case "name":
		if text == "" {
			r.reply(sender, msgDriverNamePrompt())
			return
		}
		d.Name = text
		d.Step = "document"
		r.saveDriver(sender, d)
		r.reply(sender, msgDriverDocumentPrompt())

	case "document":
		doc := utils.Digits(text)
		if len(doc) != 11 {
			r.reply(sender, msgInvalidCPF())
			return
		}
		if _, err := r.store.GetDriverByDocument(doc); err == nil {
			r.reply(sender, msgDriverDocumentTaken(doc))
			return
		}
		d.Document = doc
		d.Step = "phone"
		r.saveDriver(sender, d)
		r.reply(sender, msgDriverPhonePrompt())

	case "phone":
		phone := utils.Digits(text)
		if len(phone) < 10 {
			r.reply(sender, msgInvalidPhone())
			return
		}
		d.Phone = phone
		d.Step = "confirm"
		r.saveDriver(sender, d)
		r.reply(sender, msgDriverConfirm(d.Name, d.Document, d.Phone))

	case "confirm":
		switch text {
		case "1":
			driver, err := r.store.CreateDriver(&models.Driver{
				Name:     d.Name,
				Document: d.Document,
				Phone:    d.Phone,
			})
			if errors.Is(err, storage.ErrDuplicate) {
				r.reply(sender, msgDriverDocumentTaken(d.Document))
				r.backToMenu(sender)
				return
			}
			if err != nil {
				zap.S().Errorf("❌ Failed to create driver %s: %v", d.Document, err)
				r.reply(sender, msgInternalError())
				return
			}
			r.bus.Audit(models.AuditDriverNew, conv.Context.UserID, driver.Document)
			zap.S().Infof("✅ Driver %s registered by %s", driver.DriverID, conv.Context.UserID)
			r.reply(sender, msgDriverCreated(driver.Name))
			r.backToMenu(sender)

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

func (r *Router) saveDriver(sender string, d DriverRegistration) {
	r.conversations.UpdateContext(sender, func(c *Context) { c.Driver = &d })
}
