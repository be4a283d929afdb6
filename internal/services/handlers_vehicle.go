package services

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/recognition"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/transport"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/utils"
)

// handleRegisteringVehicle walks the vehicle registration steps. When
// the operator names a driver document nobody has, an inline driver
// registration runs in PendingDriver and the vehicle flow resumes at
// its confirmation once the driver exists.
func (r *Router) handleRegisteringVehicle(sender string, conv Conversation, msg transport.Message) {
	if conv.Context.Vehicle == nil {
		r.resetCorrupted(sender, conv)
		return
	}
	if msg.Kind != transport.KindText {
		r.reply(sender, msgHelp(StateRegisteringVehicle))
		return
	}

	v := *conv.Context.Vehicle
	text := strings.TrimSpace(msg.Text)

	if v.PendingDriver != nil {
		r.handleInlineDriver(sender, conv, v, text)
		return
	}

	switch v.Step {
	case "plate":
		plate := strings.ToUpper(strings.ReplaceAll(text, " ", ""))
		if !recognition.ValidPlate(plate) {
			r.reply(sender, msgPlateInvalidFormat())
			return
		}
		if _, err := r.store.GetVehicleByPlate(plate); err == nil {
			r.reply(sender, msgVehiclePlateTaken(plate))
			return
		}
		v.Plate = plate
		v.Step = "model"
		r.saveVehicle(sender, v)
		r.reply(sender, msgVehicleModelPrompt())

	case "model":
		if text == "" {
			r.reply(sender, msgVehicleModelPrompt())
			return
		}
		v.VehicleModel = text
		v.Step = "color"
		r.saveVehicle(sender, v)
		r.reply(sender, msgVehicleColorPrompt())

	case "color":
		if text == "" {
			r.reply(sender, msgVehicleColorPrompt())
			return
		}
		v.Color = text
		v.Step = "driver_document"
		r.saveVehicle(sender, v)
		r.reply(sender, msgVehicleDriverPrompt())

	case "driver_document":
		if strings.EqualFold(text, "pular") {
			v.DriverDoc = ""
			v.DriverID = ""
			v.Step = "confirm"
			r.saveVehicle(sender, v)
			r.reply(sender, msgVehicleConfirm(v.Plate, v.VehicleModel, v.Color, ""))
			return
		}
		doc := utils.Digits(text)
		if len(doc) != 11 {
			r.reply(sender, msgInvalidCPF())
			return
		}
		driver, err := r.store.GetDriverByDocument(doc)
		if errors.Is(err, storage.ErrNotFound) {
			v.DriverDoc = doc
			v.Step = "driver_missing"
			r.saveVehicle(sender, v)
			r.reply(sender, msgDriverNotFound(doc))
			return
		}
		if err != nil {
			zap.S().Errorf("❌ Driver lookup failed for %s: %v", doc, err)
			r.reply(sender, msgInternalError())
			return
		}
		v.DriverDoc = doc
		v.DriverID = driver.DriverID
		v.Step = "confirm"
		r.saveVehicle(sender, v)
		r.reply(sender, msgVehicleConfirm(v.Plate, v.VehicleModel, v.Color, driver.Name))

	case "driver_missing":
		switch text {
		case "1":
			v.PendingDriver = &DriverRegistration{Step: "name", Document: v.DriverDoc}
			r.saveVehicle(sender, v)
			r.reply(sender, msgDriverNamePrompt())
		case "2":
			v.Step = "driver_document"
			r.saveVehicle(sender, v)
			r.reply(sender, msgVehicleDriverPrompt())
		case "0":
			v.DriverDoc = ""
			v.DriverID = ""
			v.Step = "confirm"
			r.saveVehicle(sender, v)
			r.reply(sender, msgVehicleConfirm(v.Plate, v.VehicleModel, v.Color, ""))
		default:
			r.reply(sender, msgPickListedOption())
		}

	case "confirm":
		switch text {
		case "1":
			r.createVehicle(sender, conv.Context.UserID, v)
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

// handleInlineDriver is the nested driver registration. The document
// was already typed in the vehicle flow, so only name and phone are
// asked before confirming.
func (r *Router) handleInlineDriver(sender string, conv Conversation, v VehicleRegistration, text string) {
	d := *v.PendingDriver

	switch d.Step {
	case "name":
		if text == "" {
			r.reply(sender, msgDriverNamePrompt())
			return
		}
		d.Name = text
		d.Step = "phone"
		v.PendingDriver = &d
		r.saveVehicle(sender, v)
		r.reply(sender, msgDriverPhonePrompt())

	case "phone":
		phone := utils.Digits(text)
		if len(phone) < 10 {
			r.reply(sender, msgInvalidPhone())
			return
		}
		d.Phone = phone
		d.Step = "confirm"
		v.PendingDriver = &d
		r.saveVehicle(sender, v)
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
				v.PendingDriver = nil
				v.Step = "driver_document"
				r.saveVehicle(sender, v)
				r.reply(sender, msgDriverDocumentTaken(d.Document))
				return
			}
			if err != nil {
				zap.S().Errorf("❌ Failed to create driver %s: %v", d.Document, err)
				r.reply(sender, msgInternalError())
				return
			}
			r.bus.Audit(models.AuditDriverNew, conv.Context.UserID, driver.Document)
			zap.S().Infof("✅ Driver %s registered by %s", driver.DriverID, conv.Context.UserID)

			v.DriverID = driver.DriverID
			v.PendingDriver = nil
			v.Step = "confirm"
			r.saveVehicle(sender, v)
			r.reply(sender, msgDriverCreated(driver.Name))
			r.reply(sender, msgVehicleConfirm(v.Plate, v.VehicleModel, v.Color, driver.Name))

		case "0":
			v.PendingDriver = nil
			v.Step = "driver_document"
			r.saveVehicle(sender, v)
			r.reply(sender, msgVehicleDriverPrompt())

		default:
			r.reply(sender, msgPickListedOption())
		}

	default:
		r.resetCorrupted(sender, conv)
	}
}

func (r *Router) saveVehicle(sender string, v VehicleRegistration) {
	r.conversations.UpdateContext(sender, func(c *Context) { c.Vehicle = &v })
}

func (r *Router) createVehicle(sender, operatorID string, v VehicleRegistration) {
	created, err := r.store.CreateVehicle(&models.Vehicle{
		LicensePlate: v.Plate,
		VehicleModel: v.VehicleModel,
		Color:        v.Color,
		DriverID:     v.DriverID,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		r.reply(sender, msgVehiclePlateTaken(v.Plate))
		r.backToMenu(sender)
		return
	}
	if err != nil {
		zap.S().Errorf("❌ Failed to create vehicle %s: %v", v.Plate, err)
		r.reply(sender, msgInternalError())
		return
	}

	r.bus.Audit(models.AuditVehicleNew, operatorID, created.LicensePlate)
	zap.S().Infof("✅ Vehicle %s registered by %s", created.LicensePlate, operatorID)
	r.reply(sender, msgVehicleCreated(created.LicensePlate))
	r.backToMenu(sender)
}
