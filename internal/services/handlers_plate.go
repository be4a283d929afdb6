package services

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/recognition"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/transport"
)

func (r *Router) startRecognition(sender, purpose string) {
	r.startWorkflow(sender, StateRecognizingPlate, func(c *Context) {
		c.Recognition = &RecognitionContext{Purpose: purpose}
	})
	r.reply(sender, msgPlatePrompt(purpose))
}

// handleRecognizingPlate feeds a photo or a typed plate through the
// recognizer and, when a plate is accepted, moves to plate_action with
// the lookup result attached.
func (r *Router) handleRecognizingPlate(sender string, conv Conversation, msg transport.Message) {
	purpose := PurposeEntry
	if conv.Context.Recognition != nil {
		purpose = conv.Context.Recognition.Purpose
	}

	var res recognition.Result
	switch msg.Kind {
	case transport.KindText:
		res = r.recognizer.Recognize(context.Background(), conv.Context.UserID,
			recognition.Input{PlateText: msg.Text})

	case transport.KindImage:
		path, cleanup, err := r.stageImage(msg)
		if err != nil {
			zap.S().Errorf("❌ Failed to stage image from %s: %v", sender, err)
			r.reply(sender, msgRecognitionFailed())
			return
		}
		defer cleanup()
		res = r.recognizer.Recognize(context.Background(), conv.Context.UserID,
			recognition.Input{ImageRef: msg.MediaRef, ImagePath: path})

	default:
		r.reply(sender, msgUnsupportedMedia())
		return
	}

	switch {
	case res.Accepted:
		r.conversations.UpdateContext(sender, func(c *Context) {
			c.Recognition = nil
			c.PlateAction = &PlateActionContext{
				Purpose:      purpose,
				Plate:        res.Plate,
				Confidence:   res.Confidence,
				IsRegistered: res.IsRegistered,
			}
		})
		r.conversations.SetState(sender, StatePlateAction)
		if !res.IsRegistered {
			r.reply(sender, msgPlateUnknown(res.Plate, res.Confidence))
			return
		}
		vehicle, driver := r.lookupVehicle(res.Plate)
		r.reply(sender, msgPlateKnown(purpose, res.Plate, res.Confidence, vehicle, driver))

	case res.Reason == recognition.ReasonInvalidFormat:
		r.reply(sender, msgPlateInvalidFormat())

	case res.Reason == recognition.ReasonBelowConfidence:
		r.reply(sender, msgBelowConfidence(res.Plate, res.Confidence))

	default:
		r.reply(sender, msgRecognitionFailed())
	}
}

// handlePlateAction resolves the confirmation round after a plate was
// accepted: confirm the movement, register the unknown vehicle, retry,
// or bail out to the menu.
func (r *Router) handlePlateAction(sender string, conv Conversation, msg transport.Message) {
	pa := conv.Context.PlateAction
	if pa == nil {
		r.resetCorrupted(sender, conv)
		return
	}
	if msg.Kind != transport.KindText {
		r.reply(sender, msgPickListedOption())
		return
	}

	switch strings.TrimSpace(msg.Text) {
	case "1":
		if !pa.IsRegistered {
			r.startWorkflow(sender, StateRegisteringVehicle, func(c *Context) {
				c.Vehicle = &VehicleRegistration{Step: "model", Plate: pa.Plate}
			})
			r.reply(sender, msgVehicleStartWithPlate(pa.Plate))
			return
		}
		r.performParkingAction(sender, conv.Context.UserID, *pa)

	case "2":
		r.startRecognition(sender, pa.Purpose)

	case "0":
		r.backToMenu(sender)

	default:
		r.reply(sender, msgPickListedOption())
	}
}

// performParkingAction writes the entry or exit movement for a plate
// already confirmed by the operator.
func (r *Router) performParkingAction(sender, operatorID string, pa PlateActionContext) {
	if pa.Purpose == PurposeExit {
		open, err := r.store.GetOpenParkingLog(pa.Plate)
		if errors.Is(err, storage.ErrNotFound) {
			r.reply(sender, msgNoOpenEntry(pa.Plate))
			return
		}
		if err != nil {
			zap.S().Errorf("❌ Open-log lookup failed for %s: %v", pa.Plate, err)
			r.reply(sender, msgInternalError())
			return
		}

		now := time.Now()
		if _, err := r.store.CloseParkingLog(open.LogID, now); err != nil {
			zap.S().Errorf("❌ Failed to close parking log %s: %v", open.LogID, err)
			r.reply(sender, msgInternalError())
			return
		}
		r.bus.Audit(models.AuditExit, operatorID, pa.Plate)
		zap.S().Infof("🚗 Exit registered for %s by %s", pa.Plate, operatorID)
		r.reply(sender, msgExitRegistered(pa.Plate, now, now.Sub(open.EntryAt)))
		r.backToMenu(sender)
		return
	}

	entry := &models.ParkingLog{
		LicensePlate: pa.Plate,
		OperatorID:   operatorID,
		EntryAt:      time.Now(),
		Status:       models.ParkingOpen,
	}
	if vehicle, _ := r.lookupVehicle(pa.Plate); vehicle != nil {
		entry.VehicleID = vehicle.VehicleID
	}

	_, err := r.store.CreateParkingLog(entry)
	if errors.Is(err, storage.ErrDuplicate) {
		// Already inside: flip the pending action to exit so "1" now
		// closes the stay instead of failing again.
		r.conversations.UpdateContext(sender, func(c *Context) {
			if c.PlateAction != nil {
				c.PlateAction.Purpose = PurposeExit
			}
		})
		r.reply(sender, msgAlreadyParked(pa.Plate))
		return
	}
	if err != nil {
		zap.S().Errorf("❌ Failed to create parking log for %s: %v", pa.Plate, err)
		r.reply(sender, msgInternalError())
		return
	}

	r.bus.Audit(models.AuditEntry, operatorID, pa.Plate)
	zap.S().Infof("🚗 Entry registered for %s by %s", pa.Plate, operatorID)
	r.reply(sender, msgEntryRegistered(pa.Plate, entry.EntryAt))
	r.backToMenu(sender)
}

// stageImage downloads the inbound photo into a temp file for the
// recognizer subprocess. The caller removes it when done.
func (r *Router) stageImage(msg transport.Message) (string, func(), error) {
	if msg.Media == nil {
		return "", nil, errors.New("image message without media accessor")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	data, err := msg.Media(ctx)
	if err != nil {
		return "", nil, err
	}

	f, err := os.CreateTemp("", "plate-*.jpg")
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// lookupVehicle fetches the vehicle and its linked driver for display.
// Both are best-effort; a lookup fault just renders less detail.
func (r *Router) lookupVehicle(plate string) (*models.Vehicle, *models.Driver) {
	vehicle, err := r.store.GetVehicleByPlate(plate)
	if err != nil {
		return nil, nil
	}
	if vehicle.DriverID == "" {
		return vehicle, nil
	}
	driver, err := r.store.GetDriverByID(vehicle.DriverID)
	if err != nil {
		return vehicle, nil
	}
	return vehicle, driver
}
