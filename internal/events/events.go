package events

import (
	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
)

// TopicAudit carries operator actions to the audit sink.
const TopicAudit = "audit:record"

// Bus decouples chat handlers from side channels like the audit trail:
// a slow database write never delays a WhatsApp reply.
type Bus struct {
	bus evbus.Bus
}

// NewBus creates the process-wide event bus
func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

// Audit publishes one operator action. userID is the acting operator,
// detail a short human-readable summary (plate, recipient, target).
func (b *Bus) Audit(action, userID, detail string) {
	b.bus.Publish(TopicAudit, action, userID, detail)
}

// StartAuditRecorder wires the storage sink. Deliveries are async;
// failed writes are logged and dropped, the trail is best-effort.
func (b *Bus) StartAuditRecorder(store storage.Store) error {
	return b.bus.SubscribeAsync(TopicAudit, func(action, userID, detail string) {
		entry := &models.AuditLog{
			UserID: userID,
			Action: action,
			Detail: detail,
		}
		if err := store.CreateAuditLog(entry); err != nil {
			zap.S().Warnf("⚠️ Audit write failed (%s by %s): %v", action, userID, err)
		}
	}, false)
}

// Wait blocks until queued async deliveries have drained. Called on
// shutdown so the last audit rows make it to storage.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}
