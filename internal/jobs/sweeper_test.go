package jobs

import (
	"testing"
	"time"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/services"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
)

func TestSweepCredentialsRemovesExpired(t *testing.T) {
	t.Parallel()
	store := storage.NewMemoryStore()
	now := time.Now()

	store.UpsertAuthCode(&models.AuthCode{UserID: "USR00001", Code: "111111", ExpiresAt: now.Add(-time.Minute)})
	store.UpsertAuthCode(&models.AuthCode{UserID: "USR00002", Code: "222222", ExpiresAt: now.Add(time.Hour)})
	store.CreateSession(&models.Session{SessionID: "dead", ExpiresAt: now.Add(-time.Minute)})
	store.CreateSession(&models.Session{SessionID: "live", ExpiresAt: now.Add(time.Hour)})

	job := NewSweeperJob(store, services.NewConversationStore(), time.Hour)
	job.sweepCredentials()

	if _, err := store.GetAuthCodeByUserID("USR00001"); err == nil {
		t.Error("expired auth code survived the sweep")
	}
	if _, err := store.GetAuthCodeByUserID("USR00002"); err != nil {
		t.Errorf("live auth code swept: %v", err)
	}
	if _, err := store.GetSessionByID("dead"); err == nil {
		t.Error("expired session survived the sweep")
	}
	if _, err := store.GetSessionByID("live"); err != nil {
		t.Errorf("live session swept: %v", err)
	}
}

func TestSweepConversationsDropsStaleGuests(t *testing.T) {
	t.Parallel()
	conversations := services.NewConversationStore()
	conversations.Ensure("guest")
	conversations.Ensure("operator")
	conversations.UpdateContext("operator", func(c *services.Context) { c.SessionID = "sess-1" })

	// Zero idle cutoff: anything unauthenticated counts as stale once
	// the clock has moved at all.
	time.Sleep(10 * time.Millisecond)
	job := NewSweeperJob(storage.NewMemoryStore(), conversations, 0)
	job.sweepConversations()

	if _, ok := conversations.Get("guest"); ok {
		t.Error("stale guest conversation survived the sweep")
	}
	if _, ok := conversations.Get("operator"); !ok {
		t.Error("authenticated conversation was swept")
	}
}

func TestSweeperStartStop(t *testing.T) {
	t.Parallel()
	job := NewSweeperJob(storage.NewMemoryStore(), services.NewConversationStore(), time.Hour)

	job.Start()
	// Second Start must not double-schedule.
	job.Start()
	job.Stop()
}
