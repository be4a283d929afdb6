package jobs

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/services"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
)

// SweeperJob periodically removes expired auth codes and sessions and
// drops conversation records stuck before login. Authenticated
// conversations are never swept; their sessions expire lazily on use.
type SweeperJob struct {
	store         storage.Store
	conversations services.ConversationStore
	idleCutoff    time.Duration
	cron          *cron.Cron
}

// NewSweeperJob creates the background sweeper
func NewSweeperJob(store storage.Store, conversations services.ConversationStore, idleCutoff time.Duration) *SweeperJob {
	return &SweeperJob{
		store:         store,
		conversations: conversations,
		idleCutoff:    idleCutoff,
	}
}

// Start schedules the sweeps.
func (j *SweeperJob) Start() {
	if j.cron != nil {
		return
	}
	j.cron = cron.New()
	j.cron.AddFunc("@every 10m", j.sweepCredentials)
	j.cron.AddFunc("@hourly", j.sweepConversations)
	j.cron.Start()
	zap.S().Info("🧹 Background sweeper started")
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (j *SweeperJob) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	zap.S().Info("🧹 Background sweeper stopped")
}

func (j *SweeperJob) sweepCredentials() {
	now := time.Now()

	if n, err := j.store.DeleteExpiredAuthCodes(now); err != nil {
		zap.S().Warnf("⚠️ Auth code sweep failed: %v", err)
	} else if n > 0 {
		zap.S().Infof("🧹 Removed %d expired auth codes", n)
	}

	if n, err := j.store.DeleteExpiredSessions(now); err != nil {
		zap.S().Warnf("⚠️ Session sweep failed: %v", err)
	} else if n > 0 {
		zap.S().Infof("🧹 Removed %d expired sessions", n)
	}
}

func (j *SweeperJob) sweepConversations() {
	cutoff := time.Now().Add(-j.idleCutoff)
	stale := j.conversations.StaleUnauthenticated(cutoff)
	for _, key := range stale {
		j.conversations.Clear(key)
	}
	if len(stale) > 0 {
		zap.S().Infof("🧹 Dropped %d stale unauthenticated conversations", len(stale))
	}
}
