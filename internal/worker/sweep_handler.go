package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"pollroom/internal/cache"
)

// sweepGrace is how long past its deadline a room may linger in the
// cache before the periodic sweep drops it. The expiration scheduler
// normally evicts on the flip; this catches rooms that slipped past
// it, e.g. when a tick kept failing against the store.
const sweepGrace = 10 * time.Minute

// CacheSweepHandler evicts stale rooms from the live cache.
type CacheSweepHandler struct {
	rooms *cache.RoomCache
}

// NewCacheSweepHandler creates the handler.
func NewCacheSweepHandler(rooms *cache.RoomCache) *CacheSweepHandler {
	if rooms == nil {
		panic("RoomCache cannot be nil for CacheSweepHandler")
	}
	return &CacheSweepHandler{rooms: rooms}
}

// ProcessTask implements asynq.Handler.
func (h *CacheSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	now := time.Now()
	evicted := 0
	for _, roomID := range h.rooms.TrackedRooms() {
		snapshot, ok := h.rooms.Get(roomID)
		if !ok {
			// Tracked but never refreshed; a lock entry without state.
			h.rooms.Evict(roomID)
			evicted++
			continue
		}
		if !snapshot.IsActive || now.Sub(snapshot.ExpiresAt) > sweepGrace {
			h.rooms.Evict(roomID)
			evicted++
		}
	}

	if evicted > 0 {
		logCtx.WithField("evicted", evicted).Info("Cache sweep evicted stale rooms")
	} else {
		logCtx.Debug("Cache sweep found nothing to evict")
	}
	return nil
}
