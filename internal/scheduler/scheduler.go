// Package scheduler runs the periodic expiration sweep over every
// tracked room.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pollroom/internal/domain"
	"pollroom/internal/service"
)

// Publisher is the fan-out side the scheduler pushes refreshed state
// through. Satisfied by hub.Hub.
type Publisher interface {
	PublishRoomUpdate(roomID string, snapshot *domain.RoomSnapshot)
	PublishPollExpired(roomID string)
}

// Scheduler wakes on a fixed interval and reconciles every room in the
// cache: refreshed state is broadcast each tick, and the tick that
// observes an expiry persists it and emits poll_expired exactly once.
// It is the only periodic driver; it runs for the process lifetime.
type Scheduler struct {
	polls    *service.PollService
	pub      Publisher
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a Scheduler. The reference interval is one
// second; zero selects it.
func NewScheduler(polls *service.PollService, pub Publisher, interval time.Duration) *Scheduler {
	if polls == nil {
		panic("PollService cannot be nil for Scheduler")
	}
	if pub == nil {
		panic("Publisher cannot be nil for Scheduler")
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		polls:    polls,
		pub:      pub,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run drives the sweep loop. It should run in its own goroutine and
// returns only after Stop.
func (s *Scheduler) Run() {
	log := logrus.WithField("component", "expiration_scheduler")
	log.WithField("interval", s.interval).Info("Expiration scheduler running")

	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
		log.Info("Expiration scheduler stopped")
	}()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep reconciles every tracked room once. Rooms are swept
// concurrently with each other; the per-room lock inside Reconcile
// keeps ticks from overlapping a vote or another tick on the same
// room. A failed room is logged and skipped, never fatal to the sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	roomIDs := s.polls.TrackedRooms()
	if len(roomIDs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, roomID := range roomIDs {
		wg.Add(1)
		go func(roomID string) {
			defer wg.Done()
			s.tickRoom(ctx, roomID)
		}(roomID)
	}
	wg.Wait()
}

// tickRoom refreshes one room and fans the result out.
func (s *Scheduler) tickRoom(ctx context.Context, roomID string) {
	logCtx := logrus.WithField("room_id", roomID)

	snapshot, expired, err := s.polls.Reconcile(ctx, roomID)
	if err != nil {
		if err == service.ErrRoomNotFound {
			// Poll vanished from the store; nothing left to sweep.
			s.polls.EvictRoom(roomID)
			logCtx.Warn("Tracked room no longer in store, evicted")
			return
		}
		// Last-known-good snapshot stays in the cache; next tick
		// retries.
		logCtx.WithError(err).Warn("Room refresh failed, keeping previous snapshot")
		return
	}

	s.pub.PublishRoomUpdate(roomID, snapshot)
	if expired {
		s.pub.PublishPollExpired(roomID)
		// A closed room stops receiving live updates; late readers
		// pull it from the store instead.
		s.polls.EvictRoom(roomID)
		logCtx.Info("Expired room closed and evicted")
	}
}
