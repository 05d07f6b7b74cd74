package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pollroom/internal/cache"
	"pollroom/internal/domain"
	"pollroom/internal/repository"
	"pollroom/internal/repository/mocks"
	"pollroom/internal/scheduler"
	"pollroom/internal/service"
)

// fakePublisher records fan-out calls.
type fakePublisher struct {
	mu      sync.Mutex
	updates []string
	expired []string
}

func (f *fakePublisher) PublishRoomUpdate(roomID string, _ *domain.RoomSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, roomID)
}

func (f *fakePublisher) PublishPollExpired(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, roomID)
}

func (f *fakePublisher) updatesFor(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.updates {
		if id == roomID {
			n++
		}
	}
	return n
}

func (f *fakePublisher) expiredFor(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.expired {
		if id == roomID {
			n++
		}
	}
	return n
}

func newSweepFixture(mockPollRepo *mocks.PollRepository) (*service.PollService, *fakePublisher, *scheduler.Scheduler) {
	polls := service.NewPollService(
		mockPollRepo,
		service.NewRoomCodeGenerator(mockPollRepo),
		cache.NewRoomCache(),
		nil,
		time.Hour,
		time.Second,
	)
	pub := &fakePublisher{}
	return polls, pub, scheduler.NewScheduler(polls, pub, time.Second)
}

func trackRoom(t *testing.T, polls *service.PollService, mockPollRepo *mocks.PollRepository, poll *domain.Poll) {
	t.Helper()
	mockPollRepo.On("FindByRoomID", mock.Anything, poll.RoomID).Return(poll, nil)
	_, err := polls.GetRoomState(context.Background(), poll.RoomID)
	require.NoError(t, err)
	require.Contains(t, polls.TrackedRooms(), poll.RoomID)
}

func freshPoll(roomID string, expiresAt time.Time) *domain.Poll {
	poll := &domain.Poll{
		ID:        7,
		RoomID:    roomID,
		Question:  "q",
		CreatedBy: "user_x",
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
	_ = poll.SetOptions([]string{"A", "B"})
	return poll
}

func TestScheduler_Sweep_BroadcastsEveryTick(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	polls, pub, sched := newSweepFixture(mockPollRepo)

	trackRoom(t, polls, mockPollRepo, freshPoll("ROOM01", time.Now().Add(time.Hour)))

	sched.Sweep(context.Background())
	sched.Sweep(context.Background())

	// An open room is re-broadcast on every tick and never expires.
	assert.Equal(t, 2, pub.updatesFor("ROOM01"))
	assert.Zero(t, pub.expiredFor("ROOM01"))
	assert.Contains(t, polls.TrackedRooms(), "ROOM01")
}

func TestScheduler_Sweep_ExpiresRoomExactlyOnce(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	polls, pub, sched := newSweepFixture(mockPollRepo)

	// Tracked while open, then the deadline passes before the sweep.
	poll := freshPoll("ROOM01", time.Now().Add(30*time.Millisecond))
	trackRoom(t, polls, mockPollRepo, poll)
	mockPollRepo.On("SetActive", mock.Anything, "ROOM01", false).Return(nil).Once()
	time.Sleep(50 * time.Millisecond)

	sched.Sweep(context.Background())

	assert.Equal(t, 1, pub.updatesFor("ROOM01"), "the final tally is broadcast before the expiry notice")
	assert.Equal(t, 1, pub.expiredFor("ROOM01"))
	assert.NotContains(t, polls.TrackedRooms(), "ROOM01", "expired rooms leave the sweep set")

	// Later sweeps see no tracked rooms, so no second notice.
	sched.Sweep(context.Background())
	assert.Equal(t, 1, pub.expiredFor("ROOM01"))
	mockPollRepo.AssertNumberOfCalls(t, "SetActive", 1)
}

func TestScheduler_Sweep_EvictsVanishedRoom(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	polls, pub, sched := newSweepFixture(mockPollRepo)

	poll := freshPoll("ROOM01", time.Now().Add(time.Hour))
	mockPollRepo.On("FindByRoomID", mock.Anything, "ROOM01").Return(poll, nil).Once()
	_, err := polls.GetRoomState(context.Background(), "ROOM01")
	require.NoError(t, err)

	// The poll disappears from the store between ticks.
	mockPollRepo.On("FindByRoomID", mock.Anything, "ROOM01").Return(nil, repository.ErrPollNotFound)

	sched.Sweep(context.Background())

	assert.Zero(t, pub.updatesFor("ROOM01"))
	assert.NotContains(t, polls.TrackedRooms(), "ROOM01")
}

func TestScheduler_Sweep_KeepsRoomOnTransientStoreFailure(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	polls, pub, sched := newSweepFixture(mockPollRepo)

	poll := freshPoll("ROOM01", time.Now().Add(time.Hour))
	trackRoom(t, polls, mockPollRepo, poll)

	// Wipe the recorded expectations and fail the next read.
	mockPollRepo.ExpectedCalls = nil
	mockPollRepo.On("FindByRoomID", mock.Anything, "ROOM01").Return(nil, context.DeadlineExceeded)

	sched.Sweep(context.Background())

	assert.Zero(t, pub.updatesFor("ROOM01"), "no broadcast from a failed refresh")
	assert.Contains(t, polls.TrackedRooms(), "ROOM01", "the room is retried next tick")
}

func TestScheduler_RunAndStop(t *testing.T) {
	mockPollRepo := new(mocks.PollRepository)
	polls, pub, _ := newSweepFixture(mockPollRepo)
	sched := scheduler.NewScheduler(polls, pub, 10*time.Millisecond)

	trackRoom(t, polls, mockPollRepo, freshPoll("ROOM01", time.Now().Add(time.Hour)))

	go sched.Run()
	time.Sleep(60 * time.Millisecond)
	sched.Stop()

	assert.GreaterOrEqual(t, pub.updatesFor("ROOM01"), 2, "the loop ticks on its interval")
}
