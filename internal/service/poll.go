// Package service implements the poll-room business logic: room
// creation, the vote ledger, the lifecycle state machine and the
// cache-refresh transition driven by the expiration scheduler.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"pollroom/internal/cache"
	"pollroom/internal/domain"
	"pollroom/internal/repository"
)

// FinalizeEnqueuer schedules the background summary task for a closed
// room. Satisfied by tasks.Client; nil disables finalization.
type FinalizeEnqueuer interface {
	EnqueueFinalize(ctx context.Context, roomID string) error
}

// PollService owns every state transition of a poll room. All
// mutations of one room run under that room's lock from the RoomCache,
// which is what closes the duplicate-vote race window.
type PollService struct {
	pollRepo  repository.PollRepository
	codeGen   *RoomCodeGenerator
	rooms     *cache.RoomCache
	finalizer FinalizeEnqueuer

	pollTTL      time.Duration // lifetime of a new poll, expiresAt = createdAt + pollTTL
	storeTimeout time.Duration // upper bound on any single store call
}

// NewPollService creates a PollService. finalizer may be nil.
func NewPollService(
	pollRepo repository.PollRepository,
	codeGen *RoomCodeGenerator,
	rooms *cache.RoomCache,
	finalizer FinalizeEnqueuer,
	pollTTL time.Duration,
	storeTimeout time.Duration,
) *PollService {
	if pollRepo == nil {
		panic("PollRepository cannot be nil for PollService")
	}
	if codeGen == nil {
		panic("RoomCodeGenerator cannot be nil for PollService")
	}
	if rooms == nil {
		panic("RoomCache cannot be nil for PollService")
	}
	if pollTTL <= 0 {
		pollTTL = time.Hour
	}
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &PollService{
		pollRepo:     pollRepo,
		codeGen:      codeGen,
		rooms:        rooms,
		finalizer:    finalizer,
		pollTTL:      pollTTL,
		storeTimeout: storeTimeout,
	}
}

// storeCtx bounds a store call so a dead database surfaces as
// ErrStoreUnavailable instead of a hang.
func (s *PollService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// mapStoreErr translates repository failures into business errors.
func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrPollNotFound):
		return ErrRoomNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrStoreUnavailable
	default:
		return ErrInternalServer
	}
}

// CreateRoom validates the poll data, mints a room code, persists the
// poll and tracks it in the cache. Returns the initial snapshot.
func (s *PollService) CreateRoom(ctx context.Context, question string, options []string, createdBy string) (*domain.RoomSnapshot, error) {
	logCtx := logrus.WithField("created_by", createdBy)

	if question == "" || len(options) < 2 || createdBy == "" {
		return nil, ErrInvalidPoll
	}
	seen := make(map[string]struct{}, len(options))
	for _, opt := range options {
		if opt == "" {
			return nil, ErrInvalidPoll
		}
		if _, dup := seen[opt]; dup {
			return nil, ErrInvalidPoll
		}
		seen[opt] = struct{}{}
	}

	// The generator collision-checks, but a concurrent create can
	// still win the code between check and insert; the store's unique
	// index reports that as a conflict and we draw again.
	const createAttempts = 3
	var poll *domain.Poll
	for attempt := 1; attempt <= createAttempts; attempt++ {
		storeCtx, cancel := s.storeCtx(ctx)
		roomID, err := s.codeGen.Generate(storeCtx)
		cancel()
		if err != nil {
			if errors.Is(err, ErrCodeSpaceExhausted) {
				return nil, err
			}
			logCtx.WithError(err).Error("Failed to generate room code")
			return nil, mapStoreErr(err)
		}

		now := time.Now().UTC()
		poll = &domain.Poll{
			RoomID:    roomID,
			Question:  question,
			CreatedBy: createdBy,
			ExpiresAt: now.Add(s.pollTTL),
			IsActive:  true,
		}
		if err := poll.SetOptions(options); err != nil {
			logCtx.WithError(err).Error("Failed to encode poll options")
			return nil, ErrInternalServer
		}

		storeCtx, cancel = s.storeCtx(ctx)
		err = s.pollRepo.Create(storeCtx, poll)
		cancel()
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrDuplicateEntry) && attempt < createAttempts {
			logCtx.WithField("room_id", roomID).Warn("Room code raced another create, drawing a new one")
			poll = nil
			continue
		}
		logCtx.WithError(err).Error("Failed to persist new poll")
		return nil, mapStoreErr(err)
	}
	if poll == nil {
		return nil, ErrCodeSpaceExhausted
	}

	snapshot, err := domain.NewRoomSnapshot(poll, time.Now())
	if err != nil {
		logCtx.WithError(err).Error("Failed to project new poll")
		return nil, ErrInternalServer
	}
	s.rooms.Swap(poll.RoomID, snapshot)

	logCtx.WithField("room_id", poll.RoomID).Info("Room created")
	return snapshot, nil
}

// GetRoomState returns the room's current snapshot: the cached one
// when the room is live, otherwise rebuilt from the store. This is the
// pull path clients use on join and on reconnect.
func (s *PollService) GetRoomState(ctx context.Context, roomID string) (*domain.RoomSnapshot, error) {
	if snapshot, ok := s.rooms.Get(roomID); ok {
		return snapshot, nil
	}
	return s.loadSnapshot(ctx, roomID)
}

// loadSnapshot rebuilds a snapshot from the store. Open rooms start
// being tracked again (first join after a restart, or a cache miss);
// closed rooms stay untracked so the scheduler does not sweep them.
func (s *PollService) loadSnapshot(ctx context.Context, roomID string) (*domain.RoomSnapshot, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	poll, err := s.pollRepo.FindByRoomID(storeCtx, roomID)
	if err != nil {
		if !errors.Is(err, repository.ErrPollNotFound) {
			logrus.WithField("room_id", roomID).WithError(err).Error("Failed to load poll")
		}
		return nil, mapStoreErr(err)
	}

	now := time.Now()
	snapshot, err := domain.NewRoomSnapshot(poll, now)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to project poll")
		return nil, ErrInternalServer
	}
	if poll.IsOpen(now) {
		s.rooms.Swap(roomID, snapshot)
	}
	return snapshot, nil
}

// CastVote is the vote ledger. Preconditions are checked in order,
// each with its own failure: room exists, room open, option index in
// bounds, user has not voted. The check and the append run as one
// atomic unit under the room lock; the store's unique index backstops
// a missed race. On success the refreshed snapshot is returned.
func (s *PollService) CastVote(ctx context.Context, roomID, userID, username string, optionIndex int) (*domain.RoomSnapshot, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
	})

	if roomID == "" || userID == "" {
		return nil, ErrInvalidVote
	}

	mu := s.rooms.RoomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	storeCtx, cancel := s.storeCtx(ctx)
	poll, err := s.pollRepo.FindByRoomID(storeCtx, roomID)
	cancel()
	if err != nil {
		if !errors.Is(err, repository.ErrPollNotFound) {
			logCtx.WithError(err).Error("CastVote: failed to load poll")
		}
		return nil, mapStoreErr(err)
	}

	now := time.Now()
	if !poll.IsOpen(now) {
		return nil, ErrPollExpired
	}

	options, err := poll.ParseOptions()
	if err != nil {
		logCtx.WithError(err).Error("CastVote: failed to decode options")
		return nil, ErrInternalServer
	}
	if optionIndex < 0 || optionIndex >= len(options) {
		return nil, ErrInvalidVote
	}

	if poll.VoteBy(userID) != nil {
		return nil, ErrDuplicateVote
	}

	vote := &domain.Vote{
		UserID:      userID,
		Username:    username,
		OptionIndex: optionIndex,
		Timestamp:   now,
	}
	storeCtx, cancel = s.storeCtx(ctx)
	err = s.pollRepo.AppendVote(storeCtx, poll.ID, vote)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateVote) {
			// Unique index fired: the in-memory check missed a write
			// from another process. Same outcome for the caller.
			return nil, ErrDuplicateVote
		}
		logCtx.WithError(err).Error("CastVote: failed to append vote")
		return nil, mapStoreErr(err)
	}

	poll.Votes = append(poll.Votes, *vote)
	snapshot, err := domain.NewRoomSnapshot(poll, now)
	if err != nil {
		logCtx.WithError(err).Error("CastVote: failed to project poll")
		return nil, ErrInternalServer
	}
	s.rooms.SwapLocked(roomID, snapshot)

	logCtx.WithField("option_index", optionIndex).Info("Vote recorded")
	return snapshot, nil
}

// CloseRoom closes a poll ahead of its deadline. Idempotent: closing a
// closed room succeeds without a second flip. Returns the refreshed
// snapshot and whether this call performed the active→closed flip.
func (s *PollService) CloseRoom(ctx context.Context, roomID string) (*domain.RoomSnapshot, bool, error) {
	logCtx := logrus.WithField("room_id", roomID)

	mu := s.rooms.RoomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	storeCtx, cancel := s.storeCtx(ctx)
	poll, err := s.pollRepo.FindByRoomID(storeCtx, roomID)
	cancel()
	if err != nil {
		if !errors.Is(err, repository.ErrPollNotFound) {
			logCtx.WithError(err).Error("CloseRoom: failed to load poll")
		}
		return nil, false, mapStoreErr(err)
	}

	flipped := poll.IsActive
	if flipped {
		storeCtx, cancel = s.storeCtx(ctx)
		err = s.pollRepo.SetActive(storeCtx, roomID, false)
		cancel()
		if err != nil {
			logCtx.WithError(err).Error("CloseRoom: failed to persist close")
			return nil, false, mapStoreErr(err)
		}
		poll.IsActive = false
	}

	snapshot, err := domain.NewRoomSnapshot(poll, time.Now())
	if err != nil {
		logCtx.WithError(err).Error("CloseRoom: failed to project poll")
		return nil, false, ErrInternalServer
	}
	s.rooms.SwapLocked(roomID, snapshot)

	if flipped {
		logCtx.Info("Room closed manually")
		s.enqueueFinalize(roomID)
	}
	return snapshot, flipped, nil
}

// Reconcile is the scheduler's per-tick transition for one room: it
// re-reads the poll, persists the expiry flip when the deadline has
// passed, and swaps in a fresh snapshot. Returns the snapshot and
// whether isActive flipped true→false during this refresh. On store
// failure the previous snapshot stays in place (last known good).
func (s *PollService) Reconcile(ctx context.Context, roomID string) (*domain.RoomSnapshot, bool, error) {
	logCtx := logrus.WithField("room_id", roomID)

	mu := s.rooms.RoomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	storeCtx, cancel := s.storeCtx(ctx)
	poll, err := s.pollRepo.FindByRoomID(storeCtx, roomID)
	cancel()
	if err != nil {
		return nil, false, mapStoreErr(err)
	}

	now := time.Now()
	flipped := false
	if poll.IsActive && !now.Before(poll.ExpiresAt) {
		// Persist before swapping the snapshot: if the write fails the
		// old snapshot stays and the next tick re-detects the flip.
		storeCtx, cancel = s.storeCtx(ctx)
		err = s.pollRepo.SetActive(storeCtx, roomID, false)
		cancel()
		if err != nil {
			logCtx.WithError(err).Error("Reconcile: failed to persist expiry")
			return nil, false, mapStoreErr(err)
		}
		poll.IsActive = false
		flipped = true
	}

	snapshot, err := domain.NewRoomSnapshot(poll, now)
	if err != nil {
		logCtx.WithError(err).Error("Reconcile: failed to project poll")
		return nil, false, ErrInternalServer
	}
	s.rooms.SwapLocked(roomID, snapshot)

	if flipped {
		logCtx.Info("Poll expired")
		s.enqueueFinalize(roomID)
	}
	return snapshot, flipped, nil
}

// EvictRoom drops a room from the live cache.
func (s *PollService) EvictRoom(roomID string) {
	s.rooms.Evict(roomID)
}

// TrackedRooms lists the rooms the scheduler should sweep.
func (s *PollService) TrackedRooms() []string {
	return s.rooms.TrackedRooms()
}

// enqueueFinalize hands the closed room to the background summarizer.
// Failures are logged only; the close itself already happened.
func (s *PollService) enqueueFinalize(roomID string) {
	if s.finalizer == nil {
		return
	}
	if err := s.finalizer.EnqueueFinalize(context.Background(), roomID); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).
			Warn("Failed to enqueue finalize task")
	}
}
