package repository

import (
	"context"

	"pollroom/internal/domain"
)

// PollRepository is the durable poll store.
type PollRepository interface {
	// FindByRoomID loads a poll with its votes.
	// Returns ErrPollNotFound if no poll has that room code.
	FindByRoomID(ctx context.Context, roomID string) (*domain.Poll, error)

	// Create persists a new poll. Returns ErrDuplicateEntry if the
	// room code is already taken.
	Create(ctx context.Context, poll *domain.Poll) error

	// AppendVote appends one vote to a poll. Returns ErrDuplicateVote
	// if the user already voted in that poll; the uniqueness check is
	// enforced by the store itself, not by the caller.
	AppendVote(ctx context.Context, pollID uint, vote *domain.Vote) error

	// SetActive flips the poll's active flag. Setting the current
	// value is a no-op success.
	SetActive(ctx context.Context, roomID string, active bool) error

	// RoomIDExists reports whether a room code is taken. Used by the
	// code generator's collision check.
	RoomIDExists(ctx context.Context, roomID string) (bool, error)
}
