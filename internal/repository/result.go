package repository

import (
	"context"

	"pollroom/internal/domain"
)

// ResultRepository stores the per-room summary written after a poll
// closes.
type ResultRepository interface {
	// Upsert writes the summary row for result.RoomID, replacing a
	// previous one if the finalize task ran twice.
	Upsert(ctx context.Context, result *domain.PollResult) error

	// FindByRoomID returns ErrNotFound if the room was never finalized.
	FindByRoomID(ctx context.Context, roomID string) (*domain.PollResult, error)
}
