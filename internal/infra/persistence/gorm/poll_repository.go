// Package gormpersistence implements the repository interfaces on
// GORM over MySQL.
package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"pollroom/internal/domain"
	"pollroom/internal/repository"
)

// GormPollRepository is the PollRepository implementation backed by
// MySQL.
type GormPollRepository struct {
	db *gorm.DB
}

// NewGormPollRepository creates a GormPollRepository.
func NewGormPollRepository(db *gorm.DB) *GormPollRepository {
	if db == nil {
		panic("database connection cannot be nil for GormPollRepository")
	}
	return &GormPollRepository{db: db}
}

// FindByRoomID loads a poll and its votes in append order.
func (r *GormPollRepository) FindByRoomID(ctx context.Context, roomID string) (*domain.Poll, error) {
	var poll domain.Poll
	err := r.db.WithContext(ctx).
		Preload("Votes", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("room_id = ?", roomID).
		First(&poll).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrPollNotFound
		}
		return nil, fmt.Errorf("gorm: find poll by room id %q: %w", roomID, err)
	}
	return &poll, nil
}

// Create persists a new poll row.
func (r *GormPollRepository) Create(ctx context.Context, poll *domain.Poll) error {
	err := r.db.WithContext(ctx).Create(poll).Error
	if err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create poll %q: %w", poll.RoomID, err)
	}
	return nil
}

// AppendVote inserts one vote row. The `(poll_id, user_id)` unique
// index rejects a second vote from the same user regardless of what
// the caller checked beforehand.
func (r *GormPollRepository) AppendVote(ctx context.Context, pollID uint, vote *domain.Vote) error {
	vote.PollID = pollID
	err := r.db.WithContext(ctx).Create(vote).Error
	if err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateVote
		}
		return fmt.Errorf("gorm: append vote to poll %d: %w", pollID, err)
	}
	return nil
}

// SetActive flips the active flag. Writing the value it already has is
// a no-op success, which keeps close idempotent.
func (r *GormPollRepository) SetActive(ctx context.Context, roomID string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Poll{}).
		Where("room_id = ?", roomID).
		Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("gorm: set active for room %q: %w", roomID, result.Error)
	}
	if result.RowsAffected == 0 {
		// MySQL reports zero rows both for an absent room and for an
		// unchanged value; only the former is an error.
		exists, err := r.RoomIDExists(ctx, roomID)
		if err != nil {
			return err
		}
		if !exists {
			return repository.ErrPollNotFound
		}
	}
	return nil
}

// RoomIDExists reports whether a room code is taken.
func (r *GormPollRepository) RoomIDExists(ctx context.Context, roomID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Poll{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: check room id %q: %w", roomID, err)
	}
	return count > 0, nil
}

// isDuplicateEntry reports whether err is MySQL error 1062
// (duplicate key).
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
