package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pollroom/internal/domain"
	"pollroom/internal/repository"
)

// GormResultRepository stores finalize summaries in MySQL.
type GormResultRepository struct {
	db *gorm.DB
}

// NewGormResultRepository creates a GormResultRepository.
func NewGormResultRepository(db *gorm.DB) *GormResultRepository {
	if db == nil {
		panic("database connection cannot be nil for GormResultRepository")
	}
	return &GormResultRepository{db: db}
}

// Upsert writes the summary row keyed by room id. The finalize task
// may be retried, so a second write replaces the first.
func (r *GormResultRepository) Upsert(ctx context.Context, result *domain.PollResult) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"question", "counts", "total_votes", "winning_option", "closed_at"}),
		}).
		Create(result).Error
	if err != nil {
		return fmt.Errorf("gorm: upsert result for room %q: %w", result.RoomID, err)
	}
	return nil
}

func (r *GormResultRepository) FindByRoomID(ctx context.Context, roomID string) (*domain.PollResult, error) {
	var result domain.PollResult
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("gorm: find result for room %q: %w", roomID, err)
	}
	return &result, nil
}
