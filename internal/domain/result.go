package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PollResult is the summary row written by the finalize worker once a
// poll closes. One row per room; re-finalizing an already-summarized
// room overwrites the same row.
type PollResult struct {
	ID            uint      `gorm:"primaryKey"`
	RoomID        string    `gorm:"uniqueIndex;size:16;not null"`
	Question      string    `gorm:"type:text;not null"`
	Counts        string    `gorm:"type:text;not null"` // JSON array, same order as Poll.Options
	TotalVotes    int       `gorm:"not null"`
	WinningOption string    `gorm:"type:text"` // empty on a tie or a zero-vote poll
	ClosedAt      time.Time `gorm:"index;not null"`
}

// SetCounts encodes the per-option tallies into the Counts column.
func (r *PollResult) SetCounts(counts []int) error {
	bytes, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal result counts: %w", err)
	}
	r.Counts = string(bytes)
	return nil
}

// ParseCounts decodes the Counts column.
func (r *PollResult) ParseCounts() ([]int, error) {
	var counts []int
	if err := json.Unmarshal([]byte(r.Counts), &counts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result counts: %w", err)
	}
	return counts, nil
}
