package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Poll is the durable record of one poll room. Options are stored as a
// JSON array in insertion order; a vote's OptionIndex points into that
// order, so the column is never rewritten after creation.
type Poll struct {
	ID        uint      `gorm:"primaryKey"`
	RoomID    string    `gorm:"uniqueIndex;size:16;not null"` // short join code, e.g. "7KQX2A"
	Question  string    `gorm:"type:text;not null"`
	Options   string    `gorm:"type:text;not null"` // JSON array of option labels
	CreatedBy string    `gorm:"size:64;index;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	ExpiresAt time.Time `gorm:"index;not null"`
	IsActive  bool      `gorm:"not null;default:true"`

	Votes []Vote `gorm:"foreignKey:PollID"`
}

// Vote is one participant's choice. Immutable once appended; the
// composite unique index is the storage-level guarantee that a user
// votes at most once per poll.
type Vote struct {
	ID          uint      `gorm:"primaryKey"`
	PollID      uint      `gorm:"not null;uniqueIndex:idx_poll_voter,priority:1"`
	UserID      string    `gorm:"size:64;not null;uniqueIndex:idx_poll_voter,priority:2"`
	Username    string    `gorm:"size:191;not null"` // snapshot at vote time, not re-synced
	OptionIndex int       `gorm:"not null"`
	Timestamp   time.Time `gorm:"autoCreateTime"`
}

// ParseOptions decodes the Options column into the ordered label list.
func (p *Poll) ParseOptions() ([]string, error) {
	var opts []string
	if err := json.Unmarshal([]byte(p.Options), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal poll options: %w", err)
	}
	return opts, nil
}

// SetOptions encodes the ordered label list into the Options column.
func (p *Poll) SetOptions(opts []string) error {
	bytes, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to marshal poll options: %w", err)
	}
	p.Options = string(bytes)
	return nil
}

// VoteCounts tallies votes per option position, zero-filled for options
// nobody picked. Votes with an out-of-range index are skipped; they
// cannot be appended through the ledger, so a skip only ever hides a
// corrupt row instead of panicking on it.
func (p *Poll) VoteCounts(optionCount int) []int {
	counts := make([]int, optionCount)
	for _, v := range p.Votes {
		if v.OptionIndex >= 0 && v.OptionIndex < optionCount {
			counts[v.OptionIndex]++
		}
	}
	return counts
}

// IsOpen reports whether the poll accepts votes at the given instant.
func (p *Poll) IsOpen(now time.Time) bool {
	return p.IsActive && now.Before(p.ExpiresAt)
}

// VoteBy returns the vote cast by userID, or nil.
func (p *Poll) VoteBy(userID string) *Vote {
	for i := range p.Votes {
		if p.Votes[i].UserID == userID {
			return &p.Votes[i]
		}
	}
	return nil
}
