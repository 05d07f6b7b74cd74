package domain

import (
	"time"

	"github.com/samber/lo"
)

// Voter is the participant-list projection of one vote.
type Voter struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	OptionIndex int    `json:"optionIndex"`
}

// RoomSnapshot is the derived, broadcastable view of a room. It is
// rebuilt from the Poll on every mutation or scheduler tick and always
// replaced wholesale, never mutated in place. The JSON field names are
// the wire format of the room_update event.
type RoomSnapshot struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Options    []string  `json:"options"`
	VoteCounts []int     `json:"votes"`
	Voters     []Voter   `json:"voters"`
	ExpiresAt  time.Time `json:"expiresAt"`
	IsActive   bool      `json:"isActive"`
}

// NewRoomSnapshot projects a Poll into its broadcastable state as of
// the given instant. IsActive folds in expiry, so a snapshot of a poll
// past its deadline reads closed even before the transition is
// persisted.
func NewRoomSnapshot(poll *Poll, now time.Time) (*RoomSnapshot, error) {
	options, err := poll.ParseOptions()
	if err != nil {
		return nil, err
	}

	voters := lo.Map(poll.Votes, func(v Vote, _ int) Voter {
		return Voter{UserID: v.UserID, Username: v.Username, OptionIndex: v.OptionIndex}
	})

	return &RoomSnapshot{
		ID:         poll.RoomID,
		Question:   poll.Question,
		Options:    options,
		VoteCounts: poll.VoteCounts(len(options)),
		Voters:     voters,
		ExpiresAt:  poll.ExpiresAt,
		IsActive:   poll.IsOpen(now),
	}, nil
}

// TotalVotes is the sum of the per-option counts.
func (s *RoomSnapshot) TotalVotes() int {
	return lo.Sum(s.VoteCounts)
}
