package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollroom/internal/domain"
)

func newTestPoll(t *testing.T, options []string) *domain.Poll {
	t.Helper()
	poll := &domain.Poll{
		ID:        1,
		RoomID:    "7KQX2A",
		Question:  "Cats or dogs?",
		CreatedBy: "user_creator",
		ExpiresAt: time.Now().Add(time.Hour),
		IsActive:  true,
	}
	require.NoError(t, poll.SetOptions(options))
	return poll
}

func TestPoll_OptionsRoundTrip(t *testing.T) {
	poll := newTestPoll(t, []string{"Cats", "Dogs"})

	opts, err := poll.ParseOptions()
	require.NoError(t, err)
	assert.Equal(t, []string{"Cats", "Dogs"}, opts)
}

func TestPoll_ParseOptions_Corrupt(t *testing.T) {
	poll := &domain.Poll{Options: "not-json"}

	_, err := poll.ParseOptions()
	assert.Error(t, err)
}

func TestPoll_VoteCounts(t *testing.T) {
	poll := newTestPoll(t, []string{"Cats", "Dogs", "Birds"})
	poll.Votes = []domain.Vote{
		{UserID: "user_a", OptionIndex: 0},
		{UserID: "user_b", OptionIndex: 1},
		{UserID: "user_c", OptionIndex: 0},
	}

	counts := poll.VoteCounts(3)
	assert.Equal(t, []int{2, 1, 0}, counts, "options nobody picked should still appear as zero")
}

func TestPoll_VoteCounts_SkipsOutOfRangeRows(t *testing.T) {
	poll := newTestPoll(t, []string{"Yes", "No"})
	poll.Votes = []domain.Vote{
		{UserID: "user_a", OptionIndex: 0},
		{UserID: "user_b", OptionIndex: 7},
		{UserID: "user_c", OptionIndex: -1},
	}

	counts := poll.VoteCounts(2)
	assert.Equal(t, []int{1, 0}, counts)
}

func TestPoll_IsOpen(t *testing.T) {
	now := time.Now()
	poll := newTestPoll(t, []string{"A", "B"})

	poll.ExpiresAt = now.Add(time.Minute)
	assert.True(t, poll.IsOpen(now))

	// Boundary: the exact deadline instant is closed.
	poll.ExpiresAt = now
	assert.False(t, poll.IsOpen(now))

	poll.ExpiresAt = now.Add(time.Minute)
	poll.IsActive = false
	assert.False(t, poll.IsOpen(now), "a manually closed poll is closed even before its deadline")
}

func TestPoll_VoteBy(t *testing.T) {
	poll := newTestPoll(t, []string{"A", "B"})
	poll.Votes = []domain.Vote{
		{UserID: "user_a", OptionIndex: 0},
		{UserID: "user_b", OptionIndex: 1},
	}

	vote := poll.VoteBy("user_b")
	require.NotNil(t, vote)
	assert.Equal(t, 1, vote.OptionIndex)

	assert.Nil(t, poll.VoteBy("user_stranger"))
}

func TestNewRoomSnapshot(t *testing.T) {
	now := time.Now()
	poll := newTestPoll(t, []string{"Cats", "Dogs"})
	poll.Votes = []domain.Vote{
		{UserID: "user_a", Username: "alice", OptionIndex: 0},
		{UserID: "user_b", Username: "bob", OptionIndex: 0},
		{UserID: "user_c", Username: "carol", OptionIndex: 1},
	}

	snapshot, err := domain.NewRoomSnapshot(poll, now)
	require.NoError(t, err)

	assert.Equal(t, "7KQX2A", snapshot.ID)
	assert.Equal(t, "Cats or dogs?", snapshot.Question)
	assert.Equal(t, []string{"Cats", "Dogs"}, snapshot.Options)
	assert.Equal(t, []int{2, 1}, snapshot.VoteCounts)
	assert.Len(t, snapshot.Voters, 3)
	assert.Equal(t, "alice", snapshot.Voters[0].Username)
	assert.True(t, snapshot.IsActive)
	assert.Equal(t, 3, snapshot.TotalVotes())
}

func TestNewRoomSnapshot_FoldsExpiryIntoIsActive(t *testing.T) {
	now := time.Now()
	poll := newTestPoll(t, []string{"A", "B"})
	poll.ExpiresAt = now.Add(-time.Second)

	// The stored flag has not flipped yet.
	require.True(t, poll.IsActive)

	snapshot, err := domain.NewRoomSnapshot(poll, now)
	require.NoError(t, err)
	assert.False(t, snapshot.IsActive, "a snapshot past the deadline must read closed")
}

func TestNewRoomSnapshot_CorruptOptions(t *testing.T) {
	poll := &domain.Poll{RoomID: "BAD001", Options: "{"}

	_, err := domain.NewRoomSnapshot(poll, time.Now())
	assert.Error(t, err)
}
