// Package mocks provides hand-written testify mocks for the
// repository interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pollroom/internal/domain"
)

// PollRepository mocks repository.PollRepository.
type PollRepository struct {
	mock.Mock
}

func (m *PollRepository) FindByRoomID(ctx context.Context, roomID string) (*domain.Poll, error) {
	args := m.Called(ctx, roomID)
	if poll, ok := args.Get(0).(*domain.Poll); ok {
		return poll, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PollRepository) Create(ctx context.Context, poll *domain.Poll) error {
	args := m.Called(ctx, poll)
	return args.Error(0)
}

func (m *PollRepository) AppendVote(ctx context.Context, pollID uint, vote *domain.Vote) error {
	args := m.Called(ctx, pollID, vote)
	return args.Error(0)
}

func (m *PollRepository) SetActive(ctx context.Context, roomID string, active bool) error {
	args := m.Called(ctx, roomID, active)
	return args.Error(0)
}

func (m *PollRepository) RoomIDExists(ctx context.Context, roomID string) (bool, error) {
	args := m.Called(ctx, roomID)
	return args.Bool(0), args.Error(1)
}
