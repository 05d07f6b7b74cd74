package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pollroom/internal/domain"
)

// ResultRepository mocks repository.ResultRepository.
type ResultRepository struct {
	mock.Mock
}

func (m *ResultRepository) Upsert(ctx context.Context, result *domain.PollResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *ResultRepository) FindByRoomID(ctx context.Context, roomID string) (*domain.PollResult, error) {
	args := m.Called(ctx, roomID)
	if result, ok := args.Get(0).(*domain.PollResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}
