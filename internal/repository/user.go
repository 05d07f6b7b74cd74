package repository

import (
	"context"

	"pollroom/internal/domain"
)

// UserRepository stores guest identities.
type UserRepository interface {
	// FindByUsername returns ErrUserNotFound if no user has that name.
	FindByUsername(ctx context.Context, username string) (*domain.User, error)

	// FindByUserID looks a user up by the opaque public id.
	FindByUserID(ctx context.Context, userID string) (*domain.User, error)

	// Save creates the user, or updates it when ID is already set.
	Save(ctx context.Context, user *domain.User) error
}
