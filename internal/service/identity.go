package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pollroom/internal/domain"
	"pollroom/internal/repository"
)

// IdentityService issues guest identities: a username maps to a stable
// opaque user id and a signed token. Logging in with a known name
// returns the same identity; there are no passwords.
type IdentityService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	jwtExpiry time.Duration
}

// NewIdentityService creates an IdentityService.
func NewIdentityService(userRepo repository.UserRepository, jwtSecretKey string, jwtExpiryHours int) (*IdentityService, error) {
	if userRepo == nil {
		panic("UserRepository cannot be nil for IdentityService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &IdentityService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecretKey),
		jwtExpiry: time.Duration(jwtExpiryHours) * time.Hour,
	}, nil
}

// RegisterOrLogin returns the user for a username, creating it on
// first sight, plus a signed token carrying the identity claims.
func (s *IdentityService) RegisterOrLogin(ctx context.Context, username string) (*domain.User, string, error) {
	username = strings.TrimSpace(username)
	logCtx := logrus.WithField("username", username)
	if username == "" {
		return nil, "", ErrUserNotFound
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	switch {
	case err == nil:
		user.LastActive = time.Now().UTC()
		if saveErr := s.userRepo.Save(ctx, user); saveErr != nil {
			// The login itself succeeded; a stale LastActive is not
			// worth failing it over.
			logCtx.WithError(saveErr).Warn("Failed to touch lastActive on login")
		}
	case errors.Is(err, repository.ErrUserNotFound):
		user = &domain.User{
			UserID:     "user_" + uuid.NewString(),
			Username:   username,
			LastActive: time.Now().UTC(),
		}
		if err := s.userRepo.Save(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicateEntry) {
				// Two first logins raced; the name now exists.
				return nil, "", ErrUsernameTaken
			}
			logCtx.WithError(err).Error("Failed to create user")
			return nil, "", ErrInternalServer
		}
		logCtx.WithField("user_id", user.UserID).Info("User registered")
	default:
		logCtx.WithError(err).Error("Failed to look up user")
		return nil, "", ErrInternalServer
	}

	token, err := s.issueToken(user)
	if err != nil {
		logCtx.WithError(err).Error("Failed to sign token")
		return nil, "", ErrInternalServer
	}
	return user, token, nil
}

// IsUsernameAvailable reports whether a name is unclaimed.
func (s *IdentityService) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, nil
	}
	_, err := s.userRepo.FindByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return true, nil
	}
	logrus.WithField("username", username).WithError(err).Error("Failed to check username")
	return false, ErrInternalServer
}

// GetUser looks a user up by the opaque public id.
func (s *IdentityService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		logrus.WithField("user_id", userID).WithError(err).Error("Failed to load user")
		return nil, ErrInternalServer
	}
	return user, nil
}

// TouchLastActive records activity for a user, e.g. on socket attach.
func (s *IdentityService) TouchLastActive(ctx context.Context, userID string) {
	user, err := s.userRepo.FindByUserID(ctx, userID)
	if err != nil {
		return
	}
	user.LastActive = time.Now().UTC()
	if err := s.userRepo.Save(ctx, user); err != nil {
		logrus.WithField("user_id", userID).WithError(err).Debug("Failed to touch lastActive")
	}
}

// issueToken signs an HS256 token with the identity claims the auth
// middleware expects.
func (s *IdentityService) issueToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  user.UserID,
		"username": user.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(s.jwtExpiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
