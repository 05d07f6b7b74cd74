package service

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/sirupsen/logrus"

	"pollroom/internal/repository"
)

const (
	roomCodeCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// RoomCodeLength matches the join form's fixed-width input.
	RoomCodeLength = 6
	// maxCodeAttempts bounds the collision-retry loop. 36^6 codes make
	// hitting it practically impossible, but the loop must terminate.
	maxCodeAttempts = 1000
)

// RoomCodeGenerator mints short human-typeable room codes, checked
// against the poll store for collisions.
type RoomCodeGenerator struct {
	pollRepo repository.PollRepository
}

// NewRoomCodeGenerator creates a RoomCodeGenerator.
func NewRoomCodeGenerator(pollRepo repository.PollRepository) *RoomCodeGenerator {
	if pollRepo == nil {
		panic("PollRepository cannot be nil for RoomCodeGenerator")
	}
	return &RoomCodeGenerator{pollRepo: pollRepo}
}

// Generate draws random codes until one is free, retrying on
// collision. Returns ErrCodeSpaceExhausted after the retry ceiling.
// Only side effect is the existence check.
func (g *RoomCodeGenerator) Generate(ctx context.Context) (string, error) {
	buf := make([]byte, RoomCodeLength)
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range buf {
			buf[i] = roomCodeCharset[int(buf[i])%len(roomCodeCharset)]
		}
		code := string(buf)

		exists, err := g.pollRepo.RoomIDExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check room code availability: %w", err)
		}
		if !exists {
			return code, nil
		}
		logrus.WithFields(logrus.Fields{"room_id": code, "attempt": attempt}).
			Warn("Generated room code already exists, retrying")
	}
	logrus.Errorf("Failed to allocate a room code after %d attempts", maxCodeAttempts)
	return "", ErrCodeSpaceExhausted
}
