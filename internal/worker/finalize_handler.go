package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"pollroom/internal/domain"
	"pollroom/internal/repository"
	"pollroom/internal/tasks"
)

// PollFinalizeHandler turns a closed poll into its PollResult summary
// row.
type PollFinalizeHandler struct {
	pollRepo   repository.PollRepository
	resultRepo repository.ResultRepository
}

// NewPollFinalizeHandler creates the handler.
func NewPollFinalizeHandler(pollRepo repository.PollRepository, resultRepo repository.ResultRepository) *PollFinalizeHandler {
	if pollRepo == nil {
		panic("PollRepository cannot be nil for PollFinalizeHandler")
	}
	if resultRepo == nil {
		panic("ResultRepository cannot be nil for PollFinalizeHandler")
	}
	return &PollFinalizeHandler{pollRepo: pollRepo, resultRepo: resultRepo}
}

// ProcessTask implements asynq.Handler.
func (h *PollFinalizeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.PollFinalizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal finalize payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"room_id":   payload.RoomID,
	})

	poll, err := h.pollRepo.FindByRoomID(ctx, payload.RoomID)
	if err != nil {
		if errors.Is(err, repository.ErrPollNotFound) {
			logCtx.Warn("Finalize: poll no longer exists, skipping")
			return fmt.Errorf("poll %q not found: %w", payload.RoomID, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to load poll %q: %w", payload.RoomID, err)
	}

	result, err := buildResult(poll)
	if err != nil {
		logCtx.WithError(err).Error("Finalize: failed to build summary")
		return fmt.Errorf("failed to build summary for %q: %v: %w", payload.RoomID, err, asynq.SkipRetry)
	}

	if err := h.resultRepo.Upsert(ctx, result); err != nil {
		return fmt.Errorf("failed to save summary for %q: %w", payload.RoomID, err)
	}

	logCtx.WithField("total_votes", result.TotalVotes).Info("Poll summary written")
	return nil
}

// buildResult computes the final tallies and the winning option. A tie
// or an empty poll has no winner.
func buildResult(poll *domain.Poll) (*domain.PollResult, error) {
	options, err := poll.ParseOptions()
	if err != nil {
		return nil, err
	}
	counts := poll.VoteCounts(len(options))

	total := 0
	best, bestCount, tied := -1, 0, false
	for i, c := range counts {
		total += c
		switch {
		case c > bestCount:
			best, bestCount, tied = i, c, false
		case c == bestCount && c > 0:
			tied = true
		}
	}

	result := &domain.PollResult{
		RoomID:     poll.RoomID,
		Question:   poll.Question,
		TotalVotes: total,
		ClosedAt:   time.Now().UTC(),
	}
	if best >= 0 && !tied {
		result.WinningOption = options[best]
	}
	if err := result.SetCounts(counts); err != nil {
		return nil, err
	}
	return result, nil
}
