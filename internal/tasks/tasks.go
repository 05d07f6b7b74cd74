// Package tasks defines the asynq task types and the enqueue-side
// client.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type constants.
const (
	// TypePollFinalize writes the summary row for a closed room.
	TypePollFinalize = "poll:finalize"
	// TypeCacheSweep evicts stale rooms from the live cache. Periodic
	// backstop; the scheduler already evicts on the expiry flip.
	TypeCacheSweep = "cache:sweep"
)

// PollFinalizePayload identifies the room to summarize.
type PollFinalizePayload struct {
	RoomID string `json:"room_id"`
}

// NewPollFinalizeTask builds the finalize task for one room.
func NewPollFinalizeTask(roomID string) (*asynq.Task, error) {
	payload, err := json.Marshal(PollFinalizePayload{RoomID: roomID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal finalize payload: %w", err)
	}
	return asynq.NewTask(TypePollFinalize, payload), nil
}

// NewCacheSweepTask builds the periodic sweep task. It carries no
// payload.
func NewCacheSweepTask() *asynq.Task {
	return asynq.NewTask(TypeCacheSweep, nil)
}

// Client is the enqueue side, wrapped so services depend on a narrow
// interface instead of asynq directly.
type Client struct {
	client *asynq.Client
}

// NewClient wraps an asynq client.
func NewClient(client *asynq.Client) *Client {
	if client == nil {
		panic("asynq client cannot be nil for tasks.Client")
	}
	return &Client{client: client}
}

// EnqueueFinalize schedules the summary task for a closed room.
func (c *Client) EnqueueFinalize(ctx context.Context, roomID string) error {
	task, err := NewPollFinalizeTask(roomID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue("default"), asynq.MaxRetry(5))
	if err != nil {
		return fmt.Errorf("failed to enqueue finalize task for room %q: %w", roomID, err)
	}
	return nil
}
