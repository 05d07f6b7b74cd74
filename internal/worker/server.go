// Package worker runs the asynq server processing background tasks.
package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"pollroom/internal/cache"
	"pollroom/internal/repository"
	"pollroom/internal/tasks"
)

// WorkerServer wraps the asynq server with its handlers.
type WorkerServer struct {
	server *asynq.Server
	log    *logrus.Entry

	pollRepo   repository.PollRepository
	resultRepo repository.ResultRepository
	rooms      *cache.RoomCache
}

// NewWorkerServer creates a WorkerServer.
func NewWorkerServer(
	redisOpt asynq.RedisClientOpt,
	pollRepo repository.PollRepository,
	resultRepo repository.ResultRepository,
	rooms *cache.RoomCache,
	logger *logrus.Logger,
) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &WorkerServer{
		server:     server,
		log:        logEntry,
		pollRepo:   pollRepo,
		resultRepo: resultRepo,
		rooms:      rooms,
	}
}

// Start runs the worker server. It should run in its own goroutine.
func (ws *WorkerServer) Start() {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypePollFinalize, NewPollFinalizeHandler(ws.pollRepo, ws.resultRepo).ProcessTask)
	mux.HandleFunc(tasks.TypeCacheSweep, NewCacheSweepHandler(ws.rooms).ProcessTask)

	ws.log.Info("Worker server starting")
	if err := ws.server.Run(mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		ws.log.Fatalf("Could not run worker server: %v", err)
	}
	ws.log.Info("Worker server stopped")
}

// Shutdown stops the worker server gracefully.
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server")
	ws.server.Shutdown()
}
