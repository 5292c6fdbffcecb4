// Package queue hosts the asynq worker that runs out-of-band tasks such as
// delivery retries.
package queue

import (
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/config"
)

// QueueManager handles asynq server setup and task registration
type QueueManager struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	config *config.QueueConfig
	logger *logrus.Logger
}

// NewQueueManager creates a queue manager and registers handlers by task type
func NewQueueManager(cfg *config.QueueConfig, handlers map[string]asynq.Handler, logger *logrus.Logger) *QueueManager {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	srv := asynq.NewServer(
		RedisOpt(cfg),
		asynq.Config{
			Concurrency: concurrency,
			Logger:      logger,
		},
	)

	mux := asynq.NewServeMux()
	for taskType, handler := range handlers {
		mux.Handle(taskType, handler)
		logger.WithField("taskType", taskType).Debug("Task handler registered")
	}

	return &QueueManager{
		server: srv,
		mux:    mux,
		config: cfg,
		logger: logger,
	}
}

// Start runs the asynq server in the background
func (qm *QueueManager) Start() error {
	qm.logger.WithField("redisAddr", qm.config.RedisAddr).Info("Starting task queue worker")
	return qm.server.Start(qm.mux)
}

// Shutdown gracefully shuts down the asynq server
func (qm *QueueManager) Shutdown() {
	qm.server.Shutdown()
}

// NewClient creates an asynq client for enqueueing tasks
func NewClient(cfg *config.QueueConfig) *asynq.Client {
	return asynq.NewClient(RedisOpt(cfg))
}

// RedisOpt returns the asynq Redis connection options
func RedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr}
}
