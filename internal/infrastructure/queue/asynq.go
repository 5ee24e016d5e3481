// Package queue provides asynchronous processing of uploaded workbooks on
// top of Asynq. Uploads are stored first, then a task referencing the stored
// file is enqueued; workers parse and upsert out of band.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mhensley/labtrack/internal/pkg/config"
)

// Task types
const (
	TaskTypeProcessWorkbook  = "upload:process_workbook"
	TaskTypeProcessAdditives = "upload:process_additives"
	TaskTypeCleanupUploads   = "upload:cleanup"
)

// Client wraps the Asynq client for enqueuing upload tasks.
type Client struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewClient creates an enqueue-side queue client.
func NewClient(cfg *config.QueueConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := asynq.NewClient(redisOpt(cfg))

	logger.Info("queue client created",
		slog.String("redis_host", cfg.RedisHost),
		slog.Int("redis_port", cfg.RedisPort),
	)

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the queue client.
func (c *Client) Close() error {
	c.logger.Info("closing queue client")
	return c.client.Close()
}

// Enqueue adds a task to the queue.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		c.logger.Error("failed to enqueue task",
			slog.String("task_type", task.Type()),
			slog.Any("error", err),
		)
		return nil, err
	}

	c.logger.Debug("task enqueued",
		slog.String("task_id", info.ID),
		slog.String("task_type", task.Type()),
		slog.String("queue", info.Queue),
	)

	return info, nil
}

// Server wraps the Asynq server for processing upload tasks.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewServer creates the worker-side queue server.
func NewServer(cfg *config.QueueConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	server := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"uploads": 6,
				"default": 3,
				"low":     1,
			},

			// Exponential backoff: 2s, 4s, 8s, 16s, ...
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				return time.Duration(1<<uint(n)) * time.Second
			},

			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing failed",
					slog.String("task_type", task.Type()),
					slog.String("payload", string(task.Payload())),
					slog.Any("error", err),
				)
			}),

			HealthCheckFunc: func(e error) {
				if e != nil {
					logger.Error("queue health check failed", slog.Any("error", e))
				}
			},
			HealthCheckInterval: 20 * time.Second,

			ShutdownTimeout: 25 * time.Second,
		},
	)

	mux := asynq.NewServeMux()

	logger.Info("queue server created",
		slog.String("redis_host", cfg.RedisHost),
		slog.Int("redis_port", cfg.RedisPort),
		slog.Int("concurrency", cfg.Concurrency),
	)

	return &Server{
		server: server,
		mux:    mux,
		logger: logger,
	}, nil
}

// HandleFunc registers a handler function for a task type.
func (s *Server) HandleFunc(pattern string, handler func(context.Context, *asynq.Task) error) {
	s.mux.HandleFunc(pattern, handler)
	s.logger.Debug("handler registered", slog.String("pattern", pattern))
}

// Use adds a middleware to the mux.
func (s *Server) Use(middleware func(asynq.Handler) asynq.Handler) {
	s.mux.Use(middleware)
}

// Start runs the server until Shutdown or Stop.
func (s *Server) Start() error {
	s.logger.Info("starting queue server")
	if err := s.server.Run(s.mux); err != nil {
		return fmt.Errorf("failed to run queue server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() {
	s.logger.Info("shutting down queue server")
	s.server.Shutdown()
}

// Stop immediately stops task processing.
func (s *Server) Stop() {
	s.logger.Info("stopping queue server")
	s.server.Stop()
}

func redisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:         fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}
}
