package queue

import (
	"context"
	"errors"

	"homeschool-api/core/config"
	"homeschool-api/core/constants"
	"homeschool-api/core/logger"

	"github.com/hibiken/asynq"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func RedisConnOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *asynq.Client {
	return asynq.NewClient(RedisConnOpt(cfg))
}

func NewServer(cfg config.RedisConfig, concurrency int) *asynq.Server {
	return asynq.NewServer(RedisConnOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			constants.QueueCalendar: 6,
			"default":               3,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("Queue:Task:Error",
				"type", task.Type(),
				"retry", retried,
				"max_retry", maxRetry,
				"error", err,
			)
		}),
		Logger: zapAdapter{},
	})
}

// Enqueue submits task and treats an already queued unique task as success.
func Enqueue(ctx context.Context, enqueuer Enqueuer, task *asynq.Task, opts ...asynq.Option) (bool, error) {
	info, err := enqueuer.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.Debug("Queue:Enqueue:Duplicate", "type", task.Type())
		return false, nil
	}
	if err != nil {
		logger.Error("Queue:Enqueue:Error", "type", task.Type(), "error", err)
		return false, err
	}
	logger.Debug("Queue:Enqueue:Success", "type", task.Type(), "id", info.ID, "queue", info.Queue)
	return true, nil
}

type zapAdapter struct{}

func (zapAdapter) Debug(args ...any) { logger.Debug("asynq", "detail", args) }
func (zapAdapter) Info(args ...any)  { logger.Info("asynq", "detail", args) }
func (zapAdapter) Warn(args ...any)  { logger.Warn("asynq", "detail", args) }
func (zapAdapter) Error(args ...any) { logger.Error("asynq", "detail", args) }
func (zapAdapter) Fatal(args ...any) { logger.Fatal("asynq", "detail", args) }
