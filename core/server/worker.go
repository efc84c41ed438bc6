package server

import (
	"context"
	"fmt"

	"homeschool-api/core/logger"
	"homeschool-api/core/queue"

	"github.com/hibiken/asynq"
)

// RunWorker processes queued sync tasks and runs the periodic scheduler
// until ctx is cancelled.
func RunWorker(ctx context.Context, app *App) error {
	if app.Config.Redis.Addr == "" {
		return fmt.Errorf("worker requires redis: set REDIS_ADDR")
	}

	client := queue.NewClient(app.Config.Redis)
	defer client.Close()

	mux := asynq.NewServeMux()
	app.Calendar.NewWorkerHandler().Register(mux)

	srv := queue.NewServer(app.Config.Redis, app.Config.Worker.Concurrency)
	if err := srv.Start(mux); err != nil {
		return err
	}

	scheduler := app.Calendar.NewScheduler(client)
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return err
	}

	logger.Info("Server:RunWorker:Started", "concurrency", app.Config.Worker.Concurrency)
	<-ctx.Done()

	scheduler.Stop()
	srv.Shutdown()
	logger.Info("Server:RunWorker:Stopped")
	return nil
}
