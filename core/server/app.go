package server

import (
	"context"
	"errors"

	"homeschool-api/core/cache"
	"homeschool-api/core/config"
	"homeschool-api/core/database"
	"homeschool-api/core/logger"
	"homeschool-api/modules/calendar"
	"homeschool-api/modules/notification"
	notificationService "homeschool-api/modules/notification/service"

	"github.com/redis/go-redis/v9"
)

// App holds the process-wide dependencies shared by every command.
type App struct {
	Config        *config.Config
	DB            *database.Database
	Cache         cache.Cache
	Redis         *redis.Client
	Notifications notificationService.NotificationService
	Calendar      *calendar.Module
}

// Bootstrap loads configuration, initializes logging and connects to
// Postgres and, when configured, Redis.
func Bootstrap(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		return nil, err
	}

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: db}
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			db.Close()
			return nil, err
		}
		app.Redis = client
		app.Cache = cache.NewRedisCache(client)
	} else {
		logger.Warn("Server:Bootstrap:NoRedis", "detail", "using in-process cache; locks and oauth state are not shared between processes")
		app.Cache = cache.NewMemoryCache()
	}

	app.Notifications = notification.NewService(db)
	app.Calendar, err = calendar.New(calendar.Deps{
		DB:       db,
		Cache:    app.Cache,
		Config:   cfg,
		Notifier: app.Notifications,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) Close() {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("Server:Close:Error", "error", err)
	}
	logger.Sync()
}
