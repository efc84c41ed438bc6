package calendar

import (
	"homeschool-api/core/cache"
	"homeschool-api/core/config"
	"homeschool-api/core/database"
	"homeschool-api/core/middleware"
	"homeschool-api/core/queue"
	"homeschool-api/core/utils"
	"homeschool-api/modules/calendar/controller"
	"homeschool-api/modules/calendar/provider"
	"homeschool-api/modules/calendar/repository"
	"homeschool-api/modules/calendar/router"
	"homeschool-api/modules/calendar/service"
	"homeschool-api/modules/calendar/worker"
	lessonRepository "homeschool-api/modules/lesson/repository"

	"github.com/labstack/echo/v4"
)

type Deps struct {
	DB       database.IDatabase
	Cache    cache.Cache
	Config   *config.Config
	Notifier service.Notifier
}

// Module holds the wired calendar services shared by the HTTP server, the
// worker and the one-shot sync command.
type Module struct {
	Connections repository.ConnectionRepository
	Calendar    service.CalendarService
	Sync        service.SyncService
	Conflicts   service.ConflictService
	AutoBlock   service.AutoBlockService
	Providers   *provider.Registry

	syncConfig config.SyncConfig
}

func New(deps Deps) (*Module, error) {
	cfg := deps.Config

	cipher, err := utils.NewTokenCipher(cfg.Security.TokenEncryptionKey)
	if err != nil {
		return nil, err
	}

	providers := provider.NewRegistry(
		provider.NewGoogleProvider(provider.Options{
			ClientID:     cfg.GoogleAPI.ClientID,
			ClientSecret: cfg.GoogleAPI.ClientSecret,
			RedirectURI:  cfg.GoogleAPI.RedirectURI,
		}),
		provider.NewOutlookProvider(provider.Options{
			ClientID:     cfg.OutlookAPI.ClientID,
			ClientSecret: cfg.OutlookAPI.ClientSecret,
			RedirectURI:  cfg.OutlookAPI.RedirectURI,
		}, cfg.OutlookAPI.TenantID),
	)

	connections := repository.NewConnectionRepository(deps.DB, cipher)
	events := repository.NewEventRepository(deps.DB)
	syncLogs := repository.NewSyncLogRepository(deps.DB)
	resolutions := repository.NewResolutionRepository(deps.DB)
	lessons := lessonRepository.NewLessonRepository(deps.DB)

	conflicts := service.NewConflictService(lessons, events, resolutions, service.ConflictServiceOptions{
		Concurrency:    cfg.Sync.ConflictConcurrency,
		UseSQLFunction: cfg.Sync.UseConflictFunction,
	})
	autoBlock := service.NewAutoBlockService(events, lessons)
	syncSvc := service.NewSyncService(service.SyncServiceDeps{
		Connections: connections,
		Events:      events,
		SyncLogs:    syncLogs,
		Lessons:     lessons,
		Providers:   providers,
		Conflicts:   conflicts,
		AutoBlock:   autoBlock,
		Locker:      deps.Cache,
		Notifier:    deps.Notifier,
		Config:      cfg.Sync,
	})

	return &Module{
		Connections: connections,
		Calendar:    service.NewCalendarService(connections, syncLogs, providers, deps.Cache, cfg.Sync.TokenRefreshSkew),
		Sync:        syncSvc,
		Conflicts:   conflicts,
		AutoBlock:   autoBlock,
		Providers:   providers,
		syncConfig:  cfg.Sync,
	}, nil
}

func (m *Module) RegisterRoutes(e *echo.Echo, mw *middleware.Middleware) {
	ctrl := controller.NewCalendarController(m.Calendar, m.Sync, m.Conflicts, m.AutoBlock)
	router.NewCalendarRouter(ctrl).Setup(e, mw)
}

func (m *Module) NewWorkerHandler() *worker.Handler {
	return worker.NewHandler(m.Sync)
}

func (m *Module) NewScheduler(enqueuer queue.Enqueuer) *worker.Scheduler {
	return worker.NewScheduler(m.syncConfig, m.Connections, enqueuer, m.Sync)
}
