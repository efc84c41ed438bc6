package worker

import (
	"context"
	"time"

	"homeschool-api/core/config"
	"homeschool-api/core/logger"
	"homeschool-api/core/queue"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

type OrganizationLister interface {
	ListOrganizationsWithEnabledConnections(ctx context.Context) ([]uuid.UUID, error)
}

type StaleLogReaper interface {
	ReapStaleSyncLogs(ctx context.Context) (int, error)
}

// Scheduler enqueues periodic organization syncs and reaps stale sync logs.
type Scheduler struct {
	cfg      config.SyncConfig
	orgs     OrganizationLister
	enqueuer queue.Enqueuer
	reaper   StaleLogReaper
	cron     *cron.Cron
}

func NewScheduler(cfg config.SyncConfig, orgs OrganizationLister, enqueuer queue.Enqueuer, reaper StaleLogReaper) *Scheduler {
	l := cronLogger{}
	return &Scheduler{
		cfg:      cfg,
		orgs:     orgs,
		enqueuer: enqueuer,
		reaper:   reaper,
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
	}
}

func (s *Scheduler) Start() error {
	if s.cfg.Schedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.EnqueueOrganizations(context.Background()) }); err != nil {
			return err
		}
	}
	if s.cfg.ReaperSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.ReaperSchedule, func() { s.ReapStaleLogs(context.Background()) }); err != nil {
			return err
		}
	}

	logger.Info("Scheduler:Start", "schedule", s.cfg.Schedule, "reaper_schedule", s.cfg.ReaperSchedule)
	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Scheduler:Stop")
}

// EnqueueOrganizations queues one sync task per organization with an enabled
// connection and returns how many were queued.
func (s *Scheduler) EnqueueOrganizations(ctx context.Context) int {
	orgIDs, err := s.orgs.ListOrganizationsWithEnabledConnections(ctx)
	if err != nil {
		logger.Error("Scheduler:EnqueueOrganizations:List:Error", "error", err)
		return 0
	}

	queued := 0
	for _, orgID := range orgIDs {
		task, err := NewSyncOrganizationTask(orgID, s.uniqueFor())
		if err != nil {
			logger.Error("Scheduler:EnqueueOrganizations:NewTask:Error", "organization_id", orgID, "error", err)
			continue
		}
		ok, err := queue.Enqueue(ctx, s.enqueuer, task)
		if err != nil {
			continue
		}
		if ok {
			queued++
		}
	}

	logger.Info("Scheduler:EnqueueOrganizations:Done", "organizations", len(orgIDs), "queued", queued)
	return queued
}

func (s *Scheduler) ReapStaleLogs(ctx context.Context) int {
	n, err := s.reaper.ReapStaleSyncLogs(ctx)
	if err != nil {
		logger.Error("Scheduler:ReapStaleLogs:Error", "error", err)
		return 0
	}
	return n
}

func (s *Scheduler) uniqueFor() time.Duration {
	if s.cfg.LockTTL > 0 {
		return s.cfg.LockTTL
	}
	return 10 * time.Minute
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug("Cron:"+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error("Cron:"+msg, append(keysAndValues, "error", err)...)
}
