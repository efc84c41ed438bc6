package service

import (
	"context"
	"time"

	"homeschool-api/core/cache"
	"homeschool-api/core/config"
	"homeschool-api/core/constants"
	"homeschool-api/core/errors"
	"homeschool-api/core/logger"
	"homeschool-api/core/metrics"
	"homeschool-api/modules/calendar/dto"
	"homeschool-api/modules/calendar/entity"
	"homeschool-api/modules/calendar/provider"
	"homeschool-api/modules/calendar/repository"
	lessonRepo "homeschool-api/modules/lesson/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

const staleSyncMessage = "sync timed out"

type SyncService interface {
	// SyncConnection runs one sync of a connection. Failures are reported in
	// the result, never as a Go error, so batch callers keep going.
	SyncConnection(ctx context.Context, connectionID uuid.UUID) *dto.SyncResult
	SyncAllConnections(ctx context.Context, orgID uuid.UUID) ([]*dto.SyncResult, error)
	// ReapStaleSyncLogs fails sync logs left in "started" past the stale timeout.
	ReapStaleSyncLogs(ctx context.Context) (int, error)
}

// ProviderRegistry resolves the adapter for a connection's provider field.
type ProviderRegistry interface {
	Get(name string) (provider.Provider, error)
}

// Notifier alerts the connection owner. Implementations must not block the sync.
type Notifier interface {
	NotifySyncFailed(ctx context.Context, userID, orgID uuid.UUID, calendarName, message string) error
	NotifyCriticalConflicts(ctx context.Context, userID, orgID uuid.UUID, calendarName string, events int) error
}

type SyncServiceDeps struct {
	Connections repository.ConnectionRepository
	Events      repository.EventRepository
	SyncLogs    repository.SyncLogRepository
	Lessons     lessonRepo.LessonRepository
	Providers   ProviderRegistry
	Conflicts   ConflictService
	AutoBlock   AutoBlockService
	Locker      cache.Locker
	Notifier    Notifier
	Config      config.SyncConfig
	Now         func() time.Time
}

type syncService struct {
	connections repository.ConnectionRepository
	events      repository.EventRepository
	syncLogs    repository.SyncLogRepository
	lessons     lessonRepo.LessonRepository
	providers   ProviderRegistry
	conflicts   ConflictService
	autoBlock   AutoBlockService
	locker      cache.Locker
	notifier    Notifier
	tokens      *tokenManager
	cfg         config.SyncConfig
	now         func() time.Time
}

func NewSyncService(deps SyncServiceDeps) SyncService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cfg := deps.Config
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	locker := deps.Locker
	if locker == nil {
		locker = cache.NewMemoryCache()
	}
	return &syncService{
		connections: deps.Connections,
		events:      deps.Events,
		syncLogs:    deps.SyncLogs,
		lessons:     deps.Lessons,
		providers:   deps.Providers,
		conflicts:   deps.Conflicts,
		autoBlock:   deps.AutoBlock,
		locker:      locker,
		notifier:    deps.Notifier,
		tokens:      newTokenManager(deps.Connections, cfg.TokenRefreshSkew, now),
		cfg:         cfg,
		now:         now,
	}
}

// runState carries what the steps of one run hand to finalize.
type runState struct {
	criticalEvents int
}

func (s *syncService) SyncConnection(ctx context.Context, connectionID uuid.UUID) *dto.SyncResult {
	result := &dto.SyncResult{ConnectionID: connectionID}

	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		result.Fail(errors.NewAppError(errors.ErrInternalServer, "failed to load connection", err))
		return result
	}
	if conn == nil {
		result.Fail(errors.NewAppError(errors.ErrConnectionNotFound, "calendar connection not found", nil))
		return result
	}
	if !conn.SyncEnabled {
		result.Fail(errors.NewAppError(errors.ErrSyncDisabled, "sync is disabled for this connection", nil))
		return result
	}

	lockKey := constants.SyncLockKeyPrefix + connectionID.String()
	lockToken, acquired, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		result.Fail(errors.NewAppError(errors.ErrInternalServer, "failed to acquire sync lock", err))
		return result
	}
	if !acquired {
		result.Fail(errors.NewAppError(errors.ErrSyncInProgress, "a sync is already running for this connection", nil))
		return result
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey, lockToken); err != nil {
			logger.Warn("SyncService:SyncConnection:Unlock:Error", "connection_id", connectionID, "error", err)
		}
	}()

	startedAt := s.now()
	syncLog := &entity.CalendarSyncLog{
		ConnectionID:   conn.ID,
		OrganizationID: conn.OrganizationID,
		SyncType:       syncTypeOf(conn),
		SyncStatus:     entity.SyncStatusStarted,
		StartedAt:      startedAt,
	}
	if err := s.syncLogs.Create(ctx, syncLog); err != nil {
		result.Fail(errors.NewAppError(errors.ErrInternalServer, "failed to create sync log", err))
		return result
	}
	result.SyncLogID = &syncLog.ID
	result.SyncType = syncLog.SyncType

	logger.Info("SyncService:SyncConnection:Start", "connection_id", conn.ID, "provider", conn.Provider, "sync_type", syncLog.SyncType)

	state := &runState{}
	runErr := s.run(ctx, conn, result, state)
	s.finalize(context.WithoutCancel(ctx), conn, syncLog, result, state, runErr, startedAt)
	return result
}

func (s *syncService) run(ctx context.Context, conn *entity.CalendarConnection, result *dto.SyncResult, state *runState) error {
	p, err := s.providers.Get(conn.Provider)
	if err != nil {
		return err
	}

	if err := s.tokens.EnsureFresh(ctx, conn, p); err != nil {
		return err
	}

	fetched, err := s.fetch(ctx, conn, p)
	if err != nil {
		return err
	}
	result.SyncType = fetched.syncType
	result.EventsFetched = len(fetched.events)

	changed, liveIDs, err := s.reconcile(ctx, conn, fetched, result)
	if err != nil {
		return err
	}

	if fetched.nextSyncToken != "" {
		cursor := fetched.nextSyncToken
		if err := s.connections.UpdateSyncToken(ctx, conn.ID, &cursor); err != nil {
			// The next run falls back to a full fetch.
			logger.Warn("SyncService:Run:UpdateSyncToken:Error", "connection_id", conn.ID, "error", err)
		} else {
			conn.SyncToken = &cursor
		}
	}

	if len(changed) > 0 {
		summary, err := s.conflicts.RefreshEventConflicts(ctx, conn.OrganizationID, changed)
		if err != nil {
			logger.Error("SyncService:Run:RefreshEventConflicts:Error",
				"connection_id", conn.ID, "code", errors.ErrConflictDetectionFailed, "error", err)
		} else {
			result.ConflictsDetected = summary.Conflicts
			state.criticalEvents = summary.CriticalEvents
		}
	}

	if conn.AutoBlockEnabled && len(liveIDs) > 0 {
		blocked, err := s.autoBlock.AutoBlockWorkEvents(ctx, conn.OrganizationID, liveIDs)
		if err != nil {
			logger.Error("SyncService:Run:AutoBlock:Error", "connection_id", conn.ID, "error", err)
		}
		result.AutoBlocked = blocked
	}
	return nil
}

type fetchOutcome struct {
	syncType      string
	events        []provider.ExternalEvent
	deletedIDs    []string
	nextSyncToken string
}

func (s *syncService) fetch(ctx context.Context, conn *entity.CalendarConnection, p provider.Provider) (*fetchOutcome, error) {
	out, err := s.fetchPages(ctx, conn, p)
	if err != nil && conn.HasSyncToken() && errors.HasCode(err, errors.ErrSyncTokenExpired) {
		logger.Warn("SyncService:Fetch:SyncTokenExpired", "connection_id", conn.ID, "provider", conn.Provider)
		if clearErr := s.connections.UpdateSyncToken(ctx, conn.ID, nil); clearErr != nil {
			return nil, errors.NewAppError(errors.ErrInternalServer, "failed to clear expired sync token", clearErr)
		}
		conn.SyncToken = nil
		out, err = s.fetchPages(ctx, conn, p)
	}
	if err != nil {
		if errors.CodeOf(err) == errors.ErrProviderFetchFailed {
			return nil, err
		}
		return nil, errors.NewAppError(errors.ErrProviderFetchFailed, "failed to fetch events", err)
	}
	return out, nil
}

// fetchPages follows page tokens until exhausted. An event seen on several
// pages keeps its last state, whether present or removed.
func (s *syncService) fetchPages(ctx context.Context, conn *entity.CalendarConnection, p provider.Provider) (*fetchOutcome, error) {
	opts := s.fetchOptions(conn)
	out := &fetchOutcome{syncType: syncTypeOf(conn)}

	latest := make(map[string]*provider.ExternalEvent)
	var order []string
	for page := 0; ; page++ {
		if page >= s.cfg.MaxPages {
			return nil, errors.NewAppError(errors.ErrProviderFetchFailed, "event pagination exceeded page limit", nil)
		}
		res, err := p.FetchEvents(ctx, conn.AccessToken, conn.CalendarID, opts)
		if err != nil {
			return nil, err
		}
		for i := range res.Events {
			ev := res.Events[i]
			if _, seen := latest[ev.ID]; !seen {
				order = append(order, ev.ID)
			}
			latest[ev.ID] = &ev
		}
		for _, id := range res.DeletedEventIDs {
			if _, seen := latest[id]; !seen {
				order = append(order, id)
			}
			latest[id] = nil
		}
		if res.NextPageToken == "" {
			out.nextSyncToken = res.NextSyncToken
			break
		}
		opts.PageToken = res.NextPageToken
	}

	for _, id := range order {
		if ev := latest[id]; ev != nil {
			out.events = append(out.events, *ev)
		} else {
			out.deletedIDs = append(out.deletedIDs, id)
		}
	}
	return out, nil
}

func (s *syncService) fetchOptions(conn *entity.CalendarConnection) provider.FetchEventsOptions {
	if conn.HasSyncToken() {
		return provider.FetchEventsOptions{SyncToken: *conn.SyncToken, MaxResults: s.cfg.PageSize}
	}
	timeMin, timeMax := provider.DefaultWindow(s.now(), s.cfg.LookbackDays, s.cfg.LookaheadDays)
	return provider.FetchEventsOptions{TimeMin: timeMin, TimeMax: timeMax, MaxResults: s.cfg.PageSize}
}

// reconcile upserts fetched events and tombstones the ones that went away.
// It returns the created or updated rows and the ids of every live row.
func (s *syncService) reconcile(ctx context.Context, conn *entity.CalendarConnection, fetched *fetchOutcome, result *dto.SyncResult) ([]entity.SyncedWorkEvent, []uuid.UUID, error) {
	existing, err := s.events.ListByConnection(ctx, conn.ID)
	if err != nil {
		return nil, nil, errors.NewAppError(errors.ErrReconciliationFailed, "failed to load synced events", err)
	}
	byExternalID := make(map[string]entity.SyncedWorkEvent, len(existing))
	for _, row := range existing {
		byExternalID[row.ExternalEventID] = row
	}

	now := s.now()
	present := make(map[string]bool, len(fetched.events))
	var changed []entity.SyncedWorkEvent
	var unchangedIDs, liveIDs []uuid.UUID

	for _, ev := range fetched.events {
		present[ev.ID] = true
		row := toSyncedWorkEvent(conn, ev, now)
		prev, exists := byExternalID[ev.ID]

		if exists && !prev.IsDeleted && prev.SameExternalState(row) {
			unchangedIDs = append(unchangedIDs, prev.ID)
			liveIDs = append(liveIDs, prev.ID)
			continue
		}

		created, err := s.events.Upsert(ctx, &row)
		if err != nil {
			return nil, nil, errors.NewAppError(errors.ErrReconciliationFailed, "failed to upsert synced event", err)
		}
		if created {
			result.Created++
		} else {
			result.Updated++
			row.AutoBlocked = prev.AutoBlocked
			row.AutoBlockLessonID = prev.AutoBlockLessonID
			s.moveWorkBlock(ctx, conn, prev, row)
		}
		changed = append(changed, row)
		liveIDs = append(liveIDs, row.ID)
	}

	if err := s.events.TouchSynced(ctx, unchangedIDs, now); err != nil {
		return nil, nil, errors.NewAppError(errors.ErrReconciliationFailed, "failed to stamp synced events", err)
	}

	var tombstones []entity.SyncedWorkEvent
	if fetched.syncType == entity.SyncTypeFull {
		for _, row := range existing {
			if !row.IsDeleted && !present[row.ExternalEventID] {
				tombstones = append(tombstones, row)
			}
		}
	} else {
		for _, id := range fetched.deletedIDs {
			if row, ok := byExternalID[id]; ok && !row.IsDeleted && !present[id] {
				tombstones = append(tombstones, row)
			}
		}
	}

	tombstoneIDs := make([]uuid.UUID, 0, len(tombstones))
	var placeholders []uuid.UUID
	for _, row := range tombstones {
		tombstoneIDs = append(tombstoneIDs, row.ID)
		if row.AutoBlocked && row.AutoBlockLessonID != nil {
			placeholders = append(placeholders, *row.AutoBlockLessonID)
		}
	}
	if err := s.events.MarkDeleted(ctx, tombstoneIDs, now); err != nil {
		return nil, nil, errors.NewAppError(errors.ErrReconciliationFailed, "failed to tombstone synced events", err)
	}
	result.Deleted = len(tombstoneIDs)

	if err := s.lessons.CancelMany(ctx, placeholders); err != nil {
		logger.Warn("SyncService:Reconcile:CancelWorkBlocks:Error", "connection_id", conn.ID, "count", len(placeholders), "error", err)
	}

	metrics.EventsReconciled.WithLabelValues("created").Add(float64(result.Created))
	metrics.EventsReconciled.WithLabelValues("updated").Add(float64(result.Updated))
	metrics.EventsReconciled.WithLabelValues("deleted").Add(float64(result.Deleted))
	return changed, liveIDs, nil
}

// moveWorkBlock keeps an auto-block placeholder aligned with its work event.
func (s *syncService) moveWorkBlock(ctx context.Context, conn *entity.CalendarConnection, prev, row entity.SyncedWorkEvent) {
	if !prev.AutoBlocked || prev.AutoBlockLessonID == nil {
		return
	}
	if prev.StartTime.Equal(row.StartTime) && prev.EndTime.Equal(row.EndTime) {
		return
	}
	if err := s.lessons.Reschedule(ctx, conn.OrganizationID, *prev.AutoBlockLessonID, row.StartTime, row.EndTime); err != nil {
		logger.Warn("SyncService:Reconcile:MoveWorkBlock:Error", "event_id", prev.ID, "lesson_id", *prev.AutoBlockLessonID, "error", err)
	}
}

func (s *syncService) finalize(ctx context.Context, conn *entity.CalendarConnection, syncLog *entity.CalendarSyncLog, result *dto.SyncResult, state *runState, runErr error, startedAt time.Time) {
	completedAt := s.now()
	syncLog.SyncType = result.SyncType
	syncLog.EventsFetched = result.EventsFetched
	syncLog.EventsCreated = result.Created
	syncLog.EventsUpdated = result.Updated
	syncLog.EventsDeleted = result.Deleted
	syncLog.ConflictsDetected = result.ConflictsDetected
	syncLog.CompletedAt = &completedAt

	var errMessage *string
	if runErr != nil {
		result.Fail(runErr)
		message := result.Errors[len(result.Errors)-1].Message
		errMessage = &message
		syncLog.SyncStatus = entity.SyncStatusFailed
		syncLog.ErrorMessage = errMessage
		logger.Error("SyncService:SyncConnection:Failed", "connection_id", conn.ID, "code", errors.CodeOf(runErr), "error", runErr)
	} else {
		result.Success = true
		syncLog.SyncStatus = entity.SyncStatusCompleted
		logger.Info("SyncService:SyncConnection:Completed",
			"connection_id", conn.ID,
			"fetched", result.EventsFetched,
			"created", result.Created,
			"updated", result.Updated,
			"deleted", result.Deleted,
			"conflicts", result.ConflictsDetected,
		)
	}

	if err := s.syncLogs.Finish(ctx, syncLog); err != nil {
		logger.Error("SyncService:Finalize:FinishLog:Error", "sync_log_id", syncLog.ID, "error", err)
	}
	if err := s.connections.UpdateSyncStatus(ctx, conn.ID, syncLog.SyncStatus, errMessage, completedAt); err != nil {
		logger.Error("SyncService:Finalize:UpdateSyncStatus:Error", "connection_id", conn.ID, "error", err)
	}

	metrics.SyncRuns.WithLabelValues(conn.Provider, syncLog.SyncStatus).Inc()
	metrics.SyncDuration.WithLabelValues(conn.Provider).Observe(completedAt.Sub(startedAt).Seconds())

	s.notify(ctx, conn, state, errMessage)
}

func (s *syncService) notify(ctx context.Context, conn *entity.CalendarConnection, state *runState, errMessage *string) {
	if s.notifier == nil {
		return
	}
	var err error
	switch {
	case errMessage != nil:
		err = s.notifier.NotifySyncFailed(ctx, conn.UserID, conn.OrganizationID, conn.CalendarName, *errMessage)
	case state.criticalEvents > 0:
		err = s.notifier.NotifyCriticalConflicts(ctx, conn.UserID, conn.OrganizationID, conn.CalendarName, state.criticalEvents)
	}
	if err != nil {
		logger.Warn("SyncService:Notify:Error", "connection_id", conn.ID, "error", err)
	}
}

func (s *syncService) SyncAllConnections(ctx context.Context, orgID uuid.UUID) ([]*dto.SyncResult, error) {
	connections, err := s.connections.ListEnabledByOrganization(ctx, orgID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list connections", err)
	}

	results := make([]*dto.SyncResult, len(connections))
	var g errgroup.Group
	for i, conn := range connections {
		g.Go(func() error {
			results[i] = s.SyncConnection(ctx, conn.ID)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("SyncService:SyncAllConnections:Done", "organization_id", orgID, "connections", len(connections))
	return results, nil
}

func (s *syncService) ReapStaleSyncLogs(ctx context.Context) (int, error) {
	if s.cfg.StaleLogTimeout <= 0 {
		return 0, nil
	}
	now := s.now()
	reaped, err := s.syncLogs.FailStale(ctx, now.Add(-s.cfg.StaleLogTimeout), staleSyncMessage, now)
	if err != nil {
		return 0, errors.NewAppError(errors.ErrInternalServer, "failed to reap stale sync logs", err)
	}
	for _, row := range reaped {
		logger.Warn("SyncService:ReapStaleSyncLogs:Reaped", "sync_log_id", row.ID, "connection_id", row.ConnectionID, "started_at", row.StartedAt)
	}
	return len(reaped), nil
}

func syncTypeOf(conn *entity.CalendarConnection) string {
	if conn.HasSyncToken() {
		return entity.SyncTypeIncremental
	}
	return entity.SyncTypeFull
}

func toSyncedWorkEvent(conn *entity.CalendarConnection, ev provider.ExternalEvent, now time.Time) entity.SyncedWorkEvent {
	recurrence := pq.StringArray(ev.Recurrence)
	if recurrence == nil {
		recurrence = pq.StringArray{}
	}
	return entity.SyncedWorkEvent{
		ConnectionID:         conn.ID,
		OrganizationID:       conn.OrganizationID,
		ExternalEventID:      ev.ID,
		Title:                ev.Title,
		Description:          ev.Description,
		Location:             ev.Location,
		StartTime:            ev.StartTime.UTC(),
		EndTime:              ev.EndTime.UTC(),
		IsAllDay:             ev.IsAllDay,
		IsMeeting:            ev.IsMeeting,
		AttendeeCount:        len(ev.Attendees),
		ExternalStatus:       ev.Status,
		IsRecurring:          ev.IsRecurring,
		RecurringEventID:     ev.RecurringEventID,
		RecurrenceRule:       recurrence,
		ConflictSeverity:     string(entity.SeverityNone),
		ConflictingLessonIDs: pq.StringArray{},
		LastSyncedAt:         now,
	}
}
