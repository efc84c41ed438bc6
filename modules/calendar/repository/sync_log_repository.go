package repository

import (
	"context"
	"time"

	"homeschool-api/core/database"
	"homeschool-api/core/logger"
	"homeschool-api/modules/calendar/entity"

	"github.com/google/uuid"
)

type SyncLogRepository interface {
	Create(ctx context.Context, log *entity.CalendarSyncLog) error
	// Finish writes the terminal status, counters and error of a started row.
	Finish(ctx context.Context, log *entity.CalendarSyncLog) error
	ListByConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]entity.CalendarSyncLog, error)
	// FailStale fails rows still "started" before the cutoff and returns them.
	FailStale(ctx context.Context, startedBefore time.Time, message string, at time.Time) ([]entity.CalendarSyncLog, error)
}

type syncLogRepository struct {
	db database.IDatabase
}

func NewSyncLogRepository(db database.IDatabase) SyncLogRepository {
	return &syncLogRepository{db: db}
}

const syncLogColumns = `id, connection_id, organization_id, sync_type, sync_status, events_fetched,
	events_created, events_updated, events_deleted, conflicts_detected, error_message, started_at, completed_at`

func (r *syncLogRepository) Create(ctx context.Context, log *entity.CalendarSyncLog) error {
	query := `
		INSERT INTO calendar_sync_log (connection_id, organization_id, sync_type, sync_status, started_at)
		VALUES (:connection_id, :organization_id, :sync_type, :sync_status, :started_at)
		RETURNING id
	`
	rows, err := r.db.NamedQueryContext(ctx, query, log)
	if err != nil {
		logger.Error("SyncLogRepository:Create:Error", "connection_id", log.ConnectionID, "error", err)
		return err
	}
	defer rows.Close()

	if rows.Next() {
		return rows.Scan(&log.ID)
	}
	return rows.Err()
}

func (r *syncLogRepository) Finish(ctx context.Context, log *entity.CalendarSyncLog) error {
	query := `
		UPDATE calendar_sync_log
		SET sync_type = :sync_type,
			sync_status = :sync_status,
			events_fetched = :events_fetched,
			events_created = :events_created,
			events_updated = :events_updated,
			events_deleted = :events_deleted,
			conflicts_detected = :conflicts_detected,
			error_message = :error_message,
			completed_at = :completed_at
		WHERE id = :id AND sync_status = 'started'
	`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		logger.Error("SyncLogRepository:Finish:Error", "sync_log_id", log.ID, "error", err)
		return err
	}
	return nil
}

func (r *syncLogRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]entity.CalendarSyncLog, error) {
	query := `
		SELECT ` + syncLogColumns + `
		FROM calendar_sync_log
		WHERE connection_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	var logs []entity.CalendarSyncLog
	if err := r.db.SelectContext(ctx, &logs, query, connectionID, limit); err != nil {
		logger.Error("SyncLogRepository:ListByConnection:Error", "connection_id", connectionID, "error", err)
		return nil, err
	}
	return logs, nil
}

func (r *syncLogRepository) FailStale(ctx context.Context, startedBefore time.Time, message string, at time.Time) ([]entity.CalendarSyncLog, error) {
	query := `
		UPDATE calendar_sync_log
		SET sync_status = 'failed', error_message = $1, completed_at = $2
		WHERE sync_status = 'started' AND started_at < $3
		RETURNING ` + syncLogColumns
	var logs []entity.CalendarSyncLog
	if err := r.db.SelectContext(ctx, &logs, query, message, at, startedBefore); err != nil {
		logger.Error("SyncLogRepository:FailStale:Error", "error", err)
		return nil, err
	}
	return logs, nil
}
