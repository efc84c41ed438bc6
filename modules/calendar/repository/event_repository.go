package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"homeschool-api/core/database"
	"homeschool-api/core/logger"
	"homeschool-api/modules/calendar/dto"
	"homeschool-api/modules/calendar/entity"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type EventRepository interface {
	// ListByConnection returns every row of the connection, tombstones included.
	ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]entity.SyncedWorkEvent, error)
	// Upsert writes the provider-owned fields, revives tombstones and reports
	// whether a new row was inserted. Conflict and auto-block state is kept.
	Upsert(ctx context.Context, event *entity.SyncedWorkEvent) (bool, error)
	TouchSynced(ctx context.Context, ids []uuid.UUID, at time.Time) error
	MarkDeleted(ctx context.Context, ids []uuid.UUID, at time.Time) error
	// GetByID returns nil, nil when the event does not exist in the organization.
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*entity.SyncedWorkEvent, error)
	GetByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]entity.SyncedWorkEvent, error)
	// ListAutoBlockCandidates returns live, not yet blocked events whose
	// connection has auto-block enabled. An empty ids slice means all of them.
	ListAutoBlockCandidates(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]entity.SyncedWorkEvent, error)
	UpdateConflictState(ctx context.Context, id uuid.UUID, severity entity.Severity, lessonIDs []string) error
	MarkAutoBlocked(ctx context.Context, id, lessonID uuid.UUID) error
	ListUnresolvedConflicts(ctx context.Context, orgID uuid.UUID, filter dto.ConflictFilter) ([]entity.SyncedWorkEvent, error)
	GetConflictStatistics(ctx context.Context, orgID uuid.UUID, upcomingFrom, upcomingTo time.Time) (*entity.ConflictStatistics, error)
}

type eventRepository struct {
	db database.IDatabase
}

func NewEventRepository(db database.IDatabase) EventRepository {
	return &eventRepository{db: db}
}

var eventColumnNames = []string{
	"id", "connection_id", "organization_id", "external_event_id", "title", "description", "location",
	"start_time", "end_time", "is_all_day", "is_meeting", "attendee_count", "external_status", "is_recurring",
	"recurring_event_id", "recurrence_rule", "has_conflict", "conflict_severity", "conflicting_lesson_ids",
	"auto_blocked", "auto_block_lesson_id", "is_deleted", "last_synced_at", "created_at", "updated_at",
}

var eventColumns = strings.Join(eventColumnNames, ", ")

func aliasedEventColumns(alias string) string {
	cols := make([]string, len(eventColumnNames))
	for i, c := range eventColumnNames {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func (r *eventRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]entity.SyncedWorkEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM synced_work_events WHERE connection_id = $1`
	var events []entity.SyncedWorkEvent
	if err := r.db.SelectContext(ctx, &events, query, connectionID); err != nil {
		logger.Error("EventRepository:ListByConnection:Error", "connection_id", connectionID, "error", err)
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) Upsert(ctx context.Context, event *entity.SyncedWorkEvent) (bool, error) {
	if event.RecurrenceRule == nil {
		event.RecurrenceRule = pq.StringArray{}
	}
	query := `
		INSERT INTO synced_work_events (
			connection_id, organization_id, external_event_id, title, description, location,
			start_time, end_time, is_all_day, is_meeting, attendee_count, external_status,
			is_recurring, recurring_event_id, recurrence_rule, is_deleted, last_synced_at
		)
		VALUES (
			:connection_id, :organization_id, :external_event_id, :title, :description, :location,
			:start_time, :end_time, :is_all_day, :is_meeting, :attendee_count, :external_status,
			:is_recurring, :recurring_event_id, :recurrence_rule, false, :last_synced_at
		)
		ON CONFLICT (connection_id, external_event_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			location = EXCLUDED.location,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			is_all_day = EXCLUDED.is_all_day,
			is_meeting = EXCLUDED.is_meeting,
			attendee_count = EXCLUDED.attendee_count,
			external_status = EXCLUDED.external_status,
			is_recurring = EXCLUDED.is_recurring,
			recurring_event_id = EXCLUDED.recurring_event_id,
			recurrence_rule = EXCLUDED.recurrence_rule,
			is_deleted = false,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted
	`
	rows, err := r.db.NamedQueryContext(ctx, query, event)
	if err != nil {
		logger.Error("EventRepository:Upsert:Error", "connection_id", event.ConnectionID, "external_event_id", event.ExternalEventID, "error", err)
		return false, err
	}
	defer rows.Close()

	var inserted bool
	if rows.Next() {
		if err := rows.Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt, &inserted); err != nil {
			return false, err
		}
		event.IsDeleted = false
		return inserted, nil
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return false, sql.ErrNoRows
}

func (r *eventRepository) TouchSynced(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	return r.execIn(ctx, "TouchSynced", `UPDATE synced_work_events SET last_synced_at = ? WHERE id IN (?)`, at, ids)
}

// MarkDeleted tombstones rows and unlinks their work-block placeholders so a
// revived event is blocked again.
func (r *eventRepository) MarkDeleted(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	return r.execIn(ctx, "MarkDeleted", `
		UPDATE synced_work_events
		SET is_deleted = true, auto_blocked = false, auto_block_lesson_id = NULL,
			last_synced_at = ?, updated_at = NOW()
		WHERE id IN (?)`, at, ids)
}

func (r *eventRepository) execIn(ctx context.Context, method, query string, at time.Time, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(query, at, ids)
	if err != nil {
		return err
	}
	query = r.db.SQLx().Rebind(query)
	if err := r.db.ExecContext(ctx, query, args...); err != nil {
		logger.Error("EventRepository:"+method+":Error", "count", len(ids), "error", err)
		return err
	}
	return nil
}

func (r *eventRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*entity.SyncedWorkEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM synced_work_events WHERE id = $1 AND organization_id = $2`
	var event entity.SyncedWorkEvent
	err := r.db.GetContext(ctx, &event, query, id, orgID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.Error("EventRepository:GetByID:Error", "event_id", id, "error", err)
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) GetByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]entity.SyncedWorkEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+eventColumns+` FROM synced_work_events WHERE organization_id = ? AND id IN (?)`, orgID, ids)
	if err != nil {
		return nil, err
	}
	var events []entity.SyncedWorkEvent
	if err := r.db.SelectContext(ctx, &events, r.db.SQLx().Rebind(query), args...); err != nil {
		logger.Error("EventRepository:GetByIDs:Error", "organization_id", orgID, "error", err)
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) ListAutoBlockCandidates(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]entity.SyncedWorkEvent, error) {
	base := `
		SELECT ` + aliasedEventColumns("e") + `
		FROM synced_work_events e
		JOIN calendar_connections c ON c.id = e.connection_id
		WHERE e.organization_id = ?
		AND c.auto_block_enabled = true
		AND e.auto_blocked = false
		AND e.is_deleted = false`
	args := []any{orgID}
	if len(ids) > 0 {
		base += ` AND e.id IN (?)`
		args = append(args, ids)
	}
	base += ` ORDER BY e.start_time`

	query, inArgs, err := sqlx.In(base, args...)
	if err != nil {
		return nil, err
	}
	var events []entity.SyncedWorkEvent
	if err := r.db.SelectContext(ctx, &events, r.db.SQLx().Rebind(query), inArgs...); err != nil {
		logger.Error("EventRepository:ListAutoBlockCandidates:Error", "organization_id", orgID, "error", err)
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) UpdateConflictState(ctx context.Context, id uuid.UUID, severity entity.Severity, lessonIDs []string) error {
	if lessonIDs == nil {
		lessonIDs = []string{}
	}
	query := `
		UPDATE synced_work_events
		SET has_conflict = $1, conflict_severity = $2, conflicting_lesson_ids = $3, updated_at = NOW()
		WHERE id = $4
	`
	hasConflict := len(lessonIDs) > 0
	if err := r.db.ExecContext(ctx, query, hasConflict, string(severity), pq.StringArray(lessonIDs), id); err != nil {
		logger.Error("EventRepository:UpdateConflictState:Error", "event_id", id, "error", err)
		return err
	}
	return nil
}

func (r *eventRepository) MarkAutoBlocked(ctx context.Context, id, lessonID uuid.UUID) error {
	query := `UPDATE synced_work_events SET auto_blocked = true, auto_block_lesson_id = $1, updated_at = NOW() WHERE id = $2`
	if err := r.db.ExecContext(ctx, query, lessonID, id); err != nil {
		logger.Error("EventRepository:MarkAutoBlocked:Error", "event_id", id, "error", err)
		return err
	}
	return nil
}

func (r *eventRepository) ListUnresolvedConflicts(ctx context.Context, orgID uuid.UUID, filter dto.ConflictFilter) ([]entity.SyncedWorkEvent, error) {
	conditions := []string{
		"e.organization_id = $1",
		"e.has_conflict = true",
		"e.is_deleted = false",
		"NOT EXISTS (SELECT 1 FROM calendar_conflict_resolutions cr WHERE cr.work_event_id = e.id)",
	}
	args := []any{orgID}

	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		conditions = append(conditions, fmt.Sprintf("e.end_time > $%d", len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		conditions = append(conditions, fmt.Sprintf("e.start_time < $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		conditions = append(conditions, fmt.Sprintf("e.conflict_severity = $%d", len(args)))
	}

	query := `
		SELECT ` + aliasedEventColumns("e") + `
		FROM synced_work_events e
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY e.start_time`

	var events []entity.SyncedWorkEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		logger.Error("EventRepository:ListUnresolvedConflicts:Error", "organization_id", orgID, "error", err)
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) GetConflictStatistics(ctx context.Context, orgID uuid.UUID, upcomingFrom, upcomingTo time.Time) (*entity.ConflictStatistics, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE e.conflict_severity = 'critical') AS critical,
			COUNT(*) FILTER (WHERE e.conflict_severity = 'warning') AS warning,
			COUNT(*) FILTER (WHERE r.resolved) AS resolved,
			COUNT(*) FILTER (WHERE NOT r.resolved) AS unresolved,
			COUNT(*) FILTER (WHERE NOT r.resolved AND e.start_time >= $2 AND e.start_time < $3) AS upcoming
		FROM synced_work_events e
		CROSS JOIN LATERAL (
			SELECT EXISTS (SELECT 1 FROM calendar_conflict_resolutions cr WHERE cr.work_event_id = e.id) AS resolved
		) r
		WHERE e.organization_id = $1 AND e.has_conflict = true AND e.is_deleted = false
	`
	var stats entity.ConflictStatistics
	if err := r.db.GetContext(ctx, &stats, query, orgID, upcomingFrom, upcomingTo); err != nil {
		logger.Error("EventRepository:GetConflictStatistics:Error", "organization_id", orgID, "error", err)
		return nil, err
	}
	return &stats, nil
}
