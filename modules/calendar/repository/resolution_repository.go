package repository

import (
	"context"

	"homeschool-api/core/database"
	"homeschool-api/core/logger"
	"homeschool-api/modules/calendar/entity"

	"github.com/google/uuid"
)

type ResolutionRepository interface {
	Create(ctx context.Context, resolution *entity.CalendarConflictResolution) error
	ListByEvent(ctx context.Context, orgID, workEventID uuid.UUID) ([]entity.CalendarConflictResolution, error)
}

type resolutionRepository struct {
	db database.IDatabase
}

func NewResolutionRepository(db database.IDatabase) ResolutionRepository {
	return &resolutionRepository{db: db}
}

func (r *resolutionRepository) Create(ctx context.Context, resolution *entity.CalendarConflictResolution) error {
	query := `
		INSERT INTO calendar_conflict_resolutions (
			work_event_id, organization_id, lesson_id, resolution_type,
			new_lesson_start, new_lesson_end, resolved_by, resolved_at, notes
		)
		VALUES (
			:work_event_id, :organization_id, :lesson_id, :resolution_type,
			:new_lesson_start, :new_lesson_end, :resolved_by, :resolved_at, :notes
		)
		RETURNING id
	`
	rows, err := r.db.NamedQueryContext(ctx, query, resolution)
	if err != nil {
		logger.Error("ResolutionRepository:Create:Error", "work_event_id", resolution.WorkEventID, "error", err)
		return err
	}
	defer rows.Close()

	if rows.Next() {
		return rows.Scan(&resolution.ID)
	}
	return rows.Err()
}

func (r *resolutionRepository) ListByEvent(ctx context.Context, orgID, workEventID uuid.UUID) ([]entity.CalendarConflictResolution, error) {
	query := `
		SELECT id, work_event_id, organization_id, lesson_id, resolution_type,
			new_lesson_start, new_lesson_end, resolved_by, resolved_at, notes
		FROM calendar_conflict_resolutions
		WHERE organization_id = $1 AND work_event_id = $2
		ORDER BY resolved_at DESC
	`
	var resolutions []entity.CalendarConflictResolution
	if err := r.db.SelectContext(ctx, &resolutions, query, orgID, workEventID); err != nil {
		logger.Error("ResolutionRepository:ListByEvent:Error", "work_event_id", workEventID, "error", err)
		return nil, err
	}
	return resolutions, nil
}
