package repository

import (
	"context"
	"database/sql"
	"time"

	"homeschool-api/core/database"
	"homeschool-api/core/logger"
	"homeschool-api/modules/lesson/entity"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type LessonRepository interface {
	// FindOverlapping returns conflict candidates: lessons with
	// scheduled_start < end AND scheduled_end > start, excluding work
	// blocks and cancelled lessons.
	FindOverlapping(ctx context.Context, orgID uuid.UUID, start, end time.Time) ([]entity.Lesson, error)
	// DetectConflicts runs the detect_calendar_conflicts SQL function.
	DetectConflicts(ctx context.Context, orgID uuid.UUID, start, end time.Time) ([]entity.LessonOverlap, error)
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*entity.Lesson, error)
	Create(ctx context.Context, lesson *entity.Lesson) error
	Reschedule(ctx context.Context, orgID, id uuid.UUID, start, end time.Time) error
	UpdateStatus(ctx context.Context, orgID, id uuid.UUID, status string) error
	MarkFlexible(ctx context.Context, orgID, id uuid.UUID) error
	CancelMany(ctx context.Context, ids []uuid.UUID) error
}

type lessonRepository struct {
	db database.IDatabase
}

func NewLessonRepository(db database.IDatabase) LessonRepository {
	return &lessonRepository{db: db}
}

const lessonColumns = `id, organization_id, title, status, scheduled_start, scheduled_end,
	is_work_block, is_flexible, work_event_id, created_at, updated_at`

func (r *lessonRepository) FindOverlapping(ctx context.Context, orgID uuid.UUID, start, end time.Time) ([]entity.Lesson, error) {
	query := `
		SELECT ` + lessonColumns + `
		FROM lessons
		WHERE organization_id = $1
		AND scheduled_start < $3
		AND scheduled_end > $2
		AND is_work_block = false
		AND status <> 'cancelled'
		ORDER BY scheduled_start
	`
	var lessons []entity.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, orgID, start, end); err != nil {
		logger.Error("LessonRepository:FindOverlapping:Error", "organization_id", orgID, "error", err)
		return nil, err
	}
	return lessons, nil
}

func (r *lessonRepository) DetectConflicts(ctx context.Context, orgID uuid.UUID, start, end time.Time) ([]entity.LessonOverlap, error) {
	query := `SELECT lesson_id, lesson_title, lesson_start, lesson_end, conflict_type FROM detect_calendar_conflicts($1, $2, $3)`
	var rows []entity.LessonOverlap
	if err := r.db.SelectContext(ctx, &rows, query, orgID, start, end); err != nil {
		logger.Error("LessonRepository:DetectConflicts:Error", "organization_id", orgID, "error", err)
		return nil, err
	}
	return rows, nil
}

// GetByID returns nil, nil when the lesson does not exist in the organization.
func (r *lessonRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*entity.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1 AND organization_id = $2`
	var lesson entity.Lesson
	err := r.db.GetContext(ctx, &lesson, query, id, orgID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.Error("LessonRepository:GetByID:Error", "lesson_id", id, "error", err)
		return nil, err
	}
	return &lesson, nil
}

func (r *lessonRepository) Create(ctx context.Context, lesson *entity.Lesson) error {
	query := `
		INSERT INTO lessons (organization_id, title, status, scheduled_start, scheduled_end, is_work_block, is_flexible, work_event_id)
		VALUES (:organization_id, :title, :status, :scheduled_start, :scheduled_end, :is_work_block, :is_flexible, :work_event_id)
		RETURNING id, created_at, updated_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, lesson)
	if err != nil {
		logger.Error("LessonRepository:Create:Error", "organization_id", lesson.OrganizationID, "error", err)
		return err
	}
	defer rows.Close()

	if rows.Next() {
		return rows.Scan(&lesson.ID, &lesson.CreatedAt, &lesson.UpdatedAt)
	}
	return rows.Err()
}

func (r *lessonRepository) Reschedule(ctx context.Context, orgID, id uuid.UUID, start, end time.Time) error {
	query := `
		UPDATE lessons
		SET scheduled_start = $1, scheduled_end = $2, updated_at = NOW()
		WHERE id = $3 AND organization_id = $4
	`
	if err := r.db.ExecContext(ctx, query, start, end, id, orgID); err != nil {
		logger.Error("LessonRepository:Reschedule:Error", "lesson_id", id, "error", err)
		return err
	}
	return nil
}

func (r *lessonRepository) UpdateStatus(ctx context.Context, orgID, id uuid.UUID, status string) error {
	query := `UPDATE lessons SET status = $1, updated_at = NOW() WHERE id = $2 AND organization_id = $3`
	if err := r.db.ExecContext(ctx, query, status, id, orgID); err != nil {
		logger.Error("LessonRepository:UpdateStatus:Error", "lesson_id", id, "error", err)
		return err
	}
	return nil
}

func (r *lessonRepository) MarkFlexible(ctx context.Context, orgID, id uuid.UUID) error {
	query := `UPDATE lessons SET is_flexible = true, updated_at = NOW() WHERE id = $1 AND organization_id = $2`
	if err := r.db.ExecContext(ctx, query, id, orgID); err != nil {
		logger.Error("LessonRepository:MarkFlexible:Error", "lesson_id", id, "error", err)
		return err
	}
	return nil
}

func (r *lessonRepository) CancelMany(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE lessons SET status = 'cancelled', updated_at = NOW() WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	query = r.db.SQLx().Rebind(query)
	if err := r.db.ExecContext(ctx, query, args...); err != nil {
		logger.Error("LessonRepository:CancelMany:Error", "count", len(ids), "error", err)
		return err
	}
	return nil
}
