package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"homeschool-api/core/database"
	"homeschool-api/modules/lesson/entity"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lessonRowColumns = []string{
	"id", "organization_id", "title", "status", "scheduled_start", "scheduled_end",
	"is_work_block", "is_flexible", "work_event_id", "created_at", "updated_at",
}

func setupMockDB(t *testing.T) (LessonRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLessonRepository(database.NewDatabase(sqlx.NewDb(db, "postgres"))), mock
}

func TestFindOverlapping(t *testing.T) {
	repo, mock := setupMockDB(t)
	ctx := context.Background()
	orgID := uuid.New()
	lessonID := uuid.New()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	rows := sqlmock.NewRows(lessonRowColumns).
		AddRow(lessonID.String(), orgID.String(), "Fractions", "scheduled", start, end, false, false, nil, start, start)

	mock.ExpectQuery(`FROM lessons\s+WHERE organization_id = \$1\s+AND scheduled_start < \$3\s+AND scheduled_end > \$2\s+AND is_work_block = false`).
		WithArgs(orgID, start, end).
		WillReturnRows(rows)

	lessons, err := repo.FindOverlapping(ctx, orgID, start, end)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, lessonID, lessons[0].ID)
	assert.Equal(t, "Fractions", lessons[0].Title)
	assert.Nil(t, lessons[0].WorkEventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDetectConflicts(t *testing.T) {
	repo, mock := setupMockDB(t)
	orgID := uuid.New()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery(`FROM detect_calendar_conflicts\(\$1, \$2, \$3\)`).
		WithArgs(orgID, start, end).
		WillReturnRows(sqlmock.NewRows([]string{"lesson_id", "lesson_title", "lesson_start", "lesson_end", "conflict_type"}).
			AddRow(uuid.New().String(), "Reading", start, end, "full_overlap"))

	rows, err := repo.DetectConflicts(context.Background(), orgID, start, end)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "full_overlap", rows[0].ConflictType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := setupMockDB(t)
	orgID, id := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM lessons WHERE id = \$1 AND organization_id = \$2`).
		WithArgs(id, orgID).
		WillReturnError(sql.ErrNoRows)

	lesson, err := repo.GetByID(context.Background(), orgID, id)
	require.NoError(t, err)
	assert.Nil(t, lesson)
}

func TestCreate_WorkBlock(t *testing.T) {
	repo, mock := setupMockDB(t)
	orgID, eventID, newID := uuid.New(), uuid.New(), uuid.New()
	start := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)
	now := time.Now()

	lesson := entity.NewWorkBlock(orgID, eventID, "Standup", start, start.Add(30*time.Minute))

	mock.ExpectQuery(`INSERT INTO lessons`).
		WithArgs(orgID, "Work Block: Standup", "blocked", start, start.Add(30*time.Minute), true, false, &eventID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(newID.String(), now, now))

	require.NoError(t, repo.Create(context.Background(), lesson))
	assert.Equal(t, newID, lesson.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelMany(t *testing.T) {
	repo, mock := setupMockDB(t)
	a, b := uuid.New(), uuid.New()

	mock.ExpectExec(`UPDATE lessons SET status = 'cancelled', updated_at = NOW\(\) WHERE id IN \(\$1, \$2\)`).
		WithArgs(a, b).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.CancelMany(context.Background(), []uuid.UUID{a, b}))
	require.NoError(t, repo.CancelMany(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
