package dto

import (
	"time"

	"homeschool-api/modules/calendar/entity"

	"github.com/google/uuid"
)

// CalendarConflict pairs a work event with one lesson. Computed on demand, never stored.
type CalendarConflict struct {
	WorkEventID          uuid.UUID               `json:"work_event_id"`
	LessonID             uuid.UUID               `json:"lesson_id"`
	LessonTitle          string                  `json:"lesson_title"`
	LessonStart          time.Time               `json:"lesson_start"`
	LessonEnd            time.Time               `json:"lesson_end"`
	ConflictType         entity.ConflictType     `json:"conflict_type"`
	OverlapMinutes       int                     `json:"overlap_minutes"`
	IsMeeting            bool                    `json:"is_meeting"`
	SuggestedResolutions []entity.ResolutionType `json:"suggested_resolutions"`
}

type ConflictResult struct {
	HasConflict bool               `json:"has_conflict"`
	Conflicts   []CalendarConflict `json:"conflicts"`
	Severity    entity.Severity    `json:"severity"`
}

// ConflictRefreshSummary totals one batch of persisted conflict checks.
type ConflictRefreshSummary struct {
	Conflicts      int `json:"conflicts"`
	CriticalEvents int `json:"critical_events"`
	Failed         int `json:"failed"`
}

type ConflictFilter struct {
	StartDate *time.Time      `query:"start_date"`
	EndDate   *time.Time      `query:"end_date"`
	Severity  entity.Severity `query:"severity" validate:"omitempty,oneof=none warning critical"`
}

type EventConflicts struct {
	Event     entity.SyncedWorkEvent `json:"event"`
	Severity  entity.Severity        `json:"severity"`
	Conflicts []CalendarConflict     `json:"conflicts"`
}

type ResolveConflictRequest struct {
	WorkEventID    uuid.UUID             `json:"work_event_id" validate:"required"`
	LessonID       *uuid.UUID            `json:"lesson_id"`
	ResolutionType entity.ResolutionType `json:"resolution_type" validate:"required,oneof=reschedule_lesson reschedule_work cancel_lesson mark_flexible ignore_conflict"`
	NewLessonStart *time.Time            `json:"new_lesson_start"`
	NewLessonEnd   *time.Time            `json:"new_lesson_end"`
	Notes          string                `json:"notes" validate:"max=2000"`
}
