package entity

import (
	"time"

	"github.com/google/uuid"
)

type ConflictType string

const (
	ConflictFullOverlap      ConflictType = "full_overlap"
	ConflictWorkWithinLesson ConflictType = "work_within_lesson"
	ConflictPartialOverlap   ConflictType = "partial_overlap"
)

type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	return s == SeverityNone || s == SeverityWarning || s == SeverityCritical
}

type ResolutionType string

const (
	ResolutionRescheduleLesson ResolutionType = "reschedule_lesson"
	ResolutionRescheduleWork   ResolutionType = "reschedule_work"
	ResolutionCancelLesson     ResolutionType = "cancel_lesson"
	ResolutionMarkFlexible     ResolutionType = "mark_flexible"
	ResolutionIgnoreConflict   ResolutionType = "ignore_conflict"
)

// CalendarConflictResolution records a user decision. Its presence for a
// work event suppresses that event's conflicts from the unresolved list.
type CalendarConflictResolution struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	WorkEventID    uuid.UUID      `db:"work_event_id" json:"work_event_id"`
	OrganizationID uuid.UUID      `db:"organization_id" json:"organization_id"`
	LessonID       *uuid.UUID     `db:"lesson_id" json:"lesson_id,omitempty"`
	ResolutionType ResolutionType `db:"resolution_type" json:"resolution_type"`
	NewLessonStart *time.Time     `db:"new_lesson_start" json:"new_lesson_start,omitempty"`
	NewLessonEnd   *time.Time     `db:"new_lesson_end" json:"new_lesson_end,omitempty"`
	ResolvedBy     uuid.UUID      `db:"resolved_by" json:"resolved_by"`
	ResolvedAt     time.Time      `db:"resolved_at" json:"resolved_at"`
	Notes          *string        `db:"notes" json:"notes,omitempty"`
}

func (CalendarConflictResolution) TableName() string {
	return "calendar_conflict_resolutions"
}

// ConflictStatistics is the dashboard aggregate for one organization.
type ConflictStatistics struct {
	Total      int `db:"total" json:"total"`
	Critical   int `db:"critical" json:"critical"`
	Warning    int `db:"warning" json:"warning"`
	Resolved   int `db:"resolved" json:"resolved"`
	Unresolved int `db:"unresolved" json:"unresolved"`
	Upcoming   int `db:"upcoming" json:"upcoming"`
}
