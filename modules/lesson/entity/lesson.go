package entity

import (
	"time"

	"homeschool-api/core/entity"

	"github.com/google/uuid"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusBlocked   = "blocked"
)

const WorkBlockTitlePrefix = "Work Block: "

type Lesson struct {
	entity.BaseEntity
	OrganizationID uuid.UUID  `db:"organization_id" json:"organization_id"`
	Title          string     `db:"title" json:"title"`
	Status         string     `db:"status" json:"status"`
	ScheduledStart time.Time  `db:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd   time.Time  `db:"scheduled_end" json:"scheduled_end"`
	IsWorkBlock    bool       `db:"is_work_block" json:"is_work_block"`
	IsFlexible     bool       `db:"is_flexible" json:"is_flexible"`
	WorkEventID    *uuid.UUID `db:"work_event_id" json:"work_event_id,omitempty"`
}

func (l Lesson) Duration() time.Duration {
	return l.ScheduledEnd.Sub(l.ScheduledStart)
}

// LessonOverlap is one row of detect_calendar_conflicts.
type LessonOverlap struct {
	LessonID     uuid.UUID `db:"lesson_id"`
	LessonTitle  string    `db:"lesson_title"`
	LessonStart  time.Time `db:"lesson_start"`
	LessonEnd    time.Time `db:"lesson_end"`
	ConflictType string    `db:"conflict_type"`
}

// NewWorkBlock builds the placeholder lesson reserving time for a work event.
func NewWorkBlock(orgID, workEventID uuid.UUID, eventTitle string, start, end time.Time) *Lesson {
	return &Lesson{
		OrganizationID: orgID,
		Title:          WorkBlockTitlePrefix + eventTitle,
		Status:         StatusBlocked,
		ScheduledStart: start,
		ScheduledEnd:   end,
		IsWorkBlock:    true,
		WorkEventID:    &workEventID,
	}
}
