package entity

import (
	"slices"
	"time"

	"homeschool-api/core/entity"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SyncedWorkEvent mirrors one external calendar event. Rows are tombstoned
// with IsDeleted and never removed.
type SyncedWorkEvent struct {
	entity.BaseEntity
	ConnectionID         uuid.UUID      `db:"connection_id" json:"connection_id"`
	OrganizationID       uuid.UUID      `db:"organization_id" json:"organization_id"`
	ExternalEventID      string         `db:"external_event_id" json:"external_event_id"`
	Title                string         `db:"title" json:"title"`
	Description          string         `db:"description" json:"description"`
	Location             string         `db:"location" json:"location"`
	StartTime            time.Time      `db:"start_time" json:"start_time"`
	EndTime              time.Time      `db:"end_time" json:"end_time"`
	IsAllDay             bool           `db:"is_all_day" json:"is_all_day"`
	IsMeeting            bool           `db:"is_meeting" json:"is_meeting"`
	AttendeeCount        int            `db:"attendee_count" json:"attendee_count"`
	ExternalStatus       string         `db:"external_status" json:"external_status"`
	IsRecurring          bool           `db:"is_recurring" json:"is_recurring"`
	RecurringEventID     string         `db:"recurring_event_id" json:"recurring_event_id,omitempty"`
	RecurrenceRule       pq.StringArray `db:"recurrence_rule" json:"recurrence_rule,omitempty"`
	HasConflict          bool           `db:"has_conflict" json:"has_conflict"`
	ConflictSeverity     string         `db:"conflict_severity" json:"conflict_severity"`
	ConflictingLessonIDs pq.StringArray `db:"conflicting_lesson_ids" json:"conflicting_lesson_ids"`
	AutoBlocked          bool           `db:"auto_blocked" json:"auto_blocked"`
	AutoBlockLessonID    *uuid.UUID     `db:"auto_block_lesson_id" json:"auto_block_lesson_id,omitempty"`
	IsDeleted            bool           `db:"is_deleted" json:"is_deleted"`
	LastSyncedAt         time.Time      `db:"last_synced_at" json:"last_synced_at"`
}

func (SyncedWorkEvent) TableName() string {
	return "synced_work_events"
}

// SameExternalState reports whether the provider-owned fields match.
func (e SyncedWorkEvent) SameExternalState(other SyncedWorkEvent) bool {
	return e.Title == other.Title &&
		e.Description == other.Description &&
		e.Location == other.Location &&
		e.StartTime.Equal(other.StartTime) &&
		e.EndTime.Equal(other.EndTime) &&
		e.IsAllDay == other.IsAllDay &&
		e.IsMeeting == other.IsMeeting &&
		e.AttendeeCount == other.AttendeeCount &&
		e.ExternalStatus == other.ExternalStatus &&
		e.IsRecurring == other.IsRecurring &&
		e.RecurringEventID == other.RecurringEventID &&
		slices.Equal(e.RecurrenceRule, other.RecurrenceRule)
}
