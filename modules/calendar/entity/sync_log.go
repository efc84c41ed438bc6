package entity

import (
	"time"

	"github.com/google/uuid"
)

const (
	SyncStatusStarted   = "started"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"

	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"
)

// CalendarSyncLog is one row per sync attempt. Rows are only ever inserted and finalized.
type CalendarSyncLog struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	ConnectionID      uuid.UUID  `db:"connection_id" json:"connection_id"`
	OrganizationID    uuid.UUID  `db:"organization_id" json:"organization_id"`
	SyncType          string     `db:"sync_type" json:"sync_type"`
	SyncStatus        string     `db:"sync_status" json:"sync_status"`
	EventsFetched     int        `db:"events_fetched" json:"events_fetched"`
	EventsCreated     int        `db:"events_created" json:"events_created"`
	EventsUpdated     int        `db:"events_updated" json:"events_updated"`
	EventsDeleted     int        `db:"events_deleted" json:"events_deleted"`
	ConflictsDetected int        `db:"conflicts_detected" json:"conflicts_detected"`
	ErrorMessage      *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt         time.Time  `db:"started_at" json:"started_at"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

func (CalendarSyncLog) TableName() string {
	return "calendar_sync_log"
}
