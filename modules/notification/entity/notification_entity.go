package entity

import (
	"database/sql/driver"
	"errors"

	"homeschool-api/core/entity"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	TypeCalendarSyncFailed        = "calendar_sync_failed"
	TypeCalendarCriticalConflicts = "calendar_critical_conflicts"
)

type Notification struct {
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	OrganizationID *uuid.UUID `db:"organization_id" json:"organization_id,omitempty"`
	Title          string     `db:"title" json:"title"`
	Message        string     `db:"message" json:"message"`
	Type           string     `db:"type" json:"type"`
	Data           JSONB      `db:"data" json:"data"`
	IsRead         bool       `db:"is_read" json:"is_read"`
	entity.BaseEntity
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

func (a *JSONB) Scan(value any) error {
	if value == nil {
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, a)
}

type PaginatedNotificationEntity = entity.Pagination[Notification]
