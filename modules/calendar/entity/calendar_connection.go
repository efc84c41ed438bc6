package entity

import (
	"time"

	"homeschool-api/core/entity"

	"github.com/google/uuid"
)

const (
	ProviderGoogle  = "google"
	ProviderOutlook = "outlook"
)

// CalendarConnection stores one organization's credential for one external calendar
type CalendarConnection struct {
	entity.BaseEntity
	OrganizationID   uuid.UUID  `db:"organization_id" json:"organization_id"`
	UserID           uuid.UUID  `db:"user_id" json:"user_id"`
	Provider         string     `db:"provider" json:"provider"` // "google" | "outlook"
	CalendarID       string     `db:"calendar_id" json:"calendar_id"`
	CalendarName     string     `db:"calendar_name" json:"calendar_name"`
	CalendarEmail    string     `db:"calendar_email" json:"calendar_email"`
	AccessToken      string     `db:"access_token" json:"-"`
	RefreshToken     string     `db:"refresh_token" json:"-"`
	TokenExpiresAt   *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	SyncToken        *string    `db:"sync_token" json:"-"`
	SyncEnabled      bool       `db:"sync_enabled" json:"sync_enabled"`
	AutoBlockEnabled bool       `db:"auto_block_enabled" json:"auto_block_enabled"`
	LastSyncAt       *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	LastSyncStatus   *string    `db:"last_sync_status" json:"last_sync_status,omitempty"`
	LastSyncError    *string    `db:"last_sync_error" json:"last_sync_error,omitempty"`
}

func (CalendarConnection) TableName() string {
	return "calendar_connections"
}

func (c CalendarConnection) HasSyncToken() bool {
	return c.SyncToken != nil && *c.SyncToken != ""
}
