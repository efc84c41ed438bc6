package dto

import (
	"time"

	"homeschool-api/modules/calendar/entity"

	"github.com/google/uuid"
)

const (
	ProviderGoogle  = entity.ProviderGoogle
	ProviderOutlook = entity.ProviderOutlook
)

type OAuthStartResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

type OAuthCallbackRequest struct {
	Code       string `json:"code" validate:"required"`
	State      string `json:"state" validate:"required"`
	CalendarID string `json:"calendar_id"`
}

type UpdateConnectionRequest struct {
	CalendarID       *string `json:"calendar_id" validate:"omitempty,min=1"`
	CalendarName     *string `json:"calendar_name"`
	SyncEnabled      *bool   `json:"sync_enabled"`
	AutoBlockEnabled *bool   `json:"auto_block_enabled"`
}

type ConnectionResponse struct {
	ID               uuid.UUID  `json:"id"`
	Provider         string     `json:"provider"`
	CalendarID       string     `json:"calendar_id"`
	CalendarName     string     `json:"calendar_name"`
	CalendarEmail    string     `json:"calendar_email"`
	SyncEnabled      bool       `json:"sync_enabled"`
	AutoBlockEnabled bool       `json:"auto_block_enabled"`
	IncrementalReady bool       `json:"incremental_ready"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus   string     `json:"last_sync_status,omitempty"`
	LastSyncError    string     `json:"last_sync_error,omitempty"`
	ConnectedAt      time.Time  `json:"connected_at"`
}

type ConnectionListResponse struct {
	Connections []ConnectionResponse `json:"connections"`
}

func ToConnectionResponse(conn *entity.CalendarConnection) ConnectionResponse {
	resp := ConnectionResponse{
		ID:               conn.ID,
		Provider:         conn.Provider,
		CalendarID:       conn.CalendarID,
		CalendarName:     conn.CalendarName,
		CalendarEmail:    conn.CalendarEmail,
		SyncEnabled:      conn.SyncEnabled,
		AutoBlockEnabled: conn.AutoBlockEnabled,
		IncrementalReady: conn.HasSyncToken(),
		LastSyncAt:       conn.LastSyncAt,
		ConnectedAt:      conn.CreatedAt,
	}
	if conn.LastSyncStatus != nil {
		resp.LastSyncStatus = *conn.LastSyncStatus
	}
	if conn.LastSyncError != nil {
		resp.LastSyncError = *conn.LastSyncError
	}
	return resp
}

type AutoBlockRequest struct {
	EventIDs []uuid.UUID `json:"event_ids" validate:"required,min=1,max=500"`
}

type AutoBlockResponse struct {
	Blocked int `json:"blocked"`
}
