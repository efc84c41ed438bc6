package constants

import "time"

// Database
const (
	DatabaseDriver           = "postgres"
	DatabaseConnectTimeout   = 10 // seconds
	DatabaseStatementTimeout = 30 // seconds
)

// HTTP
const (
	DefaultPageNumber = 1
	DefaultPageSize   = 20
	MaxPageSize       = 100
	ShutdownTimeout   = 15 * time.Second
	ProviderTimeout   = 30 * time.Second
)

// Context keys set by the auth middleware
const (
	ContextKeyUserID         = "user_id"
	ContextKeyOrganizationID = "organization_id"
)

// Redis keys
const (
	SyncLockKeyPrefix   = "calendar:sync_lock:"
	OAuthStateKeyPrefix = "calendar:oauth_state:"
	TokenRefreshLockTTL = time.Minute
)

// Background tasks
const (
	TaskSyncConnection   = "calendar:sync_connection"
	TaskSyncOrganization = "calendar:sync_organization"
	QueueCalendar        = "calendar"
	TaskMaxRetry         = 3
	SyncTaskTimeout      = 15 * time.Minute
)
