package repository

import (
	"context"
	"database/sql"
	"time"

	"homeschool-api/core/database"
	"homeschool-api/core/logger"
	"homeschool-api/core/utils"
	"homeschool-api/modules/calendar/entity"

	"github.com/google/uuid"
)

type ConnectionRepository interface {
	// GetByID returns nil, nil when the connection does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarConnection, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]entity.CalendarConnection, error)
	ListEnabledByOrganization(ctx context.Context, orgID uuid.UUID) ([]entity.CalendarConnection, error)
	ListOrganizationsWithEnabledConnections(ctx context.Context) ([]uuid.UUID, error)
	// Upsert creates the connection or refreshes credentials of the existing
	// (organization, provider, calendar) row and re-enables sync.
	Upsert(ctx context.Context, conn *entity.CalendarConnection) error
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error
	UpdateSyncToken(ctx context.Context, id uuid.UUID, syncToken *string) error
	UpdateSyncStatus(ctx context.Context, id uuid.UUID, status string, syncErr *string, at time.Time) error
	UpdateSettings(ctx context.Context, conn *entity.CalendarConnection) error
	Disable(ctx context.Context, id uuid.UUID) error
}

type connectionRepository struct {
	db     database.IDatabase
	cipher utils.TokenCipher
}

func NewConnectionRepository(db database.IDatabase, cipher utils.TokenCipher) ConnectionRepository {
	return &connectionRepository{db: db, cipher: cipher}
}

const connectionColumns = `id, organization_id, user_id, provider, calendar_id, calendar_name, calendar_email,
	access_token, refresh_token, token_expires_at, sync_token, sync_enabled, auto_block_enabled,
	last_sync_at, last_sync_status, last_sync_error, created_at, updated_at`

func (r *connectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE id = $1`
	var conn entity.CalendarConnection
	err := r.db.GetContext(ctx, &conn, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.Error("ConnectionRepository:GetByID:Error", "connection_id", id, "error", err)
		return nil, err
	}
	if err := r.decrypt(&conn); err != nil {
		logger.Error("ConnectionRepository:GetByID:Decrypt:Error", "connection_id", id, "error", err)
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]entity.CalendarConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE organization_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, "ListByOrganization", query, orgID)
}

func (r *connectionRepository) ListEnabledByOrganization(ctx context.Context, orgID uuid.UUID) ([]entity.CalendarConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE organization_id = $1 AND sync_enabled = true ORDER BY created_at`
	return r.list(ctx, "ListEnabledByOrganization", query, orgID)
}

func (r *connectionRepository) list(ctx context.Context, method, query string, args ...any) ([]entity.CalendarConnection, error) {
	var connections []entity.CalendarConnection
	if err := r.db.SelectContext(ctx, &connections, query, args...); err != nil {
		logger.Error("ConnectionRepository:"+method+":Error", "error", err)
		return nil, err
	}
	for i := range connections {
		if err := r.decrypt(&connections[i]); err != nil {
			logger.Error("ConnectionRepository:"+method+":Decrypt:Error", "connection_id", connections[i].ID, "error", err)
			return nil, err
		}
	}
	return connections, nil
}

func (r *connectionRepository) ListOrganizationsWithEnabledConnections(ctx context.Context) ([]uuid.UUID, error) {
	var orgIDs []uuid.UUID
	query := `SELECT DISTINCT organization_id FROM calendar_connections WHERE sync_enabled = true`
	if err := r.db.SelectContext(ctx, &orgIDs, query); err != nil {
		logger.Error("ConnectionRepository:ListOrganizationsWithEnabledConnections:Error", "error", err)
		return nil, err
	}
	return orgIDs, nil
}

func (r *connectionRepository) Upsert(ctx context.Context, conn *entity.CalendarConnection) error {
	accessToken, refreshToken, err := r.encryptPair(conn.AccessToken, conn.RefreshToken)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO calendar_connections (
			organization_id, user_id, provider, calendar_id, calendar_name, calendar_email,
			access_token, refresh_token, token_expires_at, sync_enabled, auto_block_enabled
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10)
		ON CONFLICT (organization_id, provider, calendar_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			calendar_name = EXCLUDED.calendar_name,
			calendar_email = EXCLUDED.calendar_email,
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN calendar_connections.refresh_token ELSE EXCLUDED.refresh_token END,
			token_expires_at = EXCLUDED.token_expires_at,
			sync_enabled = true,
			updated_at = NOW()
		RETURNING id, sync_token, auto_block_enabled, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		conn.OrganizationID, conn.UserID, conn.Provider, conn.CalendarID, conn.CalendarName, conn.CalendarEmail,
		accessToken, refreshToken, conn.TokenExpiresAt, conn.AutoBlockEnabled,
	).Scan(&conn.ID, &conn.SyncToken, &conn.AutoBlockEnabled, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		logger.Error("ConnectionRepository:Upsert:Error", "organization_id", conn.OrganizationID, "provider", conn.Provider, "error", err)
		return err
	}
	conn.SyncEnabled = true
	return nil
}

func (r *connectionRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error {
	encAccess, encRefresh, err := r.encryptPair(accessToken, refreshToken)
	if err != nil {
		return err
	}
	query := `
		UPDATE calendar_connections
		SET access_token = $1, refresh_token = $2, token_expires_at = $3, updated_at = NOW()
		WHERE id = $4
	`
	if err := r.db.ExecContext(ctx, query, encAccess, encRefresh, expiresAt, id); err != nil {
		logger.Error("ConnectionRepository:UpdateTokens:Error", "connection_id", id, "error", err)
		return err
	}
	return nil
}

func (r *connectionRepository) UpdateSyncToken(ctx context.Context, id uuid.UUID, syncToken *string) error {
	query := `UPDATE calendar_connections SET sync_token = $1, updated_at = NOW() WHERE id = $2`
	if err := r.db.ExecContext(ctx, query, syncToken, id); err != nil {
		logger.Error("ConnectionRepository:UpdateSyncToken:Error", "connection_id", id, "error", err)
		return err
	}
	return nil
}

func (r *connectionRepository) UpdateSyncStatus(ctx context.Context, id uuid.UUID, status string, syncErr *string, at time.Time) error {
	query := `
		UPDATE calendar_connections
		SET last_sync_status = $1, last_sync_error = $2, last_sync_at = $3, updated_at = NOW()
		WHERE id = $4
	`
	if err := r.db.ExecContext(ctx, query, status, syncErr, at, id); err != nil {
		logger.Error("ConnectionRepository:UpdateSyncStatus:Error", "connection_id", id, "error", err)
		return err
	}
	return nil
}

func (r *connectionRepository) UpdateSettings(ctx context.Context, conn *entity.CalendarConnection) error {
	query := `
		UPDATE calendar_connections
		SET calendar_id = $1, calendar_name = $2, sync_enabled = $3, auto_block_enabled = $4, sync_token = $5, updated_at = NOW()
		WHERE id = $6
	`
	err := r.db.ExecContext(ctx, query,
		conn.CalendarID, conn.CalendarName, conn.SyncEnabled, conn.AutoBlockEnabled, conn.SyncToken, conn.ID,
	)
	if err != nil {
		logger.Error("ConnectionRepository:UpdateSettings:Error", "connection_id", conn.ID, "error", err)
		return err
	}
	return nil
}

// Disable soft-disables the connection. Rows are kept while lessons reference them.
func (r *connectionRepository) Disable(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE calendar_connections SET sync_enabled = false, updated_at = NOW() WHERE id = $1`
	if err := r.db.ExecContext(ctx, query, id); err != nil {
		logger.Error("ConnectionRepository:Disable:Error", "connection_id", id, "error", err)
		return err
	}
	return nil
}

func (r *connectionRepository) encryptPair(accessToken, refreshToken string) (string, string, error) {
	encAccess, err := r.cipher.Encrypt(accessToken)
	if err != nil {
		logger.Error("ConnectionRepository:Encrypt:Error", "error", err)
		return "", "", err
	}
	encRefresh, err := r.cipher.Encrypt(refreshToken)
	if err != nil {
		logger.Error("ConnectionRepository:Encrypt:Error", "error", err)
		return "", "", err
	}
	return encAccess, encRefresh, nil
}

func (r *connectionRepository) decrypt(conn *entity.CalendarConnection) error {
	access, err := r.cipher.Decrypt(conn.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := r.cipher.Decrypt(conn.RefreshToken)
	if err != nil {
		return err
	}
	conn.AccessToken, conn.RefreshToken = access, refresh
	return nil
}
