package server

import (
	"context"

	"homeschool-api/modules/calendar/dto"

	"github.com/google/uuid"
)

// RunSync performs one sync in the foreground, for a single connection or
// every enabled connection of an organization.
func RunSync(ctx context.Context, app *App, connectionID, orgID uuid.UUID) ([]*dto.SyncResult, error) {
	if connectionID != uuid.Nil {
		return []*dto.SyncResult{app.Calendar.Sync.SyncConnection(ctx, connectionID)}, nil
	}
	return app.Calendar.Sync.SyncAllConnections(ctx, orgID)
}
