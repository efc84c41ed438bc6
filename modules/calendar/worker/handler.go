package worker

import (
	"context"
	"fmt"

	"homeschool-api/core/constants"
	"homeschool-api/core/errors"
	"homeschool-api/core/logger"
	"homeschool-api/modules/calendar/dto"
	"homeschool-api/modules/calendar/service"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Codes a retry cannot fix.
var permanentCodes = map[errors.ErrorCode]bool{
	errors.ErrConnectionNotFound:  true,
	errors.ErrSyncDisabled:        true,
	errors.ErrSyncInProgress:      true,
	errors.ErrNoRefreshToken:      true,
	errors.ErrUnsupportedProvider: true,
}

type Handler struct {
	sync service.SyncService
}

func NewHandler(sync service.SyncService) *Handler {
	return &Handler{sync: sync}
}

func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(constants.TaskSyncConnection, h.HandleSyncConnection)
	mux.HandleFunc(constants.TaskSyncOrganization, h.HandleSyncOrganization)
}

func (h *Handler) HandleSyncConnection(ctx context.Context, task *asynq.Task) error {
	var payload SyncConnectionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.ConnectionID == uuid.Nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	result := h.sync.SyncConnection(ctx, payload.ConnectionID)
	return resultError(result)
}

// HandleSyncOrganization syncs every enabled connection of an organization.
// Individual connection failures are already recorded in their sync logs, so
// only a failure to list the connections is retried.
func (h *Handler) HandleSyncOrganization(ctx context.Context, task *asynq.Task) error {
	var payload SyncOrganizationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.OrganizationID == uuid.Nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	results, err := h.sync.SyncAllConnections(ctx, payload.OrganizationID)
	if err != nil {
		return err
	}
	summary := dto.NewSyncAllResponse(results)
	logger.Info("Worker:HandleSyncOrganization:Done",
		"organization_id", payload.OrganizationID, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return nil
}

func resultError(result *dto.SyncResult) error {
	if result.Success {
		return nil
	}
	code := result.ErrorCode()
	msg := "sync failed"
	if len(result.Errors) > 0 {
		msg = result.Errors[0].Message
	}
	err := errors.NewAppError(code, msg, nil)
	if permanentCodes[code] {
		logger.Warn("Worker:HandleSyncConnection:Skip", "connection_id", result.ConnectionID, "code", code)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
