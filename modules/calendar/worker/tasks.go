package worker

import (
	"time"

	"homeschool-api/core/constants"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type SyncConnectionPayload struct {
	ConnectionID uuid.UUID `json:"connection_id"`
}

type SyncOrganizationPayload struct {
	OrganizationID uuid.UUID `json:"organization_id"`
}

// NewSyncConnectionTask builds a sync task for one connection. Only one task
// per connection can be queued within uniqueFor.
func NewSyncConnectionTask(connectionID uuid.UUID, uniqueFor time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(SyncConnectionPayload{ConnectionID: connectionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(constants.TaskSyncConnection, payload, taskOptions(uniqueFor)...), nil
}

func NewSyncOrganizationTask(orgID uuid.UUID, uniqueFor time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(SyncOrganizationPayload{OrganizationID: orgID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(constants.TaskSyncOrganization, payload, taskOptions(uniqueFor)...), nil
}

func taskOptions(uniqueFor time.Duration) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(constants.QueueCalendar),
		asynq.MaxRetry(constants.TaskMaxRetry),
		asynq.Timeout(constants.SyncTaskTimeout),
	}
	if uniqueFor > 0 {
		opts = append(opts, asynq.Unique(uniqueFor))
	}
	return opts
}
