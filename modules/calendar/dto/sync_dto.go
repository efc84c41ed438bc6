package dto

import (
	"homeschool-api/core/errors"

	"github.com/google/uuid"
)

type SyncError struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// SyncResult is returned for every sync attempt; failures are reported here
// rather than as a Go error so batch syncs keep going.
type SyncResult struct {
	ConnectionID      uuid.UUID   `json:"connection_id"`
	SyncLogID         *uuid.UUID  `json:"sync_log_id,omitempty"`
	SyncType          string      `json:"sync_type,omitempty"`
	Success           bool        `json:"success"`
	EventsFetched     int         `json:"events_fetched"`
	Created           int         `json:"created"`
	Updated           int         `json:"updated"`
	Deleted           int         `json:"deleted"`
	ConflictsDetected int         `json:"conflicts_detected"`
	AutoBlocked       int         `json:"auto_blocked"`
	Errors            []SyncError `json:"errors,omitempty"`
}

func (r *SyncResult) Fail(err error) {
	r.Success = false
	r.Errors = append(r.Errors, SyncError{Code: errors.CodeOf(err), Message: errorMessage(err)})
}

// ErrorCode returns the first recorded error code, or "".
func (r *SyncResult) ErrorCode() errors.ErrorCode {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Code
}

func errorMessage(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		if appErr.Err != nil {
			return appErr.Message + ": " + appErr.Err.Error()
		}
		return appErr.Message
	}
	return err.Error()
}

type SyncAllResponse struct {
	Results   []*SyncResult `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

func NewSyncAllResponse(results []*SyncResult) SyncAllResponse {
	resp := SyncAllResponse{Results: results}
	for _, r := range results {
		if r.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	return resp
}
