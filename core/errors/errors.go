package errors

import (
	stdErrors "errors"
	"fmt"
)

type ErrorCode string

const (
	ErrInternalServer             ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrInvalidInput               ErrorCode = "INVALID_INPUT"
	ErrInvalidRequestData         ErrorCode = "INVALID_REQUEST_DATA"
	ErrUnauthorized               ErrorCode = "UNAUTHORIZED"
	ErrTokenExpired               ErrorCode = "TOKEN_EXPIRED"
	ErrInvalidTokenFormat         ErrorCode = "INVALID_TOKEN_FORMAT"
	ErrMissingAuthorizationHeader ErrorCode = "MISSING_AUTHORIZATION_HEADER"
	ErrForbidden                  ErrorCode = "FORBIDDEN"
	ErrNotFound                   ErrorCode = "NOT_FOUND"
	ErrAlreadyExists              ErrorCode = "ALREADY_EXISTS"

	// Calendar sync
	ErrConnectionNotFound      ErrorCode = "CONNECTION_NOT_FOUND"
	ErrSyncDisabled            ErrorCode = "SYNC_DISABLED"
	ErrSyncInProgress          ErrorCode = "SYNC_IN_PROGRESS"
	ErrNoRefreshToken          ErrorCode = "NO_REFRESH_TOKEN"
	ErrTokenRefreshFailed      ErrorCode = "TOKEN_REFRESH_FAILED"
	ErrProviderFetchFailed     ErrorCode = "PROVIDER_FETCH_FAILED"
	ErrSyncTokenExpired        ErrorCode = "SYNC_TOKEN_EXPIRED"
	ErrReconciliationFailed    ErrorCode = "RECONCILIATION_FAILED"
	ErrConflictDetectionFailed ErrorCode = "CONFLICT_DETECTION_FAILED"

	// OAuth
	ErrOAuthExchangeFailed ErrorCode = "OAUTH_EXCHANGE_FAILED"
	ErrInvalidOAuthState   ErrorCode = "INVALID_OAUTH_STATE"
	ErrUnsupportedProvider ErrorCode = "UNSUPPORTED_PROVIDER"
)

// AppError is the error type returned across service boundaries.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the outermost AppError in the chain, or
// ErrInternalServer when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternalServer
}

// HasCode reports whether any AppError in the chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stdErrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// Is and As forward to the standard library so callers need a single import.
func Is(err, target error) bool { return stdErrors.Is(err, target) }

func As(err error, target any) bool { return stdErrors.As(err, target) }
