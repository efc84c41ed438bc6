package controller

import (
	"net/http"
	"time"

	"homeschool-api/core/errors"
	"homeschool-api/core/logger"

	"github.com/labstack/echo/v4"
)

// SuccessResponse is the envelope of every 2xx body.
type SuccessResponse struct {
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is carried as the message of an *echo.HTTPError so echo's
// default error handler renders it as the body.
type ErrorResponse struct {
	Status    string           `json:"status"`
	Code      errors.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	Details   any              `json:"details,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseController interface {
	BadRequest(appErrCode errors.ErrorCode, message string, details ...any) *echo.HTTPError
	Unauthorized(appErrCode errors.ErrorCode, message string, details ...any) *echo.HTTPError
	Forbidden(appErrCode errors.ErrorCode, message string, details ...any) *echo.HTTPError
	ValidationError(appErrCode errors.ErrorCode, message string, details ...any) *echo.HTTPError
	SuccessResponse(c echo.Context, data any, message string) error
	CreatedResponse(c echo.Context, data any, message string) error
	ErrorResponse(c echo.Context, err error) error
}

type responseHandler struct{}

func NewBaseController() BaseController {
	return responseHandler{}
}

func NewSuccessResponse(httpStatusCode int, data any, message string) *SuccessResponse {
	return &SuccessResponse{
		Status:    httpStatusCode,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewErrorResponse builds the HTTP error; only the first detail is kept.
func NewErrorResponse(httpStatusCode int, appErrCode errors.ErrorCode, message string, details ...any) *echo.HTTPError {
	body := &ErrorResponse{
		Status:    "error",
		Code:      appErrCode,
		Message:   message,
		Timestamp: time.Now(),
	}
	if len(details) > 0 {
		body.Details = details[0]
	}
	return echo.NewHTTPError(httpStatusCode, body)
}

func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

func (responseHandler) BadRequest(code errors.ErrorCode, message string, details ...any) *echo.HTTPError {
	return NewErrorResponse(http.StatusBadRequest, code, message, details...)
}

func (responseHandler) Unauthorized(code errors.ErrorCode, message string, details ...any) *echo.HTTPError {
	return NewErrorResponse(http.StatusUnauthorized, code, message, details...)
}

func (responseHandler) Forbidden(code errors.ErrorCode, message string, details ...any) *echo.HTTPError {
	return NewErrorResponse(http.StatusForbidden, code, message, details...)
}

func (responseHandler) ValidationError(code errors.ErrorCode, message string, details ...any) *echo.HTTPError {
	return NewErrorResponse(http.StatusBadRequest, code, message, details...)
}

func (responseHandler) SuccessResponse(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, data, message))
}

func (responseHandler) CreatedResponse(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusCreated, NewSuccessResponse(http.StatusCreated, data, message))
}

// ErrorResponse converts a service error into an HTTP error. Errors that are
// not an *errors.AppError are reported as internal without leaking the text.
func (responseHandler) ErrorResponse(c echo.Context, err error) error {
	code, msg := errors.ErrInternalServer, "internal server error"

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		if appErr.Message != "" {
			msg = appErr.Message
		}
	}
	status := HTTPStatus(code)

	logger.Error("BaseController:ErrorResponse",
		"path", c.Path(),
		"status", status,
		"code", code,
		"error", err,
	)
	return NewErrorResponse(status, code, msg)
}

// HTTPStatus maps an application error code to the status returned to clients.
func HTTPStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalidInput, errors.ErrInvalidRequestData, errors.ErrInvalidOAuthState,
		errors.ErrUnsupportedProvider, errors.ErrNoRefreshToken:
		return http.StatusBadRequest
	case errors.ErrUnauthorized, errors.ErrTokenExpired, errors.ErrInvalidTokenFormat, errors.ErrMissingAuthorizationHeader:
		return http.StatusUnauthorized
	case errors.ErrForbidden:
		return http.StatusForbidden
	case errors.ErrNotFound, errors.ErrConnectionNotFound:
		return http.StatusNotFound
	case errors.ErrAlreadyExists, errors.ErrSyncInProgress, errors.ErrSyncDisabled:
		return http.StatusConflict
	case errors.ErrOAuthExchangeFailed, errors.ErrTokenRefreshFailed, errors.ErrProviderFetchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
