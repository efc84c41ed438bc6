package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"homeschool-api/core/constants"
	"homeschool-api/core/errors"
	"homeschool-api/core/validator"
	"homeschool-api/modules/calendar/dto"
	"homeschool-api/modules/calendar/entity"
	"homeschool-api/modules/calendar/provider"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCalendarService struct {
	mock.Mock
}

func (m *mockCalendarService) StartOAuth(ctx context.Context, providerName string, userID uuid.UUID) (*dto.OAuthStartResponse, error) {
	args := m.Called(ctx, providerName, userID)
	resp, _ := args.Get(0).(*dto.OAuthStartResponse)
	return resp, args.Error(1)
}

func (m *mockCalendarService) CompleteOAuth(ctx context.Context, orgID, userID uuid.UUID, providerName string, req *dto.OAuthCallbackRequest) (*dto.ConnectionResponse, error) {
	args := m.Called(ctx, orgID, userID, providerName, req)
	resp, _ := args.Get(0).(*dto.ConnectionResponse)
	return resp, args.Error(1)
}

func (m *mockCalendarService) ListConnections(ctx context.Context, orgID uuid.UUID) (*dto.ConnectionListResponse, error) {
	args := m.Called(ctx, orgID)
	resp, _ := args.Get(0).(*dto.ConnectionListResponse)
	return resp, args.Error(1)
}

func (m *mockCalendarService) GetConnection(ctx context.Context, orgID, connectionID uuid.UUID) (*dto.ConnectionResponse, error) {
	args := m.Called(ctx, orgID, connectionID)
	resp, _ := args.Get(0).(*dto.ConnectionResponse)
	return resp, args.Error(1)
}

func (m *mockCalendarService) ListProviderCalendars(ctx context.Context, orgID, connectionID uuid.UUID) ([]provider.Calendar, error) {
	args := m.Called(ctx, orgID, connectionID)
	resp, _ := args.Get(0).([]provider.Calendar)
	return resp, args.Error(1)
}

func (m *mockCalendarService) UpdateConnectionSettings(ctx context.Context, orgID, connectionID uuid.UUID, req *dto.UpdateConnectionRequest) (*dto.ConnectionResponse, error) {
	args := m.Called(ctx, orgID, connectionID, req)
	resp, _ := args.Get(0).(*dto.ConnectionResponse)
	return resp, args.Error(1)
}

func (m *mockCalendarService) DisconnectCalendar(ctx context.Context, orgID, connectionID uuid.UUID) error {
	return m.Called(ctx, orgID, connectionID).Error(0)
}

func (m *mockCalendarService) ListSyncLogs(ctx context.Context, orgID, connectionID uuid.UUID, limit int) ([]entity.CalendarSyncLog, error) {
	args := m.Called(ctx, orgID, connectionID, limit)
	resp, _ := args.Get(0).([]entity.CalendarSyncLog)
	return resp, args.Error(1)
}

type mockSyncService struct {
	mock.Mock
}

func (m *mockSyncService) SyncConnection(ctx context.Context, connectionID uuid.UUID) *dto.SyncResult {
	return m.Called(ctx, connectionID).Get(0).(*dto.SyncResult)
}

func (m *mockSyncService) SyncAllConnections(ctx context.Context, orgID uuid.UUID) ([]*dto.SyncResult, error) {
	args := m.Called(ctx, orgID)
	resp, _ := args.Get(0).([]*dto.SyncResult)
	return resp, args.Error(1)
}

func (m *mockSyncService) ReapStaleSyncLogs(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type envelope struct {
	Status  any             `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

type harness struct {
	e        *echo.Echo
	calendar *mockCalendarService
	sync     *mockSyncService
	userID   uuid.UUID
	orgID    uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		e:        echo.New(),
		calendar: new(mockCalendarService),
		sync:     new(mockSyncService),
		userID:   uuid.New(),
		orgID:    uuid.New(),
	}
	h.e.Validator = validator.New()
	t.Cleanup(func() {
		h.calendar.AssertExpectations(t)
		h.sync.AssertExpectations(t)
	})
	return h
}

func (h *harness) do(method, target, body string, handler echo.HandlerFunc, authenticated bool, params ...string) (*httptest.ResponseRecorder, envelope) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := h.e.NewContext(req, rec)
	if len(params) > 0 {
		c.SetParamNames(params[0])
		c.SetParamValues(params[1])
	}
	if authenticated {
		c.Set(constants.ContextKeyUserID, h.userID)
		c.Set(constants.ContextKeyOrganizationID, h.orgID)
	}
	if err := handler(c); err != nil {
		h.e.HTTPErrorHandler(err, c)
	}

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func (h *harness) controller() *CalendarController {
	return NewCalendarController(h.calendar, h.sync, nil, nil)
}

func TestGetConnections_RequiresIdentity(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(http.MethodGet, "/connections", "", h.controller().GetConnections, false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(errors.ErrUnauthorized), env.Code)
}

func TestGetConnections_ScopedToOrganization(t *testing.T) {
	h := newHarness(t)
	connID := uuid.New()
	h.calendar.On("ListConnections", mock.Anything, h.orgID).
		Return(&dto.ConnectionListResponse{Connections: []dto.ConnectionResponse{{ID: connID, Provider: "google"}}}, nil).Once()

	rec, env := h.do(http.MethodGet, "/connections", "", h.controller().GetConnections, true)

	require.Equal(t, http.StatusOK, rec.Code)
	var list dto.ConnectionListResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Connections, 1)
	assert.Equal(t, connID, list.Connections[0].ID)
}

func TestGetConnection_InvalidID(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(http.MethodGet, "/connections/nope", "", h.controller().GetConnection, true, "id", "nope")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errors.ErrInvalidInput), env.Code)
}

func TestGetConnection_NotFound(t *testing.T) {
	h := newHarness(t)
	connID := uuid.New()
	h.calendar.On("GetConnection", mock.Anything, h.orgID, connID).
		Return(nil, errors.NewAppError(errors.ErrConnectionNotFound, "connection not found", nil)).Once()

	rec, env := h.do(http.MethodGet, "/connections/"+connID.String(), "", h.controller().GetConnection, true, "id", connID.String())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(errors.ErrConnectionNotFound), env.Code)
}

func TestSyncConnection(t *testing.T) {
	connID := uuid.New()

	t.Run("foreign connection is not synced", func(t *testing.T) {
		h := newHarness(t)
		h.calendar.On("GetConnection", mock.Anything, h.orgID, connID).
			Return(nil, errors.NewAppError(errors.ErrConnectionNotFound, "connection not found", nil)).Once()

		rec, _ := h.do(http.MethodPost, "/sync", "", h.controller().SyncConnection, true, "id", connID.String())

		assert.Equal(t, http.StatusNotFound, rec.Code)
		h.sync.AssertNotCalled(t, "SyncConnection", mock.Anything, mock.Anything)
	})

	t.Run("success returns counts", func(t *testing.T) {
		h := newHarness(t)
		h.calendar.On("GetConnection", mock.Anything, h.orgID, connID).Return(&dto.ConnectionResponse{ID: connID}, nil).Once()
		h.sync.On("SyncConnection", mock.Anything, connID).
			Return(&dto.SyncResult{ConnectionID: connID, Success: true, Created: 2, Deleted: 1}).Once()

		rec, env := h.do(http.MethodPost, "/sync", "", h.controller().SyncConnection, true, "id", connID.String())

		require.Equal(t, http.StatusOK, rec.Code)
		var result dto.SyncResult
		require.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, 2, result.Created)
		assert.Equal(t, 1, result.Deleted)
	})

	t.Run("lock held maps to conflict", func(t *testing.T) {
		h := newHarness(t)
		h.calendar.On("GetConnection", mock.Anything, h.orgID, connID).Return(&dto.ConnectionResponse{ID: connID}, nil).Once()
		failed := &dto.SyncResult{ConnectionID: connID}
		failed.Fail(errors.NewAppError(errors.ErrSyncInProgress, "sync already in progress", nil))
		h.sync.On("SyncConnection", mock.Anything, connID).Return(failed).Once()

		rec, env := h.do(http.MethodPost, "/sync", "", h.controller().SyncConnection, true, "id", connID.String())

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, string(errors.ErrSyncInProgress), env.Code)
		assert.Equal(t, "sync already in progress", env.Message)
		var details dto.SyncResult
		require.NoError(t, json.Unmarshal(env.Details, &details))
		assert.Equal(t, connID, details.ConnectionID)
	})
}

func TestSyncAll_Summarizes(t *testing.T) {
	h := newHarness(t)
	failed := &dto.SyncResult{ConnectionID: uuid.New()}
	failed.Fail(errors.NewAppError(errors.ErrNoRefreshToken, "no refresh token", nil))
	h.sync.On("SyncAllConnections", mock.Anything, h.orgID).
		Return([]*dto.SyncResult{{ConnectionID: uuid.New(), Success: true}, failed}, nil).Once()

	rec, env := h.do(http.MethodPost, "/sync", "", h.controller().SyncAll, true)

	require.Equal(t, http.StatusOK, rec.Code)
	var summary dto.SyncAllResponse
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
}

func TestGetSyncLogs_PassesLimit(t *testing.T) {
	h := newHarness(t)
	connID := uuid.New()
	h.calendar.On("ListSyncLogs", mock.Anything, h.orgID, connID, 5).Return([]entity.CalendarSyncLog{}, nil).Once()

	rec, _ := h.do(http.MethodGet, "/logs?limit=5", "", h.controller().GetSyncLogs, true, "id", connID.String())

	assert.Equal(t, http.StatusOK, rec.Code)
}
