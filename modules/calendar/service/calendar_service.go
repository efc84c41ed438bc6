package service

import (
	"context"
	"time"

	"homeschool-api/core/cache"
	"homeschool-api/core/constants"
	"homeschool-api/core/errors"
	"homeschool-api/core/logger"
	"homeschool-api/modules/calendar/dto"
	"homeschool-api/modules/calendar/entity"
	"homeschool-api/modules/calendar/provider"
	"homeschool-api/modules/calendar/repository"

	"github.com/google/uuid"
)

const (
	maxCalendarListPages = 10
	defaultSyncLogLimit  = 20
)

type CalendarService interface {
	// OAuth
	StartOAuth(ctx context.Context, providerName string, userID uuid.UUID) (*dto.OAuthStartResponse, error)
	CompleteOAuth(ctx context.Context, orgID, userID uuid.UUID, providerName string, req *dto.OAuthCallbackRequest) (*dto.ConnectionResponse, error)

	// Connection management
	ListConnections(ctx context.Context, orgID uuid.UUID) (*dto.ConnectionListResponse, error)
	GetConnection(ctx context.Context, orgID, connectionID uuid.UUID) (*dto.ConnectionResponse, error)
	ListProviderCalendars(ctx context.Context, orgID, connectionID uuid.UUID) ([]provider.Calendar, error)
	UpdateConnectionSettings(ctx context.Context, orgID, connectionID uuid.UUID, req *dto.UpdateConnectionRequest) (*dto.ConnectionResponse, error)
	DisconnectCalendar(ctx context.Context, orgID, connectionID uuid.UUID) error
	ListSyncLogs(ctx context.Context, orgID, connectionID uuid.UUID, limit int) ([]entity.CalendarSyncLog, error)
}

type calendarService struct {
	connections repository.ConnectionRepository
	syncLogs    repository.SyncLogRepository
	providers   ProviderRegistry
	store       cache.Cache
	tokens      *tokenManager
	now         func() time.Time
}

func NewCalendarService(
	connections repository.ConnectionRepository,
	syncLogs repository.SyncLogRepository,
	providers ProviderRegistry,
	store cache.Cache,
	tokenRefreshSkew time.Duration,
) CalendarService {
	s := &calendarService{
		connections: connections,
		syncLogs:    syncLogs,
		providers:   providers,
		store:       store,
		now:         time.Now,
	}
	s.tokens = newTokenManager(connections, tokenRefreshSkew, func() time.Time { return s.now() })
	return s
}

// StartOAuth builds the consent URL and keeps the PKCE verifier server side
// until the callback consumes the state.
func (s *calendarService) StartOAuth(ctx context.Context, providerName string, userID uuid.UUID) (*dto.OAuthStartResponse, error) {
	p, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	auth, err := p.GenerateAuthURL(userID.String())
	if err != nil {
		logger.Error("CalendarService:StartOAuth:GenerateAuthURL:Error", "provider", providerName, "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to build authorization url", err)
	}

	if err := s.store.Set(ctx, constants.OAuthStateKeyPrefix+auth.State, auth.CodeVerifier, provider.DefaultStateMaxAge); err != nil {
		logger.Error("CalendarService:StartOAuth:StoreState:Error", "provider", providerName, "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to store oauth state", err)
	}

	return &dto.OAuthStartResponse{AuthURL: auth.URL, State: auth.State}, nil
}

func (s *calendarService) CompleteOAuth(ctx context.Context, orgID, userID uuid.UUID, providerName string, req *dto.OAuthCallbackRequest) (*dto.ConnectionResponse, error) {
	p, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	payload, err := provider.ValidateStateAt(req.State, provider.DefaultStateMaxAge, s.now())
	if err != nil {
		return nil, err
	}
	if payload.UserID != userID.String() {
		return nil, errors.NewAppError(errors.ErrInvalidOAuthState, "oauth state was issued to another user", nil)
	}

	verifier, found, err := s.store.GetDel(ctx, constants.OAuthStateKeyPrefix+req.State)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load oauth state", err)
	}
	if !found {
		return nil, errors.NewAppError(errors.ErrInvalidOAuthState, "oauth state expired or already used", nil)
	}
	tokens, err := p.ExchangeCodeForTokens(ctx, req.Code, verifier)
	if err != nil {
		return nil, err
	}

	calendars, err := s.listAllCalendars(ctx, p, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	selected := selectCalendar(calendars, req.CalendarID)
	if selected == nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "no usable calendar found for this account", nil)
	}

	conn := &entity.CalendarConnection{
		OrganizationID: orgID,
		UserID:         userID,
		Provider:       p.Name(),
		CalendarID:     selected.ID,
		CalendarName:   selected.Name,
		CalendarEmail:  calendarEmail(p.Name(), selected),
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: tokenExpiry(tokens, s.now()),
	}
	if err := s.connections.Upsert(ctx, conn); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to save calendar connection", err)
	}

	logger.Info("CalendarService:CompleteOAuth:Connected",
		"connection_id", conn.ID, "organization_id", orgID, "provider", conn.Provider, "calendar_id", conn.CalendarID)
	resp := dto.ToConnectionResponse(conn)
	return &resp, nil
}

func (s *calendarService) listAllCalendars(ctx context.Context, p provider.Provider, accessToken string) ([]provider.Calendar, error) {
	var calendars []provider.Calendar
	pageToken := ""
	for page := 0; page < maxCalendarListPages; page++ {
		list, err := p.ListCalendars(ctx, accessToken, pageToken)
		if err != nil {
			return nil, err
		}
		calendars = append(calendars, list.Calendars...)
		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}
	return calendars, nil
}

// selectCalendar prefers the requested calendar, then the primary one.
func selectCalendar(calendars []provider.Calendar, requested string) *provider.Calendar {
	if len(calendars) == 0 {
		return nil
	}
	if requested != "" {
		for i := range calendars {
			if calendars[i].ID == requested {
				return &calendars[i]
			}
		}
		return nil
	}
	for i := range calendars {
		if calendars[i].IsPrimary {
			return &calendars[i]
		}
	}
	return &calendars[0]
}

func calendarEmail(providerName string, cal *provider.Calendar) string {
	if cal.Owner != "" {
		return cal.Owner
	}
	// Google names the primary calendar after the account address.
	if providerName == provider.NameGoogle && cal.IsPrimary {
		return cal.ID
	}
	return ""
}

func (s *calendarService) ListConnections(ctx context.Context, orgID uuid.UUID) (*dto.ConnectionListResponse, error) {
	connections, err := s.connections.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list connections", err)
	}
	resp := &dto.ConnectionListResponse{Connections: make([]dto.ConnectionResponse, 0, len(connections))}
	for i := range connections {
		resp.Connections = append(resp.Connections, dto.ToConnectionResponse(&connections[i]))
	}
	return resp, nil
}

func (s *calendarService) GetConnection(ctx context.Context, orgID, connectionID uuid.UUID) (*dto.ConnectionResponse, error) {
	conn, err := s.getOwnedConnection(ctx, orgID, connectionID)
	if err != nil {
		return nil, err
	}
	resp := dto.ToConnectionResponse(conn)
	return &resp, nil
}

func (s *calendarService) ListProviderCalendars(ctx context.Context, orgID, connectionID uuid.UUID) ([]provider.Calendar, error) {
	conn, err := s.getOwnedConnection(ctx, orgID, connectionID)
	if err != nil {
		return nil, err
	}
	p, err := s.providers.Get(conn.Provider)
	if err != nil {
		return nil, err
	}
	if NeedsTokenRefresh(conn.TokenExpiresAt, s.now(), s.tokens.skew) {
		if conn, err = s.refreshUnderSyncLock(ctx, orgID, conn, p); err != nil {
			return nil, err
		}
	}
	return s.listAllCalendars(ctx, p, conn.AccessToken)
}

// refreshUnderSyncLock refreshes the connection's token while holding the
// same lock a sync run holds, so the two never rotate the refresh token
// concurrently. The connection is reloaded once the lock is held.
func (s *calendarService) refreshUnderSyncLock(ctx context.Context, orgID uuid.UUID, conn *entity.CalendarConnection, p provider.Provider) (*entity.CalendarConnection, error) {
	lockKey := constants.SyncLockKeyPrefix + conn.ID.String()
	lockToken, acquired, err := s.store.TryLock(ctx, lockKey, constants.TokenRefreshLockTTL)
	if err != nil {
		logger.Error("CalendarService:RefreshUnderSyncLock:TryLock:Error", "connection_id", conn.ID, "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to lock connection", err)
	}
	if !acquired {
		return nil, errors.NewAppError(errors.ErrSyncInProgress, "a sync is running for this connection, retry shortly", nil)
	}
	defer func() {
		if err := s.store.Unlock(context.WithoutCancel(ctx), lockKey, lockToken); err != nil {
			logger.Warn("CalendarService:RefreshUnderSyncLock:Unlock:Error", "connection_id", conn.ID, "error", err)
		}
	}()

	fresh, err := s.getOwnedConnection(ctx, orgID, conn.ID)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.EnsureFresh(ctx, fresh, p); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *calendarService) UpdateConnectionSettings(ctx context.Context, orgID, connectionID uuid.UUID, req *dto.UpdateConnectionRequest) (*dto.ConnectionResponse, error) {
	conn, err := s.getOwnedConnection(ctx, orgID, connectionID)
	if err != nil {
		return nil, err
	}

	if req.CalendarID != nil && *req.CalendarID != conn.CalendarID {
		conn.CalendarID = *req.CalendarID
		// A cursor belongs to one calendar; the next run must be a full fetch.
		conn.SyncToken = nil
	}
	if req.CalendarName != nil {
		conn.CalendarName = *req.CalendarName
	}
	if req.SyncEnabled != nil {
		conn.SyncEnabled = *req.SyncEnabled
	}
	if req.AutoBlockEnabled != nil {
		conn.AutoBlockEnabled = *req.AutoBlockEnabled
	}

	if err := s.connections.UpdateSettings(ctx, conn); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to update connection", err)
	}
	resp := dto.ToConnectionResponse(conn)
	return &resp, nil
}

func (s *calendarService) DisconnectCalendar(ctx context.Context, orgID, connectionID uuid.UUID) error {
	conn, err := s.getOwnedConnection(ctx, orgID, connectionID)
	if err != nil {
		return err
	}
	if err := s.connections.Disable(ctx, conn.ID); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to disconnect calendar", err)
	}
	logger.Info("CalendarService:DisconnectCalendar:Success", "connection_id", conn.ID, "organization_id", orgID)
	return nil
}

func (s *calendarService) ListSyncLogs(ctx context.Context, orgID, connectionID uuid.UUID, limit int) ([]entity.CalendarSyncLog, error) {
	if _, err := s.getOwnedConnection(ctx, orgID, connectionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > constants.MaxPageSize {
		limit = defaultSyncLogLimit
	}
	logs, err := s.syncLogs.ListByConnection(ctx, connectionID, limit)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list sync logs", err)
	}
	return logs, nil
}

func (s *calendarService) getOwnedConnection(ctx context.Context, orgID, connectionID uuid.UUID) (*entity.CalendarConnection, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load connection", err)
	}
	if conn == nil || conn.OrganizationID != orgID {
		return nil, errors.NewAppError(errors.ErrConnectionNotFound, "calendar connection not found", nil)
	}
	return conn, nil
}
