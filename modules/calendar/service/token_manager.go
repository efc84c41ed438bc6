package service

import (
	"context"
	"time"

	"homeschool-api/core/errors"
	"homeschool-api/core/logger"
	"homeschool-api/core/metrics"
	"homeschool-api/modules/calendar/entity"
	"homeschool-api/modules/calendar/provider"
	"homeschool-api/modules/calendar/repository"
)

const defaultTokenRefreshSkew = 5 * time.Minute

// NeedsTokenRefresh reports whether an access token expiring at expiresAt
// must be refreshed before use. Unknown expiry always refreshes.
func NeedsTokenRefresh(expiresAt *time.Time, now time.Time, skew time.Duration) bool {
	if expiresAt == nil {
		return true
	}
	return expiresAt.Sub(now) <= skew
}

type tokenManager struct {
	connections repository.ConnectionRepository
	skew        time.Duration
	now         func() time.Time
}

func newTokenManager(connections repository.ConnectionRepository, skew time.Duration, now func() time.Time) *tokenManager {
	if skew <= 0 {
		skew = defaultTokenRefreshSkew
	}
	return &tokenManager{connections: connections, skew: skew, now: now}
}

// EnsureFresh refreshes the connection's access token when it is about to
// expire and persists the new credential before returning.
func (m *tokenManager) EnsureFresh(ctx context.Context, conn *entity.CalendarConnection, p provider.Provider) error {
	now := m.now()
	if !NeedsTokenRefresh(conn.TokenExpiresAt, now, m.skew) {
		return nil
	}
	if conn.RefreshToken == "" {
		return errors.NewAppError(errors.ErrNoRefreshToken, "no refresh token stored for connection", nil)
	}

	tokens, err := p.RefreshAccessToken(ctx, conn.RefreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(conn.Provider, "failed").Inc()
		logger.Error("TokenManager:EnsureFresh:Refresh:Error", "connection_id", conn.ID, "provider", conn.Provider, "error", err)
		if errors.HasCode(err, errors.ErrTokenRefreshFailed) || errors.HasCode(err, errors.ErrNoRefreshToken) {
			return err
		}
		return errors.NewAppError(errors.ErrTokenRefreshFailed, "failed to refresh access token", err)
	}
	metrics.TokenRefreshes.WithLabelValues(conn.Provider, "refreshed").Inc()

	refreshToken := tokens.RefreshToken
	if refreshToken == "" {
		refreshToken = conn.RefreshToken
	}
	expiresAt := tokenExpiry(tokens, now)

	if err := m.connections.UpdateTokens(ctx, conn.ID, tokens.AccessToken, refreshToken, expiresAt); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to persist refreshed token", err)
	}

	conn.AccessToken = tokens.AccessToken
	conn.RefreshToken = refreshToken
	conn.TokenExpiresAt = expiresAt
	logger.Info("TokenManager:EnsureFresh:Refreshed", "connection_id", conn.ID, "provider", conn.Provider)
	return nil
}

func tokenExpiry(tokens *provider.TokenResponse, now time.Time) *time.Time {
	if !tokens.Expiry.IsZero() {
		expiry := tokens.Expiry.UTC()
		return &expiry
	}
	if tokens.ExpiresIn > 0 {
		expiry := now.Add(time.Duration(tokens.ExpiresIn) * time.Second).UTC()
		return &expiry
	}
	return nil
}
