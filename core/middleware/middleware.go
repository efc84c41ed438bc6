package middleware

import (
	"strings"
	"time"

	"homeschool-api/core/constants"
	"homeschool-api/core/controller"
	"homeschool-api/core/errors"
	"homeschool-api/core/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Claims carried by access tokens issued by the surrounding application.
type Claims struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	jwt.RegisteredClaims
}

type Middleware struct {
	secret []byte
	base   controller.BaseController
}

func NewMiddleware(secret string) *Middleware {
	return &Middleware{
		secret: []byte(secret),
		base:   controller.NewBaseController(),
	}
}

func (m *Middleware) AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return m.base.Unauthorized(errors.ErrMissingAuthorizationHeader, "Authorization header is required")
			}
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return m.base.Unauthorized(errors.ErrInvalidTokenFormat, "Authorization header must be a bearer token")
			}

			claims, err := m.ParseToken(raw)
			if err != nil {
				logger.Warn("Middleware:AuthMiddleware:ParseToken:Error", "error", err)
				if errors.HasCode(err, errors.ErrTokenExpired) {
					return m.base.Unauthorized(errors.ErrTokenExpired, "Token has expired")
				}
				return m.base.Unauthorized(errors.ErrUnauthorized, "Invalid token")
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				return m.base.Unauthorized(errors.ErrUnauthorized, "Invalid token subject")
			}
			orgID, err := uuid.Parse(claims.OrganizationID)
			if err != nil {
				return m.base.Forbidden(errors.ErrForbidden, "Token is not scoped to an organization")
			}

			c.Set(constants.ContextKeyUserID, userID)
			c.Set(constants.ContextKeyOrganizationID, orgID)
			return next(c)
		}
	}
}

func (m *Middleware) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.NewAppError(errors.ErrTokenExpired, "token expired", err)
		}
		return nil, errors.NewAppError(errors.ErrUnauthorized, "invalid token", err)
	}
	return claims, nil
}

// IssueToken signs claims for userID/orgID. Used by tests and the CLI.
func (m *Middleware) IssueToken(userID, orgID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:         userID.String(),
		OrganizationID: orgID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func GetUserID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(constants.ContextKeyUserID).(uuid.UUID)
	return id, ok
}

func GetOrganizationID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(constants.ContextKeyOrganizationID).(uuid.UUID)
	return id, ok
}
