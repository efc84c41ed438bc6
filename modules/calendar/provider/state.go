package provider

import (
	"encoding/base64"
	"strings"
	"time"

	"homeschool-api/core/errors"
	"homeschool-api/core/utils"

	"github.com/goccy/go-json"
)

const (
	DefaultStateMaxAge = 10 * time.Minute
	stateClockSkew     = time.Minute
	stateNonceLength   = 21
)

// StatePayload is the CSRF state round-tripped through the authorization server.
type StatePayload struct {
	UserID   string `json:"user_id"`
	IssuedAt int64  `json:"issued_at"` // unix milliseconds
	Nonce    string `json:"nonce"`
}

func (p StatePayload) Issued() time.Time {
	return time.UnixMilli(p.IssuedAt)
}

func NewState(userID string, now time.Time) (string, error) {
	nonce, err := utils.GenerateNonce(stateNonceLength)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(StatePayload{
		UserID:   userID,
		IssuedAt: now.UnixMilli(),
		Nonce:    nonce,
	})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// ValidateState decodes state and rejects it when malformed or older than
// maxAge. A non-positive maxAge means DefaultStateMaxAge.
func ValidateState(state string, maxAge time.Duration) (*StatePayload, error) {
	return ValidateStateAt(state, maxAge, time.Now())
}

func ValidateStateAt(state string, maxAge time.Duration, now time.Time) (*StatePayload, error) {
	if maxAge <= 0 {
		maxAge = DefaultStateMaxAge
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(state, "="))
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidOAuthState, "state is not valid base64url", err)
	}

	var payload StatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidOAuthState, "state is not valid JSON", err)
	}
	if payload.UserID == "" || payload.Nonce == "" || payload.IssuedAt <= 0 {
		return nil, errors.NewAppError(errors.ErrInvalidOAuthState, "state is missing required fields", nil)
	}

	age := now.Sub(payload.Issued())
	if age < -stateClockSkew {
		return nil, errors.NewAppError(errors.ErrInvalidOAuthState, "state was issued in the future", nil)
	}
	if age > maxAge {
		return nil, errors.NewAppError(errors.ErrInvalidOAuthState, "state has expired", nil)
	}
	return &payload, nil
}
