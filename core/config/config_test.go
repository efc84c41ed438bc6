package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Sync.LookbackDays)
	assert.Equal(t, 90, cfg.Sync.LookaheadDays)
	assert.Equal(t, 5*time.Minute, cfg.Sync.TokenRefreshSkew)
	assert.Equal(t, 10, cfg.Sync.ConflictConcurrency)
	assert.Equal(t, "common", cfg.OutlookAPI.TenantID)

	loaded, ok := GetSafe()
	require.True(t, ok)
	assert.Same(t, cfg, loaded)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SYNC_LOOKBACK_DAYS", "14")
	t.Setenv("SYNC_TOKEN_REFRESH_SKEW", "2m")
	t.Setenv("OUTLOOK_TENANT_ID", "contoso")
	t.Setenv("GOOGLE_CLIENT_ID", "google-client")

	cfg, err := Load("testdata/does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.Sync.LookbackDays)
	assert.Equal(t, 2*time.Minute, cfg.Sync.TokenRefreshSkew)
	assert.Equal(t, "contoso", cfg.OutlookAPI.TenantID)
	assert.Equal(t, "google-client", cfg.GoogleAPI.ClientID)
}
