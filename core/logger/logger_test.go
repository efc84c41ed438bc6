package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSet_WritesKeyValues(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	Set(zap.New(core))

	Info("SyncService:SyncConnection:Completed", "connection_id", "abc", "events_created", 3)
	Debug("dropped below level")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "SyncService:SyncConnection:Completed", entries[0].Message)
	assert.Equal(t, "abc", entries[0].ContextMap()["connection_id"])
	assert.EqualValues(t, 3, entries[0].ContextMap()["events_created"])
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	err := Init(Config{Level: "loud"})
	assert.Error(t, err)

	require.NoError(t, Init(Config{Level: "warn", Format: "console"}))
}
