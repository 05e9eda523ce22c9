package clog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)
	logger.Info("acquired lock", "lock_id", "lock-1", "access_key", "AKIA-SECRET")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "[REDACTED]", decoded["access_key"])
	assert.Equal(t, "lock-1", decoded["lock_id"])
}

func TestLeavesOrdinaryKeysAlone(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)
	logger.Info("plan complete", "effects", 3)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(3), decoded["effects"])
}
