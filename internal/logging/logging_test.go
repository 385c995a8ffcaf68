package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Config{Format: "json", Level: "warn"})

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept", "key", "user_1/x.mp4")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "user_1/x.mp4", rec["key"])
}

func TestCorrelationID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CorrelationID(ctx))

	id := GenerateCorrelationID()
	assert.Len(t, id, 16)
	assert.Equal(t, id, CorrelationID(WithCorrelationID(ctx, id)))
}

func TestTransferLoggerLeavesKeyToCaller(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, Config{Format: "json", Level: "info"}))
	defer slog.SetDefault(prev)

	ctx := WithCorrelationID(context.Background(), "abc123")
	TransferLogger(ctx, "t-1").With("key", "user_1/x.mp4").Info("stored")

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"key":`)))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "transfer", rec["component"])
	assert.Equal(t, "abc123", rec["correlation_id"])
	assert.Equal(t, "t-1", rec["transfer_id"])
	assert.Equal(t, "user_1/x.mp4", rec["key"])
}
