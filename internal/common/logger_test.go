package common

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "auto", "info")
	require.NoError(t, err)
	logger.Info("pipeline.run.done", "status", "SUCCEEDED")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), "non-terminal writers get JSON")
	assert.Equal(t, "pipeline.run.done", line["msg"])

	buf.Reset()
	logger, err = NewLogger(&buf, "text", "warn")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")

	_, err = NewLogger(&buf, "xml", "info")
	assert.Error(t, err)
	_, err = NewLogger(&buf, "json", "loud")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestLoggerFrom(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithRequestID(WithProcessID(context.Background(), "pid-1"), "req-1")

	LoggerFrom(ctx, base).Info("x")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "pid-1", line["process_id"])
	assert.Equal(t, "req-1", line["req_id"])
}
