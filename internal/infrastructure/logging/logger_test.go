package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		out = append(out, entry)
	}
	return out
}

func TestNewLogger_AddsContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "json", Output: &buf, ServiceName: "testit-reports", Environment: "test"})

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithProjectID(ctx, 42)
	ctx = WithRunID(ctx, "run-9")
	logger.InfoContext(ctx, "collected")
	logger.DebugContext(ctx, "dropped below level")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "collected", entry["msg"])
	assert.Equal(t, "testit-reports", entry["service"])
	assert.Equal(t, "test", entry["environment"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, float64(42), entry["project_id"])
	assert.Equal(t, "run-9", entry["run_id"])
	assert.NotContains(t, entry, "user_id")
}

func TestNewLogger_WithKeepsServiceMetadata(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "debug", Output: &buf, ServiceName: "svc"}).
		With("component", "scheduler").
		WithGroup("fleet")

	logger.Debug("tick", "projects", 3)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "scheduler", lines[0]["component"])
	assert.Equal(t, "svc", lines[0]["service"], "service stays outside groups")
	require.Contains(t, lines[0], "fleet")
	assert.Equal(t, map[string]any{"projects": float64(3)}, lines[0]["fleet"])
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"WARN", false, false, true},
		{"error", false, false, false},
		{"", false, true, true},
		{"verbose", false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := NewLogger(Config{Level: tt.level, Output: io.Discard})
			ctx := context.Background()
			assert.Equal(t, tt.wantDebug, logger.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tt.wantInfo, logger.Enabled(ctx, slog.LevelInfo))
			assert.Equal(t, tt.wantWarn, logger.Enabled(ctx, slog.LevelWarn))
		})
	}
}

func TestLogRequest(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{200, "INFO"},
		{304, "INFO"},
		{404, "WARN"},
		{429, "WARN"},
		{500, "ERROR"},
		{503, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(Config{Output: &buf})
			LogRequest(WithRequestID(context.Background(), "req-7"), logger, RequestRecord{
				Method:       http.MethodGet,
				Path:         "/api/v1/statistics",
				StatusCode:   tt.status,
				Duration:     1500 * time.Millisecond,
				BytesWritten: 12,
				ClientIP:     "10.0.0.1",
			})

			lines := decodeLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, tt.wantLevel, lines[0]["level"])
			assert.Equal(t, float64(tt.status), lines[0]["status_code"])
			assert.Equal(t, float64(1500), lines[0]["duration_ms"])
			assert.Equal(t, "req-7", lines[0]["request_id"])
		})
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Output: &buf})

	assert.Same(t, base, LoggerFromContext(context.Background(), base))

	ctx := WithUserID(WithProjectID(context.Background(), 7), "u-1")
	LoggerFromContext(ctx, base).Info("job done")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "u-1", lines[0]["user_id"])
	assert.Equal(t, float64(7), lines[0]["project_id"])
}

func TestLogPanic(t *testing.T) {
	var buf bytes.Buffer
	LogPanic(NewLogger(Config{Output: &buf}), "boom")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ERROR", lines[0]["level"])
	assert.Equal(t, "boom", lines[0]["panic"])
	assert.Contains(t, lines[0]["stack_trace"], "goroutine")
}
