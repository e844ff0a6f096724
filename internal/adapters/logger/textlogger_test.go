package logger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapturedLogger(level LogLevel) (*TextLogger, *strings.Builder) {
	var buf strings.Builder
	l := NewTextLoggerTo(&buf, level)
	l.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return l, &buf
}

func TestTextLogger_FormatsSortedFields(t *testing.T) {
	l, buf := newCapturedLogger(LevelDebug)

	l.Info(context.Background(), "Order resolved", map[string]interface{}{
		"symbol":  "BTCUSDT",
		"agentID": 1,
		"status":  "FILLED",
	})

	line := buf.String()
	require.True(t, strings.HasSuffix(line, "\n"))
	assert.Equal(t, "2025-06-01T12:00:00.000Z INFO Order resolved agentID=1 status=FILLED symbol=BTCUSDT\n", line)
}

func TestTextLogger_ErrorIncludesErrField(t *testing.T) {
	l, buf := newCapturedLogger(LevelDebug)

	l.Error(context.Background(), errors.New("db locked"), "Failed to persist order")

	assert.Contains(t, buf.String(), "ERROR Failed to persist order")
	assert.Contains(t, buf.String(), `error="db locked"`)
}

func TestTextLogger_LevelFilter(t *testing.T) {
	l, buf := newCapturedLogger(LevelWarn)

	l.Debug(context.Background(), "noise")
	l.Info(context.Background(), "still noise")
	l.Warn(context.Background(), "kept")

	assert.NotContains(t, buf.String(), "noise")
	assert.Contains(t, buf.String(), "WARN kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
