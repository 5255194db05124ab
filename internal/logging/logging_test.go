package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tt := []struct {
		in       string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tt {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseLevel(tc.in))
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "json")
	l.Debug("hidden")
	l.Info("relay: started", "period", "1ms")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "relay: started", rec["msg"])
	assert.Equal(t, "1ms", rec["period"])
}

func TestNewTextDebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", "text")
	l.Debug("serial: frames sent", "bytes", 5)
	assert.Contains(t, buf.String(), "source=")
	assert.Contains(t, buf.String(), "bytes=5")
}
