package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "WARN", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "", want: slog.LevelInfo},
		{in: "verbose", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("component", "scheduler")

	logger.Debug("Waiting for next backup")
	logger.Warn("Backup failed")

	assert.Contains(t, a.String(), "Waiting for next backup")
	assert.Contains(t, a.String(), "component=scheduler")
	assert.NotContains(t, b.String(), "Waiting for next backup")
	assert.Contains(t, b.String(), "Backup failed")
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gsb.log")
	logger, file, err := NewLogger(path, slog.LevelError)
	require.NoError(t, err)
	defer file.Close()

	logger.Info("Scheduler started", "interval", "1h0m0s")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Scheduler started"`)
	assert.Contains(t, string(data), `"interval":"1h0m0s"`)
}
