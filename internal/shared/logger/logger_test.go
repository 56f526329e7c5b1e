package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/shared/config"
)

func decodeLines(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNamed_Nests(t *testing.T) {
	var buf bytes.Buffer
	log := FromSlog(slog.New(slog.NewJSONHandler(&buf, nil)))

	log.Named("reconcile").With("run_id", "r1").Named("writer").Infow("wrote entitlement", "user_id", "u1")

	lines := decodeLines(t, buf.String())
	require.Len(t, lines, 1)
	assert.Equal(t, "reconcile.writer", lines[0]["logger"])
	assert.Equal(t, "r1", lines[0]["run_id"])
	assert.Equal(t, "u1", lines[0]["user_id"])
	assert.Equal(t, 1, strings.Count(buf.String(), `"logger"`))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestInit_FileOutput(t *testing.T) {
	prev := Logger
	prevDefault := slog.Default()
	t.Cleanup(func() {
		Logger = prev
		slog.SetDefault(prevDefault)
	})

	path := filepath.Join(t.TempDir(), "subsync.log")
	require.NoError(t, Init(&config.LoggerConfig{Level: "warn", Format: "json", OutputPath: path}, false))

	log := NewLogger()
	log.Infow("dropped below level")
	log.Warnw("stripe returned 429", "attempt", 2)
	require.NoError(t, Sync())
	require.NoError(t, Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := decodeLines(t, string(raw))
	require.Len(t, lines, 1)
	assert.Equal(t, "stripe returned 429", lines[0]["msg"])
	assert.Contains(t, lines[0], slog.SourceKey)
}
