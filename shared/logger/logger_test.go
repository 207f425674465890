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
)

func newJSON(t *testing.T, level string, source bool) (*Logger, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	l, err := New(&Config{Level: level, Format: "json", EnableSource: source, writer: out})
	require.NoError(t, err)
	return l, out
}

func lines(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var e map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &e), line)
		entries = append(entries, e)
	}
	return entries
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		wantLevel []string
	}{
		{level: "debug", wantLevel: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", wantLevel: []string{"INFO", "WARN", "ERROR"}},
		{level: "warning", wantLevel: []string{"WARN", "ERROR"}},
		{level: "error", wantLevel: []string{"ERROR"}},
		{level: "verbose", wantLevel: []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, out := newJSON(t, tt.level, false)

			l.Debug("synthesis request", slog.String("job_id", "j-1"))
			l.Info("job created", slog.String("job_id", "j-1"))
			l.Warn("publish failed", slog.String("job_id", "j-1"))
			l.Error("reconcile failed", slog.String("job_id", "j-1"))

			var got []string
			for _, e := range lines(t, out) {
				got = append(got, e["level"].(string))
				assert.Equal(t, "j-1", e["job_id"])
			}
			assert.Equal(t, tt.wantLevel, got)
		})
	}
}

func TestNew_Console(t *testing.T) {
	out := &bytes.Buffer{}
	l, err := New(&Config{Level: "info", Format: "console", writer: out})
	require.NoError(t, err)

	l.Info("track published", slog.String("slug", "abc123xyz0"))

	// tint abbreviates levels
	assert.Contains(t, out.String(), "INF")
	assert.Contains(t, out.String(), "track published")
	assert.Contains(t, out.String(), "abc123xyz0")
}

func TestNew_Source(t *testing.T) {
	l, out := newJSON(t, "info", true)
	l.Info("with source")

	entry := lines(t, out)[0]
	source, ok := entry["source"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestLogger_Derived(t *testing.T) {
	tests := []struct {
		name  string
		build func(l *Logger) *slog.Logger
		check func(t *testing.T, e map[string]any)
	}{
		{
			name:  "group",
			build: func(l *Logger) *slog.Logger { return l.WithGroup("job").Logger },
			check: func(t *testing.T, e map[string]any) {
				group, ok := e["job"].(map[string]any)
				require.True(t, ok)
				assert.Equal(t, "DONE", group["status"])
			},
		},
		{
			name: "attrs",
			build: func(l *Logger) *slog.Logger {
				return l.WithAttrs(slog.String("request_id", "r-9")).Logger
			},
			check: func(t *testing.T, e map[string]any) {
				assert.Equal(t, "r-9", e["request_id"])
				assert.Equal(t, "DONE", e["status"])
			},
		},
		{
			name:  "key values",
			build: func(l *Logger) *slog.Logger { return l.With("attempt", 2).Logger },
			check: func(t *testing.T, e map[string]any) {
				assert.Equal(t, float64(2), e["attempt"])
			},
		},
		{
			name:  "component",
			build: func(l *Logger) *slog.Logger { return l.Component("ledger") },
			check: func(t *testing.T, e map[string]any) {
				assert.Equal(t, "ledger", e["component"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, out := newJSON(t, "info", false)
			tt.build(l).Info("job transitioned", slog.String("status", "DONE"))

			entries := lines(t, out)
			require.Len(t, entries, 1)
			assert.Equal(t, "job transitioned", entries[0]["msg"])
			tt.check(t, entries[0])
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")

	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("job created", slog.String("job_id", "j-1"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "j-1", entry["job_id"])
}

func TestNew_FileOutputInvalidPath(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "api.log")})
	require.Error(t, err)
}

func TestNewDefaultAndDiscard(t *testing.T) {
	assert.NotNil(t, NewDefault())

	d := NewDiscard()
	d.Error("dropped")
	assert.NoError(t, d.Close())
}
