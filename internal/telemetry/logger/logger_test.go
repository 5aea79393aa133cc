package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{" Warning ", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.ErrorContains(t, err, "loud")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Level: "verbose"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.ErrorContains(t, err, "xml")
}

func TestNew_Formats(t *testing.T) {
	var buf bytes.Buffer

	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)
	l.Info("snapshot created", "namespaces", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "snapshot created", entry["msg"])
	assert.Equal(t, float64(3), entry["namespaces"])

	buf.Reset()
	l, err = New(Config{Level: "info", Format: "console", Output: &buf})
	require.NoError(t, err)
	l.Info("snapshot created", "namespaces", 3)
	assert.Contains(t, buf.String(), `msg="snapshot created"`)
	assert.Contains(t, buf.String(), "namespaces=3")
}

func TestNew_Attrs(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Output: &buf, Attrs: []any{"service", "sightingdb", "version", "v1.2.3"}})
	require.NoError(t, err)

	l.With("component", "wal").WithGroup("segment").Warn("rotated", "seq", 7)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sightingdb", entry["service"])
	assert.Equal(t, "v1.2.3", entry["version"])
	assert.Equal(t, "wal", entry["component"])
	assert.Equal(t, map[string]any{"seq": float64(7)}, entry["segment"])
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn", Format: "text", Output: &buf})
	require.NoError(t, err)
	t.Cleanup(func() { SetLevel("info") })

	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, "warn", GetLevel())

	SetLevel("debug")
	assert.Equal(t, "debug", GetLevel())
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")

	SetLevel("nonsense")
	assert.Equal(t, "debug", GetLevel())
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	var buf bytes.Buffer
	l, err := New(Config{Output: &buf})
	require.NoError(t, err)
	SetDefault(l)
	SetDefault(nil)

	assert.Same(t, l, Default())
	Info("via package")
	slog.Info("via slog", "apikey", "k")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "via package")
	assert.Contains(t, lines[1], redactedValue)
}

func TestStd(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Format: "text", Output: &buf})
	require.NoError(t, err)

	Std(l).Printf("http: TLS handshake error from %s", "10.0.0.1:5555")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "TLS handshake error")

	var got []string
	Std(recorder{&got}).Print("fallback")
	assert.Equal(t, []string{"fallback"}, got)
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.Error("dropped", "k", "v")
		l.With("a", 1).WithGroup("g").WithContext(t.Context()).Info("dropped")
	})
}

type recorder struct{ lines *[]string }

func (r recorder) Debug(string, ...any)               {}
func (r recorder) Info(string, ...any)                {}
func (r recorder) Warn(msg string, _ ...any)          { *r.lines = append(*r.lines, msg) }
func (r recorder) Error(string, ...any)               {}
func (r recorder) With(...any) Logger                 { return r }
func (r recorder) WithGroup(string) Logger            { return r }
func (r recorder) WithContext(context.Context) Logger { return r }
