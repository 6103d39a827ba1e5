package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(level string, buf *bytes.Buffer) *Logger {
	return New(&Config{Level: level, Format: "json", Output: buf})
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json config", config: &Config{Level: "debug", Format: "json", Output: io.Discard}},
		{name: "console config", config: &Config{Level: "info", Format: "console", Output: io.Discard}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, New(tt.config))
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	jsonLogger("info", buf).Info("compiling catalog")

	entry := decode(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "compiling catalog", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	child := jsonLogger("info", buf).With().
		Str("schema", "sales").
		Int("tables", 12).
		Logger()

	child.Info("schema written")

	entry := decode(t, buf)
	assert.Equal(t, "sales", entry["schema"])
	assert.Equal(t, float64(12), entry["tables"])
}

func TestLogger_WarnWith(t *testing.T) {
	buf := &bytes.Buffer{}
	jsonLogger("info", buf).WarnWith("skipping column with unknown type", map[string]any{
		"schema":    "s1",
		"table":     "t1",
		"column":    "shape",
		"data_type": "geometry",
	})

	entry := decode(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "geometry", entry["data_type"])
	assert.Equal(t, "shape", entry["column"])
}

func TestLogger_ErrorWith(t *testing.T) {
	buf := &bytes.Buffer{}
	jsonLogger("error", buf).ErrorWith("catalog unreachable", errors.New("connection refused"), map[string]any{
		"database": "warehouse",
	})

	entry := decode(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "connection refused", entry["error"])
	assert.Equal(t, "warehouse", entry["database"])
}

func TestLogger_Request(t *testing.T) {
	buf := &bytes.Buffer{}
	jsonLogger("info", buf).Request(http.MethodGet, "/s1.t1/", http.StatusOK, 3*time.Millisecond)

	entry := decode(t, buf)
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, float64(200), entry["status"])
}

func TestLogger_Context(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := jsonLogger("info", buf).WithContext(context.Background())

	FromContext(ctx).Info("from context")

	assert.Equal(t, "from context", decode(t, buf)["message"])
}

func TestLogger_ContextMissing(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.Equal(t, zerolog.Disabled, l.zlog.GetLevel())
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool
	}{
		{"debug level logs debug", "debug", func(l *Logger) { l.Debug("d") }, true},
		{"info level skips debug", "info", func(l *Logger) { l.Debug("d") }, false},
		{"debug level formats debug", "debug", func(l *Logger) { l.Debugf("removed %d files", 2) }, true},
		{"warn level logs warn", "warn", func(l *Logger) { l.WarnWith("w", nil) }, true},
		{"error level skips info", "error", func(l *Logger) { l.Info("i") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.logFunc(jsonLogger(tt.level, buf))

			if tt.expected {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Info("dropped") })
}

func BenchmarkLogger_WithFields(b *testing.B) {
	l := New(&Config{Level: "info", Format: "json", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.With().Str("schema", "sales").Int("column", i).Logger().Info("mapped")
	}
}
