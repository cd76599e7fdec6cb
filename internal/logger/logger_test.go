package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"debug", "debug", true, true, true},
		{"info", "info", false, true, true},
		{"warn", "warn", false, false, true},
		{"unknown falls back to info", "loud", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			cl, err := newCentralLogger(&LoggingConfig{
				DefaultLevel: tt.level,
				Console:      &ConsoleOutput{Enabled: true, Level: "trace"},
			}, &buf)
			require.NoError(t, err)

			log := cl.Module("search")
			log.Debug("debug message")
			log.Info("info message")
			log.Warn("warn message")

			out := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "debug message"))
			assert.Equal(t, tt.wantInfo, strings.Contains(out, "info message"))
			assert.Equal(t, tt.wantWarn, strings.Contains(out, "warn message"))
		})
	}
}

func TestModuleLevelOverride(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "warn",
		Console:      &ConsoleOutput{Enabled: true, Level: "trace"},
		ModuleLevels: map[string]string{"timeseries": "debug"},
	}, &buf)
	require.NoError(t, err)

	cl.Module("search").Info("search info")
	cl.Module("timeseries").Debug("timeseries debug")

	out := buf.String()
	assert.NotContains(t, out, "search info")
	assert.Contains(t, out, "timeseries debug")
	assert.Contains(t, out, "module=timeseries")
}

func TestSubModuleAndFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, time.UTC)

	scoped := log.Module("dashboard").Module("search").With(String("term", "lon"))
	scoped.Info("results applied", Int("count", 3), Duration("elapsed", 1234*time.Microsecond), Float64("lat", 51.50735))

	out := buf.String()
	assert.Contains(t, out, "module=dashboard.search")
	assert.Contains(t, out, "term=lon")
	assert.Contains(t, out, "count=3")
	assert.Contains(t, out, "elapsed=1ms")
	assert.Contains(t, out, "lat=51.507")
	assert.NotContains(t, out, "time=")
}

func TestWithDoesNotMutateParent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	parent := NewSlogLogger(&buf, LogLevelInfo, time.UTC).Module("catalog")
	_ = parent.With(String("child", "yes"))

	parent.Info("parent only")
	assert.NotContains(t, buf.String(), "child=yes")
}

func TestWithContextRequestID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	ctx := WithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestIDFromContext(ctx))
	log.WithContext(ctx).Info("traced")
	assert.Contains(t, buf.String(), "request_id=req-42")

	assert.Same(t, log, log.WithContext(context.Background()))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestTraceLevelLabel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelTrace, time.UTC)
	log.Trace("very detailed")
	log.Log(LogLevelWarn, "explicit level")

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, "level=WARN")
}

func TestErrorField(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Field{Key: "error", Value: "boom"}, Error(errors.New("boom")))
	assert.Nil(t, Error(nil).Value)
}

func TestFileOutputIsJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "climagrid.log")
	var console bytes.Buffer
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Console:      &ConsoleOutput{Enabled: true, Level: "info"},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "info"},
	}, &console)
	require.NoError(t, err)

	cl.Module("observation").Info("observation submitted", String("metric", "temperature"))
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "observation submitted", record["msg"])
	assert.Equal(t, "observation", record["module"])
	assert.Equal(t, "temperature", record["metric"])
	assert.Contains(t, console.String(), "observation submitted")
}

func TestInvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus_Mons"})
	require.Error(t, err)

	_, err = NewCentralLogger(nil)
	require.Error(t, err)
}

func TestRedactSensitiveData(t *testing.T) {
	t.Parallel()

	out := RedactSensitiveData("Authorization: Bearer abc.def.ghi")
	assert.NotContains(t, out, "abc.def.ghi")

	out = RedactSensitiveData("api_key=supersecretvalue rejected")
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "supersecretvalue")

	assert.Empty(t, RedactSensitiveData(""))
}
