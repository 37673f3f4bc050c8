package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestSetup_FileOnly_NoStdout(t *testing.T) {
	restore := captureStdout(t)

	var fileBuf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&fileBuf, "info", nil, nil)
	m.Logger().Info("hello file")

	stdout := restore()

	assert.Contains(t, fileBuf.String(), "hello file")
	assert.Contains(t, fileBuf.String(), "Logging initialized")
	assert.Empty(t, stdout, "nothing should be written to stdout when file is provided")
}

func TestSetup_NoFile_WritesToStdout(t *testing.T) {
	restore := captureStdout(t)

	m := NewSlogManager()
	m.Setup(nil, "info", nil, nil)
	m.Logger().Info("hello console")

	assert.Contains(t, restore(), "hello console")
}

func TestSetup_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, tt.level, nil, nil)

			m.Logger().Debug("debug msg")
			m.Logger().Info("info msg")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug msg")))
			assert.Equal(t, tt.wantInfo, bytes.Contains(buf.Bytes(), []byte("info msg")))
		})
	}
}

func TestSetLevel_AppliesToExistingLogger(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", nil, nil)
	logger := m.Logger()

	logger.Debug("before")
	m.SetLevel("debug")
	logger.Debug("after")

	assert.Equal(t, slog.LevelDebug, m.Level())
	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
}

func TestSetup_ReplacesLogger(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	m := NewSlogManager()

	m.Setup(&buf1, "info", nil, nil)
	m.Logger().Info("first")

	m.Setup(&buf2, "info", nil, nil)
	m.Logger().Info("second")

	assert.Contains(t, buf1.String(), "first")
	assert.NotContains(t, buf1.String(), "second", "old file should not receive new logs")
	assert.Contains(t, buf2.String(), "second")
}

func TestSetup_ContextProvider(t *testing.T) {
	var buf bytes.Buffer
	tick := 0
	m := NewSlogManager()
	m.Setup(&buf, "info", nil, func(context.Context) []slog.Attr {
		return []slog.Attr{slog.Int("tick", tick)}
	})

	tick = 42
	m.Logger().Info("stamped")

	assert.Contains(t, buf.String(), "tick=42")
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	m := NewSlogManager()
	assert.Equal(t, slog.Default(), m.Logger())
}

func TestFlush_NilProvider(t *testing.T) {
	m := NewSlogManager()
	assert.NoError(t, m.Flush(context.Background()))
}

func TestFlush_WithProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	m := NewSlogManager()

	var buf bytes.Buffer
	m.Setup(&buf, "info", provider, nil)
	m.Logger().Info("otel integrated")

	assert.Contains(t, buf.String(), "otel integrated")
	assert.NoError(t, m.Flush(context.Background()))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"trace", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{" INFO ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestFanout_SendsToEveryHandler(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelInfo})
	h2 := slog.NewTextHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelInfo})

	slog.New(Fanout(h1, h2)).Info("fanned out")

	assert.Contains(t, buf1.String(), "fanned out")
	assert.Contains(t, buf2.String(), "fanned out")
}

func TestFanout_DropsNilAndUnwrapsSingle(t *testing.T) {
	h := slog.NewTextHandler(&bytes.Buffer{}, nil)
	assert.Same(t, h, Fanout(nil, h, nil))
	assert.Len(t, Fanout(h, h), 2)
}

func TestFanout_Enabled(t *testing.T) {
	infoHandler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})
	ctx := context.Background()

	infoOnly := Fanout(infoHandler, infoHandler)
	assert.False(t, infoOnly.Enabled(ctx, slog.LevelDebug))
	assert.True(t, infoOnly.Enabled(ctx, slog.LevelInfo))

	assert.True(t, Fanout(infoHandler, debugHandler).Enabled(ctx, slog.LevelDebug))
	assert.False(t, Fanout().Enabled(ctx, slog.LevelInfo))
}

func TestFanout_WithAttrsAndGroup(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	f := Fanout(slog.NewTextHandler(&buf1, nil), slog.NewTextHandler(&buf2, nil))

	logger := slog.New(f.WithAttrs([]slog.Attr{slog.String("component", "trace")}).WithGroup("grp"))
	logger.Info("grouped", "key", "val")

	for _, out := range []string{buf1.String(), buf2.String()} {
		assert.Contains(t, out, "component=trace")
		assert.Contains(t, out, "grp.key=val")
	}
	assert.Equal(t, f, f.WithGroup(""), "empty group name should return same handler")
}

// errorHandler is a slog.Handler that always returns an error from Handle.
type errorHandler struct {
	slog.Handler
}

func (h *errorHandler) Handle(_ context.Context, _ slog.Record) error {
	return errors.New("handler error")
}

func (h *errorHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func TestFanout_HandleError(t *testing.T) {
	var buf bytes.Buffer
	spy := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	f := Fanout(&errorHandler{}, spy)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "should reach spy", 0)
	err := f.Handle(context.Background(), r)

	assert.EqualError(t, err, "handler error")
	assert.Contains(t, buf.String(), "should reach spy")
}

func TestWithContext_NilProvider(t *testing.T) {
	inner := slog.NewTextHandler(&bytes.Buffer{}, nil)
	assert.Same(t, inner, WithContext(inner, nil))
}

func TestWithContext_WithAttrsKeepsProvider(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, nil)
	h := WithContext(inner, func(context.Context) []slog.Attr {
		return []slog.Attr{slog.String("session", "abc")}
	})

	slog.New(h.WithAttrs([]slog.Attr{slog.Int("attacker", 1)})).Info("open")

	assert.Contains(t, buf.String(), "attacker=1")
	assert.Contains(t, buf.String(), "session=abc")
	assert.Equal(t, h, h.WithGroup(""))
}

// captureStdout redirects console output to a pipe and returns a function
// that restores it and returns what was captured.
func captureStdout(t *testing.T) func() string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := osStdout
	osStdout = w

	return func() string {
		w.Close()
		osStdout = orig
		var buf bytes.Buffer
		buf.ReadFrom(r)
		r.Close()
		return buf.String()
	}
}
