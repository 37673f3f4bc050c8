package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewZerolog_ForwardsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	zl := NewZerolog(logger, "database")
	zl.Info().Str("path", "traces.db").Int("rows", 12).Msg("Using local SQLite DB")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "Using local SQLite DB", entry["msg"])
	assert.Equal(t, "database", entry["component"])
	assert.Equal(t, "traces.db", entry["path"])
	assert.Equal(t, float64(12), entry["rows"])
}

func TestNewZerolog_LevelMapping(t *testing.T) {
	tests := []struct {
		name string
		emit func(zerolog.Logger)
		want string
	}{
		{"debug", func(l zerolog.Logger) { l.Debug().Msg("m") }, "DEBUG"},
		{"info", func(l zerolog.Logger) { l.Info().Msg("m") }, "INFO"},
		{"warn", func(l zerolog.Logger) { l.Warn().Msg("m") }, "WARN"},
		{"error", func(l zerolog.Logger) { l.Error().Err(errors.New("boom")).Msg("m") }, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			tt.emit(NewZerolog(logger, ""))

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.want, entry["level"])
			assert.NotContains(t, entry, "component")
		})
	}
}

func TestNewZerolog_RespectsSlogLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	zl := NewZerolog(logger, "influx")
	zl.Debug().Msg("filtered")
	assert.Empty(t, buf.String())
}

func TestZerologWriter_NonJSONPayload(t *testing.T) {
	var buf bytes.Buffer
	w := &ZerologWriter{logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	n, err := w.Write([]byte("plain text\n"))
	require.NoError(t, err)
	assert.Equal(t, len("plain text\n"), n)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "plain text", entry["msg"])
}
