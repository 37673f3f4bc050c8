package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ZerologWriter is a zerolog.LevelWriter that decodes zerolog's JSON events
// and re-emits them through an slog.Logger, so the database and influx
// managers share the daemon's log sinks.
type ZerologWriter struct {
	logger *slog.Logger
}

var _ zerolog.LevelWriter = (*ZerologWriter)(nil)

// NewZerolog returns a zerolog.Logger whose output lands in logger, tagged
// with the given component name.
func NewZerolog(logger *slog.Logger, component string) zerolog.Logger {
	if component != "" {
		logger = logger.With("component", component)
	}
	return zerolog.New(&ZerologWriter{logger: logger}).Level(zerolog.TraceLevel)
}

func (w *ZerologWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel never fails; undecodable payloads are logged verbatim.
func (w *ZerologWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	lvl := zerologToSlog(level)
	ctx := context.Background()
	if !w.logger.Enabled(ctx, lvl) {
		return len(p), nil
	}

	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		w.logger.Log(ctx, lvl, strings.TrimSpace(string(p)))
		return len(p), nil
	}

	msg, _ := fields[zerolog.MessageFieldName].(string)
	delete(fields, zerolog.MessageFieldName)
	delete(fields, zerolog.LevelFieldName)
	delete(fields, zerolog.TimestampFieldName)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	w.logger.LogAttrs(ctx, lvl, msg, attrs...)
	return len(p), nil
}

func zerologToSlog(level zerolog.Level) slog.Level {
	switch level {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return slog.LevelDebug
	case zerolog.WarnLevel:
		return slog.LevelWarn
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
