package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// osStdout is swapped by tests to capture console output.
var osStdout io.Writer = os.Stdout

// SlogManager builds the daemon's slog.Logger. Text records go to the log
// file, or to stdout when there is no file, and are mirrored to OTel when a
// provider is given. The level can be changed after Setup.
type SlogManager struct {
	logger *slog.Logger
	level  slog.LevelVar

	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "TRACE":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system. A nil provider disables OTel export
// and a nil ctx provider disables per-record context attributes.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, ctx ContextProvider) {
	m.level.Set(parseLevel(level))
	m.logProvider = provider

	handlerOpts := &slog.HandlerOptions{
		Level: &m.level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler
	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, handlerOpts))
	}

	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider)))
	}

	m.logger = slog.New(WithContext(Fanout(handlers...), ctx))
	m.logger.Info("Logging initialized", "level", m.level.Level().String())
}

// SetLevel changes the minimum level of the file/console output.
func (m *SlogManager) SetLevel(level string) {
	m.level.Set(parseLevel(level))
}

// Level reports the current minimum level.
func (m *SlogManager) Level() slog.Level {
	return m.level.Level()
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
