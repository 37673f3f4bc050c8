package trace

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/lagcomp/internal/config"
	"github.com/OCAP2/lagcomp/internal/influx"
	"github.com/OCAP2/lagcomp/internal/logging"
	"github.com/OCAP2/lagcomp/internal/model"
	"github.com/OCAP2/lagcomp/internal/trace/memory"
	pgtrace "github.com/OCAP2/lagcomp/internal/trace/postgres"
	sqlitetrace "github.com/OCAP2/lagcomp/internal/trace/sqlite"
	"github.com/OCAP2/lagcomp/internal/trace/websocket"
	"github.com/OCAP2/lagcomp/pkg/streaming"
)

// Sink type names accepted in trace.type.
const (
	TypeMemory    = "memory"
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeWebSocket = "websocket"
	TypeInflux    = "influx"
)

// Dependencies carries what the sinks need besides their own config.
type Dependencies struct {
	Info   model.ServerInfo
	DB     config.DBConfig
	Influx config.InfluxConfig
	Logger *slog.Logger
}

// NewBackend creates a trace backend based on configuration. The backend is
// not initialised.
func NewBackend(cfg config.TraceConfig, deps Dependencies) (Backend, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Info.StartedAt.IsZero() {
		deps.Info.StartedAt = time.Now()
	}

	switch cfg.Type {
	case TypeMemory, "":
		return memory.New(cfg.Memory, deps.Info.Name), nil
	case TypeSQLite:
		b, err := sqlitetrace.New(cfg.SQLite, deps.Info, deps.Logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case TypePostgres:
		return pgtrace.New(pgtrace.Dependencies{
			Config: deps.DB,
			Info:   deps.Info,
			Logger: deps.Logger,
		}), nil
	case TypeWebSocket:
		return websocket.New(cfg.WebSocket, streaming.HelloPayload{
			Name:      deps.Info.Name,
			TickRate:  deps.Info.TickRate,
			StartedAt: deps.Info.StartedAt,
		}, deps.Logger), nil
	case TypeInflux:
		return influx.NewBackend(logging.NewZerolog(deps.Logger, "influx"), deps.Influx), nil
	default:
		return nil, fmt.Errorf("unknown trace type: %s", cfg.Type)
	}
}

// Open creates and initialises the configured backend. When that fails the
// memory backend is used instead and the failure is logged; the returned
// type is the sink actually in use.
func Open(cfg config.TraceConfig, deps Dependencies) (Backend, string, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	b, err := NewBackend(cfg, deps)
	if err == nil {
		if err = b.Init(); err == nil {
			return b, typeName(cfg.Type), nil
		}
	}
	deps.Logger.Warn("Trace sink unavailable, falling back to memory", "type", cfg.Type, "error", err)

	mem := memory.New(cfg.Memory, deps.Info.Name)
	if err := mem.Init(); err != nil {
		return nil, "", fmt.Errorf("failed to init memory trace sink: %w", err)
	}
	return mem, TypeMemory, nil
}

func typeName(t string) string {
	if t == "" {
		return TypeMemory
	}
	return t
}
