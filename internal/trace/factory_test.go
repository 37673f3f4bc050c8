package trace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/lagcomp/internal/config"
	"github.com/OCAP2/lagcomp/internal/influx"
	"github.com/OCAP2/lagcomp/internal/model"
	"github.com/OCAP2/lagcomp/internal/trace/memory"
	pgtrace "github.com/OCAP2/lagcomp/internal/trace/postgres"
	sqlitetrace "github.com/OCAP2/lagcomp/internal/trace/sqlite"
	"github.com/OCAP2/lagcomp/internal/trace/websocket"
)

// Compile-time interface checks
var (
	_ Backend  = (*memory.Backend)(nil)
	_ Backend  = (*pgtrace.Backend)(nil)
	_ Backend  = (*sqlitetrace.Backend)(nil)
	_ Backend  = (*websocket.Backend)(nil)
	_ Backend  = (*influx.Backend)(nil)
	_ Exporter = (*memory.Backend)(nil)
	_ Exporter = (*sqlitetrace.Backend)(nil)
)

func TestNewBackend(t *testing.T) {
	deps := Dependencies{Info: model.ServerInfo{Name: "test", TickRate: 64}}

	tests := []struct {
		typ  string
		want any
	}{
		{"", &memory.Backend{}},
		{TypeMemory, &memory.Backend{}},
		{TypeSQLite, &sqlitetrace.Backend{}},
		{TypePostgres, &pgtrace.Backend{}},
		{TypeWebSocket, &websocket.Backend{}},
		{TypeInflux, &influx.Backend{}},
	}
	for _, tt := range tests {
		t.Run("type="+tt.typ, func(t *testing.T) {
			b, err := NewBackend(config.TraceConfig{Type: tt.typ}, deps)
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

func TestNewBackendUnknown(t *testing.T) {
	_, err := NewBackend(config.TraceConfig{Type: "kafka"}, Dependencies{})
	assert.ErrorContains(t, err, "unknown trace type: kafka")
}

func TestOpenSQLite(t *testing.T) {
	b, typ, err := Open(config.TraceConfig{Type: TypeSQLite}, Dependencies{})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, TypeSQLite, typ)
	assert.IsType(t, &sqlitetrace.Backend{}, b)
}

func TestOpenFallsBackToMemory(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TraceConfig
	}{
		{"unknown type", config.TraceConfig{Type: "kafka"}},
		{"websocket without url", config.TraceConfig{Type: TypeWebSocket}},
		{"websocket unreachable", config.TraceConfig{
			Type:      TypeWebSocket,
			WebSocket: config.WebSocketConfig{URL: "ws://127.0.0.1:1/trace"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Memory = config.MemoryConfig{OutputDir: t.TempDir()}
			b, typ, err := Open(tt.cfg, Dependencies{})
			require.NoError(t, err)
			defer b.Close()

			assert.Equal(t, TypeMemory, typ)
			assert.IsType(t, &memory.Backend{}, b)
		})
	}
}

func TestOpenInfluxBackup(t *testing.T) {
	deps := Dependencies{Influx: config.InfluxConfig{
		Enabled:    true,
		Host:       "127.0.0.1",
		Port:       "1",
		Protocol:   "http",
		BackupPath: filepath.Join(t.TempDir(), "influx.lp.gz"),
	}}

	b, typ, err := Open(config.TraceConfig{Type: TypeInflux}, deps)
	require.NoError(t, err)
	assert.Equal(t, TypeInflux, typ)
	assert.NoError(t, b.Close())
	assert.FileExists(t, deps.Influx.BackupPath)
}
