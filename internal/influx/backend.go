package influx

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/OCAP2/lagcomp/internal/config"
	"github.com/OCAP2/lagcomp/pkg/core"
)

// connectTimeout bounds the initial ping and bucket setup.
const connectTimeout = 10 * time.Second

// Backend is the InfluxDB trace sink.
type Backend struct {
	m *Manager
}

// NewBackend creates a trace sink over a new Manager.
func NewBackend(log zerolog.Logger, cfg config.InfluxConfig) *Backend {
	return &Backend{m: NewManager(log, cfg)}
}

// Init connects, or opens the backup file.
func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return b.m.Connect(ctx)
}

// Close flushes and disconnects.
func (b *Backend) Close() error {
	return b.m.Close()
}

func (b *Backend) RecordSession(s *core.SessionTrace) error {
	return b.m.WritePoint(SessionPoint(s))
}

func (b *Backend) RecordBacktrack(t *core.BacktrackTrace) error {
	return b.m.WritePoint(BacktrackPoint(t))
}

func (b *Backend) RecordRestore(r *core.RestoreTrace) error {
	return b.m.WritePoint(RestorePoint(r))
}

// Manager exposes the underlying connection manager.
func (b *Backend) Manager() *Manager {
	return b.m
}
