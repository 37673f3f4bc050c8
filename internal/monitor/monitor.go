// Package monitor reports the daemon's compensation and trace counters.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/lagcomp/internal/history"
	"github.com/OCAP2/lagcomp/internal/lagcomp"
	"github.com/OCAP2/lagcomp/internal/trace"
)

// SessionStats is satisfied by *lagcomp.Controller.
type SessionStats interface {
	Stats() lagcomp.Stats
	Active() bool
}

// TraceStats is satisfied by *trace.Pipeline.
type TraceStats interface {
	Stats() trace.Stats
}

// Ticker reports the current simulation tick.
type Ticker interface {
	Tick() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Store      *history.Store
	Controller SessionStats
	Trace      TraceStats // optional
	SinkType   string
	Clock      Ticker // optional
	Logger     *slog.Logger
	// StatusPath, when set, is rewritten with the JSON status every interval.
	StatusPath string
}

// Status is a point-in-time snapshot.
type Status struct {
	Time       time.Time     `json:"time"`
	Uptime     time.Duration `json:"uptime"`
	Tick       int           `json:"tick"`
	Tracks     int           `json:"tracks"`
	Samples    int           `json:"samples"`
	Active     bool          `json:"active"`
	Sessions   int           `json:"sessions"`
	Mutations  int           `json:"mutations"`
	Aborted    int           `json:"aborted"`
	Recursions int           `json:"recursions"`
	Sink       string        `json:"sink"`
	Trace      trace.Stats   `json:"trace"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	started   time.Time
	isRunning bool
	mu        sync.RWMutex
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:    deps,
		started: time.Now(),
	}
}

// IsRunning returns whether Run is active
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status returns the current counters
func (s *Service) Status() Status {
	now := time.Now()
	st := Status{
		Time:   now,
		Uptime: now.Sub(s.started),
		Sink:   s.deps.SinkType,
	}
	if s.deps.Clock != nil {
		st.Tick = s.deps.Clock.Tick()
	}
	if s.deps.Store != nil {
		hs := s.deps.Store.Stats()
		st.Tracks, st.Samples = hs.Tracks, hs.Samples
	}
	if s.deps.Controller != nil {
		cs := s.deps.Controller.Stats()
		st.Active = s.deps.Controller.Active()
		st.Sessions = cs.Sessions
		st.Mutations = cs.Mutations
		st.Aborted = cs.Aborted
		st.Recursions = cs.Recursions
	}
	if s.deps.Trace != nil {
		st.Trace = s.deps.Trace.Stats()
	}
	return st
}

// LogStatus logs one status line.
func (s *Service) LogStatus(st Status) {
	s.deps.Logger.Info("status",
		"tick", st.Tick,
		"tracks", st.Tracks,
		"samples", st.Samples,
		"sessions", st.Sessions,
		"mutations", st.Mutations,
		"aborted", st.Aborted,
		"sink", st.Sink,
		"traced", st.Trace.Sessions,
		"traceDropped", st.Trace.Dropped,
		"tracePending", st.Trace.Pending,
	)
}

// WriteStatus rewrites the status file.
func (s *Service) WriteStatus(st Status) error {
	if s.deps.StatusPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	if err := os.WriteFile(s.deps.StatusPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return nil
}

// Run reports status every interval until ctx is done. A second concurrent
// Run returns immediately.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.deps.Logger.Debug("Starting status monitor", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.Status()
			s.LogStatus(st)
			if err := s.WriteStatus(st); err != nil {
				s.deps.Logger.Error("Error writing status file", "error", err)
			}
		}
	}
}
