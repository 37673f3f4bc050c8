package trace

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/OCAP2/lagcomp/internal/dispatcher"
	"github.com/OCAP2/lagcomp/pkg/core"
)

// Event kinds routed through the dispatcher.
const (
	KindSession   = "session"
	KindBacktrack = "backtrack"
	KindRestore   = "restore"
)

// DefaultBuffer is the per-kind queue size used when none is configured.
const DefaultBuffer = 4096

// Stats counts what went through a Pipeline.
type Stats struct {
	Sessions   uint64
	Backtracks uint64
	Restores   uint64
	Dropped    uint64
	Pending    int
}

// Pipeline hands trace records to a Backend off the simulation thread. It
// satisfies lagcomp.Tracer. A full queue drops the record.
type Pipeline struct {
	backend Backend
	disp    *dispatcher.Dispatcher
	logger  *slog.Logger

	sessions   atomic.Uint64
	backtracks atomic.Uint64
	restores   atomic.Uint64
	dropped    atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// NewPipeline wires backend behind a buffered dispatcher. The backend must
// already be initialised.
func NewPipeline(backend Backend, logger *slog.Logger, buffer int) (*Pipeline, error) {
	if backend == nil {
		return nil, errors.New("trace pipeline needs a backend")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	disp, err := dispatcher.New(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	p := &Pipeline{backend: backend, disp: disp, logger: logger}

	disp.Register(KindSession, func(e dispatcher.Event) (any, error) {
		s := e.Payload.(core.SessionTrace)
		if err := backend.RecordSession(&s); err != nil {
			return nil, err
		}
		p.sessions.Add(1)
		return nil, nil
	}, dispatcher.Buffered(buffer), dispatcher.Logged())

	disp.Register(KindBacktrack, func(e dispatcher.Event) (any, error) {
		b := e.Payload.(core.BacktrackTrace)
		if err := backend.RecordBacktrack(&b); err != nil {
			return nil, err
		}
		p.backtracks.Add(1)
		return nil, nil
	}, dispatcher.Buffered(buffer))

	disp.Register(KindRestore, func(e dispatcher.Event) (any, error) {
		r := e.Payload.(core.RestoreTrace)
		if err := backend.RecordRestore(&r); err != nil {
			return nil, err
		}
		p.restores.Add(1)
		return nil, nil
	}, dispatcher.Buffered(buffer))

	return p, nil
}

// TraceSession queues a session record.
func (p *Pipeline) TraceSession(t core.SessionTrace) {
	p.dispatch(KindSession, t)
}

// TraceBacktrack queues a backtrack record.
func (p *Pipeline) TraceBacktrack(t core.BacktrackTrace) {
	p.dispatch(KindBacktrack, t)
}

// TraceRestore queues a restore record.
func (p *Pipeline) TraceRestore(t core.RestoreTrace) {
	p.dispatch(KindRestore, t)
}

func (p *Pipeline) dispatch(kind string, payload any) {
	if _, err := p.disp.Dispatch(dispatcher.Event{Kind: kind, Payload: payload}); err != nil {
		p.dropped.Add(1)
		if !errors.Is(err, dispatcher.ErrClosed) {
			p.logger.Debug("trace record dropped", "kind", kind, "error", err)
		}
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Sessions:   p.sessions.Load(),
		Backtracks: p.backtracks.Load(),
		Restores:   p.restores.Load(),
		Dropped:    p.dropped.Load(),
		Pending:    p.disp.Pending(),
	}
}

// Backend returns the sink the pipeline writes to.
func (p *Pipeline) Backend() Backend {
	return p.backend
}

// Close drains queued records into the backend, then closes it.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.disp.Close()
		p.closeErr = p.backend.Close()
	})
	return p.closeErr
}
