// Package memory implements a trace sink that keeps every record in memory
// and exports them as one JSON document on Close.
package memory

import (
	"sync"
	"time"

	"github.com/OCAP2/lagcomp/internal/config"
	"github.com/OCAP2/lagcomp/pkg/core"
)

// SessionRecord groups a session with the actors it touched
type SessionRecord struct {
	Session    core.SessionTrace
	Backtracks []core.BacktrackTrace
	Restores   []core.RestoreTrace
}

// Backend stores trace records in memory and exports to JSON
type Backend struct {
	cfg       config.MemoryConfig
	name      string
	startedAt time.Time

	sessions map[string]*SessionRecord // keyed by SessionID
	order    []string                  // SessionIDs in first-seen order

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend. name prefixes the export file.
func New(cfg config.MemoryConfig, name string) *Backend {
	if name == "" {
		name = "lagcomp"
	}
	return &Backend{
		cfg:      cfg,
		name:     name,
		sessions: make(map[string]*SessionRecord),
	}
}

// Init stamps the start time used in the export file name
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startedAt = time.Now()
	return nil
}

// Close exports everything recorded so far. An empty recording writes
// nothing.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.order) == 0 || b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON()
}

// record returns the group for id, creating it on first sight. Callers hold mu.
func (b *Backend) record(id string) *SessionRecord {
	rec, ok := b.sessions[id]
	if !ok {
		rec = &SessionRecord{Session: core.SessionTrace{SessionID: id}}
		b.sessions[id] = rec
		b.order = append(b.order, id)
	}
	return rec
}

// RecordSession stores the session header
func (b *Backend) RecordSession(s *core.SessionTrace) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(s.SessionID).Session = *s
	return nil
}

// RecordBacktrack appends a backtrack to its session
func (b *Backend) RecordBacktrack(t *core.BacktrackTrace) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.record(t.SessionID)
	rec.Backtracks = append(rec.Backtracks, *t)
	return nil
}

// RecordRestore appends a restore to its session
func (b *Backend) RecordRestore(r *core.RestoreTrace) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.record(r.SessionID)
	rec.Restores = append(rec.Restores, *r)
	return nil
}

// Session returns a copy of the recorded group for id.
func (b *Backend) Session(id string) (SessionRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.sessions[id]
	if !ok {
		return SessionRecord{}, false
	}
	return *rec, true
}

// Len returns the number of sessions recorded.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// ExportedFilePath returns the path of the last export, or "" before Close.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
