package history

import (
	"sync"

	"github.com/OCAP2/lagcomp/pkg/core"
)

// RecorderConfig selects the recorded population and the retention horizon.
type RecorderConfig struct {
	RecordPlayers bool
	RecordNPCs    bool
	// MaxUnlag is the horizon in seconds; older samples are pruned. It is
	// clamped to [0, MaxHorizon].
	MaxUnlag float64
}

// MaxHorizon is the longest history a track keeps, in seconds.
const MaxHorizon = 1.0

// RecordResult summarizes one Record pass.
type RecordResult struct {
	Recorded int // samples appended
	Skipped  int // actors whose simulation time did not advance
	Pruned   int // samples dropped past the horizon
	Dropped  int // empty tracks of vanished actors removed
}

// Recorder appends one sample per compensable actor per tick.
type Recorder struct {
	store *Store
	cfg   RecorderConfig

	mu     sync.RWMutex
	extras map[core.ActorID]struct{}
}

// NewRecorder creates a recorder writing into store.
func NewRecorder(store *Store, cfg RecorderConfig) *Recorder {
	cfg.MaxUnlag = min(max(cfg.MaxUnlag, 0), MaxHorizon)
	return &Recorder{
		store:  store,
		cfg:    cfg,
		extras: make(map[core.ActorID]struct{}),
	}
}

// Store returns the backing store.
func (r *Recorder) Store() *Store {
	return r.store
}

// Register opts an actor into recording regardless of its flags.
func (r *Recorder) Register(id core.ActorID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extras[id] = struct{}{}
}

// Unregister removes an explicit opt-in. The actor's track ages out.
func (r *Recorder) Unregister(id core.ActorID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.extras, id)
}

// Compensable reports whether the actor belongs to the recorded population.
func (r *Recorder) Compensable(a core.Actor) bool {
	f := a.Flags()
	if r.cfg.RecordPlayers && f.Has(core.FlagPlayer) {
		return true
	}
	if r.cfg.RecordNPCs && f.Has(core.FlagNPC) {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.extras[a.ID()]
	return ok
}

// Record samples every compensable actor at the current tick and prunes
// samples older than now minus the horizon. It never fails; actors that
// disappeared simply age out.
func (r *Recorder) Record(now float64, actors []core.Actor) RecordResult {
	var res RecordResult
	deadline := now - r.cfg.MaxUnlag

	seen := make(map[core.ActorID]struct{}, len(actors))
	for _, a := range actors {
		if a == nil || !r.Compensable(a) {
			continue
		}
		seen[a.ID()] = struct{}{}

		track := r.store.Ensure(a.ID())
		res.Pruned += track.Prune(deadline)

		if head, ok := track.Head(); ok && head.Time >= a.SimulationTime() {
			res.Skipped++
			continue
		}
		if track.Push(core.Snapshot(a)) {
			res.Recorded++
		}
	}

	for _, id := range r.store.IDs() {
		if _, ok := seen[id]; ok {
			continue
		}
		track, ok := r.store.Track(id)
		if !ok {
			continue
		}
		res.Pruned += track.Prune(deadline)
		if track.Len() == 0 {
			r.store.Remove(id)
			res.Dropped++
		}
	}

	return res
}
