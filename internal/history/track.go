// Package history keeps the bounded per-actor sample history that lag
// compensation rewinds into.
package history

import (
	"sync"

	"github.com/OCAP2/lagcomp/pkg/core"
)

// Track is one actor's samples. Samples are stored oldest first so appends and
// tail pruning are cheap; all read accessors present them newest first.
type Track struct {
	mu      sync.Mutex
	samples []core.Sample
}

// NewTrack creates an empty track.
func NewTrack() *Track {
	return &Track{samples: make([]core.Sample, 0, 8)}
}

// Push appends s as the new head. Samples whose time is not strictly newer
// than the current head are rejected.
func (t *Track) Push(s core.Sample) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.samples); n > 0 && t.samples[n-1].Time >= s.Time {
		return false
	}
	s.Pose = s.Pose.Clone()
	t.samples = append(t.samples, s)
	return true
}

// Prune drops tail samples older than deadline and returns how many went.
func (t *Track) Prune(deadline float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cut := 0
	for cut < len(t.samples) && t.samples[cut].Time < deadline {
		cut++
	}
	if cut == 0 {
		return 0
	}
	n := copy(t.samples, t.samples[cut:])
	clear(t.samples[n:])
	t.samples = t.samples[:n]
	return cut
}

// Head returns the newest sample.
func (t *Track) Head() (core.Sample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == 0 {
		return core.Sample{}, false
	}
	return t.samples[len(t.samples)-1], true
}

// Len returns the number of samples held.
func (t *Track) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// Walk calls fn for each sample from newest to oldest until fn returns false.
// The track is locked for the duration of the walk; fn must not call back into
// the track.
func (t *Track) Walk(fn func(s *core.Sample) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.samples) - 1; i >= 0; i-- {
		if !fn(&t.samples[i]) {
			return
		}
	}
}

// Samples returns a copy of the samples, newest first.
func (t *Track) Samples() []core.Sample {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.Sample, len(t.samples))
	for i, s := range t.samples {
		out[len(t.samples)-1-i] = s
	}
	return out
}

// Clear removes every sample.
func (t *Track) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = t.samples[:0]
}
