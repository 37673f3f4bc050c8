package history

import (
	"slices"
	"sync"

	"github.com/OCAP2/lagcomp/pkg/core"
)

// Store maps actor identity to its track.
type Store struct {
	mu     sync.RWMutex
	tracks map[core.ActorID]*Track
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Tracks  int `json:"tracks"`
	Samples int `json:"samples"`
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tracks: make(map[core.ActorID]*Track),
	}
}

// Track returns the actor's track if one exists.
func (s *Store) Track(id core.ActorID) (*Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	return t, ok
}

// Ensure returns the actor's track, creating it if missing.
func (s *Store) Ensure(id core.ActorID) *Track {
	s.mu.RLock()
	t, ok := s.tracks[id]
	s.mu.RUnlock()
	if ok {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok = s.tracks[id]; ok {
		return t
	}
	t = NewTrack()
	s.tracks[id] = t
	return t
}

// Remove drops the actor's track.
func (s *Store) Remove(id core.ActorID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracks, id)
}

// IDs returns the tracked actor IDs in ascending order.
func (s *Store) IDs() []core.ActorID {
	s.mu.RLock()
	ids := make([]core.ActorID, 0, len(s.tracks))
	for id := range s.tracks {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Len returns the number of tracks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// Stats counts tracks and samples.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Tracks: len(s.tracks)}
	for _, t := range s.tracks {
		st.Samples += t.Len()
	}
	return st
}

// Reap removes every track whose actor valid rejects and returns how many
// were removed.
func (s *Store) Reap(valid func(core.ActorID) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id := range s.tracks {
		if !valid(id) {
			delete(s.tracks, id)
			n++
		}
	}
	return n
}

// Reset drops every track.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = make(map[core.ActorID]*Track)
}
