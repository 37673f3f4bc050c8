package lagcomp

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/OCAP2/lagcomp/pkg/core"
)

// undoRecord holds what a backtrack overwrote (restore) and what it wrote
// (verify), so Close can tell whether anything else touched the actor since.
type undoRecord struct {
	actor   core.Actor
	changed core.ChangedFields
	simTime float64

	restore state
	verify  state
}

type state struct {
	origin  core.Vec3
	angles  core.Angles
	mins    core.Vec3
	maxs    core.Vec3
	hasPose bool
	pose    core.Pose
}

// Session is one open compensation window for an attacker.
type Session struct {
	ID       string
	Attacker core.ActorID
	Mode     core.Mode
	Tick     int
	Target   float64
	Input    core.Input
	ray      *Ray

	undo      map[core.ActorID]*undoRecord
	order     []core.ActorID
	resolved  map[core.ActorID]bool
	resolving map[core.ActorID]bool

	span trace.Span
}

func newSession(id string, attacker core.ActorID, mode core.Mode, ray *Ray) *Session {
	return &Session{
		ID:        id,
		Attacker:  attacker,
		Mode:      mode,
		ray:       ray,
		undo:      make(map[core.ActorID]*undoRecord),
		resolved:  make(map[core.ActorID]bool),
		resolving: make(map[core.ActorID]bool),
		span:      trace.SpanFromContext(context.Background()),
	}
}

// Mutated lists the actors this session moved, in the order they were moved.
func (s *Session) Mutated() []core.ActorID {
	out := make([]core.ActorID, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Session) addUndo(u *undoRecord) {
	id := u.actor.ID()
	s.undo[id] = u
	s.order = append(s.order, id)
}

// canRecurseInto reports whether a blocker may be rewound from inside
// another actor's backtrack.
func (s *Session) canRecurseInto(id core.ActorID) bool {
	if id == core.NoActor || id == s.Attacker {
		return false
	}
	if _, ok := s.undo[id]; ok {
		return false
	}
	return !s.resolved[id] && !s.resolving[id]
}

// HasUndo reports whether the session moved the actor.
func (s *Session) HasUndo(id core.ActorID) bool {
	_, ok := s.undo[id]
	return ok
}
