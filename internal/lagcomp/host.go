package lagcomp

import "github.com/OCAP2/lagcomp/pkg/core"

// Clock exposes the server's tick counter.
type Clock interface {
	Tick() int
	// TickInterval is the duration of one tick in seconds.
	TickInterval() float64
}

// Population resolves live actors.
type Population interface {
	Actors() []core.Actor
	Actor(id core.ActorID) (core.Actor, bool)
}

// NetInfo reports per-client network state.
type NetInfo interface {
	// Latency is the estimated outgoing latency to the client in seconds.
	Latency(id core.ActorID) float64
	PendingInput(id core.ActorID) (*core.Input, bool)
}

// WorldQuery sweeps an actor's hull through the world. Implementations must
// ignore the actor itself.
type WorldQuery interface {
	TraceHull(a core.Actor, start, end core.Vec3) core.TraceResult
}

// Policy decides which candidates an attacker's session rewinds.
type Policy interface {
	WantsCompensationOnPair(attacker, candidate core.Actor, in core.Input) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(attacker, candidate core.Actor, in core.Input) bool

// WantsCompensationOnPair calls f.
func (f PolicyFunc) WantsCompensationOnPair(attacker, candidate core.Actor, in core.Input) bool {
	return f(attacker, candidate, in)
}

// AlwaysCompensate rewinds every live candidate.
var AlwaysCompensate Policy = PolicyFunc(func(_, candidate core.Actor, _ core.Input) bool {
	return candidate.Alive()
})

// Tracer receives debug records of what a session did.
type Tracer interface {
	TraceSession(t core.SessionTrace)
	TraceBacktrack(t core.BacktrackTrace)
	TraceRestore(t core.RestoreTrace)
}

// Ray is the attack corridor for core.ModeHitboxesAlongRay.
type Ray struct {
	Start  core.Vec3
	End    core.Vec3
	Radius float64
}
