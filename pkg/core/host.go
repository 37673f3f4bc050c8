// pkg/core/host.go
package core

// Input is the attacker's pending user command as seen by the server.
type Input struct {
	// Tick is the server tick the client was rendering when it issued the
	// command.
	Tick int `json:"tick"`
	// LerpTime is the client's view interpolation delay in seconds.
	LerpTime float64 `json:"lerpTime"`
}

// TraceResult is the answer of a hull sweep through the world.
type TraceResult struct {
	// Fraction of the sweep completed before the first blocking surface.
	Fraction float64
	// StartSolid is set when the hull is already embedded at the start.
	StartSolid bool
	// AllSolid is set when the whole sweep lies inside solid.
	AllSolid bool
	EndPos   Vec3
	// Hit is the blocking actor, NoActor for world geometry or no hit.
	Hit ActorID
}

// Blocked reports whether the sweep began inside something solid.
func (r TraceResult) Blocked() bool {
	return r.StartSolid || r.AllSolid
}
