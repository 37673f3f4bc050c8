// pkg/core/actor.go
package core

// ActorID is the stable identity of a simulated actor.
type ActorID uint32

// NoActor is the zero ActorID; no live actor uses it.
const NoActor ActorID = 0

// Flags classify an actor for recording and compensation eligibility.
type Flags uint8

const (
	FlagPlayer   Flags = 1 << iota // connected participant
	FlagNPC                        // server-driven AI actor
	FlagBot                        // player slot driven by a bot, never an attacker
	FlagObserver                   // spectator, never an attacker
	FlagOptOut                     // client disabled compensation for itself
)

// Has reports whether all bits of f2 are set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Actor is a live, mutable simulated actor that can be recorded and
// temporarily moved back in time.
type Actor interface {
	ID() ActorID
	Flags() Flags
	Alive() bool

	SimulationTime() float64
	SetSimulationTime(t float64)

	Origin() Vec3
	SetOrigin(v Vec3)

	Angles() Angles
	SetAngles(a Angles)

	// Bounds returns the collision extents relative to the origin.
	Bounds() (mins, maxs Vec3)
	SetBounds(mins, maxs Vec3)
}

// Animated is implemented by actors that carry an animation pose.
type Animated interface {
	Pose() Pose
	SetPose(p Pose)
}

// Layer is one animation overlay.
type Layer struct {
	Sequence int     `json:"sequence"`
	Cycle    float64 `json:"cycle"`
	Weight   float64 `json:"weight"`
	Order    int     `json:"order"`
}

// Pose is the master sequence with its normalized cycle in [0,1) plus the
// ordered overlay layers.
type Pose struct {
	Sequence int     `json:"sequence"`
	Cycle    float64 `json:"cycle"`
	Layers   []Layer `json:"layers,omitempty"`
}

// Clone returns a deep copy so callers can keep it past further mutation.
func (p Pose) Clone() Pose {
	out := p
	if p.Layers != nil {
		out.Layers = make([]Layer, len(p.Layers))
		copy(out.Layers, p.Layers)
	}
	return out
}

// Equal compares poses exactly, field by field.
func (p Pose) Equal(o Pose) bool {
	if p.Sequence != o.Sequence || p.Cycle != o.Cycle || len(p.Layers) != len(o.Layers) {
		return false
	}
	for i := range p.Layers {
		if p.Layers[i] != o.Layers[i] {
			return false
		}
	}
	return true
}
