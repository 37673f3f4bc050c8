// pkg/core/trace.go
package core

import "time"

// Mode selects how much of an actor's state a session compensates.
type Mode uint8

const (
	// ModeBounds rewinds origin, angles and extents only.
	ModeBounds Mode = iota
	// ModeHitboxes also rewinds the animation pose.
	ModeHitboxes
	// ModeHitboxesAlongRay is ModeHitboxes restricted to actors near a ray.
	ModeHitboxesAlongRay
)

func (m Mode) String() string {
	switch m {
	case ModeBounds:
		return "bounds"
	case ModeHitboxes:
		return "hitboxes"
	case ModeHitboxesAlongRay:
		return "hitboxes_along_ray"
	default:
		return "unknown"
	}
}

// ChangedFields is a bitmask of the fields a backtrack wrote.
type ChangedFields uint8

const (
	ChangedOrigin ChangedFields = 1 << iota
	ChangedAngles
	ChangedBounds
	ChangedPose
)

// Has reports whether all bits of c2 are set in c.
func (c ChangedFields) Has(c2 ChangedFields) bool {
	return c&c2 == c2
}

// RestoreKind describes how a field came back at session close.
type RestoreKind string

const (
	RestoreExact RestoreKind = "exact" // original written back
	RestoreDelta RestoreKind = "delta" // original shifted by a third-party change
	RestoreKept  RestoreKind = "kept"  // live value left as-is
)

// SessionTrace describes one opened compensation session.
type SessionTrace struct {
	SessionID  string    `json:"sessionId"`
	Time       time.Time `json:"time"`
	Tick       int       `json:"tick"`
	Attacker   ActorID   `json:"attacker"`
	Mode       Mode      `json:"mode"`
	TargetTime float64   `json:"targetTime"`
	Latency    float64   `json:"latency"`
	InputTick  int       `json:"inputTick"`
	// SkewCorrected is set when the input timestamp was discarded in favour
	// of the latency estimate.
	SkewCorrected bool `json:"skewCorrected"`
	Candidates    int  `json:"candidates"`
	Mutated       int  `json:"mutated"`
}

// BacktrackTrace describes one actor moved during a session.
type BacktrackTrace struct {
	SessionID  string        `json:"sessionId"`
	Time       time.Time     `json:"time"`
	Actor      ActorID       `json:"actor"`
	TargetTime float64       `json:"targetTime"`
	Fraction   float64       `json:"fraction"`
	Recursive  bool          `json:"recursive"`
	Changed    ChangedFields `json:"changed"`
	From       Vec3          `json:"from"`
	To         Vec3          `json:"to"`
	Pose       *Pose         `json:"pose,omitempty"`
	Aborted    string        `json:"aborted,omitempty"`
}

// RestoreTrace describes one actor put back at session close.
type RestoreTrace struct {
	SessionID string      `json:"sessionId"`
	Time      time.Time   `json:"time"`
	Actor     ActorID     `json:"actor"`
	Origin    RestoreKind `json:"origin,omitempty"`
	Angles    RestoreKind `json:"angles,omitempty"`
	Bounds    RestoreKind `json:"bounds,omitempty"`
	Pose      RestoreKind `json:"pose,omitempty"`
	Final     Vec3        `json:"final"`
}
