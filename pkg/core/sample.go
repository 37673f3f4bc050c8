// pkg/core/sample.go
package core

// Sample is one recorded instant of an actor. Samples are never mutated once
// appended to a track.
type Sample struct {
	Time    float64 `json:"time"`
	Alive   bool    `json:"alive"`
	Origin  Vec3    `json:"origin"`
	Angles  Angles  `json:"angles"`
	Mins    Vec3    `json:"mins"`
	Maxs    Vec3    `json:"maxs"`
	HasPose bool    `json:"hasPose"`
	Pose    Pose    `json:"pose"`
}

// Snapshot captures the actor's current live state as a Sample.
func Snapshot(a Actor) Sample {
	mins, maxs := a.Bounds()
	s := Sample{
		Time:   a.SimulationTime(),
		Alive:  a.Alive(),
		Origin: a.Origin(),
		Angles: a.Angles(),
		Mins:   mins,
		Maxs:   maxs,
	}
	if an, ok := a.(Animated); ok {
		s.HasPose = true
		s.Pose = an.Pose().Clone()
	}
	return s
}
