package convert

import (
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/OCAP2/lagcomp/internal/model"
	"github.com/OCAP2/lagcomp/pkg/core"
)

// pointToVec converts a geom.Point back to a core.Vec3. Empty points map to
// the zero vector.
func pointToVec(p geom.Point) core.Vec3 {
	c, ok := p.Coordinates()
	if !ok {
		return core.Vec3{}
	}
	return core.Vec3{X: c.XY.X, Y: c.XY.Y, Z: c.Z}
}

func parseMode(s string) core.Mode {
	for _, m := range []core.Mode{core.ModeBounds, core.ModeHitboxes, core.ModeHitboxesAlongRay} {
		if m.String() == s {
			return m
		}
	}
	return core.ModeHitboxes
}

func SessionToCore(m model.Session) core.SessionTrace {
	return core.SessionTrace{
		SessionID:     m.SessionID,
		Time:          m.Time,
		Tick:          m.Tick,
		Attacker:      core.ActorID(m.Attacker),
		Mode:          parseMode(m.Mode),
		TargetTime:    m.TargetTime,
		Latency:       m.Latency,
		InputTick:     m.InputTick,
		SkewCorrected: m.SkewCorrected,
		Candidates:    m.Candidates,
		Mutated:       m.Mutated,
	}
}

func BacktrackToCore(m model.Backtrack) core.BacktrackTrace {
	b := core.BacktrackTrace{
		SessionID:  m.SessionID,
		Time:       m.Time,
		Actor:      core.ActorID(m.Actor),
		TargetTime: m.TargetTime,
		Fraction:   m.Fraction,
		Recursive:  m.Recursive,
		Changed:    core.ChangedFields(m.Changed),
		From:       pointToVec(m.From),
		To:         pointToVec(m.To),
		Aborted:    m.Aborted,
	}
	if len(m.Pose) > 0 && string(m.Pose) != "null" {
		var p core.Pose
		if err := json.Unmarshal(m.Pose, &p); err == nil {
			b.Pose = &p
		}
	}
	return b
}

func RestoreToCore(m model.Restore) core.RestoreTrace {
	return core.RestoreTrace{
		SessionID: m.SessionID,
		Time:      m.Time,
		Actor:     core.ActorID(m.Actor),
		Origin:    core.RestoreKind(m.Origin),
		Angles:    core.RestoreKind(m.Angles),
		Bounds:    core.RestoreKind(m.Bounds),
		Pose:      core.RestoreKind(m.Pose),
		Final:     pointToVec(m.Final),
	}
}
