// Package convert maps trace records between core and GORM models.
package convert

import (
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/OCAP2/lagcomp/internal/model"
	"github.com/OCAP2/lagcomp/pkg/core"
)

// vecToPoint converts a core.Vec3 to an XYZ geom.Point.
func vecToPoint(v core.Vec3) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: v.X, Y: v.Y},
		Z:    v.Z,
		Type: geom.DimXYZ,
	})
}

func poseToJSON(p *core.Pose) datatypes.JSON {
	if p == nil {
		return datatypes.JSON("null")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(data)
}

func SessionToModel(s core.SessionTrace) model.Session {
	return model.Session{
		SessionID:     s.SessionID,
		Time:          s.Time,
		Tick:          s.Tick,
		Attacker:      uint32(s.Attacker),
		Mode:          s.Mode.String(),
		TargetTime:    s.TargetTime,
		Latency:       s.Latency,
		InputTick:     s.InputTick,
		SkewCorrected: s.SkewCorrected,
		Candidates:    s.Candidates,
		Mutated:       s.Mutated,
	}
}

func BacktrackToModel(b core.BacktrackTrace) model.Backtrack {
	return model.Backtrack{
		SessionID:  b.SessionID,
		Time:       b.Time,
		Actor:      uint32(b.Actor),
		TargetTime: b.TargetTime,
		Fraction:   b.Fraction,
		Recursive:  b.Recursive,
		Changed:    uint8(b.Changed),
		From:       vecToPoint(b.From),
		To:         vecToPoint(b.To),
		Pose:       poseToJSON(b.Pose),
		Aborted:    b.Aborted,
	}
}

func RestoreToModel(r core.RestoreTrace) model.Restore {
	return model.Restore{
		SessionID: r.SessionID,
		Time:      r.Time,
		Actor:     uint32(r.Actor),
		Origin:    string(r.Origin),
		Angles:    string(r.Angles),
		Bounds:    string(r.Bounds),
		Pose:      string(r.Pose),
		Final:     vecToPoint(r.Final),
	}
}
