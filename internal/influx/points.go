package influx

import (
	"math"
	"strconv"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/OCAP2/lagcomp/pkg/core"
)

// Measurement names.
const (
	MeasurementSession   = "lagcomp_session"
	MeasurementBacktrack = "lagcomp_backtrack"
	MeasurementRestore   = "lagcomp_restore"
)

func pointTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func actorTag(id core.ActorID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// SessionPoint converts a session record to a point.
func SessionPoint(s *core.SessionTrace) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementSession,
		map[string]string{
			"attacker": actorTag(s.Attacker),
			"mode":     s.Mode.String(),
		},
		map[string]any{
			"session_id":     s.SessionID,
			"tick":           s.Tick,
			"input_tick":     s.InputTick,
			"target_time":    s.TargetTime,
			"latency":        s.Latency,
			"skew_corrected": s.SkewCorrected,
			"candidates":     s.Candidates,
			"mutated":        s.Mutated,
		},
		pointTime(s.Time),
	)
}

// BacktrackPoint converts a backtrack record to a point. displacement is the
// distance the actor was moved.
func BacktrackPoint(b *core.BacktrackTrace) *influxdb2_write.Point {
	tags := map[string]string{
		"actor":     actorTag(b.Actor),
		"recursive": strconv.FormatBool(b.Recursive),
	}
	if b.Aborted != "" {
		tags["aborted"] = b.Aborted
	}
	return influxdb2_write.NewPoint(MeasurementBacktrack,
		tags,
		map[string]any{
			"session_id":   b.SessionID,
			"target_time":  b.TargetTime,
			"fraction":     b.Fraction,
			"changed":      int(b.Changed),
			"displacement": math.Sqrt(b.To.Sub(b.From).LengthSqr()),
		},
		pointTime(b.Time),
	)
}

// RestorePoint converts a restore record to a point. Empty kinds are left
// out of the tag set.
func RestorePoint(r *core.RestoreTrace) *influxdb2_write.Point {
	tags := map[string]string{"actor": actorTag(r.Actor)}
	for name, kind := range map[string]core.RestoreKind{
		"origin": r.Origin,
		"angles": r.Angles,
		"bounds": r.Bounds,
		"pose":   r.Pose,
	} {
		if kind != "" {
			tags[name] = string(kind)
		}
	}
	return influxdb2_write.NewPoint(MeasurementRestore,
		tags,
		map[string]any{
			"session_id": r.SessionID,
			"final_x":    r.Final.X,
			"final_y":    r.Final.Y,
			"final_z":    r.Final.Z,
		},
		pointTime(r.Time),
	)
}
