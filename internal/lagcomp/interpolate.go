package lagcomp

import "github.com/OCAP2/lagcomp/pkg/core"

// lerpCycle blends two normalized animation cycles. An older cycle above the
// newer one means the animation looped between the samples, so the blend runs
// forward through 1.0 and wraps.
func lerpCycle(t, older, newer float64) float64 {
	if older > newer {
		c := older + (newer+1-older)*t
		if c >= 1 {
			c--
		}
		return c
	}
	return older + (newer-older)*t
}

func lerpFloat(t, a, b float64) float64 {
	return a + (b-a)*t
}

// lerpPose blends two poses. A master sequence change makes the older pose
// authoritative; layers only blend with a counterpart playing the same
// sequence in the same order slot.
func lerpPose(t float64, older, newer core.Pose) core.Pose {
	if older.Sequence != newer.Sequence {
		return older.Clone()
	}

	out := core.Pose{
		Sequence: older.Sequence,
		Cycle:    lerpCycle(t, older.Cycle, newer.Cycle),
	}
	if len(older.Layers) == 0 {
		return out
	}

	out.Layers = make([]core.Layer, len(older.Layers))
	for i, ol := range older.Layers {
		out.Layers[i] = ol
		if i >= len(newer.Layers) {
			continue
		}
		nl := newer.Layers[i]
		if nl.Sequence != ol.Sequence || nl.Order != ol.Order {
			continue
		}
		out.Layers[i].Cycle = lerpCycle(t, ol.Cycle, nl.Cycle)
		out.Layers[i].Weight = lerpFloat(t, ol.Weight, nl.Weight)
	}
	return out
}

// interpolate returns the state between older (t=0) and newer (t=1).
func interpolate(t float64, older, newer core.Sample) core.Sample {
	out := core.Sample{
		Time:   lerpFloat(t, older.Time, newer.Time),
		Alive:  older.Alive && newer.Alive,
		Origin: core.LerpVec3(t, older.Origin, newer.Origin),
		Angles: core.LerpAngles(t, older.Angles, newer.Angles),
		Mins:   core.LerpVec3(t, older.Mins, newer.Mins),
		Maxs:   core.LerpVec3(t, older.Maxs, newer.Maxs),
	}
	switch {
	case older.HasPose && newer.HasPose:
		out.HasPose = true
		out.Pose = lerpPose(t, older.Pose, newer.Pose)
	case older.HasPose:
		out.HasPose = true
		out.Pose = older.Pose.Clone()
	}
	return out
}
