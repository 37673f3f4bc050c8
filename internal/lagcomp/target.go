package lagcomp

import (
	"math"

	"github.com/OCAP2/lagcomp/pkg/core"
)

func timeToTicks(t, interval float64) int {
	return int(0.5 + t/interval)
}

func ticksToTime(ticks int, interval float64) float64 {
	return interval * float64(ticks)
}

// target is the resolved rewind point of a session.
type target struct {
	Tick    int
	Time    float64
	Latency float64
	// SkewCorrected is set when the input tick was replaced by the latency
	// estimate.
	SkewCorrected bool
}

// resolveTarget picks the simulation time the attacker was looking at.
// The client's view is behind by its latency plus the view interpolation
// delay; the tick stamped on its input should agree with that estimate, and
// when it does not by more than the allowed skew the estimate wins.
func resolveTarget(s Settings, nowTick int, interval, latency float64, in core.Input) target {
	lerpTicks := timeToTicks(in.LerpTime, interval)

	correct := clamp(latency+ticksToTime(lerpTicks, interval), 0, s.MaxUnlag)

	targetTick := in.Tick - lerpTicks
	delta := correct - ticksToTime(nowTick-targetTick, interval)

	res := target{Latency: latency}
	if math.Abs(delta) > s.MaxTimestampSkew {
		targetTick = nowTick - timeToTicks(correct, interval)
		res.SkewCorrected = true
	}
	targetTick += s.TickPush

	res.Tick = targetTick
	res.Time = ticksToTime(targetTick, interval)
	return res
}
