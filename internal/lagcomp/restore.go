package lagcomp

import (
	"github.com/OCAP2/lagcomp/pkg/core"
)

// restore puts one actor back. A field still holding the value the session
// wrote gets its original back; a field someone else changed keeps that
// change on top of the original.
func (c *Controller) restore(s Settings, u *undoRecord) core.RestoreTrace {
	a := u.actor
	tr := core.RestoreTrace{Actor: a.ID()}
	restored := false

	if u.changed.Has(core.ChangedBounds) {
		mins, maxs := a.Bounds()
		if mins == u.verify.mins && maxs == u.verify.maxs {
			a.SetBounds(u.restore.mins, u.restore.maxs)
			tr.Bounds = core.RestoreExact
		} else {
			a.SetBounds(
				u.restore.mins.Add(mins.Sub(u.verify.mins)),
				u.restore.maxs.Add(maxs.Sub(u.verify.maxs)),
			)
			tr.Bounds = core.RestoreDelta
		}
		restored = true
	}

	if u.changed.Has(core.ChangedAngles) {
		live := a.Angles()
		if live == u.verify.angles {
			a.SetAngles(u.restore.angles)
			tr.Angles = core.RestoreExact
		} else {
			a.SetAngles(u.restore.angles.Add(live.Delta(u.verify.angles)))
			tr.Angles = core.RestoreDelta
		}
		restored = true
	}

	if u.changed.Has(core.ChangedPose) {
		if an, ok := a.(core.Animated); ok && an.Pose().Equal(u.verify.pose) {
			an.SetPose(u.restore.pose.Clone())
			tr.Pose = core.RestoreExact
			restored = true
		} else {
			tr.Pose = core.RestoreKept
		}
	}

	if u.changed.Has(core.ChangedOrigin) {
		tr.Origin = c.restoreOrigin(s, u)
		if tr.Origin != core.RestoreKept {
			restored = true
		}
	}

	if restored {
		a.SetSimulationTime(u.simTime)
	}
	tr.Final = a.Origin()

	for _, k := range []core.RestoreKind{tr.Origin, tr.Angles, tr.Bounds, tr.Pose} {
		if k != "" {
			c.metrics.restore(string(k))
		}
	}
	return tr
}

func (c *Controller) restoreOrigin(s Settings, u *undoRecord) core.RestoreKind {
	a := u.actor
	live := a.Origin()

	if live == u.verify.origin {
		a.SetOrigin(u.restore.origin)
		return core.RestoreExact
	}

	delta := live.Sub(u.verify.origin)
	if delta.Length2DSqr() > s.teleportDistanceSqr() {
		c.debug("restore kept live value, moved too far", "actor", a.ID(), "delta", delta)
		return core.RestoreKept
	}

	want := u.restore.origin.Add(delta)
	if !s.FixStuck {
		a.SetOrigin(want)
		return core.RestoreDelta
	}
	if !c.world.TraceHull(a, want, want).Blocked() {
		a.SetOrigin(want)
		return core.RestoreDelta
	}

	sweep := c.world.TraceHull(a, live, want)
	if sweep.Blocked() {
		c.debug("restore kept live value, destination blocked", "actor", a.ID())
		return core.RestoreKept
	}
	a.SetOrigin(core.LerpVec3(sweep.Fraction*stuckShrink, live, want))
	return core.RestoreDelta
}
