package lagcomp

import (
	"time"

	"github.com/OCAP2/lagcomp/pkg/core"
)

const (
	// compensationEpsSqr is the squared distance below which origin and
	// angle changes are not worth writing.
	compensationEpsSqr = 0.1 * 0.1
	// stuckShrink pulls a swept position back from the blocking surface.
	stuckShrink = 0.95
)

const (
	abortEmpty    = "empty"
	abortDead     = "dead"
	abortTeleport = "teleport"
)

// resolver moves candidates of one session.
type resolver struct {
	c    *Controller
	s    Settings
	sess *Session
}

// backtrack moves a to its estimated state at the session's target time and
// reports whether anything was written.
func (r *resolver) backtrack(a core.Actor, recursive bool) bool {
	id := a.ID()
	if r.sess.resolved[id] {
		return false
	}
	r.sess.resolved[id] = true

	tr := core.BacktrackTrace{
		SessionID:  r.sess.ID,
		Actor:      id,
		TargetTime: r.sess.Target,
		Recursive:  recursive,
		From:       a.Origin(),
	}

	want, frac, reason := r.estimate(a)
	if reason != "" {
		tr.Aborted = reason
		r.finish(&tr, "aborted")
		r.c.metrics.abort(reason)
		r.c.mu.Lock()
		r.c.stats.Aborted++
		r.c.mu.Unlock()
		return false
	}
	tr.Fraction = frac

	if r.sess.Mode == core.ModeHitboxesAlongRay && !recursive && !r.nearRay(a, want) {
		tr.Aborted = "off_ray"
		r.finish(&tr, "skipped")
		return false
	}

	if r.s.FixStuck {
		r.sess.resolving[id] = true
		want.Origin = r.unstick(a, want.Origin)
		delete(r.sess.resolving, id)
	}

	changed := r.diff(a, want)
	if changed == 0 {
		tr.To = a.Origin()
		r.finish(&tr, "unchanged")
		return false
	}

	r.sess.addUndo(r.record(a, want, changed))
	r.apply(a, want, changed)

	r.c.mu.Lock()
	r.c.stats.Mutations++
	if recursive {
		r.c.stats.Recursions++
	}
	r.c.mu.Unlock()

	tr.Changed = changed
	tr.To = a.Origin()
	if changed.Has(core.ChangedPose) {
		p := want.Pose.Clone()
		tr.Pose = &p
	}
	r.finish(&tr, "mutated")
	return true
}

// estimate walks the actor's track newest to oldest and returns its state at
// the target time, the interpolation fraction used, or an abort reason.
func (r *resolver) estimate(a core.Actor) (core.Sample, float64, string) {
	track, ok := r.c.store.Track(a.ID())
	if !ok || track.Len() == 0 {
		return core.Sample{}, 0, abortEmpty
	}

	target := r.sess.Target
	teleportSqr := r.s.teleportDistanceSqr()

	var (
		cur, prev       core.Sample
		haveCur, hasNew bool
		reason          string
	)
	prevOrigin := a.Origin()

	track.Walk(func(s *core.Sample) bool {
		if haveCur {
			prev = cur
			hasNew = true
		}
		cur = *s
		haveCur = true

		if !s.Alive {
			reason = abortDead
			return false
		}
		if s.Origin.Sub(prevOrigin).Length2DSqr() > teleportSqr {
			reason = abortTeleport
			return false
		}
		if s.Time <= target {
			return false
		}
		prevOrigin = s.Origin
		return true
	})

	if !haveCur {
		return core.Sample{}, 0, abortEmpty
	}
	if reason != "" {
		return core.Sample{}, 0, reason
	}

	if hasNew && cur.Time < target && cur.Time < prev.Time {
		frac := (target - cur.Time) / (prev.Time - cur.Time)
		return interpolate(frac, cur, prev), frac, ""
	}
	return cur, 0, ""
}

// nearRay reports whether the actor's live or proposed box touches the ray
// corridor.
func (r *resolver) nearRay(a core.Actor, want core.Sample) bool {
	ray := r.sess.ray
	if ray == nil {
		return true
	}
	mins, maxs := a.Bounds()
	box := core.BoxAt(a.Origin(), mins, maxs).
		Union(core.BoxAt(want.Origin, want.Mins, want.Maxs)).
		Expand(ray.Radius)
	_, hit := box.IntersectSegment(ray.Start, ray.End)
	return hit
}

// unstick keeps the proposed origin out of solids. A blocking actor is first
// rewound itself; if the spot is still taken the actor is swept toward it
// from its live origin and stopped just short of the obstacle.
func (r *resolver) unstick(a core.Actor, want core.Vec3) core.Vec3 {
	live := a.Origin()

	tr := r.c.world.TraceHull(a, want, want)
	if !tr.Blocked() {
		return want
	}

	if r.sess.canRecurseInto(tr.Hit) {
		if blocker, ok := r.c.actors.Actor(tr.Hit); ok {
			if _, tracked := r.c.store.Track(tr.Hit); tracked {
				r.c.debug("moving blocker out of the way", "actor", a.ID(), "blocker", tr.Hit)
				r.backtrack(blocker, true)
				if tr = r.c.world.TraceHull(a, want, want); !tr.Blocked() {
					return want
				}
			}
		}
	}

	r.c.debug("trying to back actor into a bad position", "actor", a.ID(), "want", want)

	sweep := r.c.world.TraceHull(a, live, want)
	if sweep.Blocked() {
		r.c.debug("backtrack failed completely, keeping live origin", "actor", a.ID())
		return live
	}
	r.c.debug("backtrack got most of the way", "actor", a.ID(), "fraction", sweep.Fraction)
	return core.LerpVec3(sweep.Fraction*stuckShrink, live, want)
}

func (r *resolver) diff(a core.Actor, want core.Sample) core.ChangedFields {
	var changed core.ChangedFields

	if a.Angles().Delta(want.Angles).LengthSqr() > compensationEpsSqr {
		changed |= core.ChangedAngles
	}
	mins, maxs := a.Bounds()
	if mins != want.Mins || maxs != want.Maxs {
		changed |= core.ChangedBounds
	}
	if r.posed(a, want) {
		an := a.(core.Animated)
		if !an.Pose().Equal(want.Pose) {
			changed |= core.ChangedPose
		}
	}
	if a.Origin().Sub(want.Origin).LengthSqr() > compensationEpsSqr {
		changed |= core.ChangedOrigin
	}
	return changed
}

// posed reports whether the session compensates the actor's pose.
func (r *resolver) posed(a core.Actor, want core.Sample) bool {
	if r.sess.Mode == core.ModeBounds || !want.HasPose {
		return false
	}
	_, ok := a.(core.Animated)
	return ok
}

func (r *resolver) record(a core.Actor, want core.Sample, changed core.ChangedFields) *undoRecord {
	mins, maxs := a.Bounds()
	u := &undoRecord{
		actor:   a,
		changed: changed,
		simTime: a.SimulationTime(),
		restore: state{
			origin: a.Origin(),
			angles: a.Angles(),
			mins:   mins,
			maxs:   maxs,
		},
		verify: state{
			origin: want.Origin,
			angles: want.Angles,
			mins:   want.Mins,
			maxs:   want.Maxs,
		},
	}
	if changed.Has(core.ChangedPose) {
		u.restore.hasPose = true
		u.restore.pose = a.(core.Animated).Pose().Clone()
		u.verify.hasPose = true
		u.verify.pose = want.Pose.Clone()
	}
	return u
}

// apply writes the changed fields. Origin goes last since hosts may reindex
// the actor spatially when it moves.
func (r *resolver) apply(a core.Actor, want core.Sample, changed core.ChangedFields) {
	a.SetSimulationTime(want.Time)
	if changed.Has(core.ChangedAngles) {
		a.SetAngles(want.Angles)
	}
	if changed.Has(core.ChangedBounds) {
		a.SetBounds(want.Mins, want.Maxs)
	}
	if changed.Has(core.ChangedPose) {
		a.(core.Animated).SetPose(want.Pose.Clone())
	}
	if changed.Has(core.ChangedOrigin) {
		a.SetOrigin(want.Origin)
	}
}

func (r *resolver) finish(tr *core.BacktrackTrace, result string) {
	r.c.metrics.backtrack(result)
	if !r.s.Debug || r.c.tracer == nil {
		return
	}
	tr.Time = time.Now()
	r.c.tracer.TraceBacktrack(*tr)
}
