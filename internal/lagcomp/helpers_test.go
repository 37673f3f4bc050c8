package lagcomp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OCAP2/lagcomp/internal/history"
	"github.com/OCAP2/lagcomp/internal/simworld"
	"github.com/OCAP2/lagcomp/pkg/core"
)

// Tests run at 10 ticks per second so tick k is simulation time k*0.1.
const testTickRate = 10

type recordingTracer struct {
	mu         sync.Mutex
	sessions   []core.SessionTrace
	backtracks []core.BacktrackTrace
	restores   []core.RestoreTrace
}

func (r *recordingTracer) TraceSession(t core.SessionTrace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, t)
}

func (r *recordingTracer) TraceBacktrack(t core.BacktrackTrace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backtracks = append(r.backtracks, t)
}

func (r *recordingTracer) TraceRestore(t core.RestoreTrace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restores = append(r.restores, t)
}

type harness struct {
	t      *testing.T
	world  *simworld.World
	store  *history.Store
	ctrl   *Controller
	tracer *recordingTracer
}

func testSettings() Settings {
	s := DefaultSettings()
	s.Debug = true
	return s
}

// newHarness builds a world advanced to nowTick with no actors.
func newHarness(t *testing.T, nowTick int, s Settings, policy Policy) *harness {
	t.Helper()
	w := simworld.New(testTickRate)
	for i := 0; i < nowTick; i++ {
		w.Advance()
	}
	store := history.NewStore()
	tracer := &recordingTracer{}

	ctrl, err := New(Dependencies{
		Store:  store,
		Clock:  w,
		Actors: w,
		Net:    w,
		World:  w,
		Policy: policy,
		Tracer: tracer,
	}, s)
	require.NoError(t, err)

	return &harness{t: t, world: w, store: store, ctrl: ctrl, tracer: tracer}
}

func (h *harness) spawn(id core.ActorID, flags core.Flags, origin core.Vec3) *simworld.Entity {
	h.t.Helper()
	e := simworld.NewEntity(id, flags, origin)
	require.NoError(h.t, h.world.Spawn(e))
	return e
}

// history pushes samples for id, oldest first, at consecutive ticks ending
// at lastTick.
func (h *harness) history(id core.ActorID, lastTick int, origins ...core.Vec3) {
	h.t.Helper()
	track := h.store.Ensure(id)
	first := lastTick - len(origins) + 1
	for i, o := range origins {
		require.True(h.t, track.Push(core.Sample{
			Time:   tickTime(first + i),
			Alive:  true,
			Origin: o,
			Mins:   simworld.DefaultMins,
			Maxs:   simworld.DefaultMaxs,
		}))
	}
}

// aim gives the attacker a pending input that rewinds exactly ticksBack
// ticks.
func (h *harness) aim(attacker core.ActorID, ticksBack int) {
	interval := h.world.TickInterval()
	h.world.SetLatency(attacker, float64(ticksBack)*interval)
	h.world.SetPendingInput(attacker, core.Input{Tick: h.world.Tick() - ticksBack})
}

// resolverAt returns a resolver for a hand-built session targeting target.
func (h *harness) resolverAt(attacker core.ActorID, mode core.Mode, target float64) *resolver {
	sess := newSession("test", attacker, mode, nil)
	sess.Target = target
	return &resolver{c: h.ctrl, s: h.ctrl.Settings(), sess: sess}
}

func tickTime(tick int) float64 {
	return ticksToTime(tick, 1.0/testTickRate)
}

type actorState struct {
	simTime float64
	origin  core.Vec3
	angles  core.Angles
	mins    core.Vec3
	maxs    core.Vec3
	pose    core.Pose
}

func capture(e *simworld.Entity) actorState {
	mins, maxs := e.Bounds()
	return actorState{
		simTime: e.SimulationTime(),
		origin:  e.Origin(),
		angles:  e.Angles(),
		mins:    mins,
		maxs:    maxs,
		pose:    e.Pose(),
	}
}
