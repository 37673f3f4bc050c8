package lagcomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/lagcomp/internal/history"
	"github.com/OCAP2/lagcomp/internal/simworld"
	"github.com/OCAP2/lagcomp/pkg/core"
)

const (
	idX core.ActorID = 1 // attacker
	idY core.ActorID = 2
	idZ core.ActorID = 3
)

// onlyY is the policy of the Y/Z scenarios: Y is a valid target, Z is not.
var onlyY = PolicyFunc(func(_, candidate core.Actor, _ core.Input) bool {
	return candidate.ID() == idY
})

// yzScenario places Y and Z with three ticks of history each, ending at the
// current tick 7. Y walked from the origin to x=80. zLive and zPast are Z's
// live and tick-5 positions.
func yzScenario(t *testing.T, zLive, zPast core.Vec3) (*harness, *simworld.Entity, *simworld.Entity) {
	h := newHarness(t, 7, testSettings(), onlyY)
	h.spawn(idX, core.FlagPlayer, core.Vec3{Y: 1000})
	y := h.spawn(idY, core.FlagPlayer, core.Vec3{X: 80})
	z := h.spawn(idZ, core.FlagNPC, zLive)

	h.history(idY, 7, core.Vec3{}, core.Vec3{X: 40}, core.Vec3{X: 80})
	h.history(idZ, 7, zPast, core.LerpVec3(0.5, zPast, zLive), zLive)
	h.aim(idX, 2)
	return h, y, z
}

func TestNew_RequiresDependencies(t *testing.T) {
	w := simworld.New(testTickRate)
	store := history.NewStore()

	full := Dependencies{Store: store, Clock: w, Actors: w, Net: w, World: w}
	_, err := New(full, DefaultSettings())
	require.NoError(t, err)

	for name, deps := range map[string]Dependencies{
		"store":  {Clock: w, Actors: w, Net: w, World: w},
		"clock":  {Store: store, Actors: w, Net: w, World: w},
		"actors": {Store: store, Clock: w, Net: w, World: w},
		"net":    {Store: store, Clock: w, Actors: w, World: w},
		"world":  {Store: store, Clock: w, Actors: w, Net: w},
	} {
		_, err := New(deps, DefaultSettings())
		assert.Error(t, err, name)
	}
}

func TestOpen_OnlyEligibleCandidateIsMoved(t *testing.T) {
	h, y, z := yzScenario(t, core.Vec3{X: 300}, core.Vec3{X: 240})

	require.True(t, h.ctrl.Open(mustActor(t, h, idX), core.ModeHitboxes, nil))
	defer h.ctrl.Close(idX)

	sess := h.ctrl.Session()
	require.NotNil(t, sess)
	assert.Equal(t, tickTime(5), sess.Target)
	assert.True(t, sess.HasUndo(idY))
	assert.False(t, sess.HasUndo(idZ))
	assert.Equal(t, []core.ActorID{idY}, sess.Mutated())

	assert.Equal(t, core.Vec3{}, y.Origin())
	assert.Equal(t, core.Vec3{X: 300}, z.Origin())
}

func TestOpen_BlockerIsRecursivelyMoved(t *testing.T) {
	// Z stands where Y was two ticks ago, and was itself further south then.
	h, y, z := yzScenario(t, core.Vec3{}, core.Vec3{Y: -60})

	require.True(t, h.ctrl.Open(mustActor(t, h, idX), core.ModeHitboxes, nil))

	sess := h.ctrl.Session()
	assert.True(t, sess.HasUndo(idY))
	assert.True(t, sess.HasUndo(idZ), "blocker gets its own undo record")
	assert.Equal(t, []core.ActorID{idZ, idY}, sess.Mutated())

	assert.Equal(t, core.Vec3{}, y.Origin())
	assert.Equal(t, core.Vec3{Y: -60}, z.Origin())
	assert.Equal(t, 1, h.ctrl.Stats().Recursions)

	var recursive []core.ActorID
	for _, bt := range h.tracer.backtracks {
		if bt.Recursive {
			recursive = append(recursive, bt.Actor)
		}
	}
	assert.Equal(t, []core.ActorID{idZ}, recursive)

	h.ctrl.Close(idX)
	assert.Equal(t, core.Vec3{X: 80}, y.Origin())
	assert.Equal(t, core.Vec3{}, z.Origin())
}

func TestOpen_SkipsWhenNotApplicable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness, x *simworld.Entity)
	}{
		{"disabled", func(h *harness, _ *simworld.Entity) {
			s := h.ctrl.Settings()
			s.Enabled = false
			h.ctrl.SetSettings(s)
		}},
		{"alone", func(h *harness, _ *simworld.Entity) {
			h.world.Remove(idY)
		}},
		{"bot attacker", func(_ *harness, x *simworld.Entity) {
			x.SetFlags(core.FlagPlayer | core.FlagBot)
		}},
		{"observer attacker", func(_ *harness, x *simworld.Entity) {
			x.SetFlags(core.FlagPlayer | core.FlagObserver)
		}},
		{"opted out", func(_ *harness, x *simworld.Entity) {
			x.SetFlags(core.FlagPlayer | core.FlagOptOut)
		}},
		{"dead attacker", func(_ *harness, x *simworld.Entity) {
			x.SetAlive(false)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, z := yzScenario(t, core.Vec3{X: 300}, core.Vec3{X: 240})
			x, _ := h.world.Entity(idX)
			tt.setup(h, x)

			assert.False(t, h.ctrl.Open(x, core.ModeHitboxes, nil))
			assert.False(t, h.ctrl.Active())
			assert.Equal(t, core.Vec3{X: 300}, z.Origin())
			if y, ok := h.world.Entity(idY); ok {
				assert.Equal(t, core.Vec3{X: 80}, y.Origin())
			}
		})
	}
}

func TestOpen_PanicsWithoutPendingInput(t *testing.T) {
	h, _, _ := yzScenario(t, core.Vec3{X: 300}, core.Vec3{X: 240})
	h.world.ClearPendingInput(idX)
	x := mustActor(t, h, idX)

	assert.PanicsWithError(t, "lagcomp: open without pending input (attacker 1)", func() {
		h.ctrl.Open(x, core.ModeHitboxes, nil)
	})
	assert.False(t, h.ctrl.Active())
}

func TestOpen_RefusesSecondSession(t *testing.T) {
	h, y, _ := yzScenario(t, core.Vec3{X: 300}, core.Vec3{X: 240})
	x := mustActor(t, h, idX)

	require.True(t, h.ctrl.Open(x, core.ModeHitboxes, nil))
	assert.False(t, h.ctrl.Open(x, core.ModeHitboxes, nil))

	h.world.SetPendingInput(idY, core.Input{Tick: 5})
	assert.False(t, h.ctrl.Open(y, core.ModeHitboxes, nil))
	assert.Equal(t, idX, h.ctrl.Session().Attacker)
}

func TestOpen_RoundTripWithoutRewind(t *testing.T) {
	h, y, z := yzScenario(t, core.Vec3{X: 300}, core.Vec3{X: 240})
	h.ctrl.policy = AlwaysCompensate
	h.aim(idX, 0)

	before := map[core.ActorID]actorState{idY: capture(y), idZ: capture(z)}
	writes := y.Writes + z.Writes

	require.True(t, h.ctrl.Open(mustActor(t, h, idX), core.ModeHitboxes, nil))
	assert.Empty(t, h.ctrl.Session().Mutated())
	h.ctrl.Close(idX)

	assert.Equal(t, before[idY], capture(y))
	assert.Equal(t, before[idZ], capture(z))
	assert.Equal(t, writes, y.Writes+z.Writes, "nothing was written")
}

func TestOpen_ReapsStaleTracks(t *testing.T) {
	h, _, _ := yzScenario(t, core.Vec3{X: 300}, core.Vec3{X: 240})
	h.history(42, 7, core.Vec3{}, core.Vec3{})

	require.True(t, h.ctrl.Open(mustActor(t, h, idX), core.ModeHitboxes, nil))
	h.ctrl.Close(idX)

	_, ok := h.store.Track(42)
	assert.False(t, ok)
}

func TestOpen_RayWithoutRayFallsBackToHitboxes(t *testing.T) {
	h, y, _ := yzScenario(t, core.Vec3{X: 300}, core.Vec3{X: 240})

	require.True(t, h.ctrl.Open(mustActor(t, h, idX), core.ModeHitboxesAlongRay, nil))
	defer h.ctrl.Close(idX)

	assert.Equal(t, core.ModeHitboxes, h.ctrl.Session().Mode)
	assert.Equal(t, core.Vec3{}, y.Origin())
}

func TestOpen_TracesSession(t *testing.T) {
	h, _, _ := yzScenario(t, core.Vec3{X: 300}, core.Vec3{X: 240})

	require.True(t, h.ctrl.Open(mustActor(t, h, idX), core.ModeHitboxes, nil))
	h.ctrl.Close(idX)

	require.Len(t, h.tracer.sessions, 1)
	st := h.tracer.sessions[0]
	assert.Equal(t, idX, st.Attacker)
	assert.Equal(t, 7, st.Tick)
	assert.Equal(t, 5, st.InputTick)
	assert.Equal(t, 1, st.Candidates)
	assert.Equal(t, 1, st.Mutated)
	assert.False(t, st.SkewCorrected)
	assert.NotEmpty(t, st.SessionID)

	require.Len(t, h.tracer.restores, 1)
	assert.Equal(t, st.SessionID, h.tracer.restores[0].SessionID)
	assert.Equal(t, core.RestoreExact, h.tracer.restores[0].Origin)
}

func TestOpen_NoTracesWithoutDebug(t *testing.T) {
	h, _, _ := yzScenario(t, core.Vec3{X: 300}, core.Vec3{X: 240})
	s := h.ctrl.Settings()
	s.Debug = false
	h.ctrl.SetSettings(s)

	require.True(t, h.ctrl.Open(mustActor(t, h, idX), core.ModeHitboxes, nil))
	h.ctrl.Close(idX)

	assert.Empty(t, h.tracer.sessions)
	assert.Empty(t, h.tracer.backtracks)
	assert.Empty(t, h.tracer.restores)
}

func TestClose_Idempotent(t *testing.T) {
	h, y, _ := yzScenario(t, core.Vec3{X: 300}, core.Vec3{X: 240})

	require.True(t, h.ctrl.Open(mustActor(t, h, idX), core.ModeHitboxes, nil))
	h.ctrl.Close(idX)
	assert.False(t, h.ctrl.Active())

	y.SetOrigin(core.Vec3{X: 123})
	h.ctrl.Close(idX)
	assert.Equal(t, core.Vec3{X: 123}, y.Origin(), "second close must not touch the world")
}

func TestClose_OtherAttackerIsNoop(t *testing.T) {
	h, y, _ := yzScenario(t, core.Vec3{X: 300}, core.Vec3{X: 240})

	require.True(t, h.ctrl.Open(mustActor(t, h, idX), core.ModeHitboxes, nil))
	h.ctrl.Close(idY)

	assert.True(t, h.ctrl.Active())
	assert.Equal(t, core.Vec3{}, y.Origin())

	_, ok := h.ctrl.TargetTime()
	assert.True(t, ok)

	h.ctrl.Close(idX)
	_, ok = h.ctrl.TargetTime()
	assert.False(t, ok)
}

func mustActor(t *testing.T, h *harness, id core.ActorID) core.Actor {
	t.Helper()
	a, ok := h.world.Actor(id)
	require.True(t, ok)
	return a
}
