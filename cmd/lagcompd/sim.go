package main

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/OCAP2/lagcomp/internal/config"
	"github.com/OCAP2/lagcomp/internal/history"
	"github.com/OCAP2/lagcomp/internal/lagcomp"
	"github.com/OCAP2/lagcomp/internal/simworld"
	"github.com/OCAP2/lagcomp/pkg/core"
)

const (
	// eyeHeight lifts the shot origin from the attacker's feet.
	eyeHeight = 64
	// aimHeight is where shots land on the target's box.
	aimHeight = 36
	// shotRange bounds every hitscan.
	shotRange = 8192
	// rayRadius widens the along-ray candidate filter for shots aimed at the
	// live position.
	rayRadius = 96
)

// simulation drives the reference world: it advances the clock, records
// history and resolves hitscan shots through the controller.
type simulation struct {
	world     *simworld.World
	scenario  simworld.Scenario
	recorder  *history.Recorder
	ctrl      *lagcomp.Controller
	fireEvery int
	rng       *rand.Rand
	log       *slog.Logger

	shots int
	hits  int
}

type shotResult struct {
	attacker core.ActorID
	target   core.ActorID
	mode     core.Mode
	opened   bool
	hit      core.ActorID
}

func settingsFrom(c config.LagCompConfig) lagcomp.Settings {
	return lagcomp.Settings{
		Enabled:          c.Enabled,
		MaxUnlag:         c.MaxUnlag,
		TeleportDistance: c.TeleportDistance,
		MaxTimestampSkew: c.MaxTimestampSkew,
		TickPush:         c.TickPush,
		FixStuck:         c.FixStuck,
		Debug:            c.Debug,
	}
}

// newSimulation builds the world from sc and wires history and compensation
// around it. tracer may be nil.
func newSimulation(sc simworld.Scenario, lc config.LagCompConfig, fireEvery int, tracer lagcomp.Tracer, seed uint64, log *slog.Logger) (*simulation, error) {
	if log == nil {
		log = slog.Default()
	}
	world, err := sc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build world: %w", err)
	}

	store := history.NewStore()
	recorder := history.NewRecorder(store, history.RecorderConfig{
		RecordPlayers: lc.RecordPlayers,
		RecordNPCs:    lc.RecordNPCs,
		MaxUnlag:      lc.MaxUnlag,
	})

	deps := lagcomp.Dependencies{
		Store:  store,
		Clock:  world,
		Actors: world,
		Net:    world,
		World:  world,
		Policy: lagcomp.AlwaysCompensate,
		Tracer: tracer,
		Logger: log,
	}
	ctrl, err := lagcomp.New(deps, settingsFrom(lc))
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	if fireEvery <= 0 {
		fireEvery = 1
	}
	return &simulation{
		world:     world,
		scenario:  sc,
		recorder:  recorder,
		ctrl:      ctrl,
		fireEvery: fireEvery,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		log:       log,
	}, nil
}

// step runs one server tick: advance, record, then fire if due.
func (s *simulation) step() []shotResult {
	s.world.Advance()
	res := s.recorder.Record(s.world.Now(), s.world.Actors())
	if res.Dropped > 0 {
		s.log.Debug("Dropped stale tracks", "count", res.Dropped)
	}

	if s.world.Tick()%s.fireEvery != 0 {
		return nil
	}
	var shots []shotResult
	for _, e := range s.world.Entities() {
		if !canFire(e) {
			continue
		}
		target, ok := s.pickTarget(e.ID())
		if !ok {
			continue
		}
		shots = append(shots, s.fire(e, target))
	}
	return shots
}

func canFire(e *simworld.Entity) bool {
	f := e.Flags()
	return e.Alive() && f.Has(core.FlagPlayer) && !f.Has(core.FlagBot) && !f.Has(core.FlagObserver)
}

func (s *simulation) pickTarget(attacker core.ActorID) (*simworld.Entity, bool) {
	var targets []*simworld.Entity
	for _, e := range s.world.Entities() {
		if e.ID() == attacker || !e.Alive() || e.Flags().Has(core.FlagObserver) {
			continue
		}
		targets = append(targets, e)
	}
	if len(targets) == 0 {
		return nil, false
	}
	return targets[s.rng.IntN(len(targets))], true
}

// fire stages the attacker's command, opens a session, traces the shot
// against the rewound world and closes the session again. Every other shot
// restricts compensation to a ray aimed at the target's live position.
func (s *simulation) fire(attacker, target *simworld.Entity) shotResult {
	interval := s.world.TickInterval()
	ticksBack := int(math.Round(s.world.Latency(attacker.ID()) / interval))
	s.world.SetPendingInput(attacker.ID(), core.Input{
		Tick:     s.world.Tick() - ticksBack,
		LerpTime: s.scenario.LerpTime(attacker.ID()),
	})
	defer s.world.ClearPendingInput(attacker.ID())

	eye := attacker.Origin().Add(core.Vec3{Z: eyeHeight})
	out := shotResult{attacker: attacker.ID(), target: target.ID(), mode: core.ModeHitboxes}

	var ray *lagcomp.Ray
	if s.shots%2 == 1 {
		out.mode = core.ModeHitboxesAlongRay
		ray = &lagcomp.Ray{Start: eye, End: aimAt(eye, target.Origin()), Radius: rayRadius}
	}
	s.shots++

	out.opened = s.ctrl.Open(attacker, out.mode, ray)
	// Aim at the target where the attacker saw it, which is where it stands
	// in the rewound world.
	tr := s.world.Raycast(eye, aimAt(eye, target.Origin()), attacker.ID())
	if out.opened {
		s.ctrl.Close(attacker.ID())
	}

	out.hit = tr.Hit
	if tr.Hit == target.ID() {
		s.hits++
	}
	s.log.Debug("Shot resolved",
		"attacker", attacker.ID(),
		"target", target.ID(),
		"mode", out.mode.String(),
		"compensated", out.opened,
		"hit", tr.Hit)
	return out
}

// aimAt extends the line from eye through the target's chest to shotRange.
func aimAt(eye, targetOrigin core.Vec3) core.Vec3 {
	dir := targetOrigin.Add(core.Vec3{Z: aimHeight}).Sub(eye)
	l := math.Sqrt(dir.LengthSqr())
	if l == 0 {
		return eye
	}
	return eye.Add(dir.Scale(shotRange / l))
}
