// Package lagcomp rewinds the world to what an attacker saw when it fired.
//
// A Controller brackets one attack resolution: Open moves every relevant
// actor back to its recorded state at the attacker's view time, the caller
// runs its hit tests through the normal world queries, and Close puts
// everything back. History comes from a history.Store fed once per tick by a
// history.Recorder.
package lagcomp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/OCAP2/lagcomp/internal/history"
	"github.com/OCAP2/lagcomp/pkg/core"
)

// ErrNoPendingInput is the panic value (wrapped) raised by Open when the
// attacker has no pending input. Resolving an attack without one is a bug in
// the caller.
var ErrNoPendingInput = errors.New("lagcomp: open without pending input")

// Dependencies are the host collaborators of a Controller. Tracer and Logger
// are optional; Policy defaults to AlwaysCompensate.
type Dependencies struct {
	Store  *history.Store
	Clock  Clock
	Actors Population
	Net    NetInfo
	World  WorldQuery
	Policy Policy
	Tracer Tracer
	Logger *slog.Logger
}

// Controller opens and closes compensation sessions. It is not safe for
// concurrent Open/Close; callers resolve attacks from the simulation thread.
type Controller struct {
	store  *history.Store
	clock  Clock
	actors Population
	net    NetInfo
	world  WorldQuery
	policy Policy
	tracer Tracer
	log    *slog.Logger

	// debug logs from the resolver are throttled
	limiter *rate.Limiter
	metrics *metrics

	mu       sync.RWMutex
	settings Settings
	active   *Session
	stats    Stats
}

// Stats are running totals since the controller was created.
type Stats struct {
	Sessions   int
	Mutations  int
	Aborted    int
	Recursions int
}

// New creates a Controller.
func New(deps Dependencies, s Settings) (*Controller, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("lagcomp: store is required")
	case deps.Clock == nil:
		return nil, errors.New("lagcomp: clock is required")
	case deps.Actors == nil:
		return nil, errors.New("lagcomp: population is required")
	case deps.Net == nil:
		return nil, errors.New("lagcomp: net info is required")
	case deps.World == nil:
		return nil, errors.New("lagcomp: world query is required")
	}

	m, err := newMetrics(deps.Store)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		store:    deps.Store,
		clock:    deps.Clock,
		actors:   deps.Actors,
		net:      deps.Net,
		world:    deps.World,
		policy:   deps.Policy,
		tracer:   deps.Tracer,
		log:      deps.Logger,
		limiter:  rate.NewLimiter(rate.Every(100*time.Millisecond), 20),
		metrics:  m,
		settings: s.normalized(),
	}
	if c.policy == nil {
		c.policy = AlwaysCompensate
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c, nil
}

// Settings returns the current settings.
func (c *Controller) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// SetSettings replaces the settings. Takes effect at the next Open.
func (c *Controller) SetSettings(s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s.normalized()
}

// Active reports whether a session is open.
func (c *Controller) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active != nil
}

// Session returns the open session, or nil.
func (c *Controller) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// TargetTime returns the open session's rewind time.
func (c *Controller) TargetTime() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return 0, false
	}
	return c.active.Target, true
}

// Stats returns the running totals.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Open rewinds every candidate the policy selects to the attacker's view time.
// It returns false without touching the world when compensation does not
// apply. ray is only consulted for core.ModeHitboxesAlongRay.
//
// Open panics when the attacker has no pending input.
func (c *Controller) Open(attacker core.Actor, mode core.Mode, ray *Ray) bool {
	s := c.Settings()

	if c.Active() {
		c.log.Warn("compensation session already open",
			"attacker", attacker.ID(), "open", c.Session().Attacker)
		c.metrics.skip("active")
		return false
	}
	if !s.Enabled {
		c.metrics.skip("disabled")
		return false
	}
	if c.participants() <= 1 {
		c.metrics.skip("alone")
		return false
	}
	if !eligibleAttacker(attacker) {
		c.metrics.skip("ineligible")
		return false
	}

	in, ok := c.net.PendingInput(attacker.ID())
	if !ok || in == nil {
		panic(fmt.Errorf("%w (attacker %d)", ErrNoPendingInput, attacker.ID()))
	}

	if mode == core.ModeHitboxesAlongRay && ray == nil {
		c.debug("ray mode without a ray, compensating all candidates", "attacker", attacker.ID())
		mode = core.ModeHitboxes
	}

	nowTick := c.clock.Tick()
	tgt := resolveTarget(s, nowTick, c.clock.TickInterval(), c.net.Latency(attacker.ID()), *in)
	if tgt.SkewCorrected {
		c.debug("input timestamp disagrees with latency, using estimate",
			"attacker", attacker.ID(), "inputTick", in.Tick, "targetTick", tgt.Tick)
	}

	sess := newSession(uuid.NewString(), attacker.ID(), mode, ray)
	sess.Tick = nowTick
	sess.Target = tgt.Time
	sess.Input = *in
	_, sess.span = tracer().Start(context.Background(), "lagcomp.session",
		trace.WithAttributes(
			attribute.Int64("lagcomp.attacker", int64(attacker.ID())),
			attribute.Int("lagcomp.tick", nowTick),
			attribute.Float64("lagcomp.target_time", tgt.Time),
			attribute.Bool("lagcomp.skew_corrected", tgt.SkewCorrected),
		))

	c.mu.Lock()
	c.active = sess
	c.stats.Sessions++
	c.mu.Unlock()

	reaped := c.store.Reap(func(id core.ActorID) bool {
		_, ok := c.actors.Actor(id)
		return ok
	})
	if reaped > 0 {
		c.debug("reaped stale tracks", "count", reaped)
	}

	r := &resolver{c: c, s: s, sess: sess}

	candidates := 0
	for _, id := range c.store.IDs() {
		if id == attacker.ID() {
			continue
		}
		cand, ok := c.actors.Actor(id)
		if !ok {
			continue
		}
		if !c.policy.WantsCompensationOnPair(attacker, cand, *in) {
			continue
		}
		candidates++
		r.backtrack(cand, false)
	}

	c.metrics.open()
	sess.span.SetAttributes(
		attribute.Int("lagcomp.candidates", candidates),
		attribute.Int("lagcomp.mutated", len(sess.order)),
	)

	if s.Debug && c.tracer != nil {
		c.tracer.TraceSession(core.SessionTrace{
			SessionID:     sess.ID,
			Time:          time.Now(),
			Tick:          nowTick,
			Attacker:      attacker.ID(),
			Mode:          mode,
			TargetTime:    tgt.Time,
			Latency:       tgt.Latency,
			InputTick:     in.Tick,
			SkewCorrected: tgt.SkewCorrected,
			Candidates:    candidates,
			Mutated:       len(sess.order),
		})
	}
	return true
}

// Close restores everything the attacker's session moved. Closing without an
// open session for the attacker does nothing.
func (c *Controller) Close(attacker core.ActorID) {
	c.mu.Lock()
	sess := c.active
	if sess == nil || sess.Attacker != attacker {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()

	s := c.Settings()
	// Last moved comes back first so recursive moves unwind in stack order.
	for i := len(sess.order) - 1; i >= 0; i-- {
		u := sess.undo[sess.order[i]]
		tr := c.restore(s, u)
		if s.Debug && c.tracer != nil {
			tr.SessionID = sess.ID
			tr.Time = time.Now()
			c.tracer.TraceRestore(tr)
		}
	}
	sess.span.End()
}

func (c *Controller) participants() int {
	n := 0
	for _, a := range c.actors.Actors() {
		if a.Flags().Has(core.FlagPlayer) && a.Alive() {
			n++
		}
	}
	return n
}

func eligibleAttacker(a core.Actor) bool {
	if !a.Alive() {
		return false
	}
	f := a.Flags()
	return !f.Has(core.FlagBot) && !f.Has(core.FlagObserver) && !f.Has(core.FlagOptOut)
}

// debug logs a throttled diagnostic when debugging is on.
func (c *Controller) debug(msg string, args ...any) {
	if !c.Settings().Debug || !c.limiter.Allow() {
		return
	}
	c.log.Debug(msg, args...)
}
