package simworld

import (
	"errors"
	"slices"
	"sync"

	"github.com/OCAP2/lagcomp/pkg/core"
)

// ErrDuplicateActor is returned by Spawn for an ID already in use.
var ErrDuplicateActor = errors.New("simworld: duplicate actor id")

// World is an axis-aligned box world advanced in fixed ticks.
type World struct {
	mu       sync.RWMutex
	tick     int
	interval float64
	entities map[core.ActorID]*Entity
	solids   []core.Box

	latency map[core.ActorID]float64
	inputs  map[core.ActorID]core.Input
}

// New creates an empty world running at tickRate ticks per second.
func New(tickRate int) *World {
	if tickRate <= 0 {
		tickRate = 64
	}
	return &World{
		interval: 1 / float64(tickRate),
		entities: make(map[core.ActorID]*Entity),
		latency:  make(map[core.ActorID]float64),
		inputs:   make(map[core.ActorID]core.Input),
	}
}

// Tick returns the current tick.
func (w *World) Tick() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tick
}

// TickInterval returns seconds per tick.
func (w *World) TickInterval() float64 {
	return w.interval
}

// Now returns the simulation time of the current tick.
func (w *World) Now() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return float64(w.tick) * w.interval
}

// Spawn adds an entity stamped with the current simulation time.
func (w *World) Spawn(e *Entity) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e.id == core.NoActor {
		return errors.New("simworld: actor id 0 is reserved")
	}
	if _, ok := w.entities[e.id]; ok {
		return ErrDuplicateActor
	}
	e.simTime = float64(w.tick) * w.interval
	w.entities[e.id] = e
	return nil
}

// Remove deletes an entity and its network state.
func (w *World) Remove(id core.ActorID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entities, id)
	delete(w.latency, id)
	delete(w.inputs, id)
}

// AddSolid adds static world geometry.
func (w *World) AddSolid(b core.Box) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.solids = append(w.solids, b)
}

// Entity returns the concrete entity for id.
func (w *World) Entity(id core.ActorID) (*Entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[id]
	return e, ok
}

// Entities returns all entities ordered by ID.
func (w *World) Entities() []*Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entity) int { return int(a.id) - int(b.id) })
	return out
}

// Actors returns all entities ordered by ID.
func (w *World) Actors() []core.Actor {
	ents := w.Entities()
	out := make([]core.Actor, len(ents))
	for i, e := range ents {
		out[i] = e
	}
	return out
}

// Actor looks an actor up by ID.
func (w *World) Actor(id core.ActorID) (core.Actor, bool) {
	e, ok := w.Entity(id)
	if !ok {
		return nil, false
	}
	return e, true
}

// SetLatency sets a client's outgoing latency in seconds.
func (w *World) SetLatency(id core.ActorID, seconds float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latency[id] = seconds
}

// Latency returns a client's outgoing latency in seconds.
func (w *World) Latency(id core.ActorID) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latency[id]
}

// SetPendingInput stores the command the server is about to run for id.
func (w *World) SetPendingInput(id core.ActorID, in core.Input) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inputs[id] = in
}

// ClearPendingInput drops id's pending command.
func (w *World) ClearPendingInput(id core.ActorID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inputs, id)
}

// PendingInput returns id's pending command.
func (w *World) PendingInput(id core.ActorID) (*core.Input, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	in, ok := w.inputs[id]
	if !ok {
		return nil, false
	}
	return &in, true
}

// Advance runs one tick: live entities move by their velocity, bouncing off
// anything in their way, turn and animate. Every entity's simulation time is
// stamped with the new tick's time.
func (w *World) Advance() {
	w.mu.Lock()
	w.tick++
	now := float64(w.tick) * w.interval
	w.mu.Unlock()

	dt := w.interval
	for _, e := range w.Entities() {
		if e.alive {
			w.move(e, dt)
			e.turn(dt)
			e.animate(dt)
		}
		e.simTime = now
	}
}

func (w *World) move(e *Entity, dt float64) {
	if e.Velocity == (core.Vec3{}) {
		return
	}
	start := e.origin
	end := start.Add(e.Velocity.Scale(dt))
	tr := w.TraceHull(e, start, end)
	if tr.Blocked() {
		return
	}
	if tr.Fraction < 1 {
		e.Velocity = e.Velocity.Scale(-1)
		return
	}
	e.SetOrigin(end)
}

// TraceHull sweeps a's hull from start to end against solids and every
// other entity. Entities take precedence over solids when the hull starts
// embedded in both.
func (w *World) TraceHull(a core.Actor, start, end core.Vec3) core.TraceResult {
	mins, maxs := a.Bounds()
	self := a.ID()

	res := core.TraceResult{Fraction: 1, EndPos: end}
	hit := func(obstacle core.Box, id core.ActorID) bool {
		// Obstacle in origin space: the hull collides when its origin enters
		// the obstacle grown by the hull extents.
		grown := core.Box{Min: obstacle.Min.Sub(maxs), Max: obstacle.Max.Sub(mins)}
		if core.BoxAt(start, mins, maxs).Overlaps(obstacle) {
			res.StartSolid = true
			res.AllSolid = core.BoxAt(end, mins, maxs).Overlaps(obstacle)
			res.Fraction = 0
			res.EndPos = start
			res.Hit = id
			return true
		}
		if start == end {
			return false
		}
		frac, ok := grown.IntersectSegment(start, end)
		if ok && frac < res.Fraction && entersInterior(grown, start, end, frac) {
			res.Fraction = frac
			res.EndPos = core.LerpVec3(frac, start, end)
			res.Hit = id
		}
		return false
	}

	for _, e := range w.Entities() {
		if e.id == self || !e.alive {
			continue
		}
		if hit(e.Box(), e.id) {
			return res
		}
	}

	w.mu.RLock()
	solids := slices.Clone(w.solids)
	w.mu.RUnlock()
	for _, s := range solids {
		if hit(s, core.NoActor) {
			return res
		}
	}
	return res
}

// entersInterior rejects contacts that only graze a face: the point just past
// the entry fraction must lie strictly inside the box.
func entersInterior(b core.Box, start, end core.Vec3, frac float64) bool {
	const probe = 1e-6
	t := min(frac+probe, 1)
	p := core.LerpVec3(t, start, end)
	return p.X > b.Min.X && p.X < b.Max.X &&
		p.Y > b.Min.Y && p.Y < b.Max.Y &&
		p.Z > b.Min.Z && p.Z < b.Max.Z
}

// Raycast returns the first entity or solid crossed by the segment. Entities
// listed in ignore are skipped.
func (w *World) Raycast(start, end core.Vec3, ignore ...core.ActorID) core.TraceResult {
	res := core.TraceResult{Fraction: 1, EndPos: end}
	for _, e := range w.Entities() {
		if !e.alive || slices.Contains(ignore, e.id) {
			continue
		}
		if frac, ok := e.Box().IntersectSegment(start, end); ok && frac < res.Fraction {
			res.Fraction = frac
			res.EndPos = core.LerpVec3(frac, start, end)
			res.Hit = e.id
		}
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, s := range w.solids {
		if frac, ok := s.IntersectSegment(start, end); ok && frac < res.Fraction {
			res.Fraction = frac
			res.EndPos = core.LerpVec3(frac, start, end)
			res.Hit = core.NoActor
		}
	}
	return res
}
