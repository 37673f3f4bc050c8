// Package simworld is a small in-memory world of box-shaped actors. It
// provides the clock, population, network and collision services the
// compensator needs, and drives the lagcompd daemon and the lagcomp tests.
package simworld

import (
	"math"

	"github.com/OCAP2/lagcomp/pkg/core"
)

// Default standing hull.
var (
	DefaultMins = core.Vec3{X: -16, Y: -16, Z: 0}
	DefaultMaxs = core.Vec3{X: 16, Y: 16, Z: 72}
)

// Entity is a simulated actor. Its fields are owned by the simulation thread.
type Entity struct {
	id      core.ActorID
	flags   core.Flags
	alive   bool
	simTime float64
	origin  core.Vec3
	angles  core.Angles
	mins    core.Vec3
	maxs    core.Vec3
	pose    core.Pose

	Velocity     core.Vec3
	YawRate      float64 // degrees per second
	PlaybackRate float64 // cycles per second

	// Writes counts SetOrigin calls, so tests can tell when the world was
	// touched.
	Writes int
}

// NewEntity creates a live entity with the default hull.
func NewEntity(id core.ActorID, flags core.Flags, origin core.Vec3) *Entity {
	return &Entity{
		id:     id,
		flags:  flags,
		alive:  true,
		origin: origin,
		mins:   DefaultMins,
		maxs:   DefaultMaxs,
	}
}

func (e *Entity) ID() core.ActorID      { return e.id }
func (e *Entity) Flags() core.Flags     { return e.flags }
func (e *Entity) Alive() bool           { return e.alive }
func (e *Entity) SetAlive(alive bool)   { e.alive = alive }
func (e *Entity) SetFlags(f core.Flags) { e.flags = f }

func (e *Entity) SimulationTime() float64     { return e.simTime }
func (e *Entity) SetSimulationTime(t float64) { e.simTime = t }

func (e *Entity) Origin() core.Vec3 { return e.origin }
func (e *Entity) SetOrigin(v core.Vec3) {
	e.origin = v
	e.Writes++
}

func (e *Entity) Angles() core.Angles     { return e.angles }
func (e *Entity) SetAngles(a core.Angles) { e.angles = a }

func (e *Entity) Bounds() (core.Vec3, core.Vec3) { return e.mins, e.maxs }
func (e *Entity) SetBounds(mins, maxs core.Vec3) {
	e.mins, e.maxs = mins, maxs
}

func (e *Entity) Pose() core.Pose     { return e.pose.Clone() }
func (e *Entity) SetPose(p core.Pose) { e.pose = p.Clone() }

// Box returns the entity's world-space hull.
func (e *Entity) Box() core.Box {
	return core.BoxAt(e.origin, e.mins, e.maxs)
}

// animate advances the pose by dt seconds, wrapping cycles into [0,1).
func (e *Entity) animate(dt float64) {
	if e.PlaybackRate == 0 {
		return
	}
	step := e.PlaybackRate * dt
	e.pose.Cycle = wrapCycle(e.pose.Cycle + step)
	for i := range e.pose.Layers {
		e.pose.Layers[i].Cycle = wrapCycle(e.pose.Layers[i].Cycle + step)
	}
}

func (e *Entity) turn(dt float64) {
	if e.YawRate == 0 {
		return
	}
	yaw := math.Mod(e.angles.Yaw+e.YawRate*dt, 360)
	if yaw < 0 {
		yaw += 360
	}
	e.angles.Yaw = yaw
}

func wrapCycle(c float64) float64 {
	c -= math.Floor(c)
	if c >= 1 {
		c = 0
	}
	return c
}
