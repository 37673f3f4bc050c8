package simworld

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/OCAP2/lagcomp/pkg/core"
)

// Scenario describes a world to populate.
type Scenario struct {
	TickRate int         `yaml:"tick_rate"`
	Solids   []SolidSpec `yaml:"solids,omitempty"`
	Actors   []ActorSpec `yaml:"actors"`
}

// SolidSpec is a static box.
type SolidSpec struct {
	Min [3]float64 `yaml:"min"`
	Max [3]float64 `yaml:"max"`
}

// ActorSpec is one entity. Kind is player, bot, npc or observer.
type ActorSpec struct {
	ID           uint32     `yaml:"id"`
	Kind         string     `yaml:"kind"`
	Origin       [3]float64 `yaml:"origin"`
	Velocity     [3]float64 `yaml:"velocity,omitempty"`
	YawRate      float64    `yaml:"yaw_rate,omitempty"`
	Sequence     int        `yaml:"sequence,omitempty"`
	PlaybackRate float64    `yaml:"playback_rate,omitempty"`
	Layers       []int      `yaml:"layers,omitempty"`
	Latency      float64    `yaml:"latency,omitempty"`
	LerpTime     float64    `yaml:"lerp_time,omitempty"`
	OptOut       bool       `yaml:"opt_out,omitempty"`
}

// LoadScenario reads a YAML scenario. An empty path yields the built-in
// default.
func LoadScenario(path string) (Scenario, error) {
	if strings.TrimSpace(path) == "" {
		sc := DefaultScenario()
		sc.Normalize()
		return sc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	return ParseScenario(b)
}

// ParseScenario decodes and validates YAML scenario bytes.
func ParseScenario(b []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return Scenario{}, fmt.Errorf("scenario: %w", err)
	}
	sc.Normalize()
	if err := sc.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("scenario: %w", err)
	}
	return sc, nil
}

// DefaultScenario is two players strafing past each other inside a walled
// yard, plus a patrolling NPC.
func DefaultScenario() Scenario {
	return Scenario{
		TickRate: 64,
		Solids: []SolidSpec{
			{Min: [3]float64{-512, 256, 0}, Max: [3]float64{512, 288, 128}},
			{Min: [3]float64{-512, -320, 0}, Max: [3]float64{512, -288, 128}},
			{Min: [3]float64{-544, -320, 0}, Max: [3]float64{-512, 288, 128}},
			{Min: [3]float64{512, -320, 0}, Max: [3]float64{544, 288, 128}},
		},
		Actors: []ActorSpec{
			{ID: 1, Kind: "player", Origin: [3]float64{-256, 0, 0}, Velocity: [3]float64{200, 0, 0},
				Sequence: 1, PlaybackRate: 1.2, Layers: []int{10, 11}, Latency: 0.08, LerpTime: 0.1},
			{ID: 2, Kind: "player", Origin: [3]float64{256, 128, 0}, Velocity: [3]float64{-180, 0, 0},
				Sequence: 1, PlaybackRate: 1.0, Layers: []int{10}, Latency: 0.15, LerpTime: 0.1},
			{ID: 3, Kind: "npc", Origin: [3]float64{0, -192, 0}, Velocity: [3]float64{0, 120, 0},
				YawRate: 90, Sequence: 4, PlaybackRate: 0.8},
		},
	}
}

// Normalize fills defaults.
func (s *Scenario) Normalize() {
	if s.TickRate <= 0 {
		s.TickRate = 64
	}
	for i := range s.Actors {
		s.Actors[i].Kind = strings.ToLower(strings.TrimSpace(s.Actors[i].Kind))
		if s.Actors[i].Kind == "" {
			s.Actors[i].Kind = "player"
		}
	}
}

// Validate rejects unusable scenarios.
func (s Scenario) Validate() error {
	if len(s.Actors) == 0 {
		return errors.New("no actors")
	}
	seen := make(map[uint32]bool, len(s.Actors))
	for _, a := range s.Actors {
		if a.ID == 0 {
			return errors.New("actor id 0 is reserved")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate actor id %d", a.ID)
		}
		seen[a.ID] = true
		if _, err := kindFlags(a.Kind); err != nil {
			return fmt.Errorf("actor %d: %w", a.ID, err)
		}
	}
	for i, sd := range s.Solids {
		for k := 0; k < 3; k++ {
			if sd.Min[k] >= sd.Max[k] {
				return fmt.Errorf("solid %d: min must be below max", i)
			}
		}
	}
	return nil
}

func kindFlags(kind string) (core.Flags, error) {
	switch kind {
	case "player":
		return core.FlagPlayer, nil
	case "bot":
		return core.FlagPlayer | core.FlagBot, nil
	case "npc":
		return core.FlagNPC, nil
	case "observer":
		return core.FlagPlayer | core.FlagObserver, nil
	default:
		return 0, fmt.Errorf("unknown kind %q", kind)
	}
}

// Build creates a world populated from the scenario.
func (s Scenario) Build() (*World, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	w := New(s.TickRate)
	for _, sd := range s.Solids {
		w.AddSolid(core.Box{Min: vec(sd.Min), Max: vec(sd.Max)})
	}
	for _, a := range s.Actors {
		flags, _ := kindFlags(a.Kind)
		if a.OptOut {
			flags |= core.FlagOptOut
		}
		e := NewEntity(core.ActorID(a.ID), flags, vec(a.Origin))
		e.Velocity = vec(a.Velocity)
		e.YawRate = a.YawRate
		e.PlaybackRate = a.PlaybackRate
		e.pose.Sequence = a.Sequence
		for order, seq := range a.Layers {
			e.pose.Layers = append(e.pose.Layers, core.Layer{Sequence: seq, Weight: 1, Order: order})
		}
		if err := w.Spawn(e); err != nil {
			return nil, fmt.Errorf("spawning actor %d: %w", a.ID, err)
		}
		if flags.Has(core.FlagPlayer) {
			w.SetLatency(e.id, a.Latency)
		}
	}
	return w, nil
}

// LerpTime returns the configured view interpolation delay for id.
func (s Scenario) LerpTime(id core.ActorID) float64 {
	for _, a := range s.Actors {
		if core.ActorID(a.ID) == id {
			return a.LerpTime
		}
	}
	return 0
}

func vec(v [3]float64) core.Vec3 {
	return core.Vec3{X: v[0], Y: v[1], Z: v[2]}
}
