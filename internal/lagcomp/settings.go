package lagcomp

// Settings are the admin-tunable knobs of the compensator.
type Settings struct {
	Enabled bool
	// MaxUnlag is the furthest back in seconds a session may rewind. Clamped
	// to [0,1].
	MaxUnlag float64
	// TeleportDistance is the horizontal distance between consecutive samples
	// beyond which history is treated as non-interpolatable.
	TeleportDistance float64
	// MaxTimestampSkew is how far in seconds the input's own timestamp may
	// disagree with the latency estimate before it is discarded.
	MaxTimestampSkew float64
	// TickPush is added to the computed target tick.
	TickPush int
	// FixStuck enables sweep-and-shrink when a rewound hull would be embedded.
	FixStuck bool
	// Debug enables diagnostic logs and trace records.
	Debug bool
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		Enabled:          true,
		MaxUnlag:         1.0,
		TeleportDistance: 64,
		MaxTimestampSkew: 0.2,
		FixStuck:         true,
	}
}

func (s Settings) normalized() Settings {
	s.MaxUnlag = clamp(s.MaxUnlag, 0, 1)
	if s.MaxTimestampSkew <= 0 {
		s.MaxTimestampSkew = 0.2
	}
	if s.TeleportDistance < 0 {
		s.TeleportDistance = 0
	}
	return s
}

func (s Settings) teleportDistanceSqr() float64 {
	return s.TeleportDistance * s.TeleportDistance
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
