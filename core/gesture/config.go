package gesture

// Platform answers capability questions about the client device.
type Platform interface {
	// SupportsHover reports whether the device has a hovering pointer
	// (mouse or trackpad), enabling the click path.
	SupportsHover() bool
}

// Capabilities is a static Platform.
type Capabilities struct {
	Hover bool `json:"hover"`
}

// SupportsHover implements Platform.
func (c Capabilities) SupportsHover() bool { return c.Hover }

// Config tunes the interpreter.
type Config struct {
	// ScrollThreshold is the vertical travel past which a vertically
	// dominant move is treated as a scroll.
	ScrollThreshold float64

	// VerticalDominance is the factor by which vertical travel must exceed
	// horizontal travel for a move to count as a scroll.
	VerticalDominance float64

	// TapThreshold is the total travel below which a single-token
	// interaction commits as a tap.
	TapThreshold float64

	Platform Platform
}

// DefaultConfig returns the reference thresholds for a touch-only device.
func DefaultConfig() Config {
	return Config{
		ScrollThreshold:   15,
		VerticalDominance: 2,
		TapThreshold:      15,
		Platform:          Capabilities{},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ScrollThreshold <= 0 {
		c.ScrollThreshold = d.ScrollThreshold
	}
	if c.VerticalDominance <= 0 {
		c.VerticalDominance = d.VerticalDominance
	}
	if c.TapThreshold <= 0 {
		c.TapThreshold = d.TapThreshold
	}
	if c.Platform == nil {
		c.Platform = d.Platform
	}
	return c
}
