package gaze

import "fmt"

// Config holds the gaze gating parameters.
//
// Both gates act on the normalized magnitude. The deadzone runs first, so when
// MovementThreshold <= DeadzoneRadius (the default) the movement gate never
// rejects anything on its own. Keep MovementThreshold <= DeadzoneRadius, or
// raise it deliberately if the movement gate should dominate.
type Config struct {
	MovementThreshold float64 // Minimum magnitude treated as movement
	DeadzoneRadius    float64 // Magnitudes below this are noise
}

// DefaultConfig returns the default gates.
func DefaultConfig() Config {
	return Config{
		MovementThreshold: 0.05,
		DeadzoneRadius:    0.1,
	}
}

// Validate checks that the configuration is usable. A movement gate wider than
// the deadzone is reported as ErrGateOrder, which callers may treat as a warning.
func (c *Config) Validate() error {
	if c.MovementThreshold < 0 {
		return fmt.Errorf("movement_threshold must not be negative, got %v", c.MovementThreshold)
	}
	if c.DeadzoneRadius < 0 {
		return fmt.Errorf("deadzone_radius must not be negative, got %v", c.DeadzoneRadius)
	}
	if c.MovementThreshold > c.DeadzoneRadius {
		return fmt.Errorf("%w: movement_threshold %v > deadzone_radius %v",
			ErrGateOrder, c.MovementThreshold, c.DeadzoneRadius)
	}
	return nil
}
