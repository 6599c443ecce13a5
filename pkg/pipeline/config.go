package pipeline

import (
	"fmt"
	"time"
)

// Config holds the frame loop's dispatch and persistence settings.
type Config struct {
	// Dispatch
	DispatchMagnitudeGate float64       // Only dispatch when |gaze| is strictly above this
	DispatchCooldown      time.Duration // Minimum time between two dispatches (0 disables)
	SustainFrames         int           // Frames the gaze must hold one direction before dispatch

	// Session
	ResetBlinkOnToggle bool // Clear blink history whenever the session is armed or disarmed

	// Calibration persistence
	CalibrationName       string // Record name in the calibration store
	SaveCalibrationOnExit bool   // Write the baseline back to the store when the loop ends
}

// DefaultConfig returns a 0.3 gate with a 500ms cooldown. A single frame past
// the gate is enough to dispatch.
func DefaultConfig() Config {
	return Config{
		DispatchMagnitudeGate: 0.3,
		DispatchCooldown:      500 * time.Millisecond,
		SustainFrames:         1,

		ResetBlinkOnToggle: false,

		CalibrationName:       "default",
		SaveCalibrationOnExit: true,
	}
}

// PrototypeConfig requires three consecutive frames in one direction before
// a key is pressed.
func PrototypeConfig() Config {
	cfg := DefaultConfig()
	cfg.SustainFrames = 3
	return cfg
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DispatchMagnitudeGate < 0 {
		return fmt.Errorf("dispatch_magnitude_gate must not be negative, got %v", c.DispatchMagnitudeGate)
	}
	if c.DispatchCooldown < 0 {
		return fmt.Errorf("dispatch_cooldown must not be negative, got %v", c.DispatchCooldown)
	}
	if c.SustainFrames < 1 {
		return fmt.Errorf("sustain_frames must be at least 1, got %d", c.SustainFrames)
	}
	return nil
}
