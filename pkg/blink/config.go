// Package blink turns per-frame eye-openness samples into debounced blink events
// and recognizes the double-blink gesture that arms and disarms command mode.
package blink

import (
	"fmt"
	"time"
)

// Config holds all tunable parameters for blink detection
type Config struct {
	// Classification
	EARThreshold      float64 // Openness below this counts as a closed eye
	ConsecutiveFrames int     // Closed frames required before a blink is committed

	// Double-blink pattern
	MinInterval   time.Duration // Shortest gap between the two blinks
	MaxInterval   time.Duration // Longest gap between the two blinks
	HistoryWindow time.Duration // Blinks older than this are pruned at pattern check

	// MaxHistory caps stored blink timestamps (oldest dropped first)
	MaxHistory int
}

// DefaultConfig returns the recommended configuration for a 30 FPS camera
func DefaultConfig() Config {
	return Config{
		EARThreshold:      0.25,
		ConsecutiveFrames: 3, // ~100ms at 30 FPS

		MinInterval:   100 * time.Millisecond,
		MaxInterval:   800 * time.Millisecond,
		HistoryWindow: 5000 * time.Millisecond,

		MaxHistory: 32,
	}
}

// LowFrameRateConfig returns a configuration for cameras running near 15 FPS,
// where three closed frames would already be a deliberate squint.
func LowFrameRateConfig() Config {
	cfg := DefaultConfig()
	cfg.ConsecutiveFrames = 2
	return cfg
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.EARThreshold <= 0 {
		return fmt.Errorf("ear_threshold must be positive, got %v", c.EARThreshold)
	}
	if c.ConsecutiveFrames < 1 {
		return fmt.Errorf("consecutive_frames must be at least 1, got %d", c.ConsecutiveFrames)
	}
	if c.MinInterval < 0 || c.MaxInterval <= 0 {
		return fmt.Errorf("blink intervals must be positive, got min=%v max=%v", c.MinInterval, c.MaxInterval)
	}
	if c.MinInterval > c.MaxInterval {
		return fmt.Errorf("min_blink_interval %v exceeds max_blink_interval %v", c.MinInterval, c.MaxInterval)
	}
	if c.HistoryWindow < c.MaxInterval {
		return fmt.Errorf("blink_history_window %v shorter than max_blink_interval %v", c.HistoryWindow, c.MaxInterval)
	}
	if c.MaxHistory < 2 {
		return fmt.Errorf("max_history must hold at least 2 blinks, got %d", c.MaxHistory)
	}
	return nil
}
