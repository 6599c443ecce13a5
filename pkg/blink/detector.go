package blink

import (
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/clock"
)

// Detector debounces openness samples into blink events and matches the
// double-blink pattern against the recent blink history.
// It is not safe for concurrent use; the frame loop owns it.
type Detector struct {
	config Config
	clock  clock.Clock

	// Debounce state
	frameCounter int
	isBlinking   bool

	// Blink timestamps in chronological order
	history []time.Time
}

// NewDetector creates a blink detector. A nil clock uses the wall clock.
func NewDetector(config Config, c clock.Clock) *Detector {
	return &Detector{
		config:  config,
		clock:   clock.OrReal(c),
		history: make([]time.Time, 0, config.MaxHistory),
	}
}

// DetectBlink classifies one openness sample and reports true exactly once
// per closed-eye event that lasts ConsecutiveFrames frames.
func (d *Detector) DetectBlink(openness float64) bool {
	if openness >= d.config.EARThreshold {
		// Eye reopened: re-arm regardless of prior state
		d.isBlinking = false
		d.frameCounter = 0
		return false
	}

	d.frameCounter++
	if d.frameCounter >= d.config.ConsecutiveFrames && !d.isBlinking {
		d.isBlinking = true
		d.record(d.clock.Now())
		return true
	}
	return false
}

// record appends a blink, dropping the oldest entries past MaxHistory.
func (d *Detector) record(at time.Time) {
	d.history = append(d.history, at)
	if d.config.MaxHistory > 0 && len(d.history) > d.config.MaxHistory {
		d.history = d.history[len(d.history)-d.config.MaxHistory:]
	}
}

// CheckDoubleBlinkPattern prunes blinks older than HistoryWindow and reports
// whether the two most recent blinks are between MinInterval and MaxInterval apart.
// A match clears the history so the same pair never matches twice.
func (d *Detector) CheckDoubleBlinkPattern() bool {
	d.prune(d.clock.Now())

	if len(d.history) < 2 {
		return false
	}

	last := d.history[len(d.history)-1]
	prev := d.history[len(d.history)-2]
	delta := last.Sub(prev)

	if delta >= d.config.MinInterval && delta <= d.config.MaxInterval {
		d.history = d.history[:0]
		return true
	}
	return false
}

// prune drops history entries older than HistoryWindow relative to now.
func (d *Detector) prune(now time.Time) {
	kept := d.history[:0]
	for _, t := range d.history {
		if now.Sub(t) <= d.config.HistoryWindow {
			kept = append(kept, t)
		}
	}
	d.history = kept
}

// Reset clears history and debounce state. Used on session boundaries.
func (d *Detector) Reset() {
	d.history = d.history[:0]
	d.frameCounter = 0
	d.isBlinking = false
}

// History returns a copy of the stored blink timestamps, oldest first.
func (d *Detector) History() []time.Time {
	out := make([]time.Time, len(d.history))
	copy(out, d.history)
	return out
}

// Blinking returns true while a committed blink has not yet reopened.
func (d *Detector) Blinking() bool {
	return d.isBlinking
}

// Counter returns the current run of closed frames.
func (d *Detector) Counter() int {
	return d.frameCounter
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.config
}
