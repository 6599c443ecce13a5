package pipeline

import (
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/clock"
)

// Stats is a snapshot of the frame loop counters.
type Stats struct {
	Frames        uint64  `json:"frames"`
	DroppedFrames uint64  `json:"dropped_frames"`
	Blinks        uint64  `json:"blinks"`
	DoubleBlinks  uint64  `json:"double_blinks"`
	Activations   uint64  `json:"activations"`
	Expiries      uint64  `json:"expiries"`
	Calibrations  uint64  `json:"calibrations"`
	Commands      uint64  `json:"commands"`
	FPS           float64 `json:"fps"`
}

// statsTracker owns the counters and computes FPS over one-second windows.
type statsTracker struct {
	clock clock.Clock
	stats Stats

	windowStart  time.Time
	windowFrames int
}

func newStatsTracker(c clock.Clock) *statsTracker {
	return &statsTracker{clock: c}
}

// frame counts a delivered frame and rolls the FPS window.
func (t *statsTracker) frame() {
	now := t.clock.Now()
	t.stats.Frames++
	t.windowFrames++

	if t.windowStart.IsZero() {
		t.windowStart = now
		return
	}
	if elapsed := now.Sub(t.windowStart); elapsed >= time.Second {
		// Frames in the window minus the one that opened it = intervals
		t.stats.FPS = float64(t.windowFrames-1) / elapsed.Seconds()
		t.windowStart = now
		t.windowFrames = 1
	}
}

func (t *statsTracker) snapshot() Stats {
	return t.stats
}
