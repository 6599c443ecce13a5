// Package debug gates the human-readable progress lines (arming, calibration,
// key presses) printed next to the structured logs.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	// Enabled turns on milestone lines. Set by --debug.
	Enabled bool

	// Frames turns on one line per frame (openness, pupil, gaze).
	// Set by --debug-frames; very verbose at 30 fps.
	Frames bool

	// Output receives the lines. Stderr keeps stdout free for the terminal
	// status line.
	Output io.Writer = os.Stderr

	mu sync.Mutex
)

// Log prints a milestone line when Enabled.
func Log(format string, args ...any) {
	if Enabled {
		write(format, args...)
	}
}

// FrameLog prints a per-frame line when Frames is set.
func FrameLog(format string, args ...any) {
	if Frames {
		write(format, args...)
	}
}

func write(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(Output, format, args...)
}
