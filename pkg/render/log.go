package render

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/clock"
	"github.com/teslashibe/go-gazekeys/pkg/pipeline"
)

// Log writes session transitions and dispatched commands as they happen, plus
// a stats line every interval.
type Log struct {
	logger   *slog.Logger
	interval time.Duration
	clock    clock.Clock

	lastStats  time.Time
	wasActive  bool
	calibrated bool
}

// NewLog creates a log renderer. A zero interval disables the stats line.
func NewLog(logger *slog.Logger, interval time.Duration, c clock.Clock) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		logger:   logger.With("renderer", "log"),
		interval: interval,
		clock:    clock.OrReal(c),
	}
}

// Render logs what changed since the previous state.
func (l *Log) Render(s pipeline.State) error {
	if s.Active != l.wasActive {
		if s.Active {
			l.logger.Info("COMMAND ACTIVE", "session", s.Session.ID, "remaining", s.Remaining)
		} else {
			l.logger.Info("MONITORING")
		}
		l.wasActive = s.Active
	}
	if s.Calibrated && !l.calibrated {
		l.logger.Info("baseline set", "pupil_x", s.Pupil.X, "pupil_y", s.Pupil.Y)
	}
	l.calibrated = s.Calibrated

	if s.Dispatched {
		l.logger.Info("command", "direction", s.Direction.String(), "gaze_x", s.Gaze.X, "gaze_y", s.Gaze.Y)
	}

	if l.interval > 0 {
		now := l.clock.Now()
		if l.lastStats.IsZero() || now.Sub(l.lastStats) >= l.interval {
			l.lastStats = now
			l.logger.Info("stats",
				"frames", s.Stats.Frames,
				"fps", s.Stats.FPS,
				"dropped", s.Stats.DroppedFrames,
				"blinks", s.Stats.Blinks,
				"commands", s.Stats.Commands)
		}
	}
	return nil
}

// Close is a no-op.
func (l *Log) Close() error {
	return nil
}
