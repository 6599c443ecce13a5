// Package pipeline runs the frame loop: blink gestures arm a command session,
// the first live frame calibrates the gaze baseline, and gaze beyond the gate
// becomes arrow-key commands.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/blink"
	"github.com/teslashibe/go-gazekeys/pkg/calibration"
	"github.com/teslashibe/go-gazekeys/pkg/clock"
	"github.com/teslashibe/go-gazekeys/pkg/command"
	"github.com/teslashibe/go-gazekeys/pkg/debug"
	"github.com/teslashibe/go-gazekeys/pkg/gaze"
	"github.com/teslashibe/go-gazekeys/pkg/vision"
)

var (
	// ErrStop may be returned by a Renderer to end Run without error
	// (e.g. the user pressed q in the preview window).
	ErrStop = errors.New("stop requested")

	// ErrRecalibrate may be returned by a Renderer to drop the gaze baseline.
	// The next live frame with a pupil sets a new one.
	ErrRecalibrate = errors.New("recalibration requested")
)

// State is what the loop publishes to the renderer after every frame.
type State struct {
	// Frame is only valid for the duration of Render.
	Frame vision.Frame

	Seq        uint64
	Openness   float64
	HasEye     bool
	Blinking   bool
	Pupil      gaze.Point
	Gaze       gaze.Vector
	Calibrated bool

	Active    bool
	Session   command.Session
	Remaining time.Duration

	// Dispatched is set on the frame a command was sent.
	Dispatched bool
	Direction  command.Direction

	Stats Stats
}

// Renderer displays loop state. Render runs on the loop goroutine.
type Renderer interface {
	Render(s State) error
	Close() error
}

// Components are the collaborators the orchestrator drives.
// Backend, Blink, Gaze and Commands are required.
type Components struct {
	Backend  vision.Backend
	Blink    *blink.Detector
	Gaze     *gaze.Estimator
	Commands *command.Controller

	// Injector is closed with the loop; the Controller already holds it.
	Injector command.Injector
	Renderer Renderer
	Store    calibration.Store

	Clock  clock.Clock
	Logger *slog.Logger
}

// Orchestrator owns the per-frame control flow. The command controller is the
// only holder of session state; the orchestrator asks it every frame.
type Orchestrator struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock

	backend  vision.Backend
	blinks   *blink.Detector
	gaze     *gaze.Estimator
	commands *command.Controller
	injector command.Injector
	renderer Renderer
	store    calibration.Store

	stats *statsTracker

	// Dispatch gate
	sustainDir   command.Direction
	sustainCount int
	lastDispatch time.Time

	renderFailures int

	closeOnce sync.Once
	closeErr  error
}

// New wires the orchestrator and restores a saved baseline when a store is given.
func New(cfg Config, c Components) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if c.Backend == nil || c.Blink == nil || c.Gaze == nil || c.Commands == nil {
		return nil, errors.New("pipeline: backend, blink detector, gaze estimator and command controller are required")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := clock.OrReal(c.Clock)

	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		clock:    clk,
		backend:  c.Backend,
		blinks:   c.Blink,
		gaze:     c.Gaze,
		commands: c.Commands,
		injector: c.Injector,
		renderer: c.Renderer,
		store:    c.Store,
		stats:    newStatsTracker(clk),
	}

	if err := o.restoreCalibration(); err != nil {
		logger.Warn("saved calibration ignored", "error", err)
	}
	return o, nil
}

func (o *Orchestrator) restoreCalibration() error {
	if o.store == nil || o.config.CalibrationName == "" {
		return nil
	}
	rec, err := o.store.Load(o.config.CalibrationName)
	if errors.Is(err, calibration.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := o.gaze.Restore(rec.Baseline()); err != nil {
		return err
	}
	o.logger.Info("calibration restored",
		"name", o.config.CalibrationName,
		"x", rec.BaselineX, "y", rec.BaselineY,
		"saved", rec.Timestamp)
	return nil
}

// Run processes frames until ctx is done, the source ends, the renderer asks
// to stop, or a fatal error occurs. Backend, injector and renderer are closed
// before Run returns.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	defer func() {
		err = errors.Join(err, o.Close())
	}()

	o.logger.Info("pipeline started",
		"backend", o.backend.Name(),
		"gate", o.config.DispatchMagnitudeGate,
		"cooldown", o.config.DispatchCooldown,
		"sustain", o.config.SustainFrames,
		"calibrated", o.gaze.IsCalibrated())

	for {
		if err := o.ProcessFrame(ctx); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				o.logger.Info("frame source ended")
				return nil
			case errors.Is(err, ErrStop):
				o.logger.Info("stop requested by renderer")
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			default:
				return fmt.Errorf("frame loop: %w", err)
			}
		}
	}
}

// ProcessFrame runs one iteration of the loop. ErrEmptyFrame is absorbed; any
// other NextFrame error is returned unchanged.
func (o *Orchestrator) ProcessFrame(ctx context.Context) error {
	frame, err := o.backend.NextFrame(ctx)
	if err != nil {
		if errors.Is(err, vision.ErrEmptyFrame) {
			o.stats.stats.DroppedFrames++
			return nil
		}
		return err
	}
	defer frame.Close()

	o.stats.frame()

	state := State{Frame: frame, Seq: frame.Seq()}

	// Blink gesture toggles the session
	state.Openness, state.HasEye = o.backend.MeasureOpenness(frame)
	if state.HasEye {
		if o.blinks.DetectBlink(state.Openness) {
			o.stats.stats.Blinks++
			debug.FrameLog("😑 Blink #%d (openness %.3f)\n", o.stats.stats.Blinks, state.Openness)
			if o.blinks.CheckDoubleBlinkPattern() {
				o.stats.stats.DoubleBlinks++
				o.toggleSession()
			}
		}
	}
	state.Blinking = o.blinks.Blinking()

	state.Pupil = o.backend.LocatePupil(frame)

	gazeDone := false
	if o.commands.IsCommandModeActive() {
		if !o.gaze.IsCalibrated() {
			o.calibrate(state.Pupil, frame.Size())
		} else {
			state.Gaze = o.gaze.CalculateGazeDirection(state.Pupil)
			gazeDone = true
			state.Direction, state.Dispatched = o.dispatch(ctx, state.Gaze)
		}
	} else if o.commands.Armed() {
		// Armed but past the timeout
		o.stats.stats.Expiries++
		o.logger.Info("command mode expired", "session", o.commands.Session().ID, "timeout", o.commands.Timeout())
		debug.Log("⏱️  Command mode expired\n")
		o.commands.DeactivateCommandMode()
		o.resetSustain()
	}

	// Display only: renderers show gaze in every mode, zero until calibrated
	if !gazeDone {
		state.Gaze = o.gaze.CalculateGazeDirection(state.Pupil)
	}

	state.Calibrated = o.gaze.IsCalibrated()
	state.Active = o.commands.IsCommandModeActive()
	state.Session = o.commands.Session()
	state.Remaining = o.commands.Remaining()
	state.Stats = o.stats.snapshot()

	if state.Pupil.Found() {
		debug.FrameLog("👁️  frame=%d open=%.3f pupil=(%.0f,%.0f) gaze=(%.2f,%.2f) active=%v\n",
			state.Seq, state.Openness, state.Pupil.X, state.Pupil.Y, state.Gaze.X, state.Gaze.Y, state.Active)
	}

	return o.render(state)
}

func (o *Orchestrator) toggleSession() {
	if o.commands.IsCommandModeActive() {
		o.commands.DeactivateCommandMode()
		debug.Log("🔒 Command mode OFF\n")
	} else {
		// Also re-arms a session that expired but was never cleared
		o.commands.ActivateCommandMode()
		o.stats.stats.Activations++
		debug.Log("🔓 Command mode ON (%v)\n", o.commands.Timeout())
	}
	if o.config.ResetBlinkOnToggle {
		o.blinks.Reset()
	}
	o.resetSustain()
}

func (o *Orchestrator) calibrate(pupil gaze.Point, size gaze.Size) {
	if err := o.gaze.CalibrateBaseline(pupil, size); err != nil {
		// Retried on the next live frame
		o.logger.Debug("calibration deferred", "error", err)
		return
	}
	o.stats.stats.Calibrations++
	o.logger.Info("baseline calibrated", "x", pupil.X, "y", pupil.Y, "width", size.Width, "height", size.Height)
	debug.Log("🎯 Calibrated at (%.0f, %.0f)\n", pupil.X, pupil.Y)
}

// dispatch applies the magnitude gate, sustain count and cooldown before
// asking the controller to send a command.
func (o *Orchestrator) dispatch(ctx context.Context, v gaze.Vector) (command.Direction, bool) {
	if v.Magnitude() <= o.config.DispatchMagnitudeGate {
		o.resetSustain()
		return 0, false
	}

	dir := command.DirectionOf(v)
	if o.sustainCount > 0 && dir == o.sustainDir {
		o.sustainCount++
	} else {
		o.sustainDir = dir
		o.sustainCount = 1
	}
	if o.sustainCount < o.config.SustainFrames {
		return 0, false
	}

	now := o.clock.Now()
	if o.config.DispatchCooldown > 0 && !o.lastDispatch.IsZero() && now.Sub(o.lastDispatch) < o.config.DispatchCooldown {
		return 0, false
	}

	sent, ok := o.commands.ExecuteDirectionCommand(ctx, v)
	if !ok {
		return 0, false
	}
	o.lastDispatch = now
	o.stats.stats.Commands++
	debug.Log("⌨️  %s %s\n", sent.Arrow(), sent)
	return sent, true
}

func (o *Orchestrator) resetSustain() {
	o.sustainCount = 0
}

func (o *Orchestrator) render(s State) error {
	if o.renderer == nil {
		return nil
	}
	err := o.renderer.Render(s)
	if err == nil {
		o.renderFailures = 0
		return nil
	}
	if errors.Is(err, ErrStop) {
		return err
	}
	if errors.Is(err, ErrRecalibrate) {
		o.Recalibrate()
		return nil
	}
	// Display problems never stop key dispatch; log the first of a streak
	o.renderFailures++
	if o.renderFailures == 1 {
		o.logger.Warn("render failed", "error", err)
	}
	return nil
}

// Recalibrate drops the gaze baseline. While a session is live the next frame
// with a pupil calibrates again; otherwise the next session does.
func (o *Orchestrator) Recalibrate() {
	o.gaze.Reset()
	o.resetSustain()
	o.logger.Info("baseline cleared", "active", o.commands.IsCommandModeActive())
	debug.Log("🎯 Recalibrating\n")
}

// SaveCalibration writes the current baseline to the store.
func (o *Orchestrator) SaveCalibration() error {
	if o.store == nil {
		return errors.New("no calibration store configured")
	}
	b, ok := o.gaze.Baseline()
	if !ok {
		return gaze.ErrPupilNotFound
	}
	if err := o.store.Save(o.config.CalibrationName, calibration.FromBaseline(b, o.clock.Now())); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	o.logger.Info("calibration saved", "name", o.config.CalibrationName)
	return nil
}

// Stats returns a snapshot of the loop counters.
func (o *Orchestrator) Stats() Stats {
	return o.stats.snapshot()
}

// Session returns the command session snapshot.
func (o *Orchestrator) Session() command.Session {
	return o.commands.Session()
}

// Close saves the baseline (when configured) and releases backend, injector
// and renderer. Errors are joined. Safe to call more than once.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		var errs []error

		if o.config.SaveCalibrationOnExit && o.store != nil && o.gaze.IsCalibrated() {
			errs = append(errs, o.SaveCalibration())
		}
		if o.renderer != nil {
			errs = append(errs, o.renderer.Close())
		}
		if o.injector != nil {
			errs = append(errs, o.injector.Close())
		}
		errs = append(errs, o.backend.Close())

		o.closeErr = errors.Join(errs...)

		s := o.stats.snapshot()
		o.logger.Info("pipeline stopped",
			"frames", s.Frames,
			"dropped", s.DroppedFrames,
			"blinks", s.Blinks,
			"double_blinks", s.DoubleBlinks,
			"commands", s.Commands)
	})
	return o.closeErr
}
