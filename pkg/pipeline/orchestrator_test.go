package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/blink"
	"github.com/teslashibe/go-gazekeys/pkg/calibration"
	"github.com/teslashibe/go-gazekeys/pkg/clock"
	"github.com/teslashibe/go-gazekeys/pkg/command"
	"github.com/teslashibe/go-gazekeys/pkg/gaze"
	"github.com/teslashibe/go-gazekeys/pkg/input"
	"github.com/teslashibe/go-gazekeys/pkg/vision"
)

const frameInterval = 50 * time.Millisecond

var (
	center = gaze.Point{X: 320, Y: 240}
	right  = gaze.Point{X: 480, Y: 240} // gaze (0.5, 0)
	up     = gaze.Point{X: 320, Y: 120} // gaze (0, -0.5)
)

// recordingRenderer keeps every state it is given (without the frame).
type recordingRenderer struct {
	states        []State
	err           error
	stopAt        uint64
	recalibrateAt uint64
	closed        bool
}

func (r *recordingRenderer) Render(s State) error {
	s.Frame = nil
	r.states = append(r.states, s)
	if r.stopAt > 0 && s.Seq >= r.stopAt {
		return ErrStop
	}
	if r.recalibrateAt > 0 && s.Seq == r.recalibrateAt {
		return ErrRecalibrate
	}
	return r.err
}

func (r *recordingRenderer) Close() error {
	r.closed = true
	return nil
}

type harness struct {
	clock     *clock.Manual
	backend   *vision.ScriptedBackend
	injector  *input.Mock
	renderer  *recordingRenderer
	commands  *command.Controller
	estimator *gaze.Estimator
	orch      *Orchestrator
}

func newHarness(t *testing.T, cfg Config, timeout time.Duration, store calibration.Store, samples ...[]vision.Sample) *harness {
	t.Helper()

	var script []vision.Sample
	for _, s := range samples {
		script = append(script, s...)
	}

	clk := clock.NewManual(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	h := &harness{
		clock:     clk,
		backend:   vision.NewScripted(script, vision.WithManualClock(clk, frameInterval)),
		injector:  input.NewMock(),
		renderer:  &recordingRenderer{},
		estimator: gaze.NewEstimator(gaze.DefaultConfig()),
	}
	h.commands = command.NewController(timeout, h.injector, clk, nil)

	orch, err := New(cfg, Components{
		Backend:  h.backend,
		Blink:    blink.NewDetector(blink.DefaultConfig(), clk),
		Gaze:     h.estimator,
		Commands: h.commands,
		Injector: h.injector,
		Renderer: h.renderer,
		Store:    store,
		Clock:    clk,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.orch = orch
	return h
}

func repeat(s vision.Sample, n int) []vision.Sample {
	out := make([]vision.Sample, n)
	for i := range out {
		out[i] = s
	}
	return out
}

// doubleBlink is two closed-eye events 200ms apart. The gesture completes on
// the last closed frame, where no pupil is visible.
func doubleBlink() []vision.Sample {
	return []vision.Sample{
		vision.Closed(), vision.Closed(), vision.Closed(),
		vision.Open(center),
		vision.Closed(), vision.Closed(), vision.Closed(),
	}
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	if err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func assertSent(t *testing.T, got []command.Direction, want ...command.Direction) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sent[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestOrchestrator_ArmCalibrateDispatch(t *testing.T) {
	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		repeat(vision.Open(center), 2),
		doubleBlink(),
		[]vision.Sample{vision.Open(center)}, // calibrates here
		repeat(vision.Open(right), 21),       // 1050ms of gaze right
	)
	h.run(t)

	// 500ms cooldown at 50ms per frame: frames 0, 10 and 20 of the run
	assertSent(t, h.injector.Sent(), command.Right, command.Right, command.Right)

	stats := h.orch.Stats()
	if stats.Frames != 31 {
		t.Errorf("Frames = %d, want 31", stats.Frames)
	}
	if stats.Blinks != 2 || stats.DoubleBlinks != 1 || stats.Activations != 1 {
		t.Errorf("blinks/double/activations = %d/%d/%d, want 2/1/1",
			stats.Blinks, stats.DoubleBlinks, stats.Activations)
	}
	if stats.Calibrations != 1 || stats.Commands != 3 {
		t.Errorf("calibrations/commands = %d/%d, want 1/3", stats.Calibrations, stats.Commands)
	}

	b, ok := h.estimator.Baseline()
	if !ok || b.Pupil != center {
		t.Errorf("baseline = %+v (ok=%v), want %+v", b.Pupil, ok, center)
	}

	// Arming frame: active but not yet calibrated (pupil hidden)
	arm := h.renderer.states[8]
	if !arm.Active || arm.Calibrated {
		t.Errorf("arming frame active=%v calibrated=%v, want true/false", arm.Active, arm.Calibrated)
	}
	if !h.renderer.states[9].Calibrated {
		t.Error("first open frame after arming should calibrate")
	}
	first := h.renderer.states[10]
	if !first.Dispatched || first.Direction != command.Right {
		t.Errorf("first gaze frame dispatched=%v dir=%v", first.Dispatched, first.Direction)
	}
	if first.Gaze.X != 0.5 || first.Gaze.Y != 0 {
		t.Errorf("gaze = %+v, want (0.5, 0)", first.Gaze)
	}
}

func TestOrchestrator_CalibratesOnArmingFrame(t *testing.T) {
	// Lids nearly shut but the pupil still found on the gesture's last frame
	squint := vision.Sample{Openness: 0.1, Pupil: center}
	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		repeat(vision.Open(center), 2),
		[]vision.Sample{
			vision.Closed(), vision.Closed(), vision.Closed(),
			vision.Open(center),
			vision.Closed(), vision.Closed(), squint,
		},
		[]vision.Sample{vision.Open(right)},
	)
	h.run(t)

	arm := h.renderer.states[8]
	if !arm.Active || !arm.Calibrated {
		t.Errorf("arming frame active=%v calibrated=%v, want true/true", arm.Active, arm.Calibrated)
	}
	if b, _ := h.estimator.Baseline(); b.Pupil != center {
		t.Errorf("baseline = %+v, want %+v", b.Pupil, center)
	}
	if got := h.orch.Stats().Calibrations; got != 1 {
		t.Errorf("Calibrations = %d, want 1", got)
	}

	// The very next frame already dispatches
	assertSent(t, h.injector.Sent(), command.Right)
	if !h.renderer.states[9].Dispatched {
		t.Error("frame after the arming frame should dispatch")
	}
}

func TestOrchestrator_GazeShownWhileDisarmed(t *testing.T) {
	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		doubleBlink(),
		[]vision.Sample{vision.Open(center)}, // calibrates
		doubleBlink(),                        // disarms
		repeat(vision.Open(right), 3),
	)
	h.run(t)

	if len(h.injector.Sent()) != 0 {
		t.Fatalf("sent %v while disarmed", h.injector.Sent())
	}
	for _, s := range h.renderer.states[15:] {
		if s.Active || !s.Calibrated {
			t.Fatalf("frame %d active=%v calibrated=%v, want false/true", s.Seq, s.Active, s.Calibrated)
		}
		if s.Gaze.X != 0.5 || s.Gaze.Y != 0 {
			t.Errorf("frame %d gaze = %+v, want (0.5, 0) for display", s.Seq, s.Gaze)
		}
		if s.Dispatched {
			t.Errorf("frame %d dispatched while disarmed", s.Seq)
		}
	}
}

func TestOrchestrator_GazeZeroBeforeCalibration(t *testing.T) {
	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		repeat(vision.Open(right), 3),
	)
	h.run(t)

	for _, s := range h.renderer.states {
		if !s.Gaze.IsZero() {
			t.Errorf("frame %d gaze = %+v without a baseline", s.Seq, s.Gaze)
		}
	}
}

func TestOrchestrator_RendererRequestsRecalibration(t *testing.T) {
	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		doubleBlink(),
		repeat(vision.Open(center), 2), // calibrates on seq 8
		repeat(vision.Open(right), 2),  // new baseline on seq 10
	)
	h.renderer.recalibrateAt = 9
	h.run(t)

	if len(h.injector.Sent()) != 0 {
		t.Errorf("sent %v; gaze should be relative to the new baseline", h.injector.Sent())
	}
	if got := h.orch.Stats().Calibrations; got != 2 {
		t.Errorf("Calibrations = %d, want 2", got)
	}
	if b, _ := h.estimator.Baseline(); b.Pupil != right {
		t.Errorf("baseline = %+v, want %+v", b.Pupil, right)
	}
	if !h.renderer.states[10].Active {
		t.Error("recalibration must not end the session")
	}
}

func TestOrchestrator_NoDispatchWhileDisarmed(t *testing.T) {
	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		repeat(vision.Open(right), 30),
	)
	h.run(t)

	if len(h.injector.Sent()) != 0 {
		t.Errorf("sent %v while disarmed", h.injector.Sent())
	}
	if h.estimator.IsCalibrated() {
		t.Error("baseline must not be captured while disarmed")
	}
}

func TestOrchestrator_SecondDoubleBlinkDisarms(t *testing.T) {
	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		doubleBlink(),
		[]vision.Sample{vision.Open(center)},
		repeat(vision.Open(up), 2),
		[]vision.Sample{vision.Open(center)},
		doubleBlink(),
		repeat(vision.Open(right), 20),
	)
	h.run(t)

	assertSent(t, h.injector.Sent(), command.Up)

	if h.orch.Session().Armed {
		t.Error("session should be disarmed after the second double blink")
	}
	stats := h.orch.Stats()
	if stats.DoubleBlinks != 2 || stats.Activations != 1 {
		t.Errorf("double/activations = %d/%d, want 2/1", stats.DoubleBlinks, stats.Activations)
	}
}

func TestOrchestrator_SessionExpires(t *testing.T) {
	// 1s timeout = 20 frames
	h := newHarness(t, DefaultConfig(), time.Second, nil,
		doubleBlink(),
		repeat(vision.Open(center), 25),
		repeat(vision.Open(right), 5),
	)
	h.run(t)

	if len(h.injector.Sent()) != 0 {
		t.Errorf("sent %v after expiry", h.injector.Sent())
	}
	if h.orch.Session().Armed {
		t.Error("expired session should be cleared")
	}
	if got := h.orch.Stats().Expiries; got != 1 {
		t.Errorf("Expiries = %d, want 1", got)
	}

	// Armed at frame 7; the frame 20 frames (1000ms) later is the first expired one
	for _, s := range h.renderer.states {
		age := time.Duration(s.Seq-7) * frameInterval
		if s.Seq >= 7 && age < time.Second && !s.Active {
			t.Errorf("frame %d (age %v) should still be active", s.Seq, age)
		}
		if s.Seq >= 7 && age >= time.Second && s.Active {
			t.Errorf("frame %d (age %v) should be expired", s.Seq, age)
		}
	}
}

func TestOrchestrator_RearmAfterExpiryKeepsBaseline(t *testing.T) {
	h := newHarness(t, DefaultConfig(), time.Second, nil,
		doubleBlink(),
		repeat(vision.Open(center), 25),
		doubleBlink(),
		repeat(vision.Open(right), 1),
	)
	h.run(t)

	assertSent(t, h.injector.Sent(), command.Right)

	stats := h.orch.Stats()
	if stats.Activations != 2 || stats.Calibrations != 1 {
		t.Errorf("activations/calibrations = %d/%d, want 2/1", stats.Activations, stats.Calibrations)
	}
}

func TestOrchestrator_MagnitudeGateIsStrict(t *testing.T) {
	atGate := gaze.Point{X: 320 + 0.3*320, Y: 240}    // |gaze| == 0.3
	pastGate := gaze.Point{X: 320 + 0.35*320, Y: 240} // |gaze| == 0.35

	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		doubleBlink(),
		[]vision.Sample{vision.Open(center)},
		repeat(vision.Open(atGate), 3),
		[]vision.Sample{vision.Open(pastGate)},
	)
	h.run(t)

	assertSent(t, h.injector.Sent(), command.Right)
}

func TestOrchestrator_SustainFrames(t *testing.T) {
	cfg := PrototypeConfig()
	cfg.DispatchCooldown = 0

	h := newHarness(t, cfg, command.DefaultTimeout, nil,
		doubleBlink(),
		[]vision.Sample{vision.Open(center)},
		repeat(vision.Open(right), 2),
		repeat(vision.Open(up), 2),
		repeat(vision.Open(right), 4),
	)
	h.run(t)

	// The up run is too short; the final right run reaches 3 on its third frame
	// and keeps dispatching without a cooldown
	assertSent(t, h.injector.Sent(), command.Right, command.Right)
}

func TestOrchestrator_CooldownDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DispatchCooldown = 0

	h := newHarness(t, cfg, command.DefaultTimeout, nil,
		doubleBlink(),
		[]vision.Sample{vision.Open(center)},
		repeat(vision.Open(up), 3),
	)
	h.run(t)

	assertSent(t, h.injector.Sent(), command.Up, command.Up, command.Up)
}

func TestOrchestrator_UnmeasurableEyeSkipsBlinkInput(t *testing.T) {
	noEye := vision.Sample{NoEye: true, Pupil: gaze.NotFound}

	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		[]vision.Sample{vision.Closed(), vision.Closed(), noEye, noEye, vision.Closed()},
	)
	h.run(t)

	if got := h.orch.Stats().Blinks; got != 1 {
		t.Errorf("Blinks = %d, want 1 (unmeasured frames neither count nor reset)", got)
	}
}

func TestOrchestrator_EmptyFramesAreDropped(t *testing.T) {
	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		[]vision.Sample{vision.Open(center), {Empty: true}, {Empty: true}, vision.Open(center)},
	)
	h.run(t)

	stats := h.orch.Stats()
	if stats.Frames != 2 || stats.DroppedFrames != 2 {
		t.Errorf("frames/dropped = %d/%d, want 2/2", stats.Frames, stats.DroppedFrames)
	}
	if len(h.renderer.states) != 2 {
		t.Errorf("rendered %d states, want 2", len(h.renderer.states))
	}
}

func TestOrchestrator_FatalErrorClosesEverything(t *testing.T) {
	boom := errors.New("device unplugged")
	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		[]vision.Sample{vision.Open(center), {Err: boom}, vision.Open(center)},
	)

	err := h.orch.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
	if !h.backend.Closed() || !h.injector.Closed() || !h.renderer.closed {
		t.Errorf("closed backend/injector/renderer = %v/%v/%v, want all true",
			h.backend.Closed(), h.injector.Closed(), h.renderer.closed)
	}
	if h.backend.Remaining() != 1 {
		t.Errorf("loop should stop at the fatal frame, %d samples left", h.backend.Remaining())
	}

	// Close is idempotent
	if err := h.orch.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		repeat(vision.Open(center), 10),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.orch.Run(ctx); err != nil {
		t.Fatalf("Run with cancelled context error = %v, want nil", err)
	}
	if !h.backend.Closed() {
		t.Error("backend should be closed after cancellation")
	}
	if h.orch.Stats().Frames != 0 {
		t.Error("no frames should be processed after cancellation")
	}
}

func TestOrchestrator_RendererStopAndFailures(t *testing.T) {
	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, nil,
		repeat(vision.Open(center), 10),
	)
	h.renderer.err = errors.New("window gone")
	h.renderer.stopAt = 4

	h.run(t)

	if got := h.orch.Stats().Frames; got != 4 {
		t.Errorf("Frames = %d, want 4 (render errors continue, ErrStop ends)", got)
	}
}

func TestOrchestrator_CalibrationPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	store, err := calibration.NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore failed: %v", err)
	}
	saved := gaze.Baseline{Pupil: center, Frame: gaze.Size{Width: 640, Height: 480}}
	if err := store.Save("default", calibration.FromBaseline(saved, time.Unix(0, 0))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	h := newHarness(t, DefaultConfig(), command.DefaultTimeout, store,
		doubleBlink(),
		[]vision.Sample{vision.Open(right)},
	)
	if !h.estimator.IsCalibrated() {
		t.Fatal("saved baseline should be restored by New")
	}

	h.run(t)

	// No live calibration needed: the first open frame already dispatches
	assertSent(t, h.injector.Sent(), command.Right)
	if h.orch.Stats().Calibrations != 0 {
		t.Error("restored baseline should not be recalibrated")
	}

	reopened, err := calibration.NewJSONStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	rec, err := reopened.Load("default")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec.Baseline() != saved {
		t.Errorf("saved baseline = %+v, want %+v", rec.Baseline(), saved)
	}
	if !rec.Timestamp.After(time.Unix(0, 0)) {
		t.Error("baseline should be re-saved with the exit timestamp")
	}
}

func TestNew_RequiresComponents(t *testing.T) {
	if _, err := New(DefaultConfig(), Components{}); err == nil {
		t.Error("expected error for missing components")
	}

	cfg := DefaultConfig()
	cfg.SustainFrames = 0
	clk := clock.NewManual(time.Time{})
	_, err := New(cfg, Components{
		Backend:  vision.NewScripted(nil),
		Blink:    blink.NewDetector(blink.DefaultConfig(), clk),
		Gaze:     gaze.NewEstimator(gaze.DefaultConfig()),
		Commands: command.NewController(0, nil, clk, nil),
	})
	if err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestStatsTracker_FPS(t *testing.T) {
	clk := clock.NewManual(time.Time{})
	tr := newStatsTracker(clk)

	for i := 0; i < 21; i++ {
		tr.frame()
		clk.Advance(frameInterval)
	}
	// The 21st frame lands exactly 1s after the first
	if fps := tr.snapshot().FPS; fps != 20 {
		t.Errorf("FPS = %v, want 20", fps)
	}
}
