package gaze

import "fmt"

// Baseline is the calibrated reference pupil position together with the
// frame size it was measured in.
type Baseline struct {
	Pupil Point
	Frame Size
}

// Estimator holds the calibration baseline and turns pupil positions into
// gaze vectors. It is owned by the frame loop and not safe for concurrent use.
type Estimator struct {
	config Config

	baseline     Baseline
	isCalibrated bool
}

// NewEstimator creates an uncalibrated estimator.
func NewEstimator(config Config) *Estimator {
	return &Estimator{config: config}
}

// CalibrateBaseline stores pupil and frame as the new baseline.
// On error the previous baseline (if any) is left untouched.
func (e *Estimator) CalibrateBaseline(pupil Point, frame Size) error {
	if !pupil.Found() {
		return ErrPupilNotFound
	}
	if frame.Empty() {
		return fmt.Errorf("%w: %dx%d", ErrInvalidFrameSize, frame.Width, frame.Height)
	}

	e.baseline = Baseline{Pupil: pupil, Frame: frame}
	e.isCalibrated = true
	return nil
}

// Restore installs a previously saved baseline.
func (e *Estimator) Restore(b Baseline) error {
	return e.CalibrateBaseline(b.Pupil, b.Frame)
}

// CalculateGazeDirection returns the normalized displacement of pupil from the
// baseline, or the zero vector when uncalibrated, when the pupil was not found,
// or when the displacement is inside either gate.
func (e *Estimator) CalculateGazeDirection(pupil Point) Vector {
	if !e.isCalibrated || !pupil.Found() {
		return Vector{}
	}

	delta := pupil.Sub(e.baseline.Pupil)

	// Half a frame of displacement maps to 1.0
	v := Vector{
		X: delta.X / (float64(e.baseline.Frame.Width) * 0.5),
		Y: delta.Y / (float64(e.baseline.Frame.Height) * 0.5),
	}

	magnitude := v.Magnitude()
	if magnitude < e.config.DeadzoneRadius {
		return Vector{}
	}
	if magnitude < e.config.MovementThreshold {
		return Vector{}
	}

	return v
}

// IsCalibrated returns true once a baseline has been stored.
func (e *Estimator) IsCalibrated() bool {
	return e.isCalibrated
}

// Baseline returns the current baseline and whether one exists.
func (e *Estimator) Baseline() (Baseline, bool) {
	return e.baseline, e.isCalibrated
}

// Reset discards the baseline so the next calibration starts fresh.
func (e *Estimator) Reset() {
	e.baseline = Baseline{}
	e.isCalibrated = false
}

// Config returns the estimator configuration.
func (e *Estimator) Config() Config {
	return e.config
}
