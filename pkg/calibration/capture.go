package calibration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/gaze"
	"github.com/teslashibe/go-gazekeys/pkg/vision"
)

// ErrNotEnoughSamples is returned by Capture when the source ran out or too
// many frames had no pupil.
var ErrNotEnoughSamples = errors.New("not enough pupil samples")

// CaptureOptions tunes Capture.
type CaptureOptions struct {
	// Frames is the number of pupil samples to collect.
	Frames int

	// MaxMisses bounds frames without a pupil (or empty frames) before giving up.
	// Zero means 3 * Frames.
	MaxMisses int

	Logger *slog.Logger
}

// DefaultCaptureOptions collects one second of frames at 30 fps.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{Frames: 30}
}

// Capture reads frames from b until opts.Frames pupils are found and returns
// a record at their per-axis median. The user should look straight ahead.
func Capture(ctx context.Context, b vision.Backend, opts CaptureOptions, now func() time.Time) (Record, error) {
	if opts.Frames <= 0 {
		return Record{}, fmt.Errorf("frames must be positive, got %d", opts.Frames)
	}
	maxMisses := opts.MaxMisses
	if maxMisses <= 0 {
		maxMisses = 3 * opts.Frames
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	xs := make([]float64, 0, opts.Frames)
	ys := make([]float64, 0, opts.Frames)
	var size gaze.Size
	misses := 0

	for len(xs) < opts.Frames {
		if misses > maxMisses {
			return Record{}, fmt.Errorf("%w: %d of %d after %d misses", ErrNotEnoughSamples, len(xs), opts.Frames, misses)
		}

		f, err := b.NextFrame(ctx)
		if errors.Is(err, vision.ErrEmptyFrame) {
			misses++
			continue
		}
		if errors.Is(err, io.EOF) {
			return Record{}, fmt.Errorf("%w: source ended after %d of %d", ErrNotEnoughSamples, len(xs), opts.Frames)
		}
		if err != nil {
			return Record{}, err
		}

		p := b.LocatePupil(f)
		fs := f.Size()
		f.Close()

		if !p.Found() || fs.Empty() {
			misses++
			continue
		}
		if !size.Empty() && fs != size {
			return Record{}, fmt.Errorf("frame size changed from %dx%d to %dx%d", size.Width, size.Height, fs.Width, fs.Height)
		}
		size = fs
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
		logger.Debug("calibration sample", "n", len(xs), "x", p.X, "y", p.Y)
	}

	return Record{
		BaselineX:   median(xs),
		BaselineY:   median(ys),
		FrameWidth:  size.Width,
		FrameHeight: size.Height,
		Timestamp:   now(),
	}, nil
}

func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
