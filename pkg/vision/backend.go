// Package vision defines the capability the frame loop needs from a camera and
// eye detector, plus a scripted backend for tests and a GoCV backend for real cameras.
package vision

import (
	"context"
	"errors"
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/gaze"
)

var (
	// ErrEmptyFrame is returned by NextFrame for a transient capture miss.
	// The loop skips the frame and asks for the next one.
	ErrEmptyFrame = errors.New("empty frame")

	// ErrSourceUnavailable is returned when the camera cannot be opened.
	ErrSourceUnavailable = errors.New("frame source unavailable")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("backend closed")
)

// Frame is a captured frame owned by the caller until Close.
type Frame interface {
	// Seq is the capture sequence number, starting at 1.
	Seq() uint64

	// Size is the frame size used for gaze normalization.
	Size() gaze.Size

	// CapturedAt is when the frame was read from the source.
	CapturedAt() time.Time

	// Close releases pixel buffers.
	Close() error
}

// Backend is the vision capability consumed by the frame loop.
type Backend interface {
	// NextFrame blocks until a frame is available or ctx is done.
	// ErrEmptyFrame is transient; io.EOF ends the stream; anything else is fatal.
	NextFrame(ctx context.Context) (Frame, error)

	// MeasureOpenness returns the eye-openness of the frame.
	// ok is false when no eye could be measured.
	MeasureOpenness(f Frame) (openness float64, ok bool)

	// LocatePupil returns the pupil center or gaze.NotFound.
	LocatePupil(f Frame) gaze.Point

	// Name returns the backend name (e.g. "gocv", "scripted").
	Name() string

	// Close releases the frame source.
	Close() error
}
