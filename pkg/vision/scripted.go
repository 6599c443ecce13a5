package vision

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/clock"
	"github.com/teslashibe/go-gazekeys/pkg/gaze"
)

// Sample is one scripted frame.
type Sample struct {
	Openness float64
	NoEye    bool       // MeasureOpenness reports !ok
	Pupil    gaze.Point // use gaze.NotFound for a miss
	Empty    bool       // NextFrame returns ErrEmptyFrame
	Err      error      // NextFrame returns this error
}

// Open is a convenience sample: eye open, pupil at p.
func Open(p gaze.Point) Sample {
	return Sample{Openness: 0.35, Pupil: p}
}

// Closed is a convenience sample: eye closed, pupil not visible.
func Closed() Sample {
	return Sample{Openness: 0.1, Pupil: gaze.NotFound}
}

// ScriptedBackend replays a fixed list of samples, one per NextFrame call.
// When a Manual clock is supplied it is advanced by Interval before each frame,
// so timing windows in the loop see a steady frame rate.
type ScriptedBackend struct {
	mu       sync.Mutex
	samples  []Sample
	pos      int
	seq      uint64
	size     gaze.Size
	clock    clock.Clock
	interval time.Duration
	closed   bool
}

// ScriptedOption configures a ScriptedBackend.
type ScriptedOption func(*ScriptedBackend)

// WithFrameSize sets the size reported by every frame (default 640x480).
func WithFrameSize(s gaze.Size) ScriptedOption {
	return func(b *ScriptedBackend) {
		b.size = s
	}
}

// WithManualClock advances c by interval before each frame.
func WithManualClock(c *clock.Manual, interval time.Duration) ScriptedOption {
	return func(b *ScriptedBackend) {
		b.clock = c
		b.interval = interval
	}
}

// NewScripted creates a backend that replays samples then returns io.EOF.
func NewScripted(samples []Sample, opts ...ScriptedOption) *ScriptedBackend {
	b := &ScriptedBackend{
		samples: samples,
		size:    gaze.Size{Width: 640, Height: 480},
		clock:   clock.Real{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type scriptedFrame struct {
	seq    uint64
	size   gaze.Size
	at     time.Time
	sample Sample
}

func (f *scriptedFrame) Seq() uint64           { return f.seq }
func (f *scriptedFrame) Size() gaze.Size       { return f.size }
func (f *scriptedFrame) CapturedAt() time.Time { return f.at }
func (f *scriptedFrame) Close() error          { return nil }

// NextFrame returns the next scripted sample.
func (b *ScriptedBackend) NextFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.pos >= len(b.samples) {
		return nil, io.EOF
	}

	s := b.samples[b.pos]
	b.pos++

	if m, ok := b.clock.(*clock.Manual); ok && b.interval > 0 {
		m.Advance(b.interval)
	}

	if s.Err != nil {
		return nil, s.Err
	}
	if s.Empty {
		return nil, ErrEmptyFrame
	}

	b.seq++
	return &scriptedFrame{seq: b.seq, size: b.size, at: b.clock.Now(), sample: s}, nil
}

// MeasureOpenness returns the scripted openness.
func (b *ScriptedBackend) MeasureOpenness(f Frame) (float64, bool) {
	sf, ok := f.(*scriptedFrame)
	if !ok || sf.sample.NoEye {
		return 0, false
	}
	return sf.sample.Openness, true
}

// LocatePupil returns the scripted pupil position.
func (b *ScriptedBackend) LocatePupil(f Frame) gaze.Point {
	sf, ok := f.(*scriptedFrame)
	if !ok {
		return gaze.NotFound
	}
	return sf.sample.Pupil
}

// Remaining returns how many samples are left.
func (b *ScriptedBackend) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples) - b.pos
}

// Closed reports whether Close was called.
func (b *ScriptedBackend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Name returns "scripted".
func (b *ScriptedBackend) Name() string {
	return "scripted"
}

// Close marks the backend closed. Safe to call multiple times.
func (b *ScriptedBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
