package calibration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/gaze"
	"github.com/teslashibe/go-gazekeys/pkg/vision"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func now() time.Time { return fixedNow }

func TestCapture_Median(t *testing.T) {
	b := vision.NewScripted([]vision.Sample{
		vision.Open(gaze.Point{X: 300, Y: 200}),
		vision.Closed(),
		{Empty: true},
		vision.Open(gaze.Point{X: 330, Y: 260}),
		vision.Open(gaze.Point{X: 320, Y: 240}),
		vision.Open(gaze.Point{X: 900, Y: 10}), // outlier
		vision.Open(gaze.Point{X: 310, Y: 250}),
	})

	rec, err := Capture(context.Background(), b, CaptureOptions{Frames: 5}, now)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if rec.BaselineX != 320 || rec.BaselineY != 240 {
		t.Errorf("baseline = (%v,%v), want (320,240)", rec.BaselineX, rec.BaselineY)
	}
	if rec.FrameWidth != 640 || rec.FrameHeight != 480 {
		t.Errorf("frame = %dx%d", rec.FrameWidth, rec.FrameHeight)
	}
	if !rec.Timestamp.Equal(fixedNow) {
		t.Errorf("timestamp = %v", rec.Timestamp)
	}
}

func TestCapture_EvenCountAverages(t *testing.T) {
	b := vision.NewScripted([]vision.Sample{
		vision.Open(gaze.Point{X: 100, Y: 100}),
		vision.Open(gaze.Point{X: 110, Y: 120}),
	})
	rec, err := Capture(context.Background(), b, CaptureOptions{Frames: 2}, now)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if rec.BaselineX != 105 || rec.BaselineY != 110 {
		t.Errorf("baseline = (%v,%v), want (105,110)", rec.BaselineX, rec.BaselineY)
	}
}

func TestCapture_Failures(t *testing.T) {
	boom := errors.New("camera unplugged")
	tests := []struct {
		name    string
		samples []vision.Sample
		opts    CaptureOptions
		wantIs  error
	}{
		{"source ends", []vision.Sample{vision.Open(gaze.Point{X: 1, Y: 1})}, CaptureOptions{Frames: 3}, ErrNotEnoughSamples},
		{"too many misses", []vision.Sample{vision.Closed(), vision.Closed(), vision.Closed()}, CaptureOptions{Frames: 1, MaxMisses: 1}, ErrNotEnoughSamples},
		{"fatal error", []vision.Sample{{Err: boom}}, CaptureOptions{Frames: 1}, boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Capture(context.Background(), vision.NewScripted(tt.samples), tt.opts, now)
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("err = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestCapture_InvalidFrames(t *testing.T) {
	if _, err := Capture(context.Background(), vision.NewScripted(nil), CaptureOptions{}, now); err == nil {
		t.Error("expected error for zero frames")
	}
}

func TestCapture_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := vision.NewScripted([]vision.Sample{vision.Open(gaze.Point{X: 1, Y: 1})})
	if _, err := Capture(ctx, b, CaptureOptions{Frames: 1}, now); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
