package vision

import (
	"image"
	"image/color"
	"math"
	"testing"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gazekeys/pkg/gaze"
)

func TestMeanPupil(t *testing.T) {
	tests := []struct {
		name   string
		pupils []gaze.Point
		sizes  []gaze.Size
		out    gaze.Size
		want   gaze.Point
	}{
		{"none", nil, nil, gaze.Size{Width: 60, Height: 40}, gaze.NotFound},
		{
			"one eye",
			[]gaze.Point{{X: 30, Y: 10}},
			[]gaze.Size{{Width: 60, Height: 40}},
			gaze.Size{Width: 60, Height: 40},
			gaze.Point{X: 30, Y: 10},
		},
		{
			// Both pupils a quarter across their own box
			"different box sizes",
			[]gaze.Point{{X: 15, Y: 20}, {X: 20, Y: 25}},
			[]gaze.Size{{Width: 60, Height: 40}, {Width: 80, Height: 50}},
			gaze.Size{Width: 70, Height: 45},
			gaze.Point{X: 17.5, Y: 22.5},
		},
		{
			"looking opposite ways",
			[]gaze.Point{{X: 0, Y: 20}, {X: 60, Y: 20}},
			[]gaze.Size{{Width: 60, Height: 40}, {Width: 60, Height: 40}},
			gaze.Size{Width: 60, Height: 40},
			gaze.Point{X: 30, Y: 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := meanPupil(tt.pupils, tt.sizes, tt.out)
			if got.Found() != tt.want.Found() {
				t.Fatalf("meanPupil = %v, want %v", got, tt.want)
			}
			if got.Found() && (math.Abs(got.X-tt.want.X) > 1e-9 || math.Abs(got.Y-tt.want.Y) > 1e-9) {
				t.Errorf("meanPupil = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrameSize_MeanOfEyes(t *testing.T) {
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	f := &gocvFrame{img: img}
	defer f.Close()

	if got := f.Size(); got != (gaze.Size{Width: 640, Height: 480}) {
		t.Errorf("no eyes: Size = %v, want the full frame", got)
	}

	f.eyes = []image.Rectangle{image.Rect(100, 100, 160, 140), image.Rect(300, 100, 380, 150)}
	if got := f.Size(); got != (gaze.Size{Width: 70, Height: 45}) {
		t.Errorf("two eyes: Size = %v, want 70x45", got)
	}
}

// An L-shaped blob: its area centroid sits well away from the mean of its
// corner points, so only a moments-based centroid lands on it.
func TestContourPupil_AreaCentroid(t *testing.T) {
	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), 64, 64, gocv.MatTypeCV8U)
	defer gray.Close()
	black := color.RGBA{0, 0, 0, 0}
	gocv.Rectangle(&gray, image.Rect(10, 10, 40, 20), black, -1)
	gocv.Rectangle(&gray, image.Rect(10, 21, 20, 50), black, -1)

	p := contourPupil(gray, 50, 30)
	if !p.Found() {
		t.Fatal("pupil not found")
	}
	// Pixel areas 31x11 and 11x30
	wantX := (341*25.0 + 330*15.0) / 671
	wantY := (341*15.0 + 330*35.5) / 671
	if math.Abs(p.X-wantX) > 0.5 || math.Abs(p.Y-wantY) > 0.5 {
		t.Errorf("centroid = (%.2f, %.2f), want (%.2f, %.2f)", p.X, p.Y, wantX, wantY)
	}
}

func TestContourPupil_BelowMinArea(t *testing.T) {
	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), 64, 64, gocv.MatTypeCV8U)
	defer gray.Close()
	gocv.Rectangle(&gray, image.Rect(30, 30, 33, 33), color.RGBA{0, 0, 0, 0}, -1)

	if p := contourPupil(gray, 50, 30); p.Found() {
		t.Errorf("a 4x4 blob should be rejected, got %v", p)
	}
}

func TestPickEyes(t *testing.T) {
	left := image.Rect(100, 100, 160, 140)
	right := image.Rect(300, 100, 350, 135)
	brow := image.Rect(110, 80, 150, 110) // overlaps left
	tiny := image.Rect(0, 0, 5, 5)

	tests := []struct {
		name  string
		in    []image.Rectangle
		limit int
		want  []image.Rectangle
	}{
		{"none", nil, 2, nil},
		{"largest first", []image.Rectangle{right, left}, 2, []image.Rectangle{left, right}},
		{"overlap skipped", []image.Rectangle{brow, left, right}, 2, []image.Rectangle{left, right}},
		{"limit one", []image.Rectangle{right, left, tiny}, 1, []image.Rectangle{left}},
		{"third dropped", []image.Rectangle{tiny, right, left}, 2, []image.Rectangle{left, right}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pickEyes(tt.in, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("pickEyes = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("eye %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
