package render

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gazekeys/pkg/pipeline"
	"github.com/teslashibe/go-gazekeys/pkg/vision"
)

var (
	green  = color.RGBA{0, 255, 0, 0}
	red    = color.RGBA{0, 0, 255, 0} // BGR order on the Mat
	yellow = color.RGBA{0, 255, 255, 0}
	white  = color.RGBA{255, 255, 255, 0}
)

// DrawOverlay annotates img with the eye boxes, the pupil, the gaze arrow,
// the session label and the frame rate. The pupil is drawn in the first eye.
func DrawOverlay(img *gocv.Mat, s pipeline.State, eyes []image.Rectangle, arrowScale float64) {
	var eye image.Rectangle
	for i, e := range eyes {
		if i == 0 {
			eye = e
		}
		gocv.Rectangle(img, e, yellow, 1)
	}

	if s.Pupil.Found() {
		p := image.Pt(eye.Min.X+int(s.Pupil.X), eye.Min.Y+int(s.Pupil.Y))
		gocv.Circle(img, p, 3, green, -1)
	}

	if !s.Gaze.IsZero() {
		c := image.Pt(img.Cols()/2, img.Rows()/2)
		tip := s.Gaze.Scale(arrowScale)
		gocv.ArrowedLine(img, c, image.Pt(c.X+int(tip.X), c.Y+int(tip.Y)), red, 2)
	}

	label, labelColor := "MONITORING", green
	if s.Active {
		label, labelColor = "COMMAND ACTIVE", red
	}
	gocv.PutText(img, label, image.Pt(10, 30), gocv.FontHersheySimplex, 0.7, labelColor, 2)
	gocv.PutText(img, fmt.Sprintf("FPS: %.1f", s.Stats.FPS), image.Pt(10, 60), gocv.FontHersheySimplex, 0.6, white, 1)
}

// Window shows the annotated camera frame in an OpenCV window.
// It must be driven from the goroutine that created it.
type Window struct {
	name       string
	arrowScale float64
	win        *gocv.Window
	canvas     gocv.Mat
}

// NewWindow creates a renderer; the window opens on the first frame.
func NewWindow(name string, arrowScale float64) *Window {
	return &Window{name: name, arrowScale: arrowScale}
}

// Render draws the overlay on a copy of the frame. Pressing q or Esc returns
// pipeline.ErrStop and c returns pipeline.ErrRecalibrate. Frames without
// pixels are ignored.
func (w *Window) Render(s pipeline.State) error {
	f, ok := s.Frame.(vision.MatFrame)
	if !ok {
		return nil
	}
	src := f.Mat()
	if src.Empty() {
		return nil
	}

	if w.win == nil {
		w.win = gocv.NewWindow(w.name)
		w.canvas = gocv.NewMat()
	}

	src.CopyTo(&w.canvas)
	DrawOverlay(&w.canvas, s, f.EyeRegions(), w.arrowScale)
	w.win.IMShow(w.canvas)

	return keyAction(w.win.WaitKey(1))
}

// keyAction maps a preview key press to a loop request.
func keyAction(key int) error {
	switch key {
	case 'q', 'Q', 27:
		return pipeline.ErrStop
	case 'c', 'C':
		return pipeline.ErrRecalibrate
	}
	return nil
}

// Close destroys the window.
func (w *Window) Close() error {
	if w.win == nil {
		return nil
	}
	w.canvas.Close()
	err := w.win.Close()
	w.win = nil
	return err
}
