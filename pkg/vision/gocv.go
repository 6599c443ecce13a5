package vision

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/debug"
	"github.com/teslashibe/go-gazekeys/pkg/gaze"
	"gocv.io/x/gocv"
)

// MatFrame is a Frame backed by an OpenCV matrix. Renderers use it to draw overlays.
type MatFrame interface {
	Frame
	Mat() gocv.Mat

	// EyeRegions lists the eyes measured on the frame in full-frame pixels,
	// largest first. Empty when the whole frame is the eye region.
	EyeRegions() []image.Rectangle
}

// GoCVBackend reads frames from an OpenCV VideoCapture and measures the eye
// with contour and Hough-circle analysis.
type GoCVBackend struct {
	config Config
	logger *slog.Logger

	capture *gocv.VideoCapture
	cascade *gocv.CascadeClassifier
	reopens *reconnector

	mu     sync.Mutex
	seq    uint64
	closed bool

	// Eye regions held across cascade misses
	lastEyes   []image.Rectangle
	missedEyes int
}

// NewGoCV opens the camera and loads the optional eye cascade.
// A failed first open is fatal for the caller; only a camera that stops
// delivering frames later is reopened.
func NewGoCV(cfg Config, logger *slog.Logger) (*GoCVBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vision config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &GoCVBackend{config: cfg, logger: logger}

	if cfg.EyeCascadePath != "" {
		if _, err := os.Stat(cfg.EyeCascadePath); os.IsNotExist(err) {
			return nil, fmt.Errorf("eye cascade not found: %s", cfg.EyeCascadePath)
		}
		cascade := gocv.NewCascadeClassifier()
		if !cascade.Load(cfg.EyeCascadePath) {
			cascade.Close()
			return nil, fmt.Errorf("failed to load eye cascade: %s", cfg.EyeCascadePath)
		}
		b.cascade = &cascade
	}

	if err := b.openCapture(); err != nil {
		b.closeCascade()
		return nil, err
	}
	b.reopens = newReconnector(cfg.Reconnect, logger.With("device", cfg.Device))

	return b, nil
}

// openCapture releases any previous capture, then opens the device and
// applies the capture settings.
func (b *GoCVBackend) openCapture() error {
	cfg := b.config
	if b.capture != nil {
		b.capture.Close()
		b.capture = nil
	}

	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: %s", ErrSourceUnavailable, cfg.Device)
	}

	if cfg.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.Framerate > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}
	capture.Set(gocv.VideoCaptureBufferSize, 1)
	b.capture = capture

	b.logger.Info("camera opened",
		"device", cfg.Device,
		"width", capture.Get(gocv.VideoCaptureFrameWidth),
		"height", capture.Get(gocv.VideoCaptureFrameHeight),
		"fps", capture.Get(gocv.VideoCaptureFPS),
		"eye_cascade", cfg.EyeCascadePath != "",
		"max_eyes", cfg.MaxEyes,
	)
	return nil
}

type gocvFrame struct {
	seq  uint64
	at   time.Time
	img  gocv.Mat
	eyes []image.Rectangle // none when the whole frame is the eye
	once sync.Once
}

func (f *gocvFrame) Seq() uint64           { return f.seq }
func (f *gocvFrame) CapturedAt() time.Time { return f.at }
func (f *gocvFrame) Mat() gocv.Mat         { return f.img }

func (f *gocvFrame) EyeRegions() []image.Rectangle { return f.eyes }

// Size is the mean eye region size when eyes are known, else the full frame.
// Pupil coordinates are reported in the same space.
func (f *gocvFrame) Size() gaze.Size {
	if len(f.eyes) == 0 {
		return gaze.Size{Width: f.img.Cols(), Height: f.img.Rows()}
	}
	var w, h int
	for _, e := range f.eyes {
		w += e.Dx()
		h += e.Dy()
	}
	return gaze.Size{Width: w / len(f.eyes), Height: h / len(f.eyes)}
}

func (f *gocvFrame) Close() error {
	f.once.Do(func() {
		f.img.Close()
	})
	return nil
}

// NextFrame reads one frame. The read itself cannot be interrupted; ctx is
// checked before each read. After Reconnect.EmptyFrames failed reads in a row
// the camera is reopened with backoff; when that fails the error wraps
// ErrSourceUnavailable.
func (b *GoCVBackend) NextFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	if b.capture == nil {
		// An earlier reopen was interrupted
		if err := b.reopen(ctx); err != nil {
			return nil, err
		}
	}

	img := gocv.NewMat()
	if ok := b.capture.Read(&img); !ok || img.Empty() {
		img.Close()
		if b.reopens.miss() {
			if err := b.reopen(ctx); err != nil {
				return nil, err
			}
		}
		return nil, ErrEmptyFrame
	}
	b.reopens.hit()

	b.seq++
	f := &gocvFrame{seq: b.seq, at: time.Now(), img: img}
	f.eyes = b.locateEyes(img)
	return f, nil
}

func (b *GoCVBackend) reopen(ctx context.Context) error {
	if err := b.reopens.reopen(ctx, b.openCapture); err != nil {
		return fmt.Errorf("camera %s: %w", b.config.Device, err)
	}
	return nil
}

// locateEyes returns up to MaxEyes non-overlapping eyes, largest first,
// holding the previous regions for EyeHoldFrames misses.
func (b *GoCVBackend) locateEyes(img gocv.Mat) []image.Rectangle {
	if b.cascade == nil {
		return nil
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	found := pickEyes(b.cascade.DetectMultiScale(gray), b.config.MaxEyes)
	if len(found) == 0 {
		b.missedEyes++
		if b.missedEyes > b.config.EyeHoldFrames {
			b.lastEyes = nil
		}
		if b.missedEyes == b.config.EyeHoldFrames+1 {
			debug.FrameLog("👁️  Lost eye (%d consecutive misses)\n", b.missedEyes)
		}
		return b.lastEyes
	}

	// Pad each region a little, clamped to the frame
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	eyes := make([]image.Rectangle, 0, len(found))
	for _, r := range found {
		eyes = append(eyes, image.Rect(r.Min.X-10, r.Min.Y-5, r.Max.X+10, r.Max.Y+5).Intersect(bounds))
	}

	b.missedEyes = 0
	b.lastEyes = eyes
	return eyes
}

// pickEyes keeps the largest detections that do not overlap one already kept.
// Cascades often report an eyebrow or a nested box over the same eye.
func pickEyes(detections []image.Rectangle, limit int) []image.Rectangle {
	sorted := append([]image.Rectangle(nil), detections...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return area(sorted[i]) > area(sorted[j])
	})

	var eyes []image.Rectangle
	for _, r := range sorted {
		if len(eyes) == limit {
			break
		}
		if r.Empty() {
			continue
		}
		overlaps := false
		for _, e := range eyes {
			if r.Overlaps(e) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			eyes = append(eyes, r)
		}
	}
	return eyes
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

// eyeGray returns a blurred grayscale copy of eye, or of the whole frame when
// eye is empty. Caller closes it.
func eyeGray(f *gocvFrame, eye image.Rectangle) gocv.Mat {
	src := f.img
	if !eye.Empty() {
		src = f.img.Region(eye)
		defer src.Close()
	}

	gray := gocv.NewMat()
	if src.Channels() == 3 {
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	} else {
		src.CopyTo(&gray)
	}
	gocv.GaussianBlur(gray, &gray, image.Pt(5, 5), 0, 0, gocv.BorderDefault)
	return gray
}

// regions lists the areas to measure: each eye, or the whole frame when
// there is no cascade. Empty when a cascade is loaded but found no eye.
func (b *GoCVBackend) regions(fr Frame) (*gocvFrame, []image.Rectangle) {
	f, ok := fr.(*gocvFrame)
	if !ok || f.img.Empty() {
		return nil, nil
	}
	if b.cascade == nil {
		return f, []image.Rectangle{{}}
	}
	return f, f.eyes
}

// MeasureOpenness approximates eye openness as the height/width ratio of the
// largest dark blob after Otsu thresholding, averaged over the measured eyes.
// An open eye shows a round iris (ratio near 0.5..1), a closed eye a thin
// lash line (ratio near 0).
func (b *GoCVBackend) MeasureOpenness(fr Frame) (float64, bool) {
	f, eyes := b.regions(fr)
	var sum float64
	var n int
	for _, eye := range eyes {
		if v, ok := eyeOpenness(f, eye); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func eyeOpenness(f *gocvFrame, eye image.Rectangle) (float64, bool) {
	gray := eyeGray(f, eye)
	defer gray.Close()

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, 0, 255, gocv.ThresholdBinaryInv+gocv.ThresholdOtsu)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	largest := largestContour(contours, 0)
	if largest < 0 {
		return 0, false
	}

	rect := gocv.BoundingRect(contours.At(largest))
	if rect.Dx() == 0 {
		return 0, false
	}
	return float64(rect.Dy()) / float64(rect.Dx()), true
}

// LocatePupil tries Hough circles first (largest radius), then falls back to
// the centroid of the largest dark contour above MinPupilArea. With two eyes
// the pupils are averaged as fractions of their regions and reported in the
// space of the mean region, matching Size.
func (b *GoCVBackend) LocatePupil(fr Frame) gaze.Point {
	f, eyes := b.regions(fr)
	if f == nil {
		return gaze.NotFound
	}

	var pupils []gaze.Point
	var sizes []gaze.Size
	for _, eye := range eyes {
		p := b.eyePupil(f, eye)
		if !p.Found() {
			continue
		}
		size := gaze.Size{Width: f.img.Cols(), Height: f.img.Rows()}
		if !eye.Empty() {
			size = gaze.Size{Width: eye.Dx(), Height: eye.Dy()}
		}
		pupils = append(pupils, p)
		sizes = append(sizes, size)
	}
	return meanPupil(pupils, sizes, f.Size())
}

// meanPupil averages pupils given as pixels within their own region sizes and
// scales the result to out.
func meanPupil(pupils []gaze.Point, sizes []gaze.Size, out gaze.Size) gaze.Point {
	if len(pupils) == 0 {
		return gaze.NotFound
	}
	var fx, fy float64
	for i, p := range pupils {
		fx += p.X / float64(sizes[i].Width)
		fy += p.Y / float64(sizes[i].Height)
	}
	n := float64(len(pupils))
	return gaze.Point{
		X: fx / n * float64(out.Width),
		Y: fy / n * float64(out.Height),
	}
}

func (b *GoCVBackend) eyePupil(f *gocvFrame, eye image.Rectangle) gaze.Point {
	gray := eyeGray(f, eye)
	defer gray.Close()

	if p, found := houghPupil(gray); found {
		return p
	}
	return contourPupil(gray, b.config.PupilThreshold, b.config.MinPupilArea)
}

func houghPupil(gray gocv.Mat) (gaze.Point, bool) {
	rows := gray.Rows()
	if rows < 16 {
		return gaze.NotFound, false
	}

	circles := gocv.NewMat()
	defer circles.Close()
	gocv.HoughCirclesWithParams(gray, &circles, gocv.HoughGradient,
		1, float64(rows)/8, 100, 30, rows/8, rows/3)

	best := gaze.NotFound
	bestRadius := float32(-1)
	for i := 0; i < circles.Cols(); i++ {
		v := circles.GetVecfAt(0, i)
		if len(v) < 3 {
			continue
		}
		if v[2] > bestRadius {
			bestRadius = v[2]
			best = gaze.Point{X: float64(v[0]), Y: float64(v[1])}
		}
	}
	return best, bestRadius > 0
}

// contourPupil returns the centroid of the largest dark blob, from the image
// moments of the filled contour.
func contourPupil(gray gocv.Mat, threshold, minArea float64) gaze.Point {
	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, float32(threshold), 255, gocv.ThresholdBinaryInv)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	largest := largestContour(contours, minArea)
	if largest < 0 {
		return gaze.NotFound
	}

	mask := gocv.Zeros(gray.Rows(), gray.Cols(), gocv.MatTypeCV8U)
	defer mask.Close()
	gocv.DrawContours(&mask, contours, largest, color.RGBA{255, 255, 255, 0}, -1)

	m := gocv.Moments(mask, true)
	if m["m00"] == 0 {
		return gaze.NotFound
	}
	return gaze.Point{X: m["m10"] / m["m00"], Y: m["m01"] / m["m00"]}
}

// largestContour returns the index of the largest contour with an area above
// minArea, or -1.
func largestContour(contours gocv.PointsVector, minArea float64) int {
	largest := -1
	maxArea := minArea
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > maxArea {
			maxArea = a
			largest = i
		}
	}
	return largest
}

// Name returns "gocv".
func (b *GoCVBackend) Name() string {
	return "gocv"
}

func (b *GoCVBackend) closeCascade() {
	if b.cascade != nil {
		b.cascade.Close()
		b.cascade = nil
	}
}

// Close releases the camera and cascade.
func (b *GoCVBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.closeCascade()

	var err error
	if b.capture != nil {
		err = b.capture.Close()
	}
	b.logger.Info("camera closed", "device", b.config.Device, "frames", b.seq)
	return err
}
