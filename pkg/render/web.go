package render

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gazekeys/pkg/hub"
	"github.com/teslashibe/go-gazekeys/pkg/pipeline"
	"github.com/teslashibe/go-gazekeys/pkg/vision"
)

//go:embed dashboard.html
var dashboardHTML []byte

// XY is a JSON-friendly point or vector.
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Status is the dashboard view of one frame.
type Status struct {
	Seq         uint64         `json:"seq"`
	Active      bool           `json:"active"`
	SessionID   string         `json:"session_id,omitempty"`
	RemainingMS int64          `json:"remaining_ms"`
	Calibrated  bool           `json:"calibrated"`
	HasEye      bool           `json:"has_eye"`
	Openness    float64        `json:"openness"`
	Blinking    bool           `json:"blinking"`
	Pupil       *XY            `json:"pupil"`
	Gaze        XY             `json:"gaze"`
	LastCommand string         `json:"last_command,omitempty"`
	LastAt      string         `json:"last_command_at,omitempty"`
	Stats       pipeline.Stats `json:"stats"`
}

// Web is the dashboard renderer: REST snapshots plus websocket pushes.
type Web struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	status   Status
	statusMu sync.RWMutex

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	cameraHub *hub.Hub

	cameraEvery int
	arrowScale  float64
	started     atomic.Bool
}

// NewWeb creates the dashboard server. Call Start or StartAsync to listen.
func NewWeb(cfg Config, logger *slog.Logger) *Web {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Web{
		port:        cfg.WebPort,
		logger:      logger.With("renderer", "web"),
		statusHub:   hub.New("status", logger, hub.WithRetain()),
		cameraHub:   hub.New("camera", logger),
		cameraEvery: cfg.CameraEvery,
		arrowScale:  cfg.ArrowScale,
	}

	app := fiber.New(fiber.Config{
		AppName:               "gazekeys dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/", w.handleIndex)

	api := app.Group("/api")
	api.Get("/status", w.handleStatus)
	api.Get("/stats", w.handleStats)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(w.handleStatusWS))
	app.Get("/ws/camera", websocket.New(w.handleCameraWS))

	w.app = app

	// Hubs run from construction so Render never blocks on an idle server
	go w.statusHub.Run()
	go w.cameraHub.Run()
	return w
}

// Start listens on the configured port and blocks.
func (w *Web) Start() error {
	w.started.Store(true)
	fmt.Printf("🌐 Dashboard: http://localhost:%s\n", w.port)
	return w.app.Listen(":" + w.port)
}

// StartAsync starts the web server in a goroutine
func (w *Web) StartAsync() {
	go func() {
		if err := w.Start(); err != nil {
			w.logger.Warn("web server error", "error", err)
		}
	}()
}

// Render stores the status and pushes it to websocket clients.
func (w *Web) Render(s pipeline.State) error {
	w.statusMu.Lock()
	prev := w.status
	st := Status{
		Seq:         s.Seq,
		Active:      s.Active,
		RemainingMS: s.Remaining.Milliseconds(),
		Calibrated:  s.Calibrated,
		HasEye:      s.HasEye,
		Openness:    s.Openness,
		Blinking:    s.Blinking,
		Gaze:        XY{X: s.Gaze.X, Y: s.Gaze.Y},
		LastCommand: prev.LastCommand,
		LastAt:      prev.LastAt,
		Stats:       s.Stats,
	}
	if s.Active {
		st.SessionID = s.Session.ID
	}
	if s.Pupil.Found() {
		st.Pupil = &XY{X: s.Pupil.X, Y: s.Pupil.Y}
	}
	if s.Dispatched {
		st.LastCommand = s.Direction.String()
		st.LastAt = time.Now().Format("15:04:05.000")
	}
	w.status = st
	w.statusMu.Unlock()

	if err := w.statusHub.BroadcastJSON(st); err != nil {
		return err
	}

	if w.cameraEvery > 0 && s.Seq%uint64(w.cameraEvery) == 0 && w.cameraHub.ClientCount() > 0 {
		w.sendFrame(s)
	}
	return nil
}

// sendFrame JPEG-encodes the annotated frame for /ws/camera.
func (w *Web) sendFrame(s pipeline.State) {
	f, ok := s.Frame.(vision.MatFrame)
	if !ok {
		return
	}
	src := f.Mat()
	if src.Empty() {
		return
	}

	img := src.Clone()
	defer img.Close()
	DrawOverlay(&img, s, f.EyeRegions(), w.arrowScale)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		w.logger.Debug("jpeg encode failed", "error", err)
		return
	}
	defer buf.Close()

	// The hub keeps the slice; copy out of the native buffer
	data := append([]byte(nil), buf.GetBytes()...)
	w.cameraHub.BroadcastBinary(data)
}

// Status returns the latest dashboard status.
func (w *Web) Status() Status {
	w.statusMu.RLock()
	defer w.statusMu.RUnlock()
	return w.status
}

// App exposes the fiber app (used by tests).
func (w *Web) App() *fiber.App {
	return w.app
}

func (w *Web) handleIndex(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(dashboardHTML)
}

// handleStatus returns the latest frame status
func (w *Web) handleStatus(c *fiber.Ctx) error {
	return c.JSON(w.Status())
}

// handleStats returns only the loop counters
func (w *Web) handleStats(c *fiber.Ctx) error {
	return c.JSON(w.Status().Stats)
}

// handleStatusWS streams status updates, starting with the latest one
func (w *Web) handleStatusWS(c *websocket.Conn) {
	if client := hub.NewClient(w.statusHub, c); client != nil {
		client.Serve()
	}
}

// handleCameraWS streams annotated JPEG frames
func (w *Web) handleCameraWS(c *websocket.Conn) {
	if client := hub.NewClient(w.cameraHub, c); client != nil {
		client.Serve()
	}
}

// Close stops the hubs and shuts the server down.
func (w *Web) Close() error {
	w.statusHub.Stop(true)
	w.cameraHub.Stop(true)
	if !w.started.Load() {
		return nil
	}
	return w.app.Shutdown()
}
