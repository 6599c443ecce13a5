// Package render shows what the frame loop sees: a log line, a terminal
// status bar, an OpenCV preview window or a web dashboard.
package render

import (
	"fmt"
	"time"
)

// Backend is a renderer kind.
type Backend string

const (
	BackendNone     Backend = "none"
	BackendLog      Backend = "log"
	BackendTerminal Backend = "terminal"
	BackendWindow   Backend = "window"
	BackendWeb      Backend = "web"
)

// AllBackends lists every renderer kind.
func AllBackends() []Backend {
	return []Backend{BackendNone, BackendLog, BackendTerminal, BackendWindow, BackendWeb}
}

// Config holds renderer configuration.
type Config struct {
	// Backends to run side by side. Empty means none.
	Backends []Backend `json:"backends"`

	// LogInterval is how often the log renderer prints a stats line.
	LogInterval time.Duration `json:"log_interval"`

	// WindowName is the OpenCV window title.
	WindowName string `json:"window_name"`

	// ArrowScale multiplies the gaze vector into pixels for the overlay arrow.
	ArrowScale float64 `json:"arrow_scale"`

	// WebPort is the dashboard listen port.
	WebPort string `json:"web_port"`

	// CameraEvery streams every Nth frame as JPEG to /ws/camera (0 disables).
	CameraEvery int `json:"camera_every"`
}

// DefaultConfig returns a Config that renders nothing.
func DefaultConfig() Config {
	return Config{
		Backends:    []Backend{BackendNone},
		LogInterval: time.Second,
		WindowName:  "gazekeys",
		ArrowScale:  50,
		WebPort:     "8080",
		CameraEvery: 3,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	for _, b := range c.Backends {
		switch b {
		case BackendNone, BackendLog, BackendTerminal, BackendWindow:
		case BackendWeb:
			if c.WebPort == "" {
				return fmt.Errorf("web_port must be set for the web renderer")
			}
		default:
			return fmt.Errorf("unknown render backend: %q", b)
		}
	}
	if c.LogInterval < 0 {
		return fmt.Errorf("log_interval must not be negative, got %v", c.LogInterval)
	}
	if c.CameraEvery < 0 {
		return fmt.Errorf("camera_every must not be negative, got %d", c.CameraEvery)
	}
	return nil
}
