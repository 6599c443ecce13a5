package vision

import "fmt"

// Config holds camera and eye-detector settings for the GoCV backend.
type Config struct {
	// Device is a camera index ("0") or a stream URL / file path.
	Device string `json:"device"`

	// Capture settings applied after opening
	Width     int `json:"width"`
	Height    int `json:"height"`
	Framerate int `json:"framerate"`

	// EyeCascadePath is an optional Haar cascade (e.g. haarcascade_eye.xml).
	// Empty means the whole frame is treated as the eye region.
	EyeCascadePath string `json:"eye_cascade_path"`

	// EyeHoldFrames keeps the last eye region for this many frames when the
	// cascade misses, so a closing eye is still measured.
	EyeHoldFrames int `json:"eye_hold_frames"`

	// PupilThreshold is the binary-inverse threshold for the contour fallback.
	PupilThreshold float64 `json:"pupil_threshold"`

	// MinPupilArea rejects contours smaller than this (pixels²).
	MinPupilArea float64 `json:"min_pupil_area"`

	// MaxEyes is how many cascade detections are measured and averaged (1 or 2).
	MaxEyes int `json:"max_eyes"`

	// Reconnect reopens a camera that keeps returning empty reads.
	Reconnect ReconnectConfig `json:"reconnect"`
}

// DefaultConfig returns the settings of a typical 640x480 webcam at 30 FPS.
func DefaultConfig() Config {
	return Config{
		Device:         "0",
		Width:          640,
		Height:         480,
		Framerate:      30,
		EyeCascadePath: "",
		EyeHoldFrames:  15,
		PupilThreshold: 50,
		MinPupilArea:   30,
		MaxEyes:        2,
		Reconnect:      DefaultReconnectConfig(),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("camera device must not be empty")
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("camera size must not be negative, got %dx%d", c.Width, c.Height)
	}
	if c.Framerate < 0 || c.Framerate > 240 {
		return fmt.Errorf("camera framerate must be between 0 and 240, got %d", c.Framerate)
	}
	if c.PupilThreshold < 0 || c.PupilThreshold > 255 {
		return fmt.Errorf("pupil_threshold must be between 0 and 255, got %v", c.PupilThreshold)
	}
	if c.EyeHoldFrames < 0 {
		return fmt.Errorf("eye_hold_frames must not be negative, got %d", c.EyeHoldFrames)
	}
	if c.MaxEyes < 1 || c.MaxEyes > 2 {
		return fmt.Errorf("max_eyes must be 1 or 2, got %d", c.MaxEyes)
	}
	return c.Reconnect.Validate()
}
