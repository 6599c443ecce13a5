// Package config loads gazekeys settings from defaults, a YAML file and
// GAZEKEYS_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/go-gazekeys/pkg/blink"
	"github.com/teslashibe/go-gazekeys/pkg/calibration"
	"github.com/teslashibe/go-gazekeys/pkg/command"
	"github.com/teslashibe/go-gazekeys/pkg/gaze"
	"github.com/teslashibe/go-gazekeys/pkg/input"
	"github.com/teslashibe/go-gazekeys/pkg/pipeline"
	"github.com/teslashibe/go-gazekeys/pkg/render"
	"github.com/teslashibe/go-gazekeys/pkg/vision"
)

// EnvPrefix prefixes every environment override, e.g. GAZEKEYS_COMMAND_TIMEOUT_MS.
const EnvPrefix = "GAZEKEYS"

// Config holds the settings of every component.
type Config struct {
	Blink          blink.Config
	Gaze           gaze.Config
	CommandTimeout time.Duration
	Pipeline       pipeline.Config
	Camera         vision.Config
	Input          input.Config
	Render         render.Config

	CalibrationPath string

	LogLevel    string
	Debug       bool
	DebugFrames bool
}

// New returns a viper instance with every default registered, reading path
// (or $GAZEKEYS_CONFIG, or ~/.gazekeys/config.yaml when present).
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".gazekeys"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit path must exist; the default location is optional
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	b := blink.DefaultConfig()
	v.SetDefault("blink.ear_threshold", b.EARThreshold)
	v.SetDefault("blink.consecutive_frames", b.ConsecutiveFrames)
	v.SetDefault("blink.min_interval_ms", b.MinInterval.Milliseconds())
	v.SetDefault("blink.max_interval_ms", b.MaxInterval.Milliseconds())
	v.SetDefault("blink.history_window_ms", b.HistoryWindow.Milliseconds())
	v.SetDefault("blink.max_history", b.MaxHistory)

	g := gaze.DefaultConfig()
	v.SetDefault("gaze.movement_threshold", g.MovementThreshold)
	v.SetDefault("gaze.deadzone_radius", g.DeadzoneRadius)

	v.SetDefault("command.timeout_ms", command.DefaultTimeout.Milliseconds())

	p := pipeline.DefaultConfig()
	v.SetDefault("pipeline.dispatch_magnitude_gate", p.DispatchMagnitudeGate)
	v.SetDefault("pipeline.dispatch_cooldown_ms", p.DispatchCooldown.Milliseconds())
	v.SetDefault("pipeline.sustain_frames", p.SustainFrames)
	v.SetDefault("pipeline.reset_blink_on_toggle", p.ResetBlinkOnToggle)
	v.SetDefault("pipeline.save_calibration_on_exit", p.SaveCalibrationOnExit)

	c := vision.DefaultConfig()
	v.SetDefault("camera.device", c.Device)
	v.SetDefault("camera.width", c.Width)
	v.SetDefault("camera.height", c.Height)
	v.SetDefault("camera.fps", c.Framerate)
	v.SetDefault("camera.reopen_after_empty", c.Reconnect.EmptyFrames)
	v.SetDefault("camera.reconnect_retries", c.Reconnect.MaxRetries)
	v.SetDefault("camera.reconnect_delay_ms", c.Reconnect.RetryDelay.Milliseconds())
	v.SetDefault("camera.reconnect_max_delay_ms", c.Reconnect.MaxRetryDelay.Milliseconds())
	v.SetDefault("vision.eye_cascade", c.EyeCascadePath)
	v.SetDefault("vision.eye_hold_frames", c.EyeHoldFrames)
	v.SetDefault("vision.pupil_threshold", c.PupilThreshold)
	v.SetDefault("vision.min_pupil_area", c.MinPupilArea)
	v.SetDefault("vision.max_eyes", c.MaxEyes)

	in := input.DefaultConfig()
	v.SetDefault("input.backend", string(in.Backend))
	v.SetDefault("input.key_hold_ms", in.KeyHold.Milliseconds())
	v.SetDefault("input.display", in.Display)
	v.SetDefault("input.mqtt.broker", in.MQTT.Broker)
	v.SetDefault("input.mqtt.client_id", in.MQTT.ClientID)
	v.SetDefault("input.mqtt.topic", in.MQTT.Topic)
	v.SetDefault("input.mqtt.username", in.MQTT.Username)
	v.SetDefault("input.mqtt.password", in.MQTT.Password)
	v.SetDefault("input.mqtt.qos", int(in.MQTT.QoS))

	r := render.DefaultConfig()
	v.SetDefault("render.backend", "none")
	v.SetDefault("render.web_port", r.WebPort)
	v.SetDefault("render.log_interval_ms", r.LogInterval.Milliseconds())
	v.SetDefault("render.window_name", r.WindowName)
	v.SetDefault("render.arrow_scale", r.ArrowScale)
	v.SetDefault("render.camera_every", r.CameraEvery)

	v.SetDefault("calibration.path", "")
	v.SetDefault("calibration.name", p.CalibrationName)

	v.SetDefault("log.level", "info")
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.frames", false)
}

func ms(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Millisecond
}

// backendList accepts a YAML list or a comma/space separated string.
func backendList(v *viper.Viper, key string) []render.Backend {
	var out []render.Backend
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, render.Backend(strings.ToLower(part)))
		}
	}
	return out
}

// FromViper builds a Config from v. It does not validate.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Blink: blink.Config{
			EARThreshold:      v.GetFloat64("blink.ear_threshold"),
			ConsecutiveFrames: v.GetInt("blink.consecutive_frames"),
			MinInterval:       ms(v, "blink.min_interval_ms"),
			MaxInterval:       ms(v, "blink.max_interval_ms"),
			HistoryWindow:     ms(v, "blink.history_window_ms"),
			MaxHistory:        v.GetInt("blink.max_history"),
		},
		Gaze: gaze.Config{
			MovementThreshold: v.GetFloat64("gaze.movement_threshold"),
			DeadzoneRadius:    v.GetFloat64("gaze.deadzone_radius"),
		},
		CommandTimeout: ms(v, "command.timeout_ms"),
		Pipeline: pipeline.Config{
			DispatchMagnitudeGate: v.GetFloat64("pipeline.dispatch_magnitude_gate"),
			DispatchCooldown:      ms(v, "pipeline.dispatch_cooldown_ms"),
			SustainFrames:         v.GetInt("pipeline.sustain_frames"),
			ResetBlinkOnToggle:    v.GetBool("pipeline.reset_blink_on_toggle"),
			CalibrationName:       v.GetString("calibration.name"),
			SaveCalibrationOnExit: v.GetBool("pipeline.save_calibration_on_exit"),
		},
		Camera: vision.Config{
			Device:         v.GetString("camera.device"),
			Width:          v.GetInt("camera.width"),
			Height:         v.GetInt("camera.height"),
			Framerate:      v.GetInt("camera.fps"),
			EyeCascadePath: v.GetString("vision.eye_cascade"),
			EyeHoldFrames:  v.GetInt("vision.eye_hold_frames"),
			PupilThreshold: v.GetFloat64("vision.pupil_threshold"),
			MinPupilArea:   v.GetFloat64("vision.min_pupil_area"),
			MaxEyes:        v.GetInt("vision.max_eyes"),
			Reconnect: vision.ReconnectConfig{
				EmptyFrames:   v.GetInt("camera.reopen_after_empty"),
				MaxRetries:    v.GetInt("camera.reconnect_retries"),
				RetryDelay:    ms(v, "camera.reconnect_delay_ms"),
				MaxRetryDelay: ms(v, "camera.reconnect_max_delay_ms"),
			},
		},
		Input: input.Config{
			Backend: input.Backend(strings.ToLower(v.GetString("input.backend"))),
			KeyHold: ms(v, "input.key_hold_ms"),
			Display: v.GetString("input.display"),
			MQTT: input.MQTTConfig{
				Broker:   v.GetString("input.mqtt.broker"),
				ClientID: v.GetString("input.mqtt.client_id"),
				Topic:    v.GetString("input.mqtt.topic"),
				Username: v.GetString("input.mqtt.username"),
				Password: v.GetString("input.mqtt.password"),
			},
		},
		Render: render.Config{
			Backends:    backendList(v, "render.backend"),
			LogInterval: ms(v, "render.log_interval_ms"),
			WindowName:  v.GetString("render.window_name"),
			ArrowScale:  v.GetFloat64("render.arrow_scale"),
			WebPort:     v.GetString("render.web_port"),
			CameraEvery: v.GetInt("render.camera_every"),
		},
		CalibrationPath: v.GetString("calibration.path"),
		LogLevel:        strings.ToLower(v.GetString("log.level")),
		Debug:           v.GetBool("debug.enabled"),
		DebugFrames:     v.GetBool("debug.frames"),
	}

	qos := v.GetInt("input.mqtt.qos")
	if qos < 0 || qos > 2 {
		return Config{}, fmt.Errorf("input.mqtt.qos must be 0, 1 or 2, got %d", qos)
	}
	cfg.Input.MQTT.QoS = byte(qos)

	if cfg.CalibrationPath == "" {
		path, err := calibration.DefaultPath()
		if err != nil {
			return Config{}, err
		}
		cfg.CalibrationPath = path
	}
	return cfg, nil
}

// Load reads and validates the configuration. Warnings (such as a movement
// gate wider than the deadzone) are returned separately and are not fatal.
func Load(path string) (Config, []error, error) {
	v, err := New(path)
	if err != nil {
		return Config{}, nil, err
	}
	return Parse(v)
}

// Parse builds and validates a Config from an already populated viper
// instance, e.g. one with command-line flags bound.
func Parse(v *viper.Viper) (Config, []error, error) {
	cfg, err := FromViper(v)
	if err != nil {
		return Config{}, nil, err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return Config{}, warnings, err
	}
	return cfg, warnings, nil
}

// Validate checks every section and joins the problems. ErrGateOrder is
// reported as a warning instead.
func (c *Config) Validate() (warnings []error, err error) {
	var errs []error

	if e := c.Blink.Validate(); e != nil {
		errs = append(errs, fmt.Errorf("blink: %w", e))
	}
	if e := c.Gaze.Validate(); e != nil {
		if errors.Is(e, gaze.ErrGateOrder) {
			warnings = append(warnings, fmt.Errorf("gaze: %w", e))
		} else {
			errs = append(errs, fmt.Errorf("gaze: %w", e))
		}
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("command: timeout_ms must be positive, got %v", c.CommandTimeout))
	}
	if e := c.Pipeline.Validate(); e != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", e))
	}
	if e := c.Camera.Validate(); e != nil {
		errs = append(errs, fmt.Errorf("camera: %w", e))
	}
	if e := c.Input.Validate(); e != nil {
		errs = append(errs, fmt.Errorf("input: %w", e))
	}
	if e := c.Render.Validate(); e != nil {
		errs = append(errs, fmt.Errorf("render: %w", e))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log: unknown level %q", c.LogLevel))
	}

	return warnings, errors.Join(errs...)
}
