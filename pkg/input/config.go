// Package input provides the injectors that turn directions into key presses.
//
// This package supports multiple backends:
//   - xdotool (Linux/X11) - synthetic arrow keys via the xdotool binary
//   - MQTT - publishes directions to a broker for a remote consumer
//   - Log - prints directions, useful for dry runs
//   - Mock - records directions for tests
//
// The backend is selected at composition time via configuration; consumers only
// see the command.Injector interface.
package input

import (
	"fmt"
	"time"
)

// Backend represents the injector backend type.
type Backend string

const (
	// BackendAuto selects xdotool on Linux and log elsewhere.
	BackendAuto Backend = "auto"
	// BackendXdotool sends X11 key events through xdotool.
	BackendXdotool Backend = "xdotool"
	// BackendMQTT publishes directions to an MQTT broker.
	BackendMQTT Backend = "mqtt"
	// BackendLog only logs directions.
	BackendLog Backend = "log"
	// BackendMock records directions in memory.
	BackendMock Backend = "mock"
)

// MQTTConfig holds broker settings for the MQTT backend.
type MQTTConfig struct {
	Broker   string `json:"broker"`    // e.g. tcp://localhost:1883
	ClientID string `json:"client_id"` // empty: generated
	Topic    string `json:"topic"`     // directions are published here
	Username string `json:"username"`
	Password string `json:"password"`
	QoS      byte   `json:"qos"`
}

// Config holds injector configuration.
type Config struct {
	// Backend specifies which injector to use.
	// Default: "auto"
	Backend Backend `json:"backend"`

	// KeyHold is how long a key stays pressed (xdotool --delay).
	// Default: 50ms
	KeyHold time.Duration `json:"key_hold"`

	// Display overrides $DISPLAY for xdotool.
	Display string `json:"display"`

	MQTT MQTTConfig `json:"mqtt"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend: BackendAuto,
		KeyHold: 50 * time.Millisecond,
		MQTT: MQTTConfig{
			Broker: "tcp://localhost:1883",
			Topic:  "gazekeys/direction",
			QoS:    1,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendXdotool, BackendLog, BackendMock:
	case BackendMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker must be set for the mqtt backend")
		}
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt topic must be set for the mqtt backend")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	default:
		return fmt.Errorf("unknown input backend: %q", c.Backend)
	}
	if c.KeyHold < 0 {
		return fmt.Errorf("key_hold must not be negative, got %v", c.KeyHold)
	}
	return nil
}
