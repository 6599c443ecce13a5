package input

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/teslashibe/go-gazekeys/pkg/command"
)

// New creates an injector with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func New(cfg Config, logger *slog.Logger) (command.Injector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}

	logger.Info("creating input injector", "backend", backend)

	switch backend {
	case BackendMock:
		return NewMock(), nil
	case BackendLog:
		return NewLog(logger), nil
	case BackendXdotool:
		return newXdotool(cfg, logger)
	case BackendMQTT:
		return NewMQTT(cfg.MQTT, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns the best available backend for the current platform.
func detectBestBackend() Backend {
	if runtime.GOOS == "linux" {
		return BackendXdotool
	}
	return BackendLog
}

// AvailableBackends returns the list of backends available on this platform.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock, BackendLog, BackendMQTT}
	if runtime.GOOS == "linux" {
		backends = append(backends, BackendXdotool)
	}
	return backends
}
