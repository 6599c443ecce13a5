//go:build !linux

package input

import (
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-gazekeys/pkg/command"
)

func newXdotool(cfg Config, logger *slog.Logger) (command.Injector, error) {
	return nil, fmt.Errorf("xdotool backend is only available on linux")
}
