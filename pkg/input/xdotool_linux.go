//go:build linux

package input

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/command"
)

// Xdotool presses arrow keys on the X11 display through the xdotool binary.
// Each press is a subprocess, so presses run on a queue behind SendDirection.
type Xdotool struct {
	path    string
	display string
	holdMS  int64
	logger  *slog.Logger
	queue   *keyQueue
}

func newXdotool(cfg Config, logger *slog.Logger) (command.Injector, error) {
	path, err := exec.LookPath("xdotool")
	if err != nil {
		return nil, fmt.Errorf("xdotool not found in PATH: %w", err)
	}
	display := cfg.Display
	if display == "" {
		display = os.Getenv("DISPLAY")
	}
	if display == "" {
		return nil, fmt.Errorf("no X display: set DISPLAY or input.display")
	}
	logger.Info("xdotool injector ready", "path", path, "display", display)
	x := &Xdotool{
		path:    path,
		display: display,
		holdMS:  cfg.KeyHold.Milliseconds(),
		logger:  logger,
	}
	x.queue = newKeyQueue(x.press, keyQueueSize, keyPressTimeout+cfg.KeyHold, logger)
	return x, nil
}

// SendDirection queues the press and returns without waiting for xdotool.
func (x *Xdotool) SendDirection(ctx context.Context, d command.Direction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return x.queue.enqueue(d)
}

// press runs `xdotool key --delay <hold> <Arrow>`.
func (x *Xdotool) press(ctx context.Context, d command.Direction) error {
	cmd := exec.CommandContext(ctx, x.path, "key", "--delay", strconv.FormatInt(x.holdMS, 10), d.KeySym())
	cmd.Env = append(os.Environ(), "DISPLAY="+x.display)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("xdotool key %s: %w: %s", d.KeySym(), err, out)
	}
	return nil
}

// Close lets queued presses finish, waiting at most a few seconds.
func (x *Xdotool) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	x.queue.close(ctx)
	sent, failed, dropped := x.queue.stats()
	x.logger.Info("xdotool injector closed", "sent", sent, "failed", failed, "dropped", dropped)
	return nil
}
