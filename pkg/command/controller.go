package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-gazekeys/pkg/clock"
	"github.com/teslashibe/go-gazekeys/pkg/gaze"
)

// DefaultTimeout is how long an armed session stays live.
const DefaultTimeout = 5000 * time.Millisecond

// Session is a snapshot of the command session.
type Session struct {
	ID          string    `json:"id,omitempty"`
	Armed       bool      `json:"armed"`
	ActivatedAt time.Time `json:"activated_at,omitempty"`
}

// Controller holds the command session and gates dispatch on its liveness.
//
// Armed is sticky: it stays true past the timeout until DeactivateCommandMode.
// Liveness is recomputed on every IsCommandModeActive call and never written back.
type Controller struct {
	timeout  time.Duration
	clock    clock.Clock
	injector Injector
	logger   *slog.Logger

	armed       bool
	activatedAt time.Time
	sessionID   string
}

// NewController creates a disarmed controller. A zero timeout uses DefaultTimeout.
func NewController(timeout time.Duration, injector Injector, c clock.Clock, logger *slog.Logger) *Controller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		timeout:  timeout,
		clock:    clock.OrReal(c),
		injector: injector,
		logger:   logger,
	}
}

// ActivateCommandMode arms the session and stamps the activation time.
func (c *Controller) ActivateCommandMode() {
	c.armed = true
	c.activatedAt = c.clock.Now()
	c.sessionID = uuid.New().String()
	c.logger.Info("command mode activated", "session", c.sessionID, "timeout", c.timeout)
}

// DeactivateCommandMode disarms the session unconditionally.
func (c *Controller) DeactivateCommandMode() {
	if c.armed {
		c.logger.Info("command mode deactivated",
			"session", c.sessionID,
			"held", c.clock.Now().Sub(c.activatedAt).Round(time.Millisecond))
	}
	c.armed = false
}

// IsCommandModeActive reports whether the session is armed and younger than the timeout.
func (c *Controller) IsCommandModeActive() bool {
	if !c.armed {
		return false
	}
	return c.clock.Now().Sub(c.activatedAt) < c.timeout
}

// Armed returns the raw armed flag, which ignores the timeout.
func (c *Controller) Armed() bool {
	return c.armed
}

// Session returns a snapshot of the session.
func (c *Controller) Session() Session {
	return Session{
		ID:          c.sessionID,
		Armed:       c.armed,
		ActivatedAt: c.activatedAt,
	}
}

// Remaining returns the time left before the session expires, or 0 when not live.
func (c *Controller) Remaining() time.Duration {
	if !c.IsCommandModeActive() {
		return 0
	}
	return c.timeout - c.clock.Now().Sub(c.activatedAt)
}

// Timeout returns the configured session timeout.
func (c *Controller) Timeout() time.Duration {
	return c.timeout
}

// ExecuteDirectionCommand dispatches one command for v if the session is live.
// It returns the direction sent and whether anything was dispatched.
// Injector failures are logged, not returned.
func (c *Controller) ExecuteDirectionCommand(ctx context.Context, v gaze.Vector) (Direction, bool) {
	if !c.IsCommandModeActive() {
		return 0, false
	}

	dir := DirectionOf(v)
	if c.injector != nil {
		if err := c.injector.SendDirection(ctx, dir); err != nil {
			c.logger.Warn("direction dispatch failed", "direction", dir, "error", err)
		}
	}
	c.logger.Debug("direction dispatched", "direction", dir, "x", v.X, "y", v.Y)
	return dir, true
}
