package vision

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReconnectConfig controls when a camera that stopped delivering frames is
// reopened and how hard the backend tries before giving up.
type ReconnectConfig struct {
	EmptyFrames   int           // Consecutive failed reads before reopening (default: 30)
	MaxRetries    int           // Reopen attempts before the source is declared gone (default: 5)
	RetryDelay    time.Duration // Delay before the first attempt (default: 1 second)
	MaxRetryDelay time.Duration // Backoff cap (default: 30 seconds)
}

// DefaultReconnectConfig reopens after about a second of empty reads at 30 FPS.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		EmptyFrames:   30,
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// Validate checks that the reconnect settings are usable.
func (c *ReconnectConfig) Validate() error {
	if c.EmptyFrames < 1 {
		return fmt.Errorf("reopen_after_empty must be at least 1, got %d", c.EmptyFrames)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("reconnect_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("reconnect_delay must be positive, got %v", c.RetryDelay)
	}
	if c.MaxRetryDelay < c.RetryDelay {
		return fmt.Errorf("reconnect_max_delay (%v) must not be below reconnect_delay (%v)", c.MaxRetryDelay, c.RetryDelay)
	}
	return nil
}

// reconnector counts consecutive empty reads and drives the reopen backoff.
// It is not safe for concurrent use; the backend serializes reads.
type reconnector struct {
	cfg    ReconnectConfig
	logger *slog.Logger

	empties    int
	reconnects uint64

	// sleep waits d or until ctx is done
	sleep func(ctx context.Context, d time.Duration) error
}

func newReconnector(cfg ReconnectConfig, logger *slog.Logger) *reconnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &reconnector{cfg: cfg, logger: logger, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// miss records a failed read and reports whether the source should be reopened.
func (r *reconnector) miss() bool {
	r.empties++
	return r.empties >= r.cfg.EmptyFrames
}

// hit records a good read.
func (r *reconnector) hit() {
	r.empties = 0
}

// reopen calls open with exponential backoff until it succeeds, ctx is done,
// or MaxRetries attempts have failed. The last case wraps ErrSourceUnavailable.
func (r *reconnector) reopen(ctx context.Context, open func() error) error {
	if r.cfg.MaxRetries == 0 {
		return fmt.Errorf("%w: no frames for %d reads", ErrSourceUnavailable, r.empties)
	}
	r.logger.Warn("camera stopped delivering frames, reopening", "empty_reads", r.empties)

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		delay := calculateBackoff(attempt, r.cfg)
		r.logger.Info("camera reopen scheduled",
			"attempt", attempt,
			"max_retries", r.cfg.MaxRetries,
			"delay", delay,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}

		if lastErr = open(); lastErr == nil {
			r.empties = 0
			r.reconnects++
			r.logger.Info("camera reopened", "attempt", attempt, "reconnects", r.reconnects)
			return nil
		}
		r.logger.Error("camera reopen failed", "attempt", attempt, "error", lastErr)
	}
	return fmt.Errorf("%w: gave up after %d reopen attempts: %v", ErrSourceUnavailable, r.cfg.MaxRetries, lastErr)
}

// calculateBackoff returns RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		return cfg.MaxRetryDelay
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay || delay <= 0 {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
