package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-gazekeys/pkg/command"
)

// ErrQueueFull is returned when presses arrive faster than the backend runs them.
var ErrQueueFull = errors.New("key queue full")

const (
	keyQueueSize    = 8
	keyPressTimeout = 2 * time.Second
)

// keyQueue runs slow key presses on one worker so the frame loop never waits
// on a subprocess. Presses keep their order; overflow is dropped.
type keyQueue struct {
	press   func(ctx context.Context, d command.Direction) error
	timeout time.Duration
	logger  *slog.Logger

	keys   chan command.Direction
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	sent    uint64
	failed  uint64
	dropped uint64
}

func newKeyQueue(press func(context.Context, command.Direction) error, size int, timeout time.Duration, logger *slog.Logger) *keyQueue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &keyQueue{
		press:   press,
		timeout: timeout,
		logger:  logger,
		keys:    make(chan command.Direction, size),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go q.run()
	return q
}

// enqueue never blocks.
func (q *keyQueue) enqueue(d command.Direction) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("key queue closed")
	}
	select {
	case q.keys <- d:
		return nil
	default:
		q.dropped++
		return fmt.Errorf("%w: dropped %s", ErrQueueFull, d)
	}
}

func (q *keyQueue) run() {
	defer close(q.done)
	for d := range q.keys {
		ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
		err := q.press(ctx, d)
		cancel()

		q.mu.Lock()
		if err != nil {
			q.failed++
		} else {
			q.sent++
		}
		q.mu.Unlock()

		if err != nil {
			q.logger.Warn("key press failed", "direction", d.String(), "error", err)
		}
	}
}

func (q *keyQueue) stats() (sent, failed, dropped uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sent, q.failed, q.dropped
}

// close presses what is already queued, then stops the worker. A press still
// running when ctx ends is killed.
func (q *keyQueue) close(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.keys)
	q.mu.Unlock()

	select {
	case <-q.done:
	case <-ctx.Done():
		q.cancel()
		<-q.done
	}
	q.cancel()
}
