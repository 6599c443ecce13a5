package input

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-gazekeys/pkg/command"
)

// Mock records every direction it is asked to send.
type Mock struct {
	mu     sync.Mutex
	sent   []command.Direction
	err    error
	closed bool
}

// NewMock creates a recording injector.
func NewMock() *Mock {
	return &Mock{}
}

// FailWith makes subsequent sends return err (after recording).
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// SendDirection records d.
func (m *Mock) SendDirection(ctx context.Context, d command.Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, d)
	return m.err
}

// Sent returns a copy of the recorded directions.
func (m *Mock) Sent() []command.Direction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]command.Direction, len(m.sent))
	copy(out, m.sent)
	return out
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Log prints each direction instead of sending it anywhere.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging injector.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// SendDirection logs d.
func (l *Log) SendDirection(ctx context.Context, d command.Direction) error {
	l.logger.Info(d.Arrow()+" direction", "direction", d.String())
	return nil
}

// Close is a no-op.
func (l *Log) Close() error {
	return nil
}
