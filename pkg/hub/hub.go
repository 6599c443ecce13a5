// Package hub fans dashboard updates out to websocket subscribers.
// One goroutine owns the subscriber set; slow subscribers are dropped
// instead of stalling the frame loop.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Kind selects the websocket frame type of a message.
type Kind int

const (
	// Text is a JSON status update
	Text Kind = iota
	// Binary is an encoded camera frame
	Binary
)

// Message is one update queued for every subscriber.
type Message struct {
	Kind Kind
	Data []byte
}

// Option configures a Hub.
type Option func(*Hub)

// WithRetain keeps the last broadcast and hands it to each new subscriber
// first, so a dashboard that connects between frames is not blank.
func WithRetain() Option {
	return func(h *Hub) {
		h.retain = true
	}
}

// Hub owns a set of subscribers. Run must be running for joins and
// broadcasts to be delivered.
type Hub struct {
	name   string
	logger *slog.Logger
	retain bool

	clients map[*Client]struct{}

	queue chan Message
	joins chan *Client
	parts chan *Client

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	count   int
	last    *Message
	dropped uint64
}

// New creates a hub named for its log lines.
func New(name string, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		name:    name,
		logger:  logger.With("hub", name),
		clients: make(map[*Client]struct{}),
		queue:   make(chan Message, 256),
		joins:   make(chan *Client),
		parts:   make(chan *Client),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run delivers joins, parts and broadcasts until Stop. Call it in a goroutine.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			for c := range h.clients {
				h.remove(c)
			}
			return

		case c := <-h.joins:
			h.clients[c] = struct{}{}
			h.mu.Lock()
			if h.last != nil {
				// A fresh buffer always has room for one message
				c.send <- *h.last
			}
			h.count = len(h.clients)
			h.mu.Unlock()
			h.logger.Info("subscriber joined", "subscribers", len(h.clients))

		case c := <-h.parts:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				h.logger.Info("subscriber left", "subscribers", len(h.clients))
			}

		case msg := <-h.queue:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.remove(c)
					h.logger.Warn("dropped slow subscriber", "subscribers", len(h.clients))
				}
			}
		}
	}
}

// remove closes c's queue. Only Run calls it.
func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// Stop ends Run and closes every subscriber. With wait it blocks until Run
// has returned, so Run must have been started.
func (h *Hub) Stop(wait bool) {
	h.stopOnce.Do(func() { close(h.stop) })
	if wait {
		<-h.done
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.joins <- c:
		return true
	case <-h.stop:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.parts <- c:
	case <-h.stop:
	}
}

// Broadcast queues msg for every subscriber. It never blocks; when the queue
// is full the message is counted as dropped.
func (h *Hub) Broadcast(msg Message) {
	if h.retain {
		h.mu.Lock()
		h.last = &msg
		h.mu.Unlock()
	}
	select {
	case h.queue <- msg:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

// BroadcastJSON encodes v and broadcasts it as text.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Message{Kind: Text, Data: data})
	return nil
}

// BroadcastBinary broadcasts data, e.g. a JPEG frame.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(Message{Kind: Binary, Data: data})
}

// ClientCount returns the number of subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dropped returns how many broadcasts were discarded because the queue was full.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
