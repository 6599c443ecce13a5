package input

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/teslashibe/go-gazekeys/pkg/command"
)

// publisher is the subset of mqtt.Client the injector needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// DirectionMessage is the JSON payload published for each direction.
type DirectionMessage struct {
	Direction string    `json:"direction"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

// ackTimeout bounds how long a publish may stay unacknowledged before it is
// counted as failed.
const ackTimeout = 10 * time.Second

// MQTT publishes directions to a broker topic so a remote host can press the keys.
// SendDirection never waits for the broker; acks are checked in the background.
type MQTT struct {
	cfg        MQTTConfig
	client     publisher
	logger     *slog.Logger
	ackTimeout time.Duration

	mu        sync.Mutex
	published uint64
	errors    uint64
	closed    bool

	stop    chan struct{}
	pending sync.WaitGroup
}

// NewMQTT connects to the broker and returns an injector publishing to cfg.Topic.
func NewMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTT, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gazekeys-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", cfg.Broker)
	}

	client := mqtt.NewClient(opts)
	logger.Info("connecting to mqtt broker", "broker", cfg.Broker)

	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout: %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return newMQTTWithClient(cfg, client, logger), nil
}

func newMQTTWithClient(cfg MQTTConfig, client publisher, logger *slog.Logger) *MQTT {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTT{
		cfg:        cfg,
		client:     client,
		logger:     logger,
		ackTimeout: ackTimeout,
		stop:       make(chan struct{}),
	}
}

// SendDirection queues d for publishing and returns at once. A publish that
// fails or is not acknowledged within the ack timeout is logged and counted.
func (m *MQTT) SendDirection(ctx context.Context, d command.Direction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(DirectionMessage{
		Direction: d.String(),
		Key:       d.KeySym(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal direction: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("mqtt injector closed")
	}
	m.pending.Add(1)
	m.mu.Unlock()

	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, false, payload)
	go m.awaitAck(token, d)
	return nil
}

// awaitAck waits for the broker off the frame loop.
func (m *MQTT) awaitAck(token mqtt.Token, d command.Direction) {
	defer m.pending.Done()

	timer := time.NewTimer(m.ackTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			m.countError()
			m.logger.Warn("direction publish failed", "direction", d.String(), "error", err)
			return
		}
		m.mu.Lock()
		m.published++
		m.mu.Unlock()
		m.logger.Debug("direction published", "topic", m.cfg.Topic, "direction", d.String(), "qos", m.cfg.QoS)
	case <-timer.C:
		m.countError()
		m.logger.Warn("direction publish not acknowledged", "direction", d.String(), "timeout", m.ackTimeout)
	case <-m.stop:
	}
}

func (m *MQTT) countError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

// Stats returns how many directions were published and how many failed.
func (m *MQTT) Stats() (published, errors uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.errors
}

// Close abandons outstanding acks and disconnects from the broker.
func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	m.pending.Wait()
	m.client.Disconnect(250)

	published, errs := m.Stats()
	m.logger.Info("mqtt injector closed", "published", published, "errors", errs)
	return nil
}
