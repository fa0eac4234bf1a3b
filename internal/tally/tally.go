// Package tally mirrors switcher status and program input onto an MQTT
// broker as retained messages, for tally lights and other subscribers.
package tally

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HerbHall/switchbridge/internal/switcher"
	"github.com/HerbHall/switchbridge/pkg/models"
	"github.com/HerbHall/switchbridge/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

const queueSize = 256

// Config holds the settings read from plugins.tally.
type Config struct {
	// Broker is the MQTT broker URL, e.g. tcp://localhost:1883. Empty
	// disables publishing.
	Broker   string        `mapstructure:"broker"`
	ClientID string        `mapstructure:"client_id"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Prefix   string        `mapstructure:"topic_prefix"`
	QoS      byte          `mapstructure:"qos"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the tally defaults.
func DefaultConfig() Config {
	return Config{
		ClientID: "switchbridge",
		Prefix:   "switchbridge",
		QoS:      1,
		Timeout:  5 * time.Second,
	}
}

type message struct {
	topic   string
	payload []byte
}

// Module implements the tally plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	bus    plugin.EventBus
	dial   Dialer

	published *prometheus.CounterVec

	pub    Publisher
	unsubs []func()
	wg     sync.WaitGroup

	// mu guards queue against handlers still running after unsubscribe.
	mu    sync.RWMutex
	queue chan message
}

// New creates a new tally plugin instance.
func New() *Module {
	return &Module{dial: DialMQTT}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "tally",
		Version:     "0.1.0",
		Description: "Publishes switcher status and program input to MQTT",
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus
	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("tally: read config: %w", err)
		}
	}
	if m.cfg.QoS > 2 {
		return fmt.Errorf("tally: qos must be 0, 1 or 2, got %d", m.cfg.QoS)
	}
	if m.cfg.Broker != "" && m.bus == nil {
		return errors.New("tally: event bus required")
	}

	m.published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "switchbridge",
		Subsystem: "tally",
		Name:      "messages_total",
		Help:      "MQTT messages by outcome.",
	}, []string{"outcome"})
	if deps.Metrics != nil {
		if err := deps.Metrics.Register(m.published); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return fmt.Errorf("tally: register metrics: %w", err)
			}
			m.published = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	if m.cfg.Broker == "" {
		m.logger.Info("tally publishing disabled, no broker configured")
		return nil
	}
	m.logger.Info("tally module initialized",
		zap.String("broker", m.cfg.Broker),
		zap.String("prefix", m.cfg.Prefix),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.cfg.Broker == "" {
		return nil
	}
	pub, err := m.dial(m.cfg, m.logger)
	if err != nil {
		return fmt.Errorf("tally: %w", err)
	}
	m.pub = pub
	queue := make(chan message, queueSize)
	m.mu.Lock()
	m.queue = queue
	m.mu.Unlock()

	m.wg.Add(1)
	go m.worker(queue)

	m.unsubs = append(m.unsubs,
		m.bus.Subscribe(switcher.TopicStatus, m.handleEvent),
		m.bus.Subscribe(switcher.TopicProgramInput, m.handleEvent),
	)
	m.logger.Info("tally module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.pub == nil {
		return nil
	}
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil

	m.mu.Lock()
	close(m.queue)
	m.queue = nil
	m.mu.Unlock()

	m.wg.Wait()
	m.pub.Close()
	m.pub = nil
	m.logger.Info("tally module stopped")
	return nil
}

// Health reports the broker connection.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	switch {
	case m.cfg.Broker == "":
		return plugin.HealthStatus{Status: "healthy", Message: "disabled"}
	case m.pub == nil || !m.pub.IsConnected():
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "not connected to broker",
			Details: map[string]string{"broker": m.cfg.Broker},
		}
	default:
		return plugin.HealthStatus{Status: "healthy", Details: map[string]string{"broker": m.cfg.Broker}}
	}
}

// handleEvent runs on the publisher's goroutine, so it only queues.
func (m *Module) handleEvent(_ context.Context, ev plugin.Event) {
	msg, ok := ev.Payload.(models.StreamMessage)
	if !ok {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		m.logger.Warn("encode tally message", zap.Error(err))
		return
	}
	topic := m.cfg.Prefix + "/status"
	if msg.IsProgramInput() {
		topic = m.cfg.Prefix + "/program"
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.queue == nil {
		return
	}
	select {
	case m.queue <- message{topic: topic, payload: payload}:
	default:
		m.published.WithLabelValues("dropped").Inc()
		m.logger.Warn("tally queue full, dropping message", zap.String("topic", topic))
	}
}

func (m *Module) worker(queue <-chan message) {
	defer m.wg.Done()
	for msg := range queue {
		if err := m.pub.Publish(msg.topic, msg.payload, true); err != nil {
			m.published.WithLabelValues("failed").Inc()
			m.logger.Warn("mqtt publish failed", zap.String("topic", msg.topic), zap.Error(err))
			continue
		}
		m.published.WithLabelValues("sent").Inc()
	}
}
