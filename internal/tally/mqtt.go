package tally

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Publisher is the part of an MQTT client the tally module uses.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	IsConnected() bool
	Close()
}

// Dialer opens a Publisher for the given config.
type Dialer func(cfg Config, logger *zap.Logger) (Publisher, error)

type pahoPublisher struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
}

// DialMQTT connects to cfg.Broker with the paho client. The client
// reconnects on its own after the initial connection succeeds.
func DialMQTT(cfg Config, logger *zap.Logger) (Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(cfg.Timeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("connected to mqtt broker", zap.String("broker", cfg.Broker))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out after %s", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}
	return &pahoPublisher{client: client, qos: cfg.QoS, timeout: cfg.Timeout}, nil
}

func (p *pahoPublisher) Publish(topic string, payload []byte, retained bool) error {
	token := p.client.Publish(topic, p.qos, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

func (p *pahoPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

func (p *pahoPublisher) Close() {
	p.client.Disconnect(250)
}
