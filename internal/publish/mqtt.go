package publish

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/logger"
	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	clientIDPrefix       = "SmlTextMqttProcessor"
	maxReconnectDelay    = 120 * time.Second
	initialConnectDelay  = 2 * time.Second
	maxConnectDelay      = 180 * time.Second
	defaultConnectWait   = 10 * time.Second
	defaultPublishWait   = 2 * time.Second
	qosAtMostOnce        = 0
	disconnectQuiesceMil = 250
)

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// ClientID defaults to SmlTextMqttProcessor-<uuid>.
	ClientID string
	// RetryInitial is the first wait between failed connection attempts.
	RetryInitial time.Duration
}

// Broker returns the broker URL.
func (c MQTTConfig) Broker() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// MQTTPublisher publishes over MQTT. Reconnection after a lost connection
// is handled by the client's own network loop.
type MQTTPublisher struct {
	client      mqtt.Client
	cfg         MQTTConfig
	publishWait time.Duration
}

// NewMQTTClientOptions builds the paho options for cfg.
func NewMQTTClientOptions(cfg MQTTConfig) *mqtt.ClientOptions {
	if cfg.ClientID == "" {
		cfg.ClientID = clientIDPrefix + "-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker()).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(defaultConnectWait).
		SetMaxReconnectInterval(maxReconnectDelay).
		SetOnConnectHandler(func(_ mqtt.Client) {
			logger.Info().Str("broker", cfg.Broker()).Msg("MQTT connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn().Err(err).Str("broker", cfg.Broker()).Msg("MQTT unexpected disconnection")
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			logger.Debug().Str("broker", cfg.Broker()).Msg("MQTT reconnecting")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	return opts
}

// NewMQTTPublisher creates a publisher for cfg. Call Connect before publishing.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New().WithData(ErrInvalidBroker, cfg.Broker())
	}
	return NewMQTTPublisherWithClient(mqtt.NewClient(NewMQTTClientOptions(cfg)), cfg), nil
}

// NewMQTTPublisherWithClient wraps an existing client.
func NewMQTTPublisherWithClient(client mqtt.Client, cfg MQTTConfig) *MQTTPublisher {
	return &MQTTPublisher{
		client:      client,
		cfg:         cfg,
		publishWait: defaultPublishWait,
	}
}

// Connect tries to connect until it succeeds or ctx is done, doubling the
// wait between attempts up to three minutes.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialConnectDelay
	if p.cfg.RetryInitial > 0 {
		b.InitialInterval = p.cfg.RetryInitial
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxConnectDelay
	b.MaxElapsedTime = 0

	operation := func() error {
		token := p.client.Connect()
		if !token.WaitTimeout(defaultConnectWait) {
			return fmt.Errorf("connect to %s timed out", p.cfg.Broker())
		}
		return token.Error()
	}
	notify := func(err error, wait time.Duration) {
		logger.Error().Err(err).Str("broker", p.cfg.Broker()).Dur("retry_in", wait).Msg("MQTT connect failed")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return errors.New().Wrap(ErrConnect, err)
	}
	return nil
}

// Publish hands the message to the client's outbound queue. It waits only
// briefly for the client to accept it.
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	if !p.client.IsConnected() {
		if err := p.Connect(ctx); err != nil {
			return err
		}
	}

	token := p.client.Publish(topic, qosAtMostOnce, retain, payload)
	if !token.WaitTimeout(p.publishWait) {
		logger.Debug().Str("topic", topic).Msg("Publish still queued")
		return nil
	}
	if err := token.Error(); err != nil {
		return errors.New().Wrap(ErrPublish, err)
	}
	logger.Debug().Str("topic", topic).Bytes("payload", payload).Bool("retain", retain).Msg("Published")
	return nil
}

func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesceMil)
	}
	return nil
}
