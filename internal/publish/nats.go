package publish

import (
	"context"
	"strings"
	"time"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/logger"
	"github.com/nats-io/nats.go"
)

const natsReconnectWait = 2 * time.Second

// NATSConfig describes the NATS connection.
type NATSConfig struct {
	URL  string
	Name string
}

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes to NATS subjects. Topic separators become
// subject tokens: tele/smartmeter/total/value → tele.smartmeter.total.value.
// NATS has no retained messages; the retain flag is ignored.
type NATSPublisher struct {
	conn natsConn
}

func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New().WithMessage(ErrInvalidBroker, "empty NATS URL")
	}
	if cfg.Name == "" {
		cfg.Name = clientIDPrefix
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, errors.New().Wrap(ErrConnect, err)
	}

	logger.Info().Str("url", conn.ConnectedUrl()).Msg("NATS connected")
	return &NATSPublisher{conn: conn}, nil
}

// Subject converts a slash separated topic into a NATS subject.
func Subject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func (p *NATSPublisher) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	subject := Subject(topic)
	if retain {
		logger.Debug().Str("subject", subject).Msg("NATS has no retained messages, publishing plainly")
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return errors.New().Wrap(ErrPublish, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return errors.New().Wrap(ErrClose, err)
	}
	return nil
}
