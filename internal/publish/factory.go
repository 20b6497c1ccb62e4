package publish

import (
	"context"
	"io"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
)

// Publisher kinds selectable in the configuration.
const (
	KindMQTT   = "mqtt"
	KindNATS   = "nats"
	KindStdout = "stdout"
)

// Kinds lists the supported publisher kinds.
var Kinds = []string{KindMQTT, KindNATS, KindStdout}

// Config selects and configures a publisher.
type Config struct {
	Kind string
	MQTT MQTTConfig
	NATS NATSConfig
	// Out receives stdout publisher output.
	Out io.Writer
}

// Open creates the configured publisher and connects it.
func Open(ctx context.Context, cfg Config) (Publisher, error) {
	switch cfg.Kind {
	case KindMQTT, "":
		p, err := NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			return nil, err
		}
		if err := p.Connect(ctx); err != nil {
			return nil, err
		}
		return p, nil
	case KindNATS:
		return NewNATSPublisher(cfg.NATS)
	case KindStdout:
		return NewWriterPublisher(cfg.Out), nil
	default:
		return nil, errors.New().WithData(ErrUnknownKind, cfg.Kind)
	}
}
