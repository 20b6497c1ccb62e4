package publish

import (
	"context"
	"encoding/json"
	"strings"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/logger"
	"codeberg.org/mutker/smlmqttprocessor/internal/reduce"
	"codeberg.org/mutker/smlmqttprocessor/internal/sml"
)

// DefaultTopicPrefix is the root of the published topic tree.
const DefaultTopicPrefix = "tele/smartmeter"

// Options control the shape of published messages.
type Options struct {
	TopicPrefix string
	// SingleTopic publishes everything as one JSON document on TopicPrefix.
	SingleTopic bool
	// Retain enables the retain flag: on the JSON document in single-topic
	// mode, otherwise on the value topic of counters and the time field.
	Retain  bool
	Catalog sml.Catalog
}

// Adapter maps statistics onto topics and payloads.
type Adapter struct {
	pub  Publisher
	opts Options
}

func NewAdapter(pub Publisher, opts Options) *Adapter {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultTopicPrefix
	}
	opts.TopicPrefix = strings.TrimRight(opts.TopicPrefix, "/")
	if opts.Catalog == nil {
		opts.Catalog = sml.DefaultCatalog
	}
	return &Adapter{pub: pub, opts: opts}
}

// Send publishes stats.
func (a *Adapter) Send(ctx context.Context, stats reduce.Statistics) error {
	if a.opts.SingleTopic {
		return a.sendSingle(ctx, stats)
	}
	return a.sendMulti(ctx, stats)
}

func (a *Adapter) sendSingle(ctx context.Context, stats reduce.Statistics) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return errors.New().Wrap(ErrEncode, err)
	}
	return a.pub.Publish(ctx, a.opts.TopicPrefix, payload, a.opts.Retain)
}

func (a *Adapter) sendMulti(ctx context.Context, stats reduce.Statistics) error {
	var errs []error
	for _, field := range stats.Fields() {
		fs := stats[field]
		for _, name := range reduce.StatOrder {
			v, ok := fs[name]
			if !ok {
				continue
			}
			topic := a.Topic(field, name)
			if err := a.pub.Publish(ctx, topic, []byte(v.String()), a.retain(field, name)); err != nil {
				logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish")
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Topic returns the topic of one statistic, e.g. tele/smartmeter/time/value.
func (a *Adapter) Topic(field, stat string) string {
	return a.opts.TopicPrefix + "/" + field + "/" + stat
}

func (a *Adapter) retain(field, stat string) bool {
	if !a.opts.Retain || stat != reduce.StatValue {
		return false
	}
	return field == sml.TimeField || a.opts.Catalog.IsCumulative(field)
}
