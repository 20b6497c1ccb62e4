// Package energy derives daily consumption from the published meter total:
// today so far (d0) and all of yesterday (d1).
package energy

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/logger"
	"codeberg.org/mutker/smlmqttprocessor/internal/publish"
)

// Topics the monitor listens and publishes on.
type Topics struct {
	Total string
	D0    string
	D1    string
}

// DefaultTopics returns the topics below prefix, e.g.
// tele/smartmeter/total/value.
func DefaultTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	return Topics{
		Total: prefix + "/total/value",
		D0:    prefix + "/total/d0",
		D1:    prefix + "/total/d1",
	}
}

type Options struct {
	Topics Topics
	Retain bool
	// Now defaults to time.Now.
	Now func() time.Time
}

type sample struct {
	at    time.Time
	value float64
}

// Monitor keeps the totals of today and yesterday. It is safe for
// concurrent use.
type Monitor struct {
	mu     sync.Mutex
	pub    publish.Publisher
	topics Topics
	retain bool
	now    func() time.Time

	samples []sample
	day     time.Time

	d0, d1 *float64
	// consumption before a restart, taken from retained messages
	d0Offset float64
	// set by the first total; retained d0 values arriving later are our own
	live bool
}

func NewMonitor(pub publish.Publisher, opts Options) *Monitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Topics == (Topics{}) {
		opts.Topics = DefaultTopics(publish.DefaultTopicPrefix)
	}

	return &Monitor{
		pub:    pub,
		topics: opts.Topics,
		retain: opts.Retain,
		now:    opts.Now,
		day:    date(opts.Now()),
	}
}

// Subscriptions returns the topics to subscribe to, retained ones first.
func (m *Monitor) Subscriptions() []string {
	return []string{m.topics.D0, m.topics.D1, m.topics.Total}
}

// Handle dispatches a received message. It reports whether the topic is one
// of the retained results, which need no further subscription.
func (m *Monitor) Handle(ctx context.Context, topic string, payload []byte) (retained bool, err error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return false, errors.New().Wrap(errors.ErrInvalidArgument, err)
	}

	switch topic {
	case m.topics.Total:
		return false, m.AddValue(ctx, value)
	case m.topics.D0, m.topics.D1:
		m.SetRetained(topic, value)
		return true, nil
	default:
		logger.Warn().Str("topic", topic).Bytes("payload", payload).Msg("Unexpected message")
		return false, nil
	}
}

// SetRetained records a previously published result. A retained d0 is
// added to today's consumption from now on, unless totals are already being
// counted: a broker redelivers the monitor's own d0 after a reconnect.
func (m *Monitor) SetRetained(topic string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch topic {
	case m.topics.D0:
		if m.live {
			logger.Debug().Float64("d0", value).Msg("Ignoring retained d0 after first total")
			return
		}
		m.d0Offset = value
		logger.Info().Float64("d0", value).Msg("Retained d0")
	case m.topics.D1:
		if m.d1 == nil {
			m.d1 = &value
		}
		logger.Info().Float64("d1", value).Msg("Retained d1")
	}
}

// AddValue records a meter total and publishes the updated results.
func (m *Monitor) AddValue(ctx context.Context, total float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.live = true
	var errs []error

	if today := date(now); today.After(m.day) {
		if err := m.rollover(ctx, today); err != nil {
			errs = append(errs, err)
		}
	}

	m.samples = append(m.samples, sample{at: now, value: total})

	if delta, ok := consumption(m.samples, m.day); ok {
		d0 := Round(delta + m.d0Offset)
		m.d0 = &d0
		logger.Info().Float64("delta", delta).Float64("d0", d0).Msg("Consumption today")
		if err := m.publish(ctx, m.topics.D0, d0); err != nil {
			errs = append(errs, err)
		}
	} else {
		logger.Debug().Msg("d0: not enough data yet")
	}

	return errors.Join(errs...)
}

// rollover closes the current day: its consumption becomes d1.
func (m *Monitor) rollover(ctx context.Context, today time.Time) error {
	yesterday := m.day
	m.day = today

	var err error
	if delta, ok := consumption(m.samples, yesterday); ok {
		d1 := Round(delta + m.d0Offset)
		m.d1 = &d1
		logger.Info().Float64("delta", delta).Float64("d1", d1).Msg("Consumption yesterday")
		err = m.publish(ctx, m.topics.D1, d1)
	} else {
		logger.Debug().Msg("d1: not enough data yet")
	}

	m.d0 = nil
	m.d0Offset = 0

	// only the new day is needed from here on
	kept := m.samples[:0]
	for _, s := range m.samples {
		if !date(s.at).Before(today) {
			kept = append(kept, s)
		}
	}
	m.samples = kept

	return err
}

func (m *Monitor) publish(ctx context.Context, topic string, value float64) error {
	payload := strconv.FormatFloat(value, 'f', -1, 64)
	if err := m.pub.Publish(ctx, topic, []byte(payload), m.retain); err != nil {
		logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish")
		return err
	}
	return nil
}

// D0 returns the consumption of today so far.
func (m *Monitor) D0() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return deref(m.d0)
}

// D1 returns the consumption of yesterday.
func (m *Monitor) D1() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return deref(m.d1)
}

// Samples returns the number of totals kept.
func (m *Monitor) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

// consumption is the difference between the last and the first total of
// day. At least two totals are needed.
func consumption(samples []sample, day time.Time) (float64, bool) {
	var first, last float64
	n := 0
	for _, s := range samples {
		if !date(s.at).Equal(day) {
			continue
		}
		if n == 0 {
			first = s.value
		}
		last = s.value
		n++
	}
	if n < 2 {
		return 0, false
	}
	return last - first, true
}

func date(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Round rounds x to two decimal places, ties to even.
func Round(x float64) float64 {
	return math.RoundToEven(x*100) / 100
}
