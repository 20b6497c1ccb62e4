package publish

import (
	"context"
	"fmt"
	"io"
	"sync"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
)

// WriterPublisher prints messages instead of sending them, one per line:
// topic, payload and a trailing "(retain)" marker when set.
type WriterPublisher struct {
	mu  sync.Mutex
	out io.Writer
}

func NewWriterPublisher(out io.Writer) *WriterPublisher {
	return &WriterPublisher{out: out}
}

func (p *WriterPublisher) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	suffix := ""
	if retain {
		suffix = " (retain)"
	}
	if _, err := fmt.Fprintf(p.out, "%s %s%s\n", topic, payload, suffix); err != nil {
		return errors.New().Wrap(ErrPublish, err)
	}
	return nil
}

func (*WriterPublisher) Close() error {
	return nil
}
