// Package processor runs the read, assemble, window and publish loop.
package processor

import (
	"context"
	"strings"
	"time"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/logger"
	"codeberg.org/mutker/smlmqttprocessor/internal/metrics"
	"codeberg.org/mutker/smlmqttprocessor/internal/reduce"
	"codeberg.org/mutker/smlmqttprocessor/internal/sml"
	"codeberg.org/mutker/smlmqttprocessor/internal/window"
)

const (
	DefaultThrottle = 10 * time.Millisecond
	DefaultIdle     = time.Second

	finalFlushTimeout = 10 * time.Second
)

// Sink receives the statistics of every flushed batch.
type Sink interface {
	Send(ctx context.Context, stats reduce.Statistics) error
}

// Options configure a Processor.
type Options struct {
	Window int
	// Timeout is the number of consecutive no-data attempts after which the
	// loop flushes and returns. Zero runs until the context is done.
	Timeout    int
	Thresholds window.Thresholds
	Catalog    sml.Catalog
	// Throttle is the pause after each line.
	Throttle time.Duration
	// Idle is the wait that makes up one no-data attempt.
	Idle time.Duration
}

// Processor owns the reading and batch state. Run must not be called
// concurrently.
type Processor struct {
	opts      Options
	sink      Sink
	metrics   metrics.Collector
	parser    *sml.Parser
	assembler *sml.Assembler
	reduce    func(sml.Batch, sml.Catalog) reduce.Statistics
	lastSize  int
}

func New(opts Options, sink Sink, collector metrics.Collector) (*Processor, error) {
	errFactory := errors.New()

	if opts.Window < 1 {
		return nil, errFactory.WithData(errors.ErrInvalidWindow, opts.Window)
	}
	if opts.Timeout < 0 {
		return nil, errFactory.WithData(errors.ErrInvalidTimeout, opts.Timeout)
	}
	if sink == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "nil sink")
	}
	if opts.Catalog == nil {
		opts.Catalog = sml.DefaultCatalog
	}
	if opts.Throttle < 0 {
		opts.Throttle = 0
	}
	if opts.Idle <= 0 {
		opts.Idle = DefaultIdle
	}
	if collector == nil {
		var err error
		if collector, err = metrics.NewService(metrics.Config{}); err != nil {
			return nil, err
		}
	}

	return &Processor{
		opts:      opts,
		sink:      sink,
		metrics:   collector,
		parser:    sml.NewParser(opts.Catalog),
		assembler: sml.NewAssembler(),
		reduce:    reduce.Reduce,
	}, nil
}

// Run consumes lines until the timeout is reached, the context is done or,
// with a timeout, the input ends. In all three cases the reading being built
// and everything buffered are flushed once more before Run returns.
func (p *Processor) Run(ctx context.Context, lines <-chan string) error {
	flushCtx := ctx
	ctrl, err := window.New(p.opts.Window, p.opts.Thresholds, func(batch sml.Batch) {
		p.publish(flushCtx, batch)
	})
	if err != nil {
		return err
	}

	// the final flush must outlive a cancelled ctx, but not forever
	stop := func() error {
		final, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
		defer cancel()
		flushCtx = final
		p.finish(ctrl)
		return nil
	}

	logger.Info().Int("window", p.opts.Window).Int("timeout", p.opts.Timeout).
		Int("thresholds", len(p.opts.Thresholds)).Msg("Processing started")

	idle := time.NewTimer(p.opts.Idle)
	defer idle.Stop()

	noData := 0
	for {
		line, ev := receive(ctx, lines, idle, p.opts.Idle)
		switch ev {
		case eventDone:
			logger.Info().Msg("Stopping, flushing pending messages")
			return stop()
		case eventClosed:
			// input exhausted, from now on every idle period is a no-data attempt
			logger.Debug().Msg("Input closed")
			lines = nil
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			noData++
			if p.opts.Timeout > 0 && noData >= p.opts.Timeout {
				logger.Warn().Int("attempts", noData).Msg("No data, timeout hit, flushing pending messages")
				return stop()
			}
			logger.Debug().Int("attempt", noData).Msg("No data observed")
			if ev == eventLine {
				sleep(ctx, p.opts.Idle)
			}
			continue
		}

		noData = 0
		p.metrics.LineRead()
		p.handleLine(ctrl, line)

		sleep(ctx, p.opts.Throttle)
	}
}

func (p *Processor) handleLine(ctrl *window.Controller, line string) {
	if sml.IsHeader(line) {
		if msg, closed := p.assembler.Header(); closed {
			ctrl.Append(msg)
			p.metrics.MessageClosed()
		}
		if reason := ctrl.Evaluate(); reason != window.ReasonNone {
			p.metrics.Flushed(string(reason), p.lastSize)
		}
		return
	}

	name, v, ok, err := p.parser.Parse(line)
	if err != nil {
		var malformed *sml.MalformedLineError
		if errors.As(err, &malformed) {
			p.metrics.MalformedLine(malformed.Field)
		}
		logger.Error().Err(err).Str("line", line).Msg("Failed to parse line, dropping it")
		return
	}
	if !ok {
		logger.Debug().Str("line", line).Msg("Ignoring line")
		return
	}
	p.assembler.Add(name, v)
}

// finish appends the reading being built and flushes unconditionally.
func (p *Processor) finish(ctrl *window.Controller) {
	ctrl.Append(p.assembler.Current())
	p.assembler = sml.NewAssembler()
	ctrl.Flush()
	p.metrics.Flushed(string(window.ReasonFinal), p.lastSize)
}

func (p *Processor) publish(ctx context.Context, batch sml.Batch) {
	p.lastSize = len(batch)
	logger.Debug().Int("messages", len(batch)).Msg("Reducing batch")

	stats := p.reduce(batch, p.opts.Catalog)
	err := p.sink.Send(ctx, stats)
	p.metrics.Published(err)
	if err != nil {
		logger.Error().Err(err).Int("messages", len(batch)).Msg("Failed to publish statistics")
	}
}

type event int

const (
	eventLine event = iota
	eventIdle
	eventClosed
	eventDone
)

// receive waits up to d for the next line. A line already waiting wins over
// an expired idle period.
func receive(ctx context.Context, lines <-chan string, idle *time.Timer, d time.Duration) (string, event) {
	if ctx.Err() != nil {
		return "", eventDone
	}

	select {
	case l, ok := <-lines:
		if !ok {
			return "", eventClosed
		}
		return l, eventLine
	default:
	}

	resetTimer(idle, d)
	select {
	case <-ctx.Done():
		return "", eventDone
	case l, ok := <-lines:
		if !ok {
			return "", eventClosed
		}
		return l, eventLine
	case <-idle.C:
		return "", eventIdle
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
