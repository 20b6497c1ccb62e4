// Package window decides when accumulated readings are handed on for
// aggregation: after a fixed number of readings, or early when a watched
// field jumps between two consecutive readings.
package window

import (
	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/logger"
	"codeberg.org/mutker/smlmqttprocessor/internal/sml"
)

// Reason explains why a batch was flushed.
type Reason string

const (
	ReasonNone   Reason = "none"
	ReasonWindow Reason = "window"
	ReasonDelta  Reason = "delta"
	ReasonFinal  Reason = "final"
)

const maxPrealloc = 64

// Handler receives every flushed batch. The batch is not reused afterwards.
type Handler func(batch sml.Batch)

// Controller buffers closed readings and flushes them to a Handler.
// It is not safe for concurrent use.
type Controller struct {
	size       int
	thresholds Thresholds
	handler    Handler
	batch      sml.Batch
}

func New(size int, thresholds Thresholds, handler Handler) (*Controller, error) {
	if size < 1 {
		return nil, errors.New().WithData(errors.ErrInvalidWindow, size)
	}
	if handler == nil {
		return nil, errors.New().WithMessage(errors.ErrInvalidArgument, "nil flush handler")
	}

	return &Controller{
		size:       size,
		thresholds: thresholds,
		handler:    handler,
		batch:      make(sml.Batch, 0, min(size, maxPrealloc)),
	}, nil
}

// Append adds a closed reading to the pending batch.
func (c *Controller) Append(msg sml.Message) {
	c.batch = append(c.batch, msg)
}

// Len returns the number of pending readings.
func (c *Controller) Len() int {
	return len(c.batch)
}

// Evaluate runs once per reading boundary and flushes when the window is
// full or, failing that, when a delta threshold is crossed.
func (c *Controller) Evaluate() Reason {
	n := len(c.batch)
	if n >= c.size {
		logger.Info().Int("window", c.size).Int("messages", n).Msg("Window filled, handling messages")
		c.Flush()
		return ReasonWindow
	}

	if len(c.thresholds) == 0 || n < 2 {
		return ReasonNone
	}

	prev, curr := c.batch[n-2], c.batch[n-1]
	for _, t := range c.thresholds {
		pv, pok := prev[t.Field]
		cv, cok := curr[t.Field]
		if !pok || !cok {
			logger.Warn().Str("field", t.Field).Msg("No such field in message")
			continue
		}

		p, pnum := pv.Float64()
		q, cnum := cv.Float64()
		if !pnum || !cnum {
			logger.Warn().Str("field", t.Field).Str("prev", pv.String()).Str("curr", cv.String()).
				Msg("Non-numeric value, skipping delta check")
			continue
		}

		logger.Debug().Str("field", t.Field).Float64("prev", p).Float64("curr", q).
			Float64("delta", abs(q-p)).Msg("Delta check")

		if t.Exceeded(p, q) {
			logger.Info().Str("field", t.Field).Float64("delta", abs(q-p)).Float64("threshold", t.Value).
				Msg("Delta above threshold, handling messages")
			c.Flush()
			return ReasonDelta
		}
	}

	return ReasonNone
}

// Flush hands the pending batch to the handler and starts a new one.
func (c *Controller) Flush() {
	batch := c.batch
	c.batch = make(sml.Batch, 0, min(c.size, maxPrealloc))
	c.handler(batch)
}
