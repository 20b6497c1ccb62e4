// Package lineio streams text lines from a file or standard input.
package lineio

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/logger"
)

// Stdin is the input name that selects standard input.
const Stdin = "-"

// MaxLineSize is the longest line handed out. Longer lines are dropped and
// reading goes on with the next one.
const MaxLineSize = 1 << 20

// Source reads lines on a background goroutine and hands them out over a
// channel. The channel is closed at end of input, on a read error or on
// cancellation.
type Source struct {
	r      io.Reader
	closer io.Closer
	name   string
	err    error
	done   chan struct{}
}

// Open opens the named file, or standard input for "-".
func Open(name string) (*Source, error) {
	if name == Stdin || name == "" {
		return New(os.Stdin, "stdin"), nil
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrOpenInput, err)
	}

	s := New(f, name)
	s.closer = f
	return s, nil
}

// New wraps r as a line source.
func New(r io.Reader, name string) *Source {
	return &Source{r: r, name: name, done: make(chan struct{})}
}

func (s *Source) Name() string {
	return s.name
}

// Lines starts reading and returns the line channel. It must be called once.
func (s *Source) Lines(ctx context.Context) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(s.done)
		defer close(lines)

		r := bufio.NewReaderSize(s.r, MaxLineSize)
		for {
			line, err := r.ReadSlice('\n')
			if errors.Is(err, bufio.ErrBufferFull) {
				dropped := len(line)
				for errors.Is(err, bufio.ErrBufferFull) {
					line, err = r.ReadSlice('\n')
					dropped += len(line)
				}
				logger.Warn().Int("bytes", dropped).Str("input", s.name).Msg("Dropping oversized line")
			} else if len(line) > 0 {
				select {
				case lines <- trimEOL(line):
				case <-ctx.Done():
					return
				}
			}

			if errors.Is(err, io.EOF) {
				logger.Debug().Str("input", s.name).Msg("End of input")
				return
			}
			if err != nil {
				s.err = errors.New().Wrap(errors.ErrReadInput, err)
				logger.Error().Err(err).Str("input", s.name).Msg("Failed to read input")
				return
			}
		}
	}()

	return lines
}

func trimEOL(line []byte) string {
	return strings.TrimSuffix(strings.TrimSuffix(string(line), "\n"), "\r")
}

// Err returns the read error, if any, once the line channel is closed.
func (s *Source) Err() error {
	<-s.done
	return s.err
}

// Wait blocks until reading stops and returns its error. It returns nil
// when ctx ends first, since a blocked read may never return.
func (s *Source) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return nil
	}
}

// Close releases the underlying file.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
