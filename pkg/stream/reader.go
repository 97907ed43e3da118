package stream

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNilSource is returned by NewReader when no source is supplied.
	ErrNilSource = errors.New("stream: line source is required")

	// ErrTooManyFailures ends a Reader after MaxConsecutiveFailures frames
	// in a row failed to decode.
	ErrTooManyFailures = errors.New("stream: too many consecutive frame failures")

	// ErrReaderClosed is returned by a Reader after Close.
	ErrReaderClosed = errors.New("stream: reader is closed")
)

// ReaderConfig controls how a Reader treats frames that fail to decode.
type ReaderConfig struct {
	// MaxConsecutiveFailures is 0 to surface every failed frame from Next
	// as a *FrameError. A positive value skips failed frames and ends the
	// reader with ErrTooManyFailures once that many fail in a row.
	MaxConsecutiveFailures int

	// Logger defaults to the global logger with component "stream".
	Logger *zerolog.Logger
}

// FrameError is a frame that ended without decoding. It does not end the
// Reader.
type FrameError struct {
	Frame Frame
	Err   error
}

// Error implements the error interface.
func (e *FrameError) Error() string {
	if e.Frame.EventName == "" {
		return fmt.Sprintf("stream: frame failed: %v", e.Err)
	}
	return fmt.Sprintf("stream: %s frame failed: %v", e.Frame.EventName, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FrameError) Unwrap() error {
	return e.Err
}

// Reader yields the events of a live stream. The stream has no natural end:
// Next returns false for good only when the source fails or the reader is
// closed.
//
// A Reader is owned by one goroutine; only Close may be called from another
// to unblock a pending read.
type Reader struct {
	source LineSource
	asm    Assembler
	queue  []Outcome
	cfg    ReaderConfig
	logger zerolog.Logger

	value    Event
	err      error
	terminal error
	failures int

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewReader validates cfg and returns a Reader over source.
func NewReader(source LineSource, cfg ReaderConfig) (*Reader, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if cfg.MaxConsecutiveFailures < 0 {
		return nil, fmt.Errorf("stream: max consecutive failures must be >= 0, got %d", cfg.MaxConsecutiveFailures)
	}

	logger := log.With().Str("component", "stream").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Reader{
		source: source,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Step reads lines until the assembler produces an outcome and returns it.
// Skipped and failed frames are returned as outcomes, not errors; the error
// is set only when the source failed or the reader is closed, and is
// terminal.
func (r *Reader) Step() (Outcome, error) {
	if r.closed.Load() {
		return Outcome{}, ErrReaderClosed
	}
	if r.terminal != nil {
		return Outcome{}, r.terminal
	}

	for len(r.queue) == 0 {
		line, err := r.source.ReadLine()
		if err != nil {
			if r.closed.Load() {
				return Outcome{}, ErrReaderClosed
			}
			if r.asm.Pending() {
				r.logger.Debug().Msg("Discarding incomplete frame at end of stream")
			}
			ReadErrors.Inc()
			r.terminal = fmt.Errorf("stream: read: %w", err)
			return Outcome{}, r.terminal
		}
		r.queue = r.asm.Feed(line)
	}

	out := r.queue[0]
	r.queue = r.queue[1:]
	FramesTotal.WithLabelValues(out.Kind.String()).Inc()
	return out, nil
}

// Next advances to the next event. When it returns false, Err tells why: a
// *FrameError may be followed by more events, any other error is final.
func (r *Reader) Next() bool {
	r.value = nil
	r.err = nil

	for {
		out, err := r.Step()
		if err != nil {
			r.err = err
			return false
		}

		switch out.Kind {
		case OutcomeSkipped:
			continue

		case OutcomeDecoded:
			r.failures = 0
			r.value = out.Event
			EventsTotal.WithLabelValues(out.Event.EventName()).Inc()
			r.logger.Debug().Str("event", out.Event.EventName()).Msg("Decoded stream event")
			return true

		case OutcomeFailed:
			frameErr := &FrameError{Frame: out.Frame, Err: out.Err}
			if r.cfg.MaxConsecutiveFailures == 0 {
				r.err = frameErr
				return false
			}

			r.failures++
			if r.failures >= r.cfg.MaxConsecutiveFailures {
				r.terminal = fmt.Errorf("%w (%d): %v", ErrTooManyFailures, r.failures, frameErr)
				r.err = r.terminal
				r.logger.Error().
					Err(frameErr).
					Int("consecutive_failures", r.failures).
					Msg("Giving up on stream")
				return false
			}

			r.logger.Warn().
				Err(frameErr).
				Str("event", out.Frame.EventName).
				Int("consecutive_failures", r.failures).
				Msg("Skipping frame that failed to decode")
		}
	}
}

// Value returns the event Next advanced to.
func (r *Reader) Value() Event {
	return r.value
}

// Err returns why the last Next returned false.
func (r *Reader) Err() error {
	return r.err
}

// Close releases the source. Further calls to Next or Step fail with
// ErrReaderClosed.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.closeErr = r.source.Close()
		r.logger.Info().Msg("Stream closed")
	})
	return r.closeErr
}

// All adapts the reader to a range-over-func sequence. Frame failures are
// yielded as (nil, *FrameError) and iteration continues; a final error is
// yielded once before the sequence ends. The reader is not closed.
func (r *Reader) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			if r.Next() {
				if !yield(r.value, nil) {
					return
				}
				continue
			}

			err := r.err
			if err == nil {
				return
			}
			if !yield(nil, err) {
				return
			}
			if r.terminal != nil || r.closed.Load() {
				return
			}
		}
	}
}
