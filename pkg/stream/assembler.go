package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedFrame is returned for a JSON-framed line whose envelope lacks
// a string "event" or has a non-string "payload".
var ErrMalformedFrame = errors.New("stream: malformed JSON frame")

// OutcomeKind classifies what a fed line produced.
type OutcomeKind int

const (
	// OutcomeDecoded means a frame completed and decoded into an event.
	OutcomeDecoded OutcomeKind = iota
	// OutcomeSkipped means a comment or blank line arrived with nothing
	// pending.
	OutcomeSkipped
	// OutcomeFailed means a frame ended without decoding.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDecoded:
		return "decoded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of a completed or skipped frame. Event is set for
// OutcomeDecoded, Err for OutcomeFailed.
type Outcome struct {
	Kind  OutcomeKind
	Event Event
	Err   error
	Frame Frame
}

type jsonFrame struct {
	Event   *string `json:"event"`
	Payload *string `json:"payload"`
}

// Assembler groups stream lines into frames and decodes them. The zero
// value is ready to use. An Assembler is not safe for concurrent use.
type Assembler struct {
	frame   Frame
	pending bool

	// completed is set when a frame decoded before its terminator. Further
	// data lines belong to that frame and are absorbed.
	completed bool
}

// Pending reports whether lines are buffered for an incomplete frame.
func (a *Assembler) Pending() bool {
	return a.pending
}

// Feed consumes one line and returns the outcomes it produced, usually
// none or one. A line that neither completes nor ends a frame returns nil.
func (a *Assembler) Feed(line string) []Outcome {
	line = strings.TrimSpace(line)

	if line == "" || strings.HasPrefix(line, ":") {
		a.completed = false
		if !a.pending {
			return []Outcome{{Kind: OutcomeSkipped}}
		}
		return []Outcome{a.finish()}
	}

	if !a.pending && strings.HasPrefix(line, "{") && json.Valid([]byte(line)) {
		a.completed = false
		return []Outcome{decodeJSONFrame(line)}
	}

	if a.completed {
		if strings.HasPrefix(line, "data:") {
			return nil
		}
		a.completed = false
	}

	var out []Outcome
	switch {
	case strings.HasPrefix(line, "event:"):
		if a.frame.EventName != "" {
			// A new event line starts a new frame.
			out = append(out, a.finish())
		}
		a.frame.EventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
	case strings.HasPrefix(line, "data:"):
		if a.frame.Data == nil {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			a.frame.Data = &data
		}
	}
	a.pending = true

	ev, err := Decode(a.frame)
	if err == nil {
		out = append(out, Outcome{Kind: OutcomeDecoded, Event: ev, Frame: a.frame})
		a.reset()
		a.completed = true
	}
	return out
}

// Flush ends the pending frame, if any, as if a blank line had arrived.
func (a *Assembler) Flush() []Outcome {
	if !a.pending {
		return nil
	}
	return []Outcome{a.finish()}
}

func (a *Assembler) finish() Outcome {
	frame := a.frame
	a.reset()

	ev, err := Decode(frame)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Err: err, Frame: frame}
	}
	return Outcome{Kind: OutcomeDecoded, Event: ev, Frame: frame}
}

func (a *Assembler) reset() {
	a.frame = Frame{}
	a.pending = false
}

func decodeJSONFrame(line string) Outcome {
	var env jsonFrame
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return Outcome{Kind: OutcomeFailed, Err: fmt.Errorf("%w: %w", ErrMalformedFrame, err)}
	}
	if env.Event == nil {
		return Outcome{Kind: OutcomeFailed, Err: fmt.Errorf("%w: no event field", ErrMalformedFrame)}
	}

	frame := Frame{EventName: *env.Event, Data: env.Payload}
	ev, err := Decode(frame)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Err: err, Frame: frame}
	}
	return Outcome{Kind: OutcomeDecoded, Event: ev, Frame: frame}
}
