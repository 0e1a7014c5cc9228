package adapter

import (
	"errors"
	"io"
	"iter"
	"log/slog"

	"llmdeepseek/internal/translator"
)

// State is the lifecycle stage of one execution.
type State int

const (
	StateBuilding State = iota
	StateSent
	StateStreaming
	StateFinalized
	StateFailed
	// StateAbandoned means the caller stopped reading before the end.
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateSent:
		return "sent"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// ErrConsumed is yielded when Chunks is iterated a second time.
var ErrConsumed = errors.New("response already consumed")

// Response is the result of one execution. It is not safe for concurrent use.
type Response struct {
	model       *Model
	requestID   string
	stream      bool
	requestBody []byte

	body     io.ReadCloser
	pending  string // full text of a non-streamed response
	consumed bool
	closed   bool

	state State
	text  string
	err   error
}

func newResponse(m *Model, requestID string, stream bool) *Response {
	return &Response{
		model:     m,
		requestID: requestID,
		stream:    stream,
		state:     StateBuilding,
	}
}

// fail moves the response to StateFailed and returns err.
func (r *Response) fail(err error) error {
	r.state = StateFailed
	r.err = err
	r.finish()
	return err
}

// Chunks returns the response text as a single-use sequence of fragments.
// Streamed responses yield provider fragments as they arrive; non-streamed
// responses yield the whole text once. A failure is yielded as the final
// element. The underlying connection is released on every exit, including
// a break by the caller.
func (r *Response) Chunks() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if r.consumed {
			yield("", ErrConsumed)
			return
		}
		r.consumed = true
		defer r.Close()

		a := r.model.adapter
		kind := r.model.variant.Kind

		var seq iter.Seq2[string, error]
		if r.stream {
			seq = translator.Fragments(r.body, kind, a.cfg.Provider)
		} else {
			seq = once(r.pending)
		}

		r.state = StateStreaming
		text, err := translator.Drain(seq, func(fragment string) bool {
			a.metrics.Fragment(kind.String())
			return yield(fragment, nil)
		})
		r.text = text

		switch {
		case err == nil:
			r.state = StateFinalized
		case errors.Is(err, translator.ErrAbandoned):
			r.state = StateAbandoned
		default:
			r.state = StateFailed
			r.err = err
			yield("", err)
		}
		r.finish()
	}
}

func once(text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if text != "" {
			yield(text, nil)
		}
	}
}

// finish records the terminal state.
func (r *Response) finish() {
	m := r.model
	m.adapter.metrics.Execution(m.variant.Kind.String(), r.state.String())
	attrs := []any{
		"model", m.variant.PublicID,
		"request_id", r.requestID,
		"state", r.state.String(),
		"chars", len(r.text),
	}
	if r.err != nil {
		slog.Warn("execution failed", append(attrs, "error", r.err)...)
		return
	}
	slog.Debug("execution finished", attrs...)
}

// Close releases the connection. It is called automatically once Chunks has
// been iterated; call it directly when the response is discarded unread.
func (r *Response) Close() error {
	if r.closed || r.body == nil {
		return nil
	}
	r.closed = true
	if !r.consumed && r.state == StateSent {
		r.state = StateAbandoned
		r.finish()
	}
	return r.body.Close()
}

// Text returns the text accumulated once Chunks has finished. After a
// failure it holds whatever arrived before it.
func (r *Response) Text() string {
	return r.text
}

// RequestBody returns the exact JSON body that was sent.
func (r *Response) RequestBody() []byte {
	return r.requestBody
}

// RequestID returns the id forwarded as X-Client-Request-Id.
func (r *Response) RequestID() string {
	return r.requestID
}

// State returns the current lifecycle stage.
func (r *Response) State() State {
	return r.state
}

// Err returns the failure that ended the execution, if any.
func (r *Response) Err() error {
	return r.err
}

// Model returns the model that produced the response.
func (r *Response) Model() *Model {
	return r.model
}
