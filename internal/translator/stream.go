package translator

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"llmdeepseek/internal/core"
)

// ErrAbandoned is returned by Drain when the consumer stopped early.
var ErrAbandoned = errors.New("stream abandoned by consumer")

const maxLineSize = 1024 * 1024

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// contentPath returns the gjson path of the text fragment for kind.
func contentPath(kind core.Kind, stream bool) string {
	switch {
	case kind == core.KindCompletion:
		return "choices.0.text"
	case stream:
		return "choices.0.delta.content"
	default:
		return "choices.0.message.content"
	}
}

// Fragments decodes a server-sent event stream into text fragments, in
// arrival order. Null and empty fragments are skipped. The sequence ends after
// the provider's [DONE] event; if the body ends first, the last element is an
// error wrapping core.ErrStreamAborted. Fragments does not close r.
func Fragments(r io.Reader, kind core.Kind, provider string) iter.Seq2[string, error] {
	path := contentPath(kind, true)
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if !bytes.HasPrefix(line, dataPrefix) {
				// blank separators, "event:" lines and ": keep-alive" comments
				continue
			}
			data := bytes.TrimSpace(line[len(dataPrefix):])
			if bytes.Equal(data, doneMarker) {
				return
			}
			if !gjson.ValidBytes(data) {
				continue
			}

			if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
				yield("", core.NewProviderError(provider, http.StatusBadGateway, msg.String(), nil))
				return
			}

			fragment := gjson.GetBytes(data, path)
			if fragment.Type != gjson.String || fragment.Str == "" {
				continue
			}
			if !yield(fragment.Str, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield("", core.NewProviderError(provider, http.StatusBadGateway, "failed to read stream", err))
			return
		}
		yield("", core.NewProviderError(provider, http.StatusBadGateway, "stream ended without [DONE]", core.ErrStreamAborted))
	}
}

// CompletionText extracts the text of a non-streamed response body.
func CompletionText(body []byte, kind core.Kind, provider string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", core.NewProviderError(provider, http.StatusBadGateway, "invalid response body", nil)
	}
	choices := gjson.GetBytes(body, "choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return "", core.NewProviderError(provider, http.StatusBadGateway, "empty choices in response", nil)
	}
	return gjson.GetBytes(body, contentPath(kind, false)).String(), nil
}

// Accumulator collects fragments in arrival order.
type Accumulator struct {
	b strings.Builder
}

// Add appends a fragment.
func (a *Accumulator) Add(fragment string) {
	a.b.WriteString(fragment)
}

// Text returns everything added so far, concatenated with no separator.
func (a *Accumulator) Text() string {
	return a.b.String()
}

// Drain consumes seq, forwarding each fragment to yield (which may be nil)
// and returning the concatenated text. If seq fails, the text accumulated so
// far is returned with the error. If yield returns false, Drain stops and
// returns ErrAbandoned.
func Drain(seq iter.Seq2[string, error], yield func(string) bool) (string, error) {
	var acc Accumulator
	for fragment, err := range seq {
		if err != nil {
			return acc.Text(), err
		}
		acc.Add(fragment)
		if yield != nil && !yield(fragment) {
			return acc.Text(), ErrAbandoned
		}
	}
	return acc.Text(), nil
}
