// Package translator maps a host-neutral prompt and conversation onto the
// provider's chat and completion wire formats, and turns the provider's
// responses back into text.
package translator

import (
	"fmt"
	"maps"
	"strings"

	"llmdeepseek/internal/core"
)

// Parameter keys consumed by the translator itself. They never reach the
// provider as generic parameters.
const (
	ParamPrefill        = "prefill"
	ParamResponseFormat = "response_format"
)

// reserved are keys owned by the typed fields of core.WireRequest.
var reserved = []string{ParamPrefill, ParamResponseFormat, "model", "messages", "prompt", "stream", "max_tokens"}

// Options carries per-execution settings.
type Options struct {
	// Prefill is assistant text the model must continue from.
	Prefill string
	// ResponseFormat, e.g. "json_object", constrains the output mode.
	ResponseFormat string
	// Params are provider-generic sampling parameters such as temperature.
	Params map[string]any
}

// Endpoint returns the API path for kind.
func Endpoint(kind core.Kind) string {
	if kind == core.KindCompletion {
		return "/completions"
	}
	return "/chat/completions"
}

// Build produces the wire request for one execution.
// conv may be nil. opts.Params is not modified.
func Build(kind core.Kind, model, prompt string, conv core.Conversation, opts Options, stream bool) (*core.WireRequest, error) {
	opts, err := normalize(opts)
	if err != nil {
		return nil, err
	}

	var turns []core.Turn
	if conv != nil {
		turns = conv.Turns()
	}

	req := &core.WireRequest{
		Model:     model,
		Stream:    stream,
		MaxTokens: core.MaxOutputTokens,
		Params:    genericParams(opts.Params),
	}

	switch kind {
	case core.KindChat:
		req.Messages = chatMessages(turns, prompt, opts.Prefill)
	case core.KindCompletion:
		text := completionPrompt(turns, prompt, opts.Prefill)
		req.Prompt = &text
	default:
		return nil, core.NewInvalidRequestError(fmt.Sprintf("unsupported model kind %d", kind), nil)
	}

	if opts.ResponseFormat != "" {
		req.ResponseFormat = &core.ResponseFormat{Type: opts.ResponseFormat}
	}
	return req, nil
}

func chatMessages(turns []core.Turn, prompt, prefill string) []core.Message {
	messages := make([]core.Message, 0, 2*len(turns)+2)
	for _, turn := range turns {
		messages = append(messages,
			core.Message{Role: "user", Content: turn.Prompt},
			core.Message{Role: "assistant", Content: turn.Response},
		)
	}
	messages = append(messages, core.Message{Role: "user", Content: prompt})
	if prefill != "" {
		messages = append(messages, core.Message{Role: "assistant", Content: prefill, Prefix: true})
	}
	return messages
}

func completionPrompt(turns []core.Turn, prompt, prefill string) string {
	lines := make([]string, 0, 2*len(turns)+2)
	for _, turn := range turns {
		lines = append(lines, turn.Prompt, turn.Response)
	}
	lines = append(lines, prompt)
	if prefill != "" {
		lines = append(lines, prefill)
	}
	return strings.Join(lines, "\n")
}

// normalize lifts prefill and response_format out of Params when the host
// passed them there instead of in the typed fields. Scalars such as a prefill
// of 42 decoded from a key=value flag are stringified.
func normalize(opts Options) (Options, error) {
	if opts.Prefill == "" {
		if v, ok := opts.Params[ParamPrefill]; ok && v != nil {
			s, ok := scalarString(v)
			if !ok {
				return opts, core.NewInvalidRequestError(
					fmt.Sprintf("%s must be a string, got %T", ParamPrefill, v), nil)
			}
			opts.Prefill = s
		}
	}
	if opts.ResponseFormat == "" {
		switch v := opts.Params[ParamResponseFormat].(type) {
		case nil:
		case map[string]any:
			if t, ok := v["type"].(string); ok {
				opts.ResponseFormat = t
			}
		default:
			s, ok := scalarString(v)
			if !ok {
				return opts, core.NewInvalidRequestError(
					fmt.Sprintf("%s must be a string or an object with a type, got %T", ParamResponseFormat, v), nil)
			}
			opts.ResponseFormat = s
		}
	}
	return opts, nil
}

func scalarString(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v), true
	default:
		return "", false
	}
}

// genericParams copies params without the keys the translator owns.
func genericParams(params map[string]any) map[string]any {
	out := maps.Clone(params)
	if out == nil {
		return map[string]any{}
	}
	for _, k := range reserved {
		delete(out, k)
	}
	for k, v := range out {
		if v == nil {
			delete(out, k)
		}
	}
	return out
}
