package core

import (
	"encoding/json"
	"maps"
)

// MaxOutputTokens is the response token ceiling sent with every request.
// The provider rejects larger values, so host-requested ceilings are ignored.
const MaxOutputTokens = 8192

// Kind selects the provider endpoint a variant talks to.
type Kind int

const (
	KindChat Kind = iota
	KindCompletion
)

// String returns the kind's name as used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindCompletion:
		return "completion"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "chat":
		return KindChat, true
	case "completion":
		return KindCompletion, true
	}
	return 0, false
}

// CatalogEntry is one remotely available model as listed by the provider.
type CatalogEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Turn is one prior exchange of a host-owned conversation.
type Turn struct {
	Prompt   string
	Response string
}

// Conversation is the read-only view of history the host hands to an execution.
type Conversation interface {
	Turns() []Turn
}

// Turns is a slice-backed Conversation.
type Turns []Turn

// Turns implements Conversation.
func (t Turns) Turns() []Turn { return t }

// Message represents a single message in a chat request.
// Prefix marks an assistant message as an unfinished prefix the model must
// continue rather than a completed turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Prefix  bool   `json:"prefix,omitempty"`
}

// ResponseFormat constrains the output mode of a request.
type ResponseFormat struct {
	Type string `json:"type"`
}

// WireRequest is the exact body sent to a chat or completion endpoint.
// Exactly one of Messages or Prompt is set. Params holds provider-generic
// sampling parameters; the typed fields take precedence on collision.
type WireRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages,omitempty"`
	Prompt         *string         `json:"prompt,omitempty"`
	Stream         bool            `json:"stream"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Params         map[string]any  `json:"-"`
}

// MarshalJSON flattens Params and the typed fields into one JSON object.
func (r WireRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Params)+6)
	maps.Copy(out, r.Params)

	out["model"] = r.Model
	if r.Messages != nil {
		out["messages"] = r.Messages
	}
	if r.Prompt != nil {
		out["prompt"] = *r.Prompt
	}
	out["stream"] = r.Stream
	out["max_tokens"] = r.MaxTokens
	if r.ResponseFormat != nil {
		out["response_format"] = r.ResponseFormat
	} else {
		delete(out, "response_format")
	}
	return json.Marshal(out)
}
