package adapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"llmdeepseek/internal/core"
	"llmdeepseek/internal/llmclient"
	"llmdeepseek/internal/translator"
)

// maxClientRequestIDLen bounds the forwarded request id header.
const maxClientRequestIDLen = 512

// ExecuteOptions are the per-call inputs besides the prompt.
type ExecuteOptions struct {
	Stream       bool
	Conversation core.Conversation
	Options      translator.Options
}

// Model is a registered, executable variant.
type Model struct {
	variant Variant
	adapter *Adapter
}

// Variant returns the variant the model executes.
func (m *Model) Variant() Variant {
	return m.variant
}

// ID returns the public model id.
func (m *Model) ID() string {
	return m.variant.PublicID
}

// Execute sends one request for prompt. Errors building or sending the
// request are returned directly; the response text is read through the
// returned Response. Nothing is retried.
func (m *Model) Execute(ctx context.Context, prompt string, opts ExecuteOptions) (*Response, error) {
	ctx, requestID := core.EnsureRequestID(ctx)
	a := m.adapter
	v := m.variant
	resp := newResponse(m, requestID, opts.Stream)

	key, ok := a.apiKey()
	if !ok {
		return nil, resp.fail(core.NewInvalidRequestError("no API key configured for "+a.cfg.Provider, nil))
	}

	wire, err := translator.Build(v.Kind, v.ProviderModelName, prompt, opts.Conversation, opts.Options, opts.Stream)
	if err != nil {
		return nil, resp.fail(err)
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, resp.fail(core.NewInvalidRequestError("failed to marshal request", err))
	}
	resp.requestBody = body

	client := llmclient.NewWithHTTPClient(a.httpClient, llmclient.Config{
		ProviderName: a.cfg.Provider,
		BaseURL:      v.APIBase,
		Hooks:        a.metrics.Hooks(),
	}, func(req *http.Request) {
		setHeaders(req, key)
	})
	req := llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: translator.Endpoint(v.Kind),
		Body:     body,
	}

	slog.Debug("executing prompt",
		"model", v.PublicID,
		"request_id", requestID,
		"stream", opts.Stream,
	)
	resp.state = StateSent

	if opts.Stream {
		stream, err := client.DoStream(ctx, req)
		if err != nil {
			return nil, resp.fail(err)
		}
		resp.body = stream
		return resp, nil
	}

	raw, err := client.DoRaw(ctx, req)
	if err != nil {
		return nil, resp.fail(err)
	}
	text, err := translator.CompletionText(raw.Body, v.Kind, a.cfg.Provider)
	if err != nil {
		return nil, resp.fail(err)
	}
	resp.body = io.NopCloser(nil)
	resp.pending = text
	return resp, nil
}

// setHeaders authenticates the request and forwards the request id.
func setHeaders(req *http.Request, key string) {
	req.Header.Set("Authorization", "Bearer "+key)
	if id := core.GetRequestID(req.Context()); id != "" && isValidClientRequestID(id) {
		req.Header.Set("X-Client-Request-Id", id)
	}
}

// isValidClientRequestID accepts printable ASCII ids up to 512 bytes.
func isValidClientRequestID(id string) bool {
	if len(id) > maxClientRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x20 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
