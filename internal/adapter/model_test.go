package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmdeepseek/internal/core"
	"llmdeepseek/internal/translator"
)

const chatStream = `data: {"choices":[{"delta":{"role":"assistant","content":""}}]}

data: {"choices":[{"delta":{"content":"Hel"}}]}

data: {"choices":[{"delta":{"content":"lo, "}}]}

data: {"choices":[{"delta":{"content":"world"}}]}

data: [DONE]

`

// captured is what the fake provider saw.
type captured struct {
	path      string
	auth      string
	requestID string
	body      map[string]any
}

// trackingBody records whether the response body was closed.
type trackingBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *trackingBody) Close() error {
	b.closed.Store(true)
	return nil
}

// roundTripper serves canned responses without a network listener.
type roundTripper func(*http.Request) (*http.Response, error)

func (f roundTripper) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newProvider(t *testing.T, status int, body string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if got != nil {
			got.path = r.URL.Path
			got.auth = r.Header.Get("Authorization")
			got.requestID = r.Header.Get("X-Client-Request-Id")
			_ = json.Unmarshal(raw, &got.body)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func modelFor(baseURL string, kind core.Kind, client *http.Client) *Model {
	a := New(Config{Provider: "deepseek", APIBase: baseURL}, &mockCatalog{}, mockCreds{"deepseek": "sk-test"}, client)
	return a.Model(NewVariant(kind, "deepseek-chat", baseURL))
}

func TestExecute_Streaming(t *testing.T) {
	var got captured
	srv := newProvider(t, http.StatusOK, chatStream, &got)
	m := modelFor(srv.URL, core.KindChat, srv.Client())

	ctx := core.WithRequestID(context.Background(), "req-123")
	resp, err := m.Execute(ctx, "p3", ExecuteOptions{
		Stream:       true,
		Conversation: core.Turns{{Prompt: "u1", Response: "a1"}},
		Options:      translator.Options{Prefill: "X", Params: map[string]any{"temperature": 0.2, "max_tokens": 99}},
	})
	require.NoError(t, err)
	assert.Equal(t, StateSent, resp.State())

	var fragments []string
	for f, err := range resp.Chunks() {
		require.NoError(t, err)
		fragments = append(fragments, f)
	}

	assert.Equal(t, []string{"Hel", "lo, ", "world"}, fragments)
	assert.Equal(t, "Hello, world", resp.Text())
	assert.Equal(t, StateFinalized, resp.State())
	assert.NoError(t, resp.Err())

	assert.Equal(t, "/chat/completions", got.path)
	assert.Equal(t, "Bearer sk-test", got.auth)
	assert.Equal(t, "req-123", got.requestID)
	assert.Equal(t, "deepseek-chat", got.body["model"])
	assert.Equal(t, true, got.body["stream"])
	assert.Equal(t, float64(8192), got.body["max_tokens"])
	assert.Equal(t, 0.2, got.body["temperature"])
	assert.NotContains(t, got.body, "prefill")

	messages := got.body["messages"].([]any)
	require.Len(t, messages, 4)
	assert.Equal(t, map[string]any{"role": "assistant", "content": "X", "prefix": true}, messages[3])

	var sent map[string]any
	require.NoError(t, json.Unmarshal(resp.RequestBody(), &sent))
	assert.Equal(t, got.body, sent, "RequestBody is the exact payload sent")
}

func TestExecute_NonStreaming(t *testing.T) {
	var got captured
	srv := newProvider(t, http.StatusOK, `{"choices":[{"index":0,"text":"completed text"}]}`, &got)
	m := modelFor(srv.URL, core.KindCompletion, srv.Client())

	resp, err := m.Execute(context.Background(), "p3", ExecuteOptions{
		Conversation: core.Turns{{Prompt: "u1", Response: "a1"}},
	})
	require.NoError(t, err)

	var fragments []string
	for f, err := range resp.Chunks() {
		require.NoError(t, err)
		fragments = append(fragments, f)
	}

	assert.Equal(t, []string{"completed text"}, fragments)
	assert.Equal(t, "completed text", resp.Text())
	assert.Equal(t, StateFinalized, resp.State())
	assert.Equal(t, "/completions", got.path)
	assert.Equal(t, "u1\na1\np3", got.body["prompt"])
	assert.Equal(t, false, got.body["stream"])
	assert.NotEmpty(t, got.requestID, "a request id is generated when the context has none")
	assert.Equal(t, resp.RequestID(), got.requestID)
}

func TestExecute_ProviderErrorStatus(t *testing.T) {
	srv := newProvider(t, http.StatusUnauthorized, `{"error":{"message":"Authentication Fails","type":"authentication_error"}}`, nil)
	m := modelFor(srv.URL, core.KindChat, srv.Client())

	for _, stream := range []bool{true, false} {
		resp, err := m.Execute(context.Background(), "hi", ExecuteOptions{Stream: stream})
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.True(t, core.IsProviderError(err))
		assert.Contains(t, err.Error(), "Authentication Fails")
	}
}

func TestExecute_TransportError(t *testing.T) {
	srv := newProvider(t, http.StatusOK, "", nil)
	url := srv.URL
	srv.Close()

	m := modelFor(url, core.KindChat, nil)
	_, err := m.Execute(context.Background(), "hi", ExecuteOptions{Stream: true})
	require.Error(t, err)
	assert.True(t, core.IsProviderError(err))
}

func TestExecute_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := modelFor(srv.URL, core.KindChat, srv.Client())
	_, err := m.Execute(context.Background(), "hi", ExecuteOptions{Stream: true})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_MissingCredential(t *testing.T) {
	a := New(Config{Provider: "deepseek", APIBase: "http://unused"}, &mockCatalog{}, mockCreds{}, nil)
	_, err := a.Model(NewVariant(core.KindChat, "x", "http://unused")).Execute(context.Background(), "hi", ExecuteOptions{})
	require.Error(t, err)
	var adapterErr *core.AdapterError
	require.True(t, errors.As(err, &adapterErr))
	assert.Equal(t, core.ErrorTypeInvalidRequest, adapterErr.Type)
}

func TestExecute_StreamAborted(t *testing.T) {
	srv := newProvider(t, http.StatusOK, "data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n", nil)
	m := modelFor(srv.URL, core.KindChat, srv.Client())

	resp, err := m.Execute(context.Background(), "hi", ExecuteOptions{Stream: true})
	require.NoError(t, err)

	var fragments []string
	var streamErr error
	for f, err := range resp.Chunks() {
		if err != nil {
			streamErr = err
			break
		}
		fragments = append(fragments, f)
	}

	assert.Equal(t, []string{"par"}, fragments)
	assert.ErrorIs(t, streamErr, core.ErrStreamAborted)
	assert.Equal(t, StateFailed, resp.State())
	assert.Equal(t, "par", resp.Text())
	assert.ErrorIs(t, resp.Err(), core.ErrStreamAborted)
}

func trackingClient(body *trackingBody) *http.Client {
	return &http.Client{Transport: roundTripper(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
			Body:       body,
			Request:    r,
		}, nil
	})}
}

func TestChunks_EarlyBreakClosesBody(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(chatStream)}
	m := modelFor("http://provider.test", core.KindChat, trackingClient(body))

	resp, err := m.Execute(context.Background(), "hi", ExecuteOptions{Stream: true})
	require.NoError(t, err)

	for f, err := range resp.Chunks() {
		require.NoError(t, err)
		assert.Equal(t, "Hel", f)
		break
	}

	assert.True(t, body.closed.Load(), "body must be closed after an early break")
	assert.Equal(t, StateAbandoned, resp.State())
	assert.Equal(t, "Hel", resp.Text())
}

func TestChunks_ExhaustionClosesBody(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(chatStream)}
	m := modelFor("http://provider.test", core.KindChat, trackingClient(body))

	resp, err := m.Execute(context.Background(), "hi", ExecuteOptions{Stream: true})
	require.NoError(t, err)
	for range resp.Chunks() {
	}
	assert.True(t, body.closed.Load())
	assert.Equal(t, StateFinalized, resp.State())
}

func TestChunks_SingleUse(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(chatStream)}
	m := modelFor("http://provider.test", core.KindChat, trackingClient(body))

	resp, err := m.Execute(context.Background(), "hi", ExecuteOptions{Stream: true})
	require.NoError(t, err)
	for range resp.Chunks() {
	}

	for _, err := range resp.Chunks() {
		assert.ErrorIs(t, err, ErrConsumed)
	}
	assert.Equal(t, "Hello, world", resp.Text())
}

func TestClose_UnreadResponse(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(chatStream)}
	m := modelFor("http://provider.test", core.KindChat, trackingClient(body))

	resp, err := m.Execute(context.Background(), "hi", ExecuteOptions{Stream: true})
	require.NoError(t, err)
	require.NoError(t, resp.Close())

	assert.True(t, body.closed.Load())
	assert.Equal(t, StateAbandoned, resp.State())
}

func TestIsValidClientRequestID(t *testing.T) {
	assert.True(t, isValidClientRequestID("123e4567-e89b-12d3-a456-426614174000"))
	assert.False(t, isValidClientRequestID("héllo"))
	assert.False(t, isValidClientRequestID(strings.Repeat("a", 513)))
}
