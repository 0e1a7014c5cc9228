// Package llmclient provides the HTTP client used to talk to the provider:
//   - JSON request marshaling and response unmarshaling
//   - provider error parsing for non-2xx responses
//   - streaming responses handed back as an io.ReadCloser
//   - request hooks for metrics
//
// Requests are single-shot. Nothing in this package retries.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"llmdeepseek/internal/core"
	"llmdeepseek/internal/httpclient"
)

// maxErrorBodySize caps how much of an error response is read for parsing.
const maxErrorBodySize = 64 * 1024

// Config holds configuration for the LLM client
type Config struct {
	// ProviderName identifies the provider for error messages
	ProviderName string

	// BaseURL is the API base URL
	BaseURL string

	Hooks Hooks
}

// RequestInfo describes an outbound request to hooks.
type RequestInfo struct {
	Provider string
	Method   string
	Endpoint string
	Stream   bool
}

// ResponseInfo describes how a request ended. For streams it is reported once
// the response headers arrive, not when the body is drained.
type ResponseInfo struct {
	RequestInfo
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Hooks observe requests. Both fields are optional.
type Hooks struct {
	OnRequestStart func(ctx context.Context, info RequestInfo)
	OnRequestEnd   func(ctx context.Context, info ResponseInfo)
}

// HeaderSetter is a function that sets headers on an HTTP request
type HeaderSetter func(req *http.Request)

// Client is the HTTP client for one provider
type Client struct {
	httpClient   *http.Client
	config       Config
	headerSetter HeaderSetter
}

// New creates a new LLM client with the given configuration
func New(config Config, headerSetter HeaderSetter) *Client {
	return NewWithHTTPClient(httpclient.NewHTTPClient(nil), config, headerSetter)
}

// NewWithHTTPClient creates a new LLM client with a custom HTTP client
func NewWithHTTPClient(httpClient *http.Client, config Config, headerSetter HeaderSetter) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient:   httpClient,
		config:       config,
		headerSetter: headerSetter,
	}
}

// BaseURL returns the current base URL
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Request represents an HTTP request to be made
type Request struct {
	Method   string
	Endpoint string
	// Body is sent verbatim when it is a []byte, JSON marshaled otherwise.
	Body    any
	Headers map[string]string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// Do executes a request and unmarshals the response into result when it is non-nil
func (c *Client) Do(ctx context.Context, req Request, result any) error {
	resp, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to unmarshal response", err)
		}
	}
	return nil
}

// DoRaw executes a request and returns the raw response body
func (c *Client) DoRaw(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	info := c.requestInfo(req, false)
	start := c.start(ctx, info)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		perr := core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to send request", err)
		c.end(ctx, info, start, 0, perr)
		return nil, perr
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		perr := core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to read response", err)
		c.end(ctx, info, start, resp.StatusCode, perr)
		return nil, perr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := core.ParseProviderError(c.config.ProviderName, resp.StatusCode, body)
		c.end(ctx, info, start, resp.StatusCode, perr)
		return nil, perr
	}

	c.end(ctx, info, start, resp.StatusCode, nil)
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// DoStream executes a streaming request, returning the response body.
// The caller must close it; closing early releases the connection.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	info := c.requestInfo(req, true)
	start := c.start(ctx, info)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		perr := core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to send request", err)
		c.end(ctx, info, start, 0, perr)
		return nil, perr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		if readErr != nil {
			respBody = []byte("failed to read error response")
		}
		_ = resp.Body.Close()

		perr := core.ParseProviderError(c.config.ProviderName, resp.StatusCode, respBody)
		c.end(ctx, info, start, resp.StatusCode, perr)
		return nil, perr
	}

	c.end(ctx, info, start, resp.StatusCode, nil)
	return resp.Body, nil
}

// buildRequest creates an HTTP request from a Request
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := c.config.BaseURL + req.Endpoint

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, ok := req.Body.([]byte)
		if !ok {
			var err error
			bodyBytes, err = json.Marshal(req.Body)
			if err != nil {
				return nil, core.NewInvalidRequestError("failed to marshal request", err)
			}
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if c.headerSetter != nil {
		c.headerSetter(httpReq)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

func (c *Client) requestInfo(req Request, stream bool) RequestInfo {
	return RequestInfo{
		Provider: c.config.ProviderName,
		Method:   req.Method,
		Endpoint: req.Endpoint,
		Stream:   stream,
	}
}

func (c *Client) start(ctx context.Context, info RequestInfo) time.Time {
	if c.config.Hooks.OnRequestStart != nil {
		c.config.Hooks.OnRequestStart(ctx, info)
	}
	return time.Now()
}

func (c *Client) end(ctx context.Context, info RequestInfo, start time.Time, status int, err error) {
	if c.config.Hooks.OnRequestEnd == nil {
		return
	}
	c.config.Hooks.OnRequestEnd(ctx, ResponseInfo{
		RequestInfo: info,
		StatusCode:  status,
		Duration:    time.Since(start),
		Err:         err,
	})
}
