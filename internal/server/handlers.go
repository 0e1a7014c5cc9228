// Package server exposes registered models over HTTP: listing, prompt
// execution with optional server-sent events, health and metrics.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"llmdeepseek/internal/adapter"
	"llmdeepseek/internal/core"
	"llmdeepseek/internal/registry"
	"llmdeepseek/internal/translator"
)

// Models is the registration table the handlers read.
type Models interface {
	Entries() []registry.Entry
	Resolve(name string) (*adapter.Model, error)
}

// Handler holds the HTTP handlers
type Handler struct {
	models Models
}

// NewHandler creates a new handler over models
func NewHandler(models Models) *Handler {
	return &Handler{models: models}
}

// ModelInfo is one element of the /v1/models listing.
type ModelInfo struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	OwnedBy string   `json:"owned_by"`
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Aliases []string `json:"aliases"`
}

// ModelsResponse is the body of GET /v1/models.
type ModelsResponse struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// TurnRequest is one prior exchange in a PromptRequest.
type TurnRequest struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// PromptRequest is the body of POST /v1/prompt.
type PromptRequest struct {
	Model          string         `json:"model"`
	Prompt         string         `json:"prompt"`
	Stream         bool           `json:"stream"`
	Prefill        string         `json:"prefill,omitempty"`
	ResponseFormat string         `json:"response_format,omitempty"`
	Conversation   []TurnRequest  `json:"conversation,omitempty"`
	Options        map[string]any `json:"options,omitempty"`
}

// PromptResponse is the body of a non-streamed POST /v1/prompt.
type PromptResponse struct {
	Model     string `json:"model"`
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	entries := h.models.Entries()
	resp := ModelsResponse{Object: "list", Data: make([]ModelInfo, 0, len(entries))}
	for _, e := range entries {
		v := e.Model.Variant()
		resp.Data = append(resp.Data, ModelInfo{
			ID:      v.PublicID,
			Object:  "model",
			OwnedBy: "deepseek",
			Name:    v.String(),
			Kind:    v.Kind.String(),
			Aliases: e.Aliases,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// Prompt handles POST /v1/prompt
func (h *Handler) Prompt(c echo.Context) error {
	var req PromptRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if req.Model == "" {
		return handleError(c, core.NewInvalidRequestError("model is required", nil))
	}

	model, err := h.models.Resolve(req.Model)
	if err != nil {
		return handleError(c, err)
	}

	turns := make(core.Turns, 0, len(req.Conversation))
	for _, t := range req.Conversation {
		turns = append(turns, core.Turn{Prompt: t.Prompt, Response: t.Response})
	}

	resp, err := model.Execute(c.Request().Context(), req.Prompt, adapter.ExecuteOptions{
		Stream:       req.Stream,
		Conversation: turns,
		Options: translator.Options{
			Prefill:        req.Prefill,
			ResponseFormat: req.ResponseFormat,
			Params:         req.Options,
		},
	})
	if err != nil {
		return handleError(c, err)
	}
	defer func() {
		_ = resp.Close()
	}()

	if req.Stream {
		return streamResponse(c, resp)
	}

	for _, err := range resp.Chunks() {
		if err != nil {
			return handleError(c, err)
		}
	}
	return c.JSON(http.StatusOK, PromptResponse{
		Model:     model.ID(),
		RequestID: resp.RequestID(),
		Text:      resp.Text(),
	})
}

// streamResponse relays fragments as server-sent events, ending with [DONE].
// A failure after the headers are sent is reported as an error event.
func streamResponse(c echo.Context, resp *adapter.Response) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for fragment, err := range resp.Chunks() {
		var payload any = map[string]string{"text": fragment}
		if err != nil {
			payload = errorBody(err)
		}
		data, mErr := json.Marshal(payload)
		if mErr != nil {
			return nil
		}
		if _, wErr := fmt.Fprintf(w, "data: %s\n\n", data); wErr != nil {
			// client went away; breaking out closes the upstream stream
			slog.Debug("client disconnected during stream", "request_id", resp.RequestID(), "error", wErr)
			return nil
		}
		w.Flush()
		if err != nil {
			return nil
		}
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	w.Flush()
	return nil
}

func errorBody(err error) map[string]interface{} {
	var adapterErr *core.AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.ToJSON()
	}
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	}
}

// handleError converts adapter errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var adapterErr *core.AdapterError
	if errors.As(err, &adapterErr) {
		return c.JSON(adapterErr.HTTPStatusCode(), adapterErr.ToJSON())
	}

	slog.Error("unexpected error", "error", err)
	return c.JSON(http.StatusInternalServerError, errorBody(err))
}
