// Package core provides the shared types, interfaces and error taxonomy of the adapter.
package core

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeCatalogUnavailable indicates that neither the network nor a cached
	// catalog could supply the model list
	ErrorTypeCatalogUnavailable ErrorType = "catalog_unavailable"
	// ErrorTypeProvider indicates a transport or HTTP fault talking to the provider
	ErrorTypeProvider ErrorType = "provider_error"
	// ErrorTypeInvalidRequest indicates a request that could not be built locally
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeNotFound indicates an unknown model id or alias
	ErrorTypeNotFound ErrorType = "not_found_error"
)

// ErrStreamAborted is wrapped by the provider error returned when a stream ends
// before the provider sent its terminating event.
var ErrStreamAborted = errors.New("stream ended before completion")

// AdapterError is the base error type for all adapter errors
type AdapterError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Provider   string    `json:"provider,omitempty"`
	// Path is the catalog cache location for catalog errors
	Path string `json:"path,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *AdapterError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, msg)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap implements the error unwrapping interface
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *AdapterError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeCatalogUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *AdapterError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewCatalogUnavailableError creates the error returned when no catalog data exists
// on the network or at path.
func NewCatalogUnavailableError(path string, err error) *AdapterError {
	return &AdapterError{
		Type:    ErrorTypeCatalogUnavailable,
		Message: fmt.Sprintf("failed to download catalog and no cache is available at %s", path),
		Path:    path,
		Err:     err,
	}
}

// NewProviderError creates a new provider error
func NewProviderError(provider string, statusCode int, message string, err error) *AdapterError {
	return &AdapterError{
		Type:       ErrorTypeProvider,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Err:        err,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *AdapterError {
	return &AdapterError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *AdapterError {
	return &AdapterError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// ParseProviderError builds a provider error from an HTTP error response.
// The provider's own message is preferred over the raw body when present.
func ParseProviderError(provider string, statusCode int, body []byte) *AdapterError {
	message := string(body)
	if m := gjson.GetBytes(body, "error.message"); m.Exists() && m.String() != "" {
		message = m.String()
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	status := statusCode
	if status < 400 || status >= 500 {
		status = http.StatusBadGateway
	}
	return NewProviderError(provider, status, message, fmt.Errorf("upstream status %d", statusCode))
}

// IsCatalogUnavailable reports whether err is, or wraps, a catalog unavailable error.
func IsCatalogUnavailable(err error) bool {
	var adapterErr *AdapterError
	return errors.As(err, &adapterErr) && adapterErr.Type == ErrorTypeCatalogUnavailable
}

// IsProviderError reports whether err is, or wraps, a provider error.
func IsProviderError(err error) bool {
	var adapterErr *AdapterError
	return errors.As(err, &adapterErr) && adapterErr.Type == ErrorTypeProvider
}
