package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAdapterError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AdapterError
		expected string
	}{
		{
			name: "error with provider",
			err: &AdapterError{
				Type:     ErrorTypeProvider,
				Message:  "upstream error",
				Provider: "deepseek",
			},
			expected: "[deepseek] provider_error: upstream error",
		},
		{
			name: "error without provider",
			err: &AdapterError{
				Type:    ErrorTypeInvalidRequest,
				Message: "bad request",
			},
			expected: "invalid_request_error: bad request",
		},
		{
			name: "error with cause",
			err: &AdapterError{
				Type:    ErrorTypeCatalogUnavailable,
				Message: "no catalog",
				Err:     errors.New("dial tcp: refused"),
			},
			expected: "catalog_unavailable: no catalog: dial tcp: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAdapterError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	adapterErr := &AdapterError{
		Type:    ErrorTypeProvider,
		Message: "wrapped error",
		Err:     originalErr,
	}

	if !errors.Is(adapterErr, originalErr) {
		t.Errorf("errors.Is(%v, %v) = false, want true", adapterErr, originalErr)
	}
}

func TestAdapterError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *AdapterError
		expected int
	}{
		{"explicit status code", &AdapterError{Type: ErrorTypeProvider, StatusCode: http.StatusServiceUnavailable}, http.StatusServiceUnavailable},
		{"invalid request default", &AdapterError{Type: ErrorTypeInvalidRequest}, http.StatusBadRequest},
		{"not found default", &AdapterError{Type: ErrorTypeNotFound}, http.StatusNotFound},
		{"catalog unavailable default", &AdapterError{Type: ErrorTypeCatalogUnavailable}, http.StatusServiceUnavailable},
		{"provider error default", &AdapterError{Type: ErrorTypeProvider}, http.StatusBadGateway},
		{"unknown error type", &AdapterError{Type: ErrorType("unknown")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAdapterError_ToJSON(t *testing.T) {
	err := &AdapterError{
		Type:    ErrorTypeNotFound,
		Message: "unknown model",
	}

	errorData, ok := err.ToJSON()["error"].(map[string]interface{})
	if !ok {
		t.Fatal("ToJSON() should return map with 'error' key")
	}
	if errorData["type"] != ErrorTypeNotFound {
		t.Errorf("ToJSON() type = %v, want %v", errorData["type"], ErrorTypeNotFound)
	}
	if errorData["message"] != "unknown model" {
		t.Errorf("ToJSON() message = %v, want %v", errorData["message"], "unknown model")
	}
}

func TestNewCatalogUnavailableError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewCatalogUnavailableError("/tmp/llm/deepseek_models.json", cause)

	if err.Type != ErrorTypeCatalogUnavailable {
		t.Errorf("Type = %v, want %v", err.Type, ErrorTypeCatalogUnavailable)
	}
	if err.Path != "/tmp/llm/deepseek_models.json" {
		t.Errorf("Path = %q", err.Path)
	}
	if !strings.Contains(err.Error(), "/tmp/llm/deepseek_models.json") {
		t.Errorf("Error() = %q, want it to mention the cache path", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to be unwrappable")
	}
	if !IsCatalogUnavailable(fmt.Errorf("registering: %w", err)) {
		t.Error("IsCatalogUnavailable should see through wrapping")
	}
	if IsProviderError(err) {
		t.Error("catalog error must not be classified as a provider error")
	}
}

func TestParseProviderError(t *testing.T) {
	tests := []struct {
		name           string
		statusCode     int
		body           string
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:           "json error body",
			statusCode:     http.StatusUnauthorized,
			body:           `{"error":{"message":"Authentication Fails","type":"authentication_error"}}`,
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "Authentication Fails",
		},
		{
			name:           "plain body",
			statusCode:     http.StatusBadRequest,
			body:           "bad things",
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "bad things",
		},
		{
			name:           "server error maps to bad gateway",
			statusCode:     http.StatusServiceUnavailable,
			body:           "",
			expectedStatus: http.StatusBadGateway,
			expectedMsg:    "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseProviderError("deepseek", tt.statusCode, []byte(tt.body))
			if err.Type != ErrorTypeProvider {
				t.Errorf("Type = %v, want %v", err.Type, ErrorTypeProvider)
			}
			if err.StatusCode != tt.expectedStatus {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.expectedStatus)
			}
			if err.Message != tt.expectedMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.expectedMsg)
			}
			if !IsProviderError(err) {
				t.Error("IsProviderError() = false, want true")
			}
		})
	}
}
