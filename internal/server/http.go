package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmdeepseek/config"
	"llmdeepseek/internal/core"
)

// requestIDHeader carries a caller-chosen request id through to the provider.
const requestIDHeader = "X-Request-Id"

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	MasterKey      string // Optional: Master key for authentication
	MetricsEnabled bool   // Whether to expose the Prometheus metrics endpoint
	// MetricsGatherer backs /metrics. Nil means the default registry.
	MetricsGatherer prometheus.Gatherer
	BodySizeLimit   int64 // Max request body size in bytes (default: 1MB)
}

// New creates a new HTTP server
func New(models Models, cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(models)

	authSkipPaths := []string{"/health"}
	if cfg != nil && cfg.MetricsEnabled {
		authSkipPaths = append(authSkipPaths, "/metrics")
	}

	// Global middleware stack (order matters)
	e.Use(middleware.Recover())
	e.Use(RequestIDMiddleware())

	bodySizeLimit := config.DefaultBodySizeLimit
	if cfg != nil && cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodySizeLimit, 10) + "B"))

	if cfg != nil && cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, authSkipPaths))
	}

	// Public routes
	e.GET("/health", handler.Health)
	if cfg != nil && cfg.MetricsEnabled {
		var metrics http.Handler = promhttp.Handler()
		if cfg.MetricsGatherer != nil {
			metrics = promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{})
		}
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	// API routes
	e.GET("/v1/models", handler.ListModels)
	e.POST("/v1/prompt", handler.Prompt)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// RequestIDMiddleware puts the caller's X-Request-Id, or a generated id, on
// the request context and echoes it in the response.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if id := c.Request().Header.Get(requestIDHeader); id != "" {
				ctx = core.WithRequestID(ctx, id)
			}
			ctx, id := core.EnsureRequestID(ctx)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(requestIDHeader, id)
			return next(c)
		}
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
