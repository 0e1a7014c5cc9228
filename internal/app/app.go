// Package app wires configuration into the catalog cache, the adapter, the
// model registry and the HTTP server, and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"llmdeepseek/config"
	"llmdeepseek/internal/adapter"
	"llmdeepseek/internal/catalog"
	"llmdeepseek/internal/core"
	"llmdeepseek/internal/credentials"
	"llmdeepseek/internal/httpclient"
	"llmdeepseek/internal/observability"
	"llmdeepseek/internal/registry"
	"llmdeepseek/internal/server"
)

// App represents the main application with all its dependencies.
type App struct {
	config  *config.Config
	store   catalog.Store
	catalog *catalog.Cache
	adapter *adapter.Adapter
	models  *registry.ModelRegistry
	metrics *observability.Metrics
	gather  prometheus.Gatherer

	registerOnce sync.Once

	serverMu sync.Mutex
	server   *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Options holds the non-configuration inputs of New.
type Options struct {
	// Registry receives the metrics. Nil means a private registry.
	Registry *prometheus.Registry
	// Credentials overrides the keys.json / environment lookup.
	Credentials core.CredentialSource
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app config is required")
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics := observability.NewMetrics(reg)

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog store: %w", err)
	}

	clientCfg := httpclient.DefaultConfig().WithTimeouts(cfg.HTTP.Timeout, cfg.HTTP.ResponseHeaderTimeout)
	httpClient := httpclient.NewHTTPClient(&clientCfg)

	cache := catalog.New(catalog.Config{
		URL:             cfg.Catalog.URL,
		Headers:         cfg.Catalog.Headers,
		FreshnessWindow: cfg.Catalog.FreshnessWindow,
	}, store, httpClient)
	cache.SetMetrics(metrics)

	creds := opts.Credentials
	if creds == nil {
		creds = credentials.New(cfg.Catalog.UserDir, map[string]string{
			cfg.Provider.Name: cfg.Provider.KeyEnvVar,
		})
	}

	a := adapter.New(adapter.Config{
		Provider: cfg.Provider.Name,
		APIBase:  cfg.Provider.APIBase,
	}, cache, creds, httpClient)
	a.SetMetrics(metrics)

	return &App{
		config:  cfg,
		store:   store,
		catalog: cache,
		adapter: a,
		models:  registry.New(),
		metrics: metrics,
		gather:  reg,
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config) (catalog.Store, error) {
	switch cfg.Catalog.Backend {
	case config.BackendRedis:
		store, err := catalog.NewRedisStore(ctx, catalog.RedisConfig{
			URL: cfg.Catalog.Redis.URL,
			Key: cfg.Catalog.Redis.Key,
			TTL: cfg.Catalog.Redis.TTL,
		}, cfg.Catalog.URL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return catalog.NewFileStore(cfg.Catalog.CachePath()), nil
	}
}

// Adapter returns the model adapter.
func (a *App) Adapter() *adapter.Adapter {
	return a.adapter
}

// CatalogLocation describes where the catalog is persisted.
func (a *App) CatalogLocation() string {
	return a.catalog.Location()
}

// Models registers the adapter's models on first use and returns the table.
func (a *App) Models(ctx context.Context) *registry.ModelRegistry {
	a.registerOnce.Do(func() {
		a.adapter.Register(ctx, a.models)
	})
	return a.models
}

// Start registers models and serves HTTP on addr.
// This is a blocking call that returns when the server stops.
func (a *App) Start(ctx context.Context, addr string) error {
	models := a.Models(ctx)
	if models.ModelCount() == 0 {
		slog.Warn("no models registered; check the API key and catalog", "catalog", a.CatalogLocation())
	}

	srv := server.New(models, &server.Config{
		MasterKey:       a.config.Server.MasterKey,
		MetricsEnabled:  a.config.Server.MetricsEnabled,
		MetricsGatherer: a.gather,
		BodySizeLimit:   a.config.Server.BodySizeLimit,
	})
	a.serverMu.Lock()
	a.server = srv
	a.serverMu.Unlock()

	slog.Info("starting server", "address", addr, "models", models.ModelCount())
	if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler without listening, for tests and embedding.
func (a *App) Handler(ctx context.Context) http.Handler {
	return server.New(a.Models(ctx), &server.Config{
		MasterKey:       a.config.Server.MasterKey,
		MetricsEnabled:  a.config.Server.MetricsEnabled,
		MetricsGatherer: a.gather,
		BodySizeLimit:   a.config.Server.BodySizeLimit,
	})
}

// Shutdown stops the HTTP server, then closes the catalog store.
// It is idempotent and returns the joined errors of every step.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	defer a.shutdownMu.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	var errs []error
	a.serverMu.Lock()
	srv := a.server
	a.serverMu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("catalog store close: %w", err))
	}
	return errors.Join(errs...)
}
