// Package adapter exposes the provider's catalog as registrable model variants
// and executes prompts against them.
package adapter

import (
	"context"
	"log/slog"
	"net/http"

	"llmdeepseek/internal/core"
	"llmdeepseek/internal/observability"
)

// Config holds the adapter settings.
type Config struct {
	// Provider is the credential name. It also labels errors and metrics.
	Provider string
	// APIBase is the root URL the chat and completion paths are appended to.
	APIBase string
}

// Registrar receives registered models from Register.
type Registrar interface {
	Register(m *Model, aliases ...string) error
}

// RegisterFunc adapts a function to Registrar.
type RegisterFunc func(m *Model, aliases ...string) error

// Register implements Registrar.
func (f RegisterFunc) Register(m *Model, aliases ...string) error {
	return f(m, aliases...)
}

// Adapter turns catalog entries into executable models.
type Adapter struct {
	cfg        Config
	catalog    core.CatalogSource
	creds      core.CredentialSource
	httpClient *http.Client
	metrics    *observability.Metrics
}

// New creates an Adapter. If httpClient is nil, http.DefaultClient is used.
func New(cfg Config, catalog core.CatalogSource, creds core.CredentialSource, httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Adapter{
		cfg:        cfg,
		catalog:    catalog,
		creds:      creds,
		httpClient: httpClient,
	}
}

// SetMetrics attaches metrics. A nil value disables them.
func (a *Adapter) SetMetrics(m *observability.Metrics) {
	a.metrics = m
}

// Provider returns the credential name the adapter looks up.
func (a *Adapter) Provider() string {
	return a.cfg.Provider
}

// HasCredential reports whether an API key is configured.
func (a *Adapter) HasCredential() bool {
	_, ok := a.apiKey()
	return ok
}

func (a *Adapter) apiKey() (string, bool) {
	if a.creds == nil {
		return "", false
	}
	key, ok := a.creds.Get(a.cfg.Provider)
	return key, ok && key != ""
}

// ListVariants returns two variants per catalog entry in catalog order.
// Without a credential it returns nothing and does not touch the catalog.
func (a *Adapter) ListVariants(ctx context.Context) ([]Variant, error) {
	if !a.HasCredential() {
		return nil, nil
	}
	entries, err := a.catalog.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return VariantsFor(entries, a.cfg.APIBase), nil
}

// Register hands every variant to sink with its alias. Failures are logged,
// never returned: a missing credential registers nothing, an unavailable
// catalog registers nothing, and a rejected variant does not stop the rest.
func (a *Adapter) Register(ctx context.Context, sink Registrar) {
	if !a.HasCredential() {
		slog.Debug("no API key configured, skipping model registration", "provider", a.cfg.Provider)
		return
	}

	variants, err := a.ListVariants(ctx)
	if err != nil {
		if core.IsCatalogUnavailable(err) {
			slog.Warn("model catalog unavailable, no models registered", "provider", a.cfg.Provider, "error", err)
		} else {
			slog.Error("failed to list models", "provider", a.cfg.Provider, "error", err)
		}
		return
	}

	registered := 0
	for _, v := range variants {
		if err := sink.Register(a.Model(v), v.Alias()); err != nil {
			slog.Warn("failed to register model", "model", v.PublicID, "error", err)
			continue
		}
		registered++
	}
	slog.Debug("models registered", "provider", a.cfg.Provider, "count", registered)
}

// Model returns the executable model for v.
func (a *Adapter) Model(v Variant) *Model {
	return &Model{variant: v, adapter: a}
}
