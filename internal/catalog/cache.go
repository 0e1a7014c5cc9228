// Package catalog discovers which models the provider offers. The catalog is
// fetched over HTTP and persisted so that later runs within the freshness
// window, or runs without network access, can reuse it.
package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"llmdeepseek/internal/core"
	"llmdeepseek/internal/observability"
)

// Sources reported to metrics.
const (
	SourceFresh       = "fresh_cache"
	SourceNetwork     = "network"
	SourceStale       = "stale_cache"
	SourceUnavailable = "unavailable"
)

// Config describes where the catalog comes from and how long it stays fresh.
type Config struct {
	URL             string
	Headers         map[string]string
	FreshnessWindow time.Duration
}

// Cache is a time-bounded catalog cache with stale fallback.
// It is safe for concurrent use; concurrent refreshes race benignly and the
// last writer wins.
type Cache struct {
	cfg     Config
	store   Store
	client  *http.Client
	now     func() time.Time
	metrics *observability.Metrics
}

var _ core.CatalogSource = (*Cache)(nil)

// New creates a Cache. If client is nil, http.DefaultClient is used.
func New(cfg Config, store Store, client *http.Client) *Cache {
	if client == nil {
		client = http.DefaultClient
	}
	return &Cache{
		cfg:    cfg,
		store:  store,
		client: client,
		now:    time.Now,
	}
}

// SetClock replaces the time source used for freshness checks.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// SetMetrics attaches metrics. A nil value disables them.
func (c *Cache) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// Location describes where the catalog is persisted.
func (c *Cache) Location() string {
	return c.store.Location()
}

// Fetch returns the catalog entries in provider order.
//
// A snapshot younger than the freshness window is returned without touching
// the network. Otherwise one GET is attempted; on success the raw body is
// persisted and returned. If that fails any stored snapshot is used regardless
// of age. Only when there is neither does Fetch fail, with a
// core.ErrorTypeCatalogUnavailable error.
func (c *Cache) Fetch(ctx context.Context) ([]core.CatalogEntry, error) {
	snap, err := c.store.Load(ctx)
	if err != nil {
		slog.Warn("failed to read catalog cache", "location", c.store.Location(), "error", err)
		snap = nil
	}

	if snap != nil && c.now().Sub(snap.FetchedAt) < c.cfg.FreshnessWindow {
		entries, err := Parse(snap.Raw)
		if err == nil {
			c.metrics.CatalogLookup(SourceFresh)
			return entries, nil
		}
		slog.Warn("ignoring unreadable catalog cache", "location", c.store.Location(), "error", err)
		snap = nil
	}

	entries, raw, fetchErr := download(ctx, c.client, c.cfg.URL, c.cfg.Headers)
	if fetchErr == nil {
		if err := c.store.Save(ctx, raw); err != nil {
			slog.Warn("failed to persist catalog", "location", c.store.Location(), "error", err)
		}
		c.metrics.CatalogLookup(SourceNetwork)
		slog.Debug("catalog fetched", "url", c.cfg.URL, "models", len(entries))
		return entries, nil
	}

	if snap != nil {
		if entries, err := Parse(snap.Raw); err == nil {
			slog.Warn("catalog fetch failed, using cached copy",
				"url", c.cfg.URL,
				"error", fetchErr,
				"age", c.now().Sub(snap.FetchedAt).Round(time.Second),
			)
			c.metrics.CatalogLookup(SourceStale)
			return entries, nil
		}
	}

	c.metrics.CatalogLookup(SourceUnavailable)
	return nil, core.NewCatalogUnavailableError(c.store.Location(), fetchErr)
}
