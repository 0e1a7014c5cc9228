// Package observability exposes Prometheus metrics for catalog lookups,
// provider requests and executions.
package observability

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"llmdeepseek/internal/llmclient"
)

const namespace = "llmdeepseek"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec
	catalogLookups  *prometheus.CounterVec
	executions      *prometheus.CounterVec
	fragments       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on promhttp.Handler().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Requests sent to the provider by endpoint and HTTP status.",
		}, []string{"provider", "endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Time until the provider's response headers arrived.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider", "endpoint"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_requests_in_flight",
			Help:      "Requests waiting for response headers.",
		}, []string{"provider"}),
		catalogLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lookups_total",
			Help:      "Catalog lookups by the source that satisfied them.",
		}, []string{"source"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Prompt executions by variant kind and outcome.",
		}, []string{"kind", "outcome"}),
		fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_fragments_total",
			Help:      "Text fragments forwarded to callers.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.requestDuration, m.inFlight, m.catalogLookups, m.executions, m.fragments)
	}
	return m
}

// Hooks returns llmclient hooks that feed the request metrics.
func (m *Metrics) Hooks() llmclient.Hooks {
	if m == nil {
		return llmclient.Hooks{}
	}
	return llmclient.Hooks{
		OnRequestStart: func(_ context.Context, info llmclient.RequestInfo) {
			m.inFlight.WithLabelValues(info.Provider).Inc()
		},
		OnRequestEnd: func(_ context.Context, info llmclient.ResponseInfo) {
			m.inFlight.WithLabelValues(info.Provider).Dec()
			status := "error"
			if info.StatusCode != 0 {
				status = strconv.Itoa(info.StatusCode)
			}
			m.requests.WithLabelValues(info.Provider, info.Endpoint, status).Inc()
			m.requestDuration.WithLabelValues(info.Provider, info.Endpoint).Observe(info.Duration.Seconds())
		},
	}
}

// CatalogLookup records which source served a catalog fetch.
func (m *Metrics) CatalogLookup(source string) {
	if m == nil {
		return
	}
	m.catalogLookups.WithLabelValues(source).Inc()
}

// Execution records the outcome of one execution.
func (m *Metrics) Execution(kind, outcome string) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(kind, outcome).Inc()
}

// Fragment records one forwarded stream fragment.
func (m *Metrics) Fragment(kind string) {
	if m == nil {
		return
	}
	m.fragments.WithLabelValues(kind).Inc()
}
