package observability

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"llmdeepseek/internal/llmclient"
)

func TestMetrics_Hooks(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	hooks := m.Hooks()

	info := llmclient.RequestInfo{Provider: "deepseek", Endpoint: "/chat/completions", Stream: true}
	hooks.OnRequestStart(context.Background(), info)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight.WithLabelValues("deepseek")))

	hooks.OnRequestEnd(context.Background(), llmclient.ResponseInfo{
		RequestInfo: info,
		StatusCode:  http.StatusOK,
		Duration:    120 * time.Millisecond,
	})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight.WithLabelValues("deepseek")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("deepseek", "/chat/completions", "200")))

	hooks.OnRequestStart(context.Background(), info)
	hooks.OnRequestEnd(context.Background(), llmclient.ResponseInfo{RequestInfo: info})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("deepseek", "/chat/completions", "error")))
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.CatalogLookup("network")
	m.CatalogLookup("network")
	m.Execution("chat", "finalized")
	m.Fragment("chat")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.catalogLookups.WithLabelValues("network")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("chat", "finalized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fragments.WithLabelValues("chat")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.CatalogLookup("network")
	m.Execution("chat", "failed")
	m.Fragment("chat")
	hooks := m.Hooks()
	assert.Nil(t, hooks.OnRequestStart)
	assert.Nil(t, hooks.OnRequestEnd)
}
