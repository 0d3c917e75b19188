package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Search("ok", 2*time.Second, false)
	m.Search("ok", 0, true)
	m.CacheLookup("memory", true)
	m.CacheLookup("redis", false)
	m.SourceScan("ss", 40, nil)
	m.SourceScan("osta", 0, errors.New("timeout"))
	m.Enrichment("ss", 20, 18)
	m.HTTPRequest("/api/search", http.StatusOK)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Searches.WithLabelValues("ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SearchDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("memory", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("redis", "miss")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.ScannedStubs.WithLabelValues("ss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceScans.WithLabelValues("osta", "error")))
	assert.Equal(t, 18.0, testutil.ToFloat64(m.Enriched.WithLabelValues("ss", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Enriched.WithLabelValues("ss", "dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/search", "200")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.Search("failed", time.Second, false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `secondhand_searches_total{outcome="failed"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Search("ok", time.Second, false)
		m.CacheLookup("memory", true)
		m.SourceScan("ss", 1, nil)
		m.Enrichment("ss", 1, 1)
		m.HTTPRequest("/", 200)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
