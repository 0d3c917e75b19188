package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secondhand-aggregator/metrics"
	"secondhand-aggregator/models"
	"secondhand-aggregator/scraper"
	"secondhand-aggregator/services"
	"secondhand-aggregator/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAdapter struct {
	id      string
	prices  []float64
	scanErr error
}

func (a *stubAdapter) ID() string   { return a.id }
func (a *stubAdapter) Name() string { return "Source " + a.id }

func (a *stubAdapter) ScanPrices(context.Context, string, models.ScanOptions) ([]models.ListingStub, error) {
	if a.scanErr != nil {
		return nil, a.scanErr
	}
	out := make([]models.ListingStub, len(a.prices))
	for i, p := range a.prices {
		out[i] = models.ListingStub{
			URL:        fmt.Sprintf("https://%s.test/%d", a.id, i),
			PriceText:  fmt.Sprintf("%g €", p),
			PriceValue: p,
		}
	}
	return out, nil
}

func (a *stubAdapter) EnrichDetails(_ context.Context, urls []string) ([]models.RawListing, error) {
	out := make([]models.RawListing, len(urls))
	for i, u := range urls {
		out[i] = models.RawListing{URL: u, Title: "Item " + u}
	}
	return out, nil
}

type fakeClearer struct {
	mu      sync.Mutex
	cleared int
	err     error
}

func (f *fakeClearer) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return f.err
}

func newServer(t *testing.T, adapters []scraper.Adapter, options ...Option) *Server {
	t.Helper()
	orch := services.NewOrchestrator(scraper.NewRegistry(adapters...), storage.NewResultCache(time.Minute), services.Options{})
	return New(orch, options...)
}

func do(s *Server, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	s := newServer(t, nil)
	w := do(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestSearch(t *testing.T) {
	s := newServer(t, []scraper.Adapter{&stubAdapter{id: "a", prices: []float64{30, 10, 20}}})

	w := do(s, http.MethodGet, "/api/search?q=lamp&perPage=2&sortBy=price-high", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "lamp", resp.Query)
	assert.Equal(t, 3, resp.TotalResults)
	assert.Equal(t, 2, resp.TotalPages)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, 30.0, *resp.Items[0].PriceValue)
	assert.Equal(t, "Source a", resp.Items[0].SourceName)
	assert.Empty(t, resp.Errors)
	assert.NotContains(t, w.Body.String(), `"error"`)
}

func TestSearchBadRequests(t *testing.T) {
	s := newServer(t, []scraper.Adapter{&stubAdapter{id: "a", prices: []float64{1}}})

	for _, target := range []string{
		"/api/search",
		"/api/search?q=",
		"/api/search?q=lamp&page=two",
		"/api/search?q=lamp&perPage=1.5",
		"/api/search?q=lamp&minPrice=cheap",
		"/api/search?q=lamp&maxPrice=NaN",
		"/api/search?q=lamp&minPrice=50&maxPrice=10",
		"/api/search?q=" + strings.Repeat("x", services.MaxQueryLength+1),
	} {
		t.Run(target, func(t *testing.T) {
			w := do(s, http.MethodGet, target, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestSearchAllSourcesFailed(t *testing.T) {
	s := newServer(t, []scraper.Adapter{
		&stubAdapter{id: "a", scanErr: errors.New("HTTP 503")},
		&stubAdapter{id: "b", scanErr: errors.New("blocked")},
	})

	w := do(s, http.MethodGet, "/api/search?q=lamp", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	body := decode(t, w)
	assert.Equal(t, "all sources failed", body["error"])
	assert.Equal(t, []any{}, body["items"])
	assert.Len(t, body["errors"], 2)
}

func TestSearchPartialFailureIsOK(t *testing.T) {
	s := newServer(t, []scraper.Adapter{
		&stubAdapter{id: "good", prices: []float64{5}},
		&stubAdapter{id: "bad", scanErr: errors.New("HTTP 503")},
	})

	w := do(s, http.MethodGet, "/api/search?q=lamp", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["items"], 1)
	assert.Len(t, body["errors"], 1)
}

func TestSearchUnknownSourcesOnly(t *testing.T) {
	s := newServer(t, []scraper.Adapter{&stubAdapter{id: "a", prices: []float64{1}}})

	w := do(s, http.MethodGet, "/api/search?q=lamp&sources=nope", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, []any{}, body["items"])
	assert.Equal(t, []any{}, body["sources"])
	assert.Equal(t, []any{map[string]any{"source": "nope", "message": "unknown source"}}, body["errors"])
	assert.Equal(t, 1.0, body["currentPage"])
	assert.Equal(t, 0.0, body["totalPages"])
}

func TestRecoveredPanic(t *testing.T) {
	s := newServer(t, nil)
	s.engine.GET("/boom", func(*gin.Context) { panic("boom") })

	w := do(s, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "internal server error", body["error"])
	assert.Equal(t, []any{}, body["items"])
}

func TestSources(t *testing.T) {
	s := newServer(t, []scraper.Adapter{&stubAdapter{id: "ss"}, &stubAdapter{id: "osta"}})

	w := do(s, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sources []sourceInfo `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []sourceInfo{{ID: "ss", Name: "Source ss"}, {ID: "osta", Name: "Source osta"}}, body.Sources)
}

func TestCacheStatsAndClear(t *testing.T) {
	mirror := &fakeClearer{}
	s := newServer(t, []scraper.Adapter{&stubAdapter{id: "a", prices: []float64{1, 2}}}, WithMirror(mirror))

	require.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/search?q=lamp", nil).Code)

	w := do(s, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Stats storage.CacheStats `json:"stats"`
		Keys  []string           `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Stats.Size)
	require.Len(t, stats.Keys, 1)
	assert.True(t, strings.HasPrefix(stats.Keys[0], "lamp|a|"))

	w = do(s, http.MethodDelete, "/api/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["cleared"])
	assert.Equal(t, 1, mirror.cleared)
	assert.Empty(t, s.orch.Cache().Keys())

	mirror.err = errors.New("redis down")
	w = do(s, http.MethodDelete, "/api/cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "redis down", decode(t, w)["mirrorError"])
}

func TestCORS(t *testing.T) {
	open := newServer(t, nil)
	w := do(open, http.MethodOptions, "/api/search", map[string]string{"Origin": "https://anything.example"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://anything.example", w.Header().Get("Access-Control-Allow-Origin"))

	restricted := newServer(t, nil, WithAllowedOrigins([]string{"example.lv"}))

	w = do(restricted, http.MethodOptions, "/api/search", map[string]string{"Origin": "https://shop.example.lv"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example.lv", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	w = do(restricted, http.MethodOptions, "/api/search", map[string]string{"Origin": "https://evil.test"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(restricted, http.MethodGet, "/health", map[string]string{"Origin": "https://evil.test"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	s := newServer(t, nil, WithMetrics(m))

	require.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", nil).Code)
	require.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/missing", nil).Code)

	w := do(s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `secondhand_http_requests_total{code="200",route="/health"} 1`)
	assert.Contains(t, w.Body.String(), `secondhand_http_requests_total{code="404",route="unmatched"} 1`)

	assert.Equal(t, http.StatusNotFound, do(newServer(t, nil), http.MethodGet, "/metrics", nil).Code)
}

func TestRunStopsWithContext(t *testing.T) {
	s := newServer(t, nil, WithShutdownTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
