package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secondhand-aggregator/metrics"
	"secondhand-aggregator/models"
	"secondhand-aggregator/scraper"
	"secondhand-aggregator/storage"
)

type fakeAdapter struct {
	id        string
	stubs     []models.ListingStub
	scanErr   error
	panicScan bool
	noEnrich  map[string]bool

	mu       sync.Mutex
	scans    int
	enriched []string
}

func (f *fakeAdapter) ID() string   { return f.id }
func (f *fakeAdapter) Name() string { return strings.ToUpper(f.id) }

func (f *fakeAdapter) ScanPrices(ctx context.Context, query string, opts models.ScanOptions) ([]models.ListingStub, error) {
	f.mu.Lock()
	f.scans++
	f.mu.Unlock()
	if f.panicScan {
		panic("selector exploded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return append([]models.ListingStub(nil), f.stubs...), nil
}

func (f *fakeAdapter) EnrichDetails(ctx context.Context, urls []string) ([]models.RawListing, error) {
	f.mu.Lock()
	f.enriched = append(f.enriched, urls...)
	f.mu.Unlock()

	var out []models.RawListing
	for _, u := range urls {
		if f.noEnrich[u] {
			continue
		}
		out = append(out, models.RawListing{
			URL:       u,
			Title:     "Title " + u,
			PriceText: "detail price",
			Images:    []string{u + "/detail.jpg"},
		})
	}
	if len(out) == 0 {
		return nil, &scraper.PartialEnrichmentError{Source: f.id, Requested: len(urls)}
	}
	return out, nil
}

func priced(source string, prices ...float64) []models.ListingStub {
	out := make([]models.ListingStub, len(prices))
	for i, p := range prices {
		out[i] = models.ListingStub{
			URL:        fmt.Sprintf("https://%s.test/item/%d", source, i),
			PriceText:  fmt.Sprintf("%g €", p),
			PriceValue: p,
		}
	}
	return out
}

func newOrchestrator(adapters ...scraper.Adapter) *Orchestrator {
	return NewOrchestrator(scraper.NewRegistry(adapters...), storage.NewResultCache(time.Minute), Options{PerPage: 20, MaxResults: 300})
}

func prices(items []models.Listing) []float64 {
	out := make([]float64, len(items))
	for i, it := range items {
		if it.PriceValue == nil {
			out[i] = math.Inf(1)
			continue
		}
		out[i] = *it.PriceValue
	}
	return out
}

func TestSearchFirstPageScenario(t *testing.T) {
	src := &fakeAdapter{id: "a", stubs: priced("a", 120, 300, 0, 50, 120)}
	o := newOrchestrator(src)

	resp, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp", PerPage: 2})
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 50}, prices(resp.Items))
	assert.Equal(t, 5, resp.TotalResults)
	assert.Equal(t, 3, resp.TotalPages)
	assert.Equal(t, 1, resp.CurrentPage)
	assert.Equal(t, []string{"a"}, resp.Sources)
	assert.Empty(t, resp.Errors)
	assert.False(t, resp.Cached)
	assert.Len(t, src.enriched, 2, "only the page window is enriched")
}

func TestSearchPriceHighKeepsFreeItemsLast(t *testing.T) {
	a := &fakeAdapter{id: "a", stubs: priced("a", 0, 10, 500)}
	b := &fakeAdapter{id: "b", stubs: priced("b", 75, 0, 1000)}
	o := newOrchestrator(a, b)

	resp, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp", SortBy: models.SortPriceHigh})
	require.NoError(t, err)
	assert.Equal(t, []float64{1000, 500, 75, 10, 0, 0}, prices(resp.Items))
	assert.Equal(t, "https://a.test/item/0", resp.Items[4].URL, "ties are broken by source then url")
}

func TestSearchOneFailingSource(t *testing.T) {
	good := &fakeAdapter{id: "good", stubs: priced("good", 5, 15)}
	bad := &fakeAdapter{id: "bad", scanErr: errors.New("HTTP 503")}
	o := newOrchestrator(good, bad)

	resp, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp"})
	require.NoError(t, err)

	assert.Len(t, resp.Items, 2)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "bad", resp.Errors[0].Source)
	assert.Contains(t, resp.Errors[0].Message, "HTTP 503")
	assert.Equal(t, 2, resp.TotalResults)
	assert.False(t, AllSourcesFailed(resp))
	assert.Empty(t, o.Cache().Keys(), "responses with errors are not cached")
}

func TestSearchRecoversAdapterPanic(t *testing.T) {
	good := &fakeAdapter{id: "good", stubs: priced("good", 5)}
	boom := &fakeAdapter{id: "boom", panicScan: true}
	o := newOrchestrator(good, boom)

	resp, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp"})
	require.NoError(t, err)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "boom", resp.Errors[0].Source)
	assert.Contains(t, resp.Errors[0].Message, "panic")
	assert.Len(t, resp.Items, 1)
}

func TestSearchAllSourcesFailed(t *testing.T) {
	o := newOrchestrator(
		&fakeAdapter{id: "a", scanErr: errors.New("down")},
		&fakeAdapter{id: "b", scanErr: errors.New("blocked")},
	)

	resp, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp"})
	require.NoError(t, err)
	assert.True(t, AllSourcesFailed(resp))
	assert.NotNil(t, resp.Items)
	assert.Empty(t, resp.Items)
	assert.Equal(t, 1, resp.CurrentPage)
	assert.Zero(t, resp.TotalPages)
}

func TestSearchEnrichesAtMostOnePage(t *testing.T) {
	many := make([]float64, 300)
	for i := range many {
		many[i] = float64(i + 1)
	}
	src := &fakeAdapter{id: "a", stubs: priced("a", many...)}
	o := newOrchestrator(src)

	resp, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp", PerPage: 20, Page: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(src.enriched), 20)
	assert.Len(t, resp.Items, 20)
	assert.Equal(t, 41.0, *resp.Items[0].PriceValue)
	assert.Equal(t, 15, resp.TotalPages)
}

func TestSearchClampsPage(t *testing.T) {
	o := newOrchestrator(&fakeAdapter{id: "a", stubs: priced("a", 1, 2, 3)})

	resp, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp", PerPage: 2, Page: 99})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.CurrentPage)
	assert.Equal(t, []float64{3}, prices(resp.Items))

	empty := newOrchestrator(&fakeAdapter{id: "a"})
	resp, err = empty.Search(context.Background(), models.SearchRequest{Query: "lamp", Page: 4})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.CurrentPage)
	assert.Zero(t, resp.TotalPages)
}

func TestSearchCachedResponseIsIdentical(t *testing.T) {
	src := &fakeAdapter{id: "a", stubs: priced("a", 30, 10, 20)}
	m := metrics.New()
	o := NewOrchestrator(scraper.NewRegistry(src), nil, Options{}, WithMetrics(m))

	req := models.SearchRequest{Query: "  lamp ", Sources: []string{"a"}}
	first, err := o.Search(context.Background(), req)
	require.NoError(t, err)
	second, err := o.Search(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, src.scans)

	a, _ := json.Marshal(first.Items)
	b, _ := json.Marshal(second.Items)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, "lamp", second.Query)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("memory", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Searches.WithLabelValues("ok")))
}

func TestSearchMergesScanAndDetail(t *testing.T) {
	stubs := priced("a", 10, 20, 30)
	stubs[0].ImageURL = "https://a.test/thumb.jpg"
	stubs[2].PriceText = "Kokkuleppel"
	stubs[2].PriceValue = math.Inf(1)
	src := &fakeAdapter{id: "a", stubs: stubs, noEnrich: map[string]bool{stubs[1].URL: true}}
	o := newOrchestrator(src)

	resp, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 2, "stubs without detail are dropped")

	first := resp.Items[0]
	assert.Equal(t, "10 €", first.PriceText)
	assert.Equal(t, 10.0, *first.PriceValue)
	assert.Equal(t, "https://a.test/thumb.jpg", first.ImageURL)
	assert.Equal(t, "A", first.SourceName)
	assert.Equal(t, ListingID("a", first.URL), first.ID)

	last := resp.Items[1]
	assert.Equal(t, "Kokkuleppel", last.PriceText)
	assert.Nil(t, last.PriceValue)
	assert.Equal(t, last.URL+"/detail.jpg", last.ImageURL)

	assert.Equal(t, 3, resp.TotalResults, "dropped items still count as scanned")
}

func TestSearchNoDuplicateURLs(t *testing.T) {
	shared := models.ListingStub{URL: "https://shared.test/1", PriceText: "5 €", PriceValue: 5}
	a := &fakeAdapter{id: "a", stubs: append(priced("a", 1, 2), shared, shared)}
	b := &fakeAdapter{id: "b", stubs: append(priced("b", 3), shared)}
	o := newOrchestrator(a, b)

	resp, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp"})
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, it := range resp.Items {
		assert.False(t, seen[it.URL], "duplicate %s", it.URL)
		seen[it.URL] = true
	}
	assert.Equal(t, 4, resp.TotalResults)
}

func TestSearchUnknownSources(t *testing.T) {
	o := newOrchestrator(&fakeAdapter{id: "a", stubs: priced("a", 1)})

	resp, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp", Sources: []string{"A", "nope"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, resp.Sources)
	assert.Equal(t, []models.SourceError{{Source: "nope", Message: "unknown source"}}, resp.Errors)
	assert.Len(t, resp.Items, 1)

}

func TestSearchOnlyUnknownSources(t *testing.T) {
	src := &fakeAdapter{id: "a", stubs: priced("a", 1)}
	o := newOrchestrator(src)

	resp, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp", Sources: []string{"nope", "gone"}})
	require.NoError(t, err)
	assert.Equal(t, []string{}, resp.Sources)
	assert.Equal(t, []models.SourceError{
		{Source: "gone", Message: "unknown source"},
		{Source: "nope", Message: "unknown source"},
	}, resp.Errors)
	assert.Equal(t, []models.Listing{}, resp.Items)
	assert.Zero(t, resp.TotalResults)
	assert.Zero(t, resp.TotalPages)
	assert.Equal(t, 1, resp.CurrentPage)
	assert.False(t, AllSourcesFailed(resp))
	assert.Zero(t, src.scans)
	assert.Empty(t, o.Cache().Keys())
}

func TestSearchValidation(t *testing.T) {
	src := &fakeAdapter{id: "a"}
	o := newOrchestrator(src)
	lo, hi := 50.0, 10.0

	for name, req := range map[string]models.SearchRequest{
		"empty query":    {Query: "   "},
		"long query":     {Query: strings.Repeat("x", MaxQueryLength+1)},
		"inverted range": {Query: "lamp", MinPrice: &lo, MaxPrice: &hi},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := o.Search(context.Background(), req)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
	assert.Zero(t, src.scans, "no adapter work for invalid requests")
}

func TestNormalizeRequestClamps(t *testing.T) {
	o := newOrchestrator(&fakeAdapter{id: "a"})

	req, err := o.normalize(models.SearchRequest{Query: " lamp ", PerPage: 500, MaxResults: 10000, Page: -3, SortBy: "price-desc"})
	require.NoError(t, err)
	assert.Equal(t, "lamp", req.Query)
	assert.Equal(t, MaxPerPage, req.PerPage)
	assert.Equal(t, MaxMaxResults, req.MaxResults)
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, models.SortPriceHigh, req.SortBy)
	assert.Equal(t, []string{"a"}, req.Sources)

	req, err = o.normalize(models.SearchRequest{Query: "lamp"})
	require.NoError(t, err)
	assert.Equal(t, 20, req.PerPage)
	assert.Equal(t, 300, req.MaxResults)
	assert.Equal(t, models.SortPriceLow, req.SortBy)
}

func TestCacheKeyCoversRequest(t *testing.T) {
	bound := 10.0
	base := models.SearchRequest{Query: "lamp", Sources: []string{"a", "b"}, Page: 1, PerPage: 20, MaxResults: 300, SortBy: models.SortPriceLow}
	key := CacheKey(base)

	variants := []func(r *models.SearchRequest){
		func(r *models.SearchRequest) { r.Query = "Lamp" },
		func(r *models.SearchRequest) { r.Sources = []string{"a"} },
		func(r *models.SearchRequest) { r.Page = 2 },
		func(r *models.SearchRequest) { r.PerPage = 10 },
		func(r *models.SearchRequest) { r.MaxResults = 100 },
		func(r *models.SearchRequest) { r.MinPrice = &bound },
		func(r *models.SearchRequest) { r.MaxPrice = &bound },
		func(r *models.SearchRequest) { r.SortBy = models.SortPriceHigh },
	}
	for _, change := range variants {
		r := base
		change(&r)
		assert.NotEqual(t, key, CacheKey(r))
	}
}

func TestSearchIgnoresCallerCancellation(t *testing.T) {
	src := &fakeAdapter{id: "a", stubs: priced("a", 1)}
	o := newOrchestrator(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := o.Search(ctx, models.SearchRequest{Query: "lamp"})
	require.NoError(t, err)
	assert.Empty(t, resp.Errors)
	assert.Len(t, resp.Items, 1)
}

type fakeMirror struct {
	mu     sync.Mutex
	stored map[string]*models.SearchResponse
	err    error
}

func (m *fakeMirror) Get(_ context.Context, key string) (*models.SearchResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.stored[key].Clone(), nil
}

func (m *fakeMirror) Set(_ context.Context, key string, resp *models.SearchResponse, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.stored[key] = resp
	return nil
}

func (m *fakeMirror) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

func TestSearchUsesMirror(t *testing.T) {
	mirror := &fakeMirror{stored: map[string]*models.SearchResponse{}}
	src := &fakeAdapter{id: "a", stubs: priced("a", 1, 2)}
	reg := scraper.NewRegistry(src)

	first := NewOrchestrator(reg, nil, Options{}, WithMirror(mirror))
	_, err := first.Search(context.Background(), models.SearchRequest{Query: "lamp"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return mirror.len() == 1 }, time.Second, 5*time.Millisecond)

	// A second instance with a cold memory cache is served from the mirror.
	second := NewOrchestrator(reg, nil, Options{}, WithMirror(mirror))
	resp, err := second.Search(context.Background(), models.SearchRequest{Query: "lamp"})
	require.NoError(t, err)
	assert.True(t, resp.Cached)
	assert.Equal(t, 1, src.scans)
	assert.Len(t, second.Cache().Keys(), 1)

	broken := NewOrchestrator(reg, nil, Options{}, WithMirror(&fakeMirror{err: errors.New("redis down")}))
	resp, err = broken.Search(context.Background(), models.SearchRequest{Query: "lamp"})
	require.NoError(t, err)
	assert.False(t, resp.Cached, "a failing mirror is a miss")
}

type fakeArchive struct {
	mu    sync.Mutex
	saved []models.Listing
}

func (a *fakeArchive) WriteBatch(_ context.Context, listings []models.Listing) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, listings...)
	return len(listings), nil
}

func (a *fakeArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}

func TestSearchArchivesShownListings(t *testing.T) {
	archive := &fakeArchive{}
	o := NewOrchestrator(scraper.NewRegistry(&fakeAdapter{id: "a", stubs: priced("a", 1, 2, 3)}), nil,
		Options{PerPage: 2}, WithArchive(archive))

	_, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return archive.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestEnrichmentFailureIsReported(t *testing.T) {
	stubs := priced("a", 1)
	src := &fakeAdapter{id: "a", stubs: stubs, noEnrich: map[string]bool{stubs[0].URL: true}}
	o := newOrchestrator(src)

	resp, err := o.Search(context.Background(), models.SearchRequest{Query: "lamp"})
	require.NoError(t, err)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "enriched 0 of 1")
	assert.True(t, AllSourcesFailed(resp))
	assert.Empty(t, o.Cache().Keys())
}
