package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"secondhand-aggregator/metrics"
	"secondhand-aggregator/models"
	"secondhand-aggregator/scraper"
	"secondhand-aggregator/storage"
	"secondhand-aggregator/utils"
)

// Request limits.
const (
	MaxQueryLength = 100
	MaxPerPage     = 50
	MaxMaxResults  = 500
)

// Mirror is a second cache tier shared between instances.
type Mirror interface {
	Get(ctx context.Context, key string) (*models.SearchResponse, error)
	Set(ctx context.Context, key string, resp *models.SearchResponse, ttl time.Duration) error
}

// Archiver stores listings that were shown to callers.
type Archiver interface {
	WriteBatch(ctx context.Context, listings []models.Listing) (int, error)
}

// Options are the orchestrator's defaults for fields a request leaves empty.
type Options struct {
	DefaultSources []string
	PerPage        int
	MaxResults     int
	CacheTTL       time.Duration
}

type Option func(*Orchestrator)

func WithMirror(m Mirror) Option    { return func(o *Orchestrator) { o.mirror = m } }
func WithArchive(a Archiver) Option { return func(o *Orchestrator) { o.archive = a } }
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs a query across sources: scan everything, sort globally,
// then enrich only the requested page.
type Orchestrator struct {
	registry *scraper.Registry
	cache    *storage.ResultCache
	mirror   Mirror
	archive  Archiver
	metrics  *metrics.Metrics
	opts     Options
	now      func() time.Time
}

func NewOrchestrator(registry *scraper.Registry, cache *storage.ResultCache, opts Options, options ...Option) *Orchestrator {
	if len(opts.DefaultSources) == 0 {
		opts.DefaultSources = registry.IDs()
	}
	if opts.PerPage <= 0 {
		opts.PerPage = 20
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 300
	}
	if cache == nil {
		cache = storage.NewResultCache(opts.CacheTTL)
	}
	o := &Orchestrator{
		registry: registry,
		cache:    cache,
		opts:     opts,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Cache() *storage.ResultCache { return o.cache }

func (o *Orchestrator) Registry() *scraper.Registry { return o.registry }

// Search runs one orchestrated search. Source failures are reported in the
// response; the returned error is a *ValidationError or an internal failure.
func (o *Orchestrator) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	start := o.now()

	req, err := o.normalize(req)
	if err != nil {
		o.metrics.Search("invalid", 0, false)
		return nil, err
	}

	// Unknown ids only add error entries. With none known the scan below
	// finds nothing and the response carries just those entries.
	adapters, unknown := o.registry.Resolve(req.Sources)

	key := CacheKey(req)
	if cached := o.lookup(ctx, key); cached != nil {
		cached.Cached = true
		cached.TookMs = o.now().Sub(start).Milliseconds()
		o.metrics.Search("ok", 0, true)
		utils.Info("Cache hit for %q page %d", req.Query, req.Page)
		return cached, nil
	}

	utils.Section(fmt.Sprintf("Search %q page %d", req.Query, req.Page))

	resp := &models.SearchResponse{
		Query:   req.Query,
		Sources: make([]string, 0, len(adapters)),
		Items:   []models.Listing{},
		Errors:  []models.SourceError{},
	}
	for _, a := range adapters {
		resp.Sources = append(resp.Sources, a.ID())
	}
	for _, id := range unknown {
		resp.Errors = append(resp.Errors, models.SourceError{Source: id, Message: "unknown source"})
	}

	// Adapter work runs to completion even if the caller goes away, so a
	// finished search can still fill the cache.
	work := context.WithoutCancel(ctx)

	stubs, scanErrs := o.scanAll(work, adapters, req)
	resp.Errors = append(resp.Errors, scanErrs...)

	stubs = scraper.DedupStubs(stubs)
	scraper.SortStubs(stubs, req.SortBy)

	resp.TotalResults = len(stubs)
	resp.TotalPages = (len(stubs) + req.PerPage - 1) / req.PerPage
	resp.CurrentPage = clampPage(req.Page, resp.TotalPages)

	window := pageWindow(stubs, resp.CurrentPage, req.PerPage)
	listings, enrichErrs := o.enrichAll(work, adapters, window)
	resp.Errors = append(resp.Errors, enrichErrs...)
	resp.Items = listings

	took := o.now().Sub(start)
	resp.TookMs = took.Milliseconds()

	outcome := "ok"
	switch {
	case AllSourcesFailed(resp):
		outcome = "failed"
	case len(resp.Errors) > 0:
		outcome = "partial"
	}
	o.metrics.Search(outcome, took, false)
	utils.Success("%q: %d results, %d on page %d/%d, %d errors, %dms",
		req.Query, resp.TotalResults, len(resp.Items), resp.CurrentPage, resp.TotalPages, len(resp.Errors), resp.TookMs)

	if len(resp.Errors) == 0 && len(resp.Items) > 0 {
		o.store(key, resp)
	}
	if o.archive != nil && len(resp.Items) > 0 {
		go o.archiveItems(work, append([]models.Listing(nil), resp.Items...))
	}
	return resp, nil
}

func (o *Orchestrator) normalize(req models.SearchRequest) (models.SearchRequest, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, &ValidationError{Field: "q", Message: "missing query parameter 'q'"}
	}
	if utf8.RuneCountInString(req.Query) > MaxQueryLength {
		return req, &ValidationError{Field: "q", Message: fmt.Sprintf("query longer than %d characters", MaxQueryLength)}
	}
	if req.MinPrice != nil && req.MaxPrice != nil && *req.MinPrice > *req.MaxPrice {
		return req, &ValidationError{Field: "minPrice", Message: "minPrice is greater than maxPrice"}
	}

	var sources []string
	seen := make(map[string]bool)
	for _, s := range req.Sources {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !seen[s] {
			seen[s] = true
			sources = append(sources, s)
		}
	}
	if len(sources) == 0 {
		sources = append(sources, o.opts.DefaultSources...)
	}
	sort.Strings(sources)
	req.Sources = sources

	if req.Page < 1 {
		req.Page = 1
	}
	if req.PerPage <= 0 {
		req.PerPage = o.opts.PerPage
	}
	req.PerPage = clamp(req.PerPage, 1, MaxPerPage)
	if req.MaxResults <= 0 {
		req.MaxResults = o.opts.MaxResults
	}
	req.MaxResults = clamp(req.MaxResults, 1, MaxMaxResults)
	req.SortBy = models.ParseSortOrder(string(req.SortBy))
	return req, nil
}

// CacheKey identifies a normalized request. The query keeps its case since
// sites may treat it differently.
func CacheKey(req models.SearchRequest) string {
	bound := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	}
	return strings.Join([]string{
		req.Query,
		strings.Join(req.Sources, ","),
		strconv.Itoa(req.Page),
		strconv.Itoa(req.PerPage),
		strconv.Itoa(req.MaxResults),
		bound(req.MinPrice),
		bound(req.MaxPrice),
		string(req.SortBy),
	}, "|")
}

func (o *Orchestrator) lookup(ctx context.Context, key string) *models.SearchResponse {
	if resp, ok := o.cache.Get(key); ok {
		o.metrics.CacheLookup("memory", true)
		return resp
	}
	o.metrics.CacheLookup("memory", false)

	if o.mirror == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := o.mirror.Get(ctx, key)
	if err != nil {
		utils.Warn("[cache] redis lookup failed: %v", err)
	}
	o.metrics.CacheLookup("redis", resp != nil)
	if resp == nil {
		return nil
	}
	o.cache.Set(key, resp, o.opts.CacheTTL)
	return resp.Clone()
}

func (o *Orchestrator) store(key string, resp *models.SearchResponse) {
	o.cache.Set(key, resp, o.opts.CacheTTL)
	if o.mirror == nil {
		return
	}
	snapshot := resp.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := o.mirror.Set(ctx, key, snapshot, o.opts.CacheTTL); err != nil {
			utils.Warn("[cache] redis store failed: %v", err)
		}
	}()
}

func (o *Orchestrator) archiveItems(ctx context.Context, items []models.Listing) {
	n, err := o.archive.WriteBatch(ctx, items)
	if err != nil {
		utils.Warn("[archive] %v", err)
		return
	}
	utils.Debug("[archive] upserted %d listings", n)
}

type scanResult struct {
	stubs []models.ListingStub
	err   error
}

func (o *Orchestrator) scanAll(ctx context.Context, adapters []scraper.Adapter, req models.SearchRequest) ([]models.ListingStub, []models.SourceError) {
	opts := models.ScanOptions{
		MaxResults: req.MaxResults,
		MinPrice:   req.MinPrice,
		MaxPrice:   req.MaxPrice,
		SortBy:     req.SortBy,
	}

	results := make([]scanResult, len(adapters))
	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			results[i] = o.scanOne(ctx, a, req.Query, opts)
			return nil
		})
	}
	_ = g.Wait()

	var stubs []models.ListingStub
	var errs []models.SourceError
	for i, res := range results {
		id := adapters[i].ID()
		o.metrics.SourceScan(id, len(res.stubs), res.err)
		if res.err != nil {
			utils.Error("[%s] %v", id, res.err)
			errs = append(errs, models.SourceError{Source: id, Message: res.err.Error()})
			continue
		}
		for _, s := range res.stubs {
			// The source id travels with the stub so enrichment goes back to
			// the adapter that found it.
			s.SourceID = id
			stubs = append(stubs, s)
		}
	}
	return stubs, errs
}

func (o *Orchestrator) scanOne(ctx context.Context, a scraper.Adapter, query string, opts models.ScanOptions) (res scanResult) {
	defer func() {
		if r := recover(); r != nil {
			res = scanResult{err: &AdapterError{Source: a.ID(), Phase: "scan", Err: fmt.Errorf("panic: %v", r)}}
		}
	}()
	stubs, err := a.ScanPrices(ctx, query, opts)
	if err != nil {
		return scanResult{err: &AdapterError{Source: a.ID(), Phase: "scan", Err: err}}
	}
	return scanResult{stubs: stubs}
}

type enrichResult struct {
	raw map[string]models.RawListing
	err error
}

func (o *Orchestrator) enrichAll(ctx context.Context, adapters []scraper.Adapter, window []models.ListingStub) ([]models.Listing, []models.SourceError) {
	bySource := make(map[string][]string)
	for _, s := range window {
		bySource[s.SourceID] = append(bySource[s.SourceID], s.URL)
	}

	var active []scraper.Adapter
	for _, a := range adapters {
		if len(bySource[a.ID()]) > 0 {
			active = append(active, a)
		}
	}

	results := make([]enrichResult, len(active))
	var g errgroup.Group
	for i, a := range active {
		g.Go(func() error {
			results[i] = o.enrichOne(ctx, a, bySource[a.ID()])
			return nil
		})
	}
	_ = g.Wait()

	enriched := make(map[string]models.RawListing)
	var errs []models.SourceError
	for i, res := range results {
		id := active[i].ID()
		o.metrics.Enrichment(id, len(bySource[id]), len(res.raw))
		if res.err != nil {
			utils.Error("[%s] %v", id, res.err)
			errs = append(errs, models.SourceError{Source: id, Message: res.err.Error()})
		}
		for u, raw := range res.raw {
			enriched[u] = raw
		}
	}

	names := make(map[string]string, len(adapters))
	for _, a := range adapters {
		names[a.ID()] = a.Name()
	}

	items := make([]models.Listing, 0, len(window))
	for _, s := range window {
		raw, ok := enriched[s.URL]
		if !ok {
			continue
		}
		items = append(items, merge(s, raw, names[s.SourceID]))
	}
	return items, errs
}

func (o *Orchestrator) enrichOne(ctx context.Context, a scraper.Adapter, urls []string) (res enrichResult) {
	defer func() {
		if r := recover(); r != nil {
			res = enrichResult{err: &AdapterError{Source: a.ID(), Phase: "enrich", Err: fmt.Errorf("panic: %v", r)}}
		}
	}()

	raws, err := a.EnrichDetails(ctx, urls)
	if err != nil {
		return enrichResult{err: &AdapterError{Source: a.ID(), Phase: "enrich", Err: err}}
	}

	byURL := make(map[string]models.RawListing, len(raws))
	for _, r := range raws {
		u := r.URL
		if u == "" {
			u = r.Link
		}
		byURL[u] = r
	}
	return enrichResult{raw: byURL}
}

// merge builds the canonical listing. What the scan saw wins for price and
// thumbnail: it is what the list was sorted by.
func merge(stub models.ListingStub, raw models.RawListing, sourceName string) models.Listing {
	if raw.URL == "" {
		raw.URL = stub.URL
	}
	l := Normalize(raw, stub.SourceID, sourceName)
	if stub.PriceText != "" {
		l.PriceText = stub.PriceText
	}
	if stub.Priced() {
		v := stub.PriceValue
		l.PriceValue = &v
	} else {
		l.PriceValue = nil
	}
	if stub.ImageURL != "" {
		l.ImageURL = stub.ImageURL
	}
	return l
}

// AllSourcesFailed reports a response where every resolved source errored
// and nothing came back.
func AllSourcesFailed(resp *models.SearchResponse) bool {
	if resp == nil || len(resp.Items) > 0 || len(resp.Sources) == 0 {
		return false
	}
	failed := make(map[string]bool, len(resp.Errors))
	for _, e := range resp.Errors {
		failed[e.Source] = true
	}
	for _, s := range resp.Sources {
		if !failed[s] {
			return false
		}
	}
	return true
}

func pageWindow(stubs []models.ListingStub, page, perPage int) []models.ListingStub {
	start := (page - 1) * perPage
	if start >= len(stubs) {
		return nil
	}
	return stubs[start:min(start+perPage, len(stubs))]
}

func clampPage(page, totalPages int) int {
	return clamp(page, 1, max(totalPages, 1))
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
