// Package andele reads Andele Mandele (andelemandele.lv). The catalog is a
// single-page app and has to be rendered; detail pages are plain HTML.
package andele

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"secondhand-aggregator/config"
	"secondhand-aggregator/models"
	"secondhand-aggregator/scraper"
	"secondhand-aggregator/scraper/fetch"
	"secondhand-aggregator/utils"
)

const (
	SourceID   = "andele"
	SourceName = "Andele Mandele"
)

type Adapter struct {
	cfg    config.SourceConfig
	render fetch.Fetcher
	plain  fetch.Fetcher
	rule   scraper.RelevanceRule
}

// New wires the adapter to a rendering fetcher for catalog pages and a plain
// one for detail pages.
func New(cfg config.SourceConfig, render, plain fetch.Fetcher) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.andelemandele.lv"
	}
	return &Adapter{
		cfg:    cfg,
		render: render,
		plain:  plain,
		rule:   scraper.RelevanceRule{Exclude: cfg.Exclude},
	}
}

func (a *Adapter) ID() string   { return SourceID }
func (a *Adapter) Name() string { return SourceName }

// SearchURL builds a catalog URL. Ordering and paging live in the hash
// fragment with colons, and the page index there is zero-based: page 2 is
// "#order:price-asc/page:1" and page 1 has no page part.
func (a *Adapter) SearchURL(query string, page int, order models.SortOrder) string {
	sort := "price-asc"
	if order == models.SortPriceHigh {
		sort = "price-desc"
	}
	u := strings.TrimRight(a.cfg.BaseURL, "/") + "/search/?search=" + url.QueryEscape(query) + "#order:" + sort
	if page > 1 {
		u += fmt.Sprintf("/page:%d", page-1)
	}
	return u
}

func (a *Adapter) ScanPrices(ctx context.Context, query string, opts models.ScanOptions) ([]models.ListingStub, error) {
	utils.Info("[andele] scanning prices for %q (max %d)", query, opts.MaxResults)

	walk := scraper.PageWalk{
		Source:     SourceID,
		MaxPages:   a.cfg.MaxPages,
		Batch:      a.cfg.PageBatch,
		Delay:      a.cfg.PageDelay,
		MaxResults: opts.MaxResults,
	}
	stubs, err := walk.Run(ctx, func(ctx context.Context, page int) (scraper.PageResult, error) {
		// No wait selector: an empty result page never shows a card and would
		// only run into the timeout.
		html, err := a.render.Fetch(ctx, a.SearchURL(query, page, opts.SortBy), fetch.Options{Settle: a.cfg.RenderWait})
		if err != nil {
			return scraper.PageResult{}, err
		}
		res, err := parseSearchPage(html, a.cfg.BaseURL)
		if err == nil && page == 1 && res.TotalPages > 0 {
			utils.Debug("[andele] catalog reports %d pages", res.TotalPages)
		}
		return res, err
	})
	if err != nil {
		return nil, fmt.Errorf("andele scan: %w", err)
	}

	out := scraper.FinishScan(stubs, query, opts, a.rule)
	utils.Info("[andele] %d listings after filtering", len(out))
	return out, nil
}

func (a *Adapter) EnrichDetails(ctx context.Context, urls []string) ([]models.RawListing, error) {
	pool := &scraper.EnrichPool{
		Source:  SourceID,
		Workers: a.cfg.DetailWorkers,
		Timeout: a.cfg.DetailTimeout,
		Detail: func(ctx context.Context, pageURL string) (*models.RawListing, error) {
			if !strings.Contains(pageURL, "/perle/") {
				return nil, fmt.Errorf("not a listing url: %s", pageURL)
			}
			html, err := a.plain.Fetch(ctx, pageURL, fetch.Options{Timeout: a.cfg.DetailTimeout})
			if err != nil {
				return nil, err
			}
			return parseDetailPage(html, pageURL)
		},
	}
	return pool.Run(ctx, urls)
}
