// Package ss reads SS.lv (ss.com), a Latvian classifieds board served as
// plain HTML.
package ss

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
	SourceID   = "ss"
	SourceName = "SS.lv"
)

type Adapter struct {
	cfg     config.SourceConfig
	fetcher fetch.Fetcher
	rule    scraper.RelevanceRule
}

func New(cfg config.SourceConfig, fetcher fetch.Fetcher) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.ss.com"
	}
	return &Adapter{
		cfg:     cfg,
		fetcher: fetcher,
		rule:    scraper.RelevanceRule{Exclude: cfg.Exclude},
	}
}

func (a *Adapter) ID() string   { return SourceID }
func (a *Adapter) Name() string { return SourceName }

// SearchURL builds the result page URL. Page 1 has no page part; later pages
// use SS's "pageN.html" path segment.
func (a *Adapter) SearchURL(query string, page int) string {
	base := strings.TrimRight(a.cfg.BaseURL, "/") + "/en/search-result/"
	if page > 1 {
		base += fmt.Sprintf("page%d.html", page)
	}
	return base + "?q=" + url.QueryEscape(query)
}

func (a *Adapter) ScanPrices(ctx context.Context, query string, opts models.ScanOptions) ([]models.ListingStub, error) {
	utils.Info("[ss] scanning prices for %q (max %d)", query, opts.MaxResults)

	walk := scraper.PageWalk{
		Source:     SourceID,
		MaxPages:   a.cfg.MaxPages,
		Batch:      a.cfg.PageBatch,
		Delay:      a.cfg.PageDelay,
		MaxResults: opts.MaxResults,
	}
	stubs, err := walk.Run(ctx, func(ctx context.Context, page int) (scraper.PageResult, error) {
		html, err := a.fetcher.Fetch(ctx, a.SearchURL(query, page), fetch.Options{})
		if err != nil {
			return scraper.PageResult{}, err
		}
		return parseSearchPage(html, a.cfg.BaseURL)
	})
	if err != nil {
		return nil, fmt.Errorf("ss scan: %w", err)
	}

	out := scraper.FinishScan(stubs, query, opts, a.rule)
	utils.Info("[ss] %d listings after filtering", len(out))
	return out, nil
}

func (a *Adapter) EnrichDetails(ctx context.Context, urls []string) ([]models.RawListing, error) {
	pool := &scraper.EnrichPool{
		Source:  SourceID,
		Workers: a.cfg.DetailWorkers,
		Timeout: a.cfg.DetailTimeout,
		Detail: func(ctx context.Context, pageURL string) (*models.RawListing, error) {
			html, err := a.fetcher.Fetch(ctx, pageURL, fetch.Options{Timeout: a.cfg.DetailTimeout})
			if err != nil {
				return nil, err
			}
			return parseDetailPage(html, pageURL)
		},
	}
	return pool.Run(ctx, urls)
}
