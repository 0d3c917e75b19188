// Package osta reads Osta.ee. Every page sits behind a Cloudflare check, so
// both search and detail pages go through the browser.
package osta

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
	SourceID   = "osta"
	SourceName = "Osta.ee"
)

type Adapter struct {
	cfg    config.SourceConfig
	render fetch.Fetcher
	rule   scraper.RelevanceRule
}

func New(cfg config.SourceConfig, render fetch.Fetcher) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.osta.ee"
	}
	return &Adapter{
		cfg:    cfg,
		render: render,
		rule:   scraper.RelevanceRule{Exclude: cfg.Exclude},
	}
}

func (a *Adapter) ID() string   { return SourceID }
func (a *Adapter) Name() string { return SourceName }

func (a *Adapter) SearchURL(query string, page int, order models.SortOrder) string {
	v := url.Values{}
	v.Set("q", query)
	if order == models.SortPriceHigh {
		v.Set("sort", "price_desc")
	} else {
		v.Set("sort", "price_asc")
	}
	if page > 1 {
		v.Set("page", fmt.Sprint(page))
	}
	return strings.TrimRight(a.cfg.BaseURL, "/") + "/search?" + v.Encode()
}

func (a *Adapter) ScanPrices(ctx context.Context, query string, opts models.ScanOptions) ([]models.ListingStub, error) {
	utils.Info("[osta] scanning prices for %q (max %d)", query, opts.MaxResults)

	walk := scraper.PageWalk{
		Source:     SourceID,
		MaxPages:   a.cfg.MaxPages,
		Batch:      a.cfg.PageBatch,
		Delay:      a.cfg.PageDelay,
		MaxResults: opts.MaxResults,
	}
	stubs, err := walk.Run(ctx, func(ctx context.Context, page int) (scraper.PageResult, error) {
		html, err := a.render.Fetch(ctx, a.SearchURL(query, page, opts.SortBy), fetch.Options{Settle: a.cfg.RenderWait})
		if err != nil {
			return scraper.PageResult{}, err
		}
		res, err := parseSearchPage(html, a.cfg.BaseURL)
		if err == nil && len(res.Stubs) == 0 {
			utils.Debug("[osta] no listing container matched on page %d", page)
		}
		return res, err
	})
	if err != nil {
		return nil, fmt.Errorf("osta scan: %w", err)
	}

	out := scraper.FinishScan(stubs, query, opts, a.rule)
	utils.Info("[osta] %d listings after filtering", len(out))
	return out, nil
}

func (a *Adapter) EnrichDetails(ctx context.Context, urls []string) ([]models.RawListing, error) {
	pool := &scraper.EnrichPool{
		Source:  SourceID,
		Workers: a.cfg.DetailWorkers,
		Timeout: a.cfg.DetailTimeout,
		Detail: func(ctx context.Context, pageURL string) (*models.RawListing, error) {
			html, err := a.render.Fetch(ctx, pageURL, fetch.Options{
				WaitSelector: "h1",
				Settle:       a.cfg.RenderWait,
				Timeout:      a.cfg.DetailTimeout,
			})
			if err != nil {
				return nil, err
			}
			return parseDetailPage(html, pageURL)
		},
	}
	return pool.Run(ctx, urls)
}
