package scraper

import (
	"context"
	"errors"
	"sync"
	"time"

	"secondhand-aggregator/models"
	"secondhand-aggregator/utils"
)

// ErrListingGone marks a detail page that exists but no longer shows a listing.
var ErrListingGone = errors.New("listing no longer available")

// DetailFunc fetches and parses one detail page.
type DetailFunc func(ctx context.Context, url string) (*models.RawListing, error)

type detailResult struct {
	index   int
	listing *models.RawListing
	err     error
}

// EnrichPool fetches detail pages with a fixed number of workers. Every item
// gets its own timeout; a failed or timed-out item is dropped, never retried.
type EnrichPool struct {
	Source  string
	Workers int
	Timeout time.Duration
	Detail  DetailFunc
}

// Run returns the enriched listings in the order of urls.
func (p *EnrichPool) Run(ctx context.Context, urls []string) ([]models.RawListing, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	workerCount := p.Workers
	if workerCount < 1 {
		workerCount = 1
	}
	if len(urls) < workerCount {
		workerCount = len(urls)
	}

	jobs := make(chan int, len(urls))
	results := make(chan detailResult, len(urls))

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go p.worker(ctx, urls, jobs, results, &wg)
	}

	for i := range urls {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	return p.collect(urls, results)
}

func (p *EnrichPool) worker(ctx context.Context, urls []string, jobs <-chan int, results chan<- detailResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for i := range jobs {
		listing, err := p.fetchOne(ctx, urls[i])
		results <- detailResult{index: i, listing: listing, err: err}
	}
}

func (p *EnrichPool) fetchOne(ctx context.Context, url string) (listing *models.RawListing, err error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			listing, err = nil, errors.New("detail parser panicked")
			utils.Error("[%s] panic while enriching %s: %v", p.Source, url, r)
		}
	}()
	return p.Detail(ctx, url)
}

func (p *EnrichPool) collect(urls []string, results <-chan detailResult) ([]models.RawListing, error) {
	ordered := make([]*models.RawListing, len(urls))
	failed := 0

	for res := range results {
		if res.err != nil || res.listing == nil {
			if res.err != nil {
				utils.Warn("[%s] failed to enrich %s: %v", p.Source, urls[res.index], res.err)
			}
			failed++
			continue
		}
		l := *res.listing
		if l.URL == "" && l.Link == "" {
			l.URL = urls[res.index]
		}
		ordered[res.index] = &l
	}

	all := make([]models.RawListing, 0, len(urls)-failed)
	for _, l := range ordered {
		if l != nil {
			all = append(all, *l)
		}
	}

	utils.Info("[%s] enriched %d | failed %d", p.Source, len(all), failed)
	if len(all) == 0 {
		return nil, &PartialEnrichmentError{Source: p.Source, Requested: len(urls)}
	}
	if failed > 0 && len(all)*2 < len(urls) {
		utils.Warn("[%s] %v", p.Source, &PartialEnrichmentError{Source: p.Source, Requested: len(urls), Enriched: len(all)})
	}
	return all, nil
}
