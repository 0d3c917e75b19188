package scraper

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"secondhand-aggregator/models"
	"secondhand-aggregator/utils"
)

// PageResult is one parsed search-results page.
type PageResult struct {
	Stubs []models.ListingStub
	// TotalPages is what the site says it has, or 0 when unknown.
	TotalPages int
}

// PageFunc fetches and parses result page n (1-based).
type PageFunc func(ctx context.Context, n int) (PageResult, error)

// PageWalk walks search-result pages: page 1 alone, then the rest in small
// concurrent batches with a pause between batches.
type PageWalk struct {
	Source     string
	MaxPages   int
	Batch      int
	Delay      time.Duration
	MaxResults int
}

// Run collects unique stubs until a batch brings nothing new, MaxResults is
// reached or the page cap is hit. A failing first page fails the walk; a
// failing later page only loses that page.
func (w PageWalk) Run(ctx context.Context, fetch PageFunc) ([]models.ListingStub, error) {
	first, err := fetch(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("page 1: %w", err)
	}

	seen := make(map[string]bool)
	var stubs []models.ListingStub
	add := func(page []models.ListingStub) int {
		added := 0
		for _, s := range page {
			if s.URL == "" || seen[s.URL] {
				continue
			}
			seen[s.URL] = true
			stubs = append(stubs, s)
			added++
		}
		return added
	}

	add(first.Stubs)
	utils.Info("[%s] page 1: %d listings", w.Source, len(first.Stubs))
	if len(first.Stubs) == 0 {
		return stubs, nil
	}

	lastPage := w.lastPage(first)
	batch := w.Batch
	if batch < 1 {
		batch = 1
	}

	for start := 2; start <= lastPage && !w.full(len(stubs)); start += batch {
		if start > 2 {
			if err := utils.Sleep(ctx, utils.Jitter(w.Delay)); err != nil {
				break
			}
		}

		end := start + batch - 1
		if end > lastPage {
			end = lastPage
		}

		pages := make([][]models.ListingStub, end-start+1)
		var g errgroup.Group
		for n := start; n <= end; n++ {
			g.Go(func() error {
				res, err := fetch(ctx, n)
				if err != nil {
					utils.Warn("[%s] page %d failed: %v", w.Source, n, err)
					return nil
				}
				utils.Debug("[%s] page %d: %d listings", w.Source, n, len(res.Stubs))
				pages[n-start] = res.Stubs
				return nil
			})
		}
		_ = g.Wait()

		added := 0
		for _, p := range pages {
			added += add(p)
		}
		if added == 0 {
			utils.Info("[%s] pages %d-%d brought nothing new, stopping", w.Source, start, end)
			break
		}
	}

	utils.Info("[%s] scanned %d unique listings", w.Source, len(stubs))
	return stubs, nil
}

func (w PageWalk) lastPage(first PageResult) int {
	last := w.MaxPages
	if last < 1 {
		last = 1
	}
	if first.TotalPages > 0 && first.TotalPages < last {
		last = first.TotalPages
	}
	// A full first page tells us how many pages MaxResults needs.
	if per := len(first.Stubs); per > 0 && w.MaxResults > 0 {
		if need := (w.MaxResults + per - 1) / per; need < last {
			last = need
		}
	}
	return last
}

func (w PageWalk) full(n int) bool {
	return w.MaxResults > 0 && n >= w.MaxResults
}
