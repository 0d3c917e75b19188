package scraper

import (
	"context"
	"sort"

	"secondhand-aggregator/models"
)

// Adapter is one marketplace. Searches run in two phases: a cheap price scan
// over result pages, then detail enrichment for the URLs actually shown.
type Adapter interface {
	ID() string
	Name() string
	// ScanPrices returns deduplicated, filtered and sorted stubs. An error
	// means the source failed as a whole, as opposed to finding nothing.
	ScanPrices(ctx context.Context, query string, opts models.ScanOptions) ([]models.ListingStub, error)
	// EnrichDetails fetches detail pages for urls. Items that fail are dropped;
	// an error is returned only when none could be enriched.
	EnrichDetails(ctx context.Context, urls []string) ([]models.RawListing, error)
}

// Registry maps source ids to adapters. It is filled once at startup.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds a, replacing any adapter with the same id.
func (r *Registry) Register(a Adapter) {
	if _, ok := r.adapters[a.ID()]; !ok {
		r.order = append(r.order, a.ID())
	}
	r.adapters[a.ID()] = a
}

func (r *Registry) Get(id string) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// IDs lists registered sources in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Resolve splits ids into known adapters (sorted by id, deduplicated) and unknown ids.
func (r *Registry) Resolve(ids []string) (known []Adapter, unknown []string) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if a, ok := r.adapters[id]; ok {
			known = append(known, a)
		} else {
			unknown = append(unknown, id)
		}
	}
	sort.Slice(known, func(i, j int) bool { return known[i].ID() < known[j].ID() })
	return known, unknown
}
