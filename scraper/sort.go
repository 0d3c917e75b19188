package scraper

import (
	"sort"

	"secondhand-aggregator/models"
)

// priceRank groups stubs before comparing numbers: free items sit at one end
// of the order and unparseable prices always come last.
func priceRank(s models.ListingStub, order models.SortOrder) int {
	switch {
	case !s.Priced():
		return 2
	case s.PriceValue == 0 && order == models.SortPriceHigh:
		return 1
	case s.PriceValue == 0:
		return 0
	case order == models.SortPriceHigh:
		return 0
	default:
		return 1
	}
}

// LessStub is the total order used for every price sort, per source and across
// sources. For price-low free items come first, for price-high they trail the
// priced ones. Ties are broken by URL so arrival order never matters.
func LessStub(a, b models.ListingStub, order models.SortOrder) bool {
	ra, rb := priceRank(a, order), priceRank(b, order)
	if ra != rb {
		return ra < rb
	}
	if a.Priced() && b.Priced() && a.PriceValue != b.PriceValue {
		if order == models.SortPriceHigh {
			return a.PriceValue > b.PriceValue
		}
		return a.PriceValue < b.PriceValue
	}
	if a.SourceID != b.SourceID {
		return a.SourceID < b.SourceID
	}
	return a.URL < b.URL
}

// SortStubs sorts stubs in place.
func SortStubs(stubs []models.ListingStub, order models.SortOrder) {
	sort.SliceStable(stubs, func(i, j int) bool {
		return LessStub(stubs[i], stubs[j], order)
	})
}

// DedupStubs keeps the first stub for every URL, preserving order.
func DedupStubs(stubs []models.ListingStub) []models.ListingStub {
	seen := make(map[string]bool, len(stubs))
	out := make([]models.ListingStub, 0, len(stubs))
	for _, s := range stubs {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	return out
}
