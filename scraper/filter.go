package scraper

import (
	"strings"

	"secondhand-aggregator/models"
)

// RelevanceRule rejects obvious category mismatches by keyword. It is
// best-effort: a stub whose card title contains an excluded keyword is
// dropped unless the query asks for that keyword itself.
type RelevanceRule struct {
	Exclude []string
}

// Allows reports whether a card titled title is relevant to query.
func (r RelevanceRule) Allows(query, title string) bool {
	if len(r.Exclude) == 0 || title == "" {
		return true
	}
	q := strings.ToLower(query)
	t := strings.ToLower(title)
	for _, kw := range r.Exclude {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || strings.Contains(q, kw) {
			continue
		}
		if strings.Contains(t, kw) {
			return false
		}
	}
	return true
}

// InPriceRange applies the optional bounds. With any bound set, stubs
// without a parseable price are dropped since they cannot be checked.
func InPriceRange(s models.ListingStub, min, max *float64) bool {
	if min == nil && max == nil {
		return true
	}
	if !s.Priced() {
		return false
	}
	if min != nil && s.PriceValue < *min {
		return false
	}
	if max != nil && s.PriceValue > *max {
		return false
	}
	return true
}

// FinishScan turns raw page stubs into an adapter's scan result: dedup,
// price range, relevance, sort, then cut to MaxResults.
func FinishScan(stubs []models.ListingStub, query string, opts models.ScanOptions, rule RelevanceRule) []models.ListingStub {
	stubs = DedupStubs(stubs)

	out := stubs[:0]
	for _, s := range stubs {
		if !InPriceRange(s, opts.MinPrice, opts.MaxPrice) {
			continue
		}
		if !rule.Allows(query, s.Title) {
			continue
		}
		out = append(out, s)
	}

	SortStubs(out, opts.SortBy)
	if opts.MaxResults > 0 && len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}
	return out
}
