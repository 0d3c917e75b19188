package models

import "strings"

// SortOrder is the price ordering requested by the caller.
type SortOrder string

const (
	SortPriceLow  SortOrder = "price-low"
	SortPriceHigh SortOrder = "price-high"
)

// ParseSortOrder maps query-string values onto a SortOrder, defaulting to price-low.
func ParseSortOrder(raw string) SortOrder {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "price-high", "price_desc", "price-desc":
		return SortPriceHigh
	default:
		return SortPriceLow
	}
}

// ScanOptions bounds a single adapter's price scan.
type ScanOptions struct {
	MaxResults int
	MinPrice   *float64
	MaxPrice   *float64
	SortBy     SortOrder
}

// SearchRequest is one orchestrated search.
type SearchRequest struct {
	Query      string
	Sources    []string
	Page       int
	PerPage    int
	MaxResults int
	MinPrice   *float64
	MaxPrice   *float64
	SortBy     SortOrder
}

// SourceError records why a source contributed nothing to a response.
type SourceError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// SearchResponse is the unified result set of a search.
type SearchResponse struct {
	Query        string        `json:"query"`
	Sources      []string      `json:"sources"`
	Items        []Listing     `json:"items"`
	TotalResults int           `json:"totalResults"`
	CurrentPage  int           `json:"currentPage"`
	TotalPages   int           `json:"totalPages"`
	Errors       []SourceError `json:"errors"`
	TookMs       int64         `json:"tookMs"`
	Cached       bool          `json:"cached"`
	Error        string        `json:"error,omitempty"`
}

// Clone returns a copy whose slices can be modified without touching the original.
func (r *SearchResponse) Clone() *SearchResponse {
	if r == nil {
		return nil
	}
	out := *r
	out.Sources = append([]string(nil), r.Sources...)
	out.Items = append([]Listing(nil), r.Items...)
	out.Errors = append([]SourceError(nil), r.Errors...)
	if out.Items == nil {
		out.Items = []Listing{}
	}
	if out.Errors == nil {
		out.Errors = []SourceError{}
	}
	return &out
}
