package models

import "math"

// ListingStub is the cheap result of a price scan: enough to sort and paginate.
type ListingStub struct {
	URL        string
	PriceText  string
	PriceValue float64 // +Inf when the price text could not be parsed
	ImageURL   string
	SourceID   string
	// Title is whatever the result card showed; only used for relevance filtering.
	Title string
}

// Priced reports whether the stub carries a usable numeric price.
func (s ListingStub) Priced() bool {
	return !math.IsInf(s.PriceValue, 0) && !math.IsNaN(s.PriceValue)
}

// RawListing is what an adapter extracts from a detail page, before normalization.
// Field pairs like Price/PriceText and Link/URL mirror the different names sites use.
type RawListing struct {
	ID                 string
	URL                string
	Link               string
	Title              string
	Price              string
	PriceText          string
	PriceValue         *float64
	Currency           string
	LocationText       string
	PostedAtText       string
	PostedAtISO        string
	ConditionText      string
	Description        string
	DescriptionPreview string
	Images             []string
	ImageURL           string
	HasDescription     *bool
	HasImage           *bool
}

// Listing is the canonical listing schema returned to callers.
type Listing struct {
	ID                 string   `json:"id"`
	SourceID           string   `json:"sourceId"`
	SourceName         string   `json:"sourceName"`
	URL                string   `json:"url"`
	Title              string   `json:"title"`
	PriceText          string   `json:"priceText"`
	PriceValue         *float64 `json:"priceValue,omitempty"`
	Currency           string   `json:"currency,omitempty"`
	LocationText       string   `json:"locationText,omitempty"`
	PostedAtText       string   `json:"postedAtText,omitempty"`
	PostedAtISO        string   `json:"postedAtISO,omitempty"`
	ConditionText      string   `json:"conditionText,omitempty"`
	HasDescription     *bool    `json:"hasDescription,omitempty"`
	HasImage           *bool    `json:"hasImage,omitempty"`
	ImageURL           string   `json:"imageUrl,omitempty"`
	DescriptionPreview string   `json:"descriptionPreview,omitempty"`
}
