package services

import (
	"hash/fnv"
	"math"
	"strconv"

	"secondhand-aggregator/models"
	"secondhand-aggregator/scraper"
)

// Normalize maps an adapter's raw listing onto the canonical schema. It is
// pure: the same input always gives the same Listing, id included.
func Normalize(raw models.RawListing, sourceID, sourceName string) models.Listing {
	url := raw.URL
	if url == "" {
		url = raw.Link
	}
	priceText := raw.Price
	if priceText == "" {
		priceText = raw.PriceText
	}

	l := models.Listing{
		ID:                 raw.ID,
		SourceID:           sourceID,
		SourceName:         sourceName,
		URL:                url,
		Title:              raw.Title,
		PriceText:          priceText,
		Currency:           raw.Currency,
		LocationText:       raw.LocationText,
		PostedAtText:       raw.PostedAtText,
		PostedAtISO:        raw.PostedAtISO,
		ConditionText:      raw.ConditionText,
		HasDescription:     raw.HasDescription,
		HasImage:           raw.HasImage,
		ImageURL:           raw.ImageURL,
		DescriptionPreview: raw.DescriptionPreview,
	}
	if l.ID == "" {
		l.ID = ListingID(sourceID, url)
	}
	if len(raw.Images) > 0 && raw.Images[0] != "" {
		l.ImageURL = raw.Images[0]
	}

	switch {
	case raw.PriceValue != nil:
		l.PriceValue = finite(*raw.PriceValue)
	case priceText != "":
		l.PriceValue = finite(scraper.ParsePrice(priceText))
	}
	return l
}

// ListingID is "<source>-<base36 FNV-1a of the url>".
func ListingID(sourceID, url string) string {
	h := fnv.New32a()
	h.Write([]byte(url))
	return sourceID + "-" + strconv.FormatUint(uint64(h.Sum32()), 36)
}

// finite drops values JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
