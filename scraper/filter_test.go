package scraper

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"secondhand-aggregator/models"
)

func ptr(v float64) *float64 { return &v }

func TestRelevanceRule(t *testing.T) {
	rule := RelevanceRule{Exclude: []string{"case", "Vāciņš"}}

	assert.True(t, rule.Allows("iphone 13", "iPhone 13 128GB"))
	assert.False(t, rule.Allows("iphone 13", "iPhone 13 silicone case"))
	assert.False(t, rule.Allows("iphone", "iPhone vāciņš"))
	assert.True(t, rule.Allows("iphone case", "iPhone 13 silicone case"), "query names the keyword")
	assert.True(t, rule.Allows("iphone", ""), "no card title, nothing to judge")
	assert.True(t, RelevanceRule{}.Allows("x", "anything"))
}

func TestInPriceRange(t *testing.T) {
	assert.True(t, InPriceRange(stub("a", math.Inf(1)), nil, nil))
	assert.False(t, InPriceRange(stub("a", math.Inf(1)), ptr(0), nil))
	assert.True(t, InPriceRange(stub("a", 10), ptr(10), ptr(10)))
	assert.False(t, InPriceRange(stub("a", 9.99), ptr(10), nil))
	assert.False(t, InPriceRange(stub("a", 11), nil, ptr(10)))
}

func TestFinishScan(t *testing.T) {
	stubs := []models.ListingStub{
		{URL: "a", PriceValue: 300, Title: "Laptop"},
		{URL: "b", PriceValue: 20, Title: "Laptop bag"},
		{URL: "c", PriceValue: 0, Title: "Old laptop"},
		{URL: "a", PriceValue: 300, Title: "Laptop"},
		{URL: "d", PriceValue: 5000, Title: "Gaming laptop"},
		{URL: "e", PriceValue: 150, Title: "Laptop"},
	}
	opts := models.ScanOptions{MaxResults: 2, MaxPrice: ptr(1000), SortBy: models.SortPriceLow}

	out := FinishScan(stubs, "laptop", opts, RelevanceRule{Exclude: []string{"bag"}})

	assert.Len(t, out, 2)
	assert.Equal(t, "c", out[0].URL)
	assert.Equal(t, "e", out[1].URL)
}
