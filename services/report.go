package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"secondhand-aggregator/models"
)

type Report struct {
	TotalListings      int
	ListingsBySource   map[string]int
	PricedListings     int
	FreeListings       int
	AveragePrice       float64
	MinPrice           float64
	MaxPrice           float64
	Cheapest           models.Listing
	MostExpensive      models.Listing
	ListingsByLocation map[string]int
}

// GenerateReport cleans a page of results and summarizes its prices. Free
// items are counted apart and left out of the price statistics.
func GenerateReport(listings []models.Listing) Report {
	cleaned := CleanListings(listings)

	report := Report{
		TotalListings:      len(cleaned),
		ListingsBySource:   make(map[string]int),
		ListingsByLocation: make(map[string]int),
	}
	if len(cleaned) == 0 {
		return report
	}

	var (
		priceSum float64
		maxPrice = -1.0
		minPrice = math.MaxFloat64
	)

	for _, l := range cleaned {
		report.ListingsBySource[l.SourceID]++
		report.ListingsByLocation[normalizeLocation(l.LocationText)]++

		if l.PriceValue == nil {
			continue
		}
		price := *l.PriceValue
		if price == 0 {
			report.FreeListings++
			continue
		}

		report.PricedListings++
		priceSum += price
		if price > maxPrice {
			maxPrice = price
			report.MostExpensive = l
		}
		if price < minPrice {
			minPrice = price
			report.Cheapest = l
		}
	}

	if report.PricedListings > 0 {
		report.AveragePrice = priceSum / float64(report.PricedListings)
		report.MinPrice = minPrice
		report.MaxPrice = maxPrice
	}
	return report
}

func PrintReport(w io.Writer, report Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────────────────────────────────────┐")
	fmt.Fprintln(w, "│                   Secondhand Market Snapshot                 │")
	fmt.Fprintln(w, "├───────────────────────────────┬──────────────────────────────┤")
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Listings on Page", report.TotalListings)
	fmt.Fprintf(w, "│ %-29s │ %-28d │\n", "Free Listings", report.FreeListings)
	fmt.Fprintf(w, "│ %-29s │ %-28.2f │\n", "Average Price", report.AveragePrice)
	fmt.Fprintf(w, "│ %-29s │ %-28.2f │\n", "Minimum Price", report.MinPrice)
	fmt.Fprintf(w, "│ %-29s │ %-28.2f │\n", "Maximum Price", report.MaxPrice)
	fmt.Fprintln(w, "└───────────────────────────────┴──────────────────────────────┘")

	for _, pick := range []struct {
		label   string
		listing models.Listing
	}{
		{"Cheapest Listing", report.Cheapest},
		{"Most Expensive Listing", report.MostExpensive},
	} {
		if pick.listing.Title == "" {
			continue
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "┌──────────────────────────────────────────────────────────────┐")
		fmt.Fprintf(w, "│ %-60s │\n", pick.label)
		fmt.Fprintln(w, "├───────────────────────────────┬──────────────────────────────┤")
		fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Price", truncateText(pick.listing.PriceText, 28))
		fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Source", pick.listing.SourceName)
		fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Location", truncateText(normalizeLocation(pick.listing.LocationText), 28))
		fmt.Fprintln(w, "└───────────────────────────────┴──────────────────────────────┘")
		fmt.Fprintf(w, "Title: %s\n", pick.listing.Title)
	}

	printCounts(w, "Listings per Source", report.ListingsBySource)
	printCounts(w, "Listings per Location", report.ListingsByLocation)
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────────────────────┬───────────────┐")
	fmt.Fprintf(w, "│ %-44s │ Count         │\n", title)
	fmt.Fprintln(w, "├──────────────────────────────────────────────┼───────────────┤")
	for _, k := range sortedKeys(counts) {
		fmt.Fprintf(w, "│ %-44s │ %-13d │\n", truncateText(k, 44), counts[k])
	}
	fmt.Fprintln(w, "└──────────────────────────────────────────────┴───────────────┘")
}

// CleanListings trims text fields and drops listings without a title or URL
// and repeated URLs.
func CleanListings(listings []models.Listing) []models.Listing {
	seen := make(map[string]bool)
	cleaned := make([]models.Listing, 0, len(listings))

	for _, l := range listings {
		l.Title = strings.TrimSpace(l.Title)
		l.URL = strings.TrimSpace(l.URL)
		l.SourceID = strings.TrimSpace(strings.ToLower(l.SourceID))
		l.LocationText = strings.TrimSpace(l.LocationText)

		if l.Title == "" || l.URL == "" {
			continue
		}
		if seen[l.URL] {
			continue
		}

		seen[l.URL] = true
		cleaned = append(cleaned, l)
	}

	return cleaned
}

func normalizeLocation(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return "Unknown"
	}
	return location
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncateText(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	rs := []rune(s)
	if max <= 3 {
		return string(rs[:max])
	}
	return string(rs[:max-3]) + "..."
}
