package scraper

import "fmt"

// PartialEnrichmentError describes a detail batch that came back short.
// Adapters log it when some items failed and return it when all did.
type PartialEnrichmentError struct {
	Source    string
	Requested int
	Enriched  int
}

func (e *PartialEnrichmentError) Error() string {
	return fmt.Sprintf("%s: enriched %d of %d listings", e.Source, e.Enriched, e.Requested)
}
