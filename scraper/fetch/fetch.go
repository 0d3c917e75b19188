package fetch

import (
	"context"
	"time"
)

// MinBodyBytes is the smallest document we accept as a real page.
const MinBodyBytes = 100

// Options tune a single fetch. Zero values mean "use the fetcher default".
type Options struct {
	// WaitSelector is a CSS selector the rendered page must contain before
	// its HTML is read. Ignored by the plain HTTP fetcher.
	WaitSelector string
	// Settle is an extra pause after load for async content.
	Settle time.Duration
	// Timeout bounds one attempt.
	Timeout time.Duration
}

// Fetcher returns the HTML document at url.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (string, error)
}
