package fetch

import (
	"errors"
	"fmt"
)

// ErrBodyTooShort means the upstream answered with something that cannot be a listing page.
var ErrBodyTooShort = errors.New("response body too short")

// UpstreamHTTPError is a non-2xx answer from a marketplace.
type UpstreamHTTPError struct {
	URL    string
	Status int
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("upstream HTTP %d from %s", e.Status, e.URL)
}

// Retryable reports whether a later attempt may succeed.
func (e *UpstreamHTTPError) Retryable() bool {
	return e.Status == 429 || e.Status == 408 || e.Status >= 500
}

// RenderTimeoutError is returned once every render attempt for a URL has failed.
type RenderTimeoutError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *RenderTimeoutError) Error() string {
	return fmt.Sprintf("render %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *RenderTimeoutError) Unwrap() error { return e.Err }
