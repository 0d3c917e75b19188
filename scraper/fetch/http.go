package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"secondhand-aggregator/utils"
)

// maxBodyBytes caps how much of a page we read; listing pages are far below it.
const maxBodyBytes = 8 << 20

// HTTPFetcher does plain GET requests that look like a desktop browser.
type HTTPFetcher struct {
	client  *http.Client
	retries int
	backoff time.Duration
	timeout time.Duration
	rps     float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithClient swaps the underlying client; tests pass httptest clients.
func WithClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithRetries sets how many extra attempts a transient failure gets.
func WithRetries(n int, backoff time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		f.retries = n
		f.backoff = backoff
	}
}

// WithHostRate limits requests per second to any single host. Zero disables it.
func WithHostRate(rps float64) HTTPOption {
	return func(f *HTTPFetcher) { f.rps = rps }
}

func NewHTTPFetcher(timeout time.Duration, opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:   &http.Client{},
		retries:  2,
		backoff:  time.Second,
		timeout:  timeout,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the body of url. Network errors, 408, 429 and 5xx are retried
// with linear backoff; any other non-2xx fails at once with *UpstreamHTTPError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (string, error) {
	timeout := f.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	var body string
	err := utils.Retry(ctx, f.retries+1, f.backoff, func(attempt int) error {
		if attempt > 1 {
			utils.Debug("[http] retry %d for %s", attempt-1, rawURL)
		}
		var err error
		body, err = f.get(ctx, rawURL, timeout)
		if err == nil {
			return nil
		}
		var upstream *UpstreamHTTPError
		if errors.As(err, &upstream) && !upstream.Retryable() {
			return utils.Permanent(err)
		}
		if ctx.Err() != nil {
			return utils.Permanent(err)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string, timeout time.Duration) (string, error) {
	if err := f.wait(ctx, rawURL); err != nil {
		return "", err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", utils.Permanent(fmt.Errorf("build request: %w", err))
	}
	utils.SetBrowserHeaders(req.Header)
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &UpstreamHTTPError{URL: rawURL, Status: resp.StatusCode}
	}

	reader, err := decodeBody(resp)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	if len(data) < MinBodyBytes {
		return "", fmt.Errorf("%s: %w (%d bytes)", rawURL, ErrBodyTooShort, len(data))
	}
	return string(data), nil
}

// decodeBody undoes the Content-Encoding we asked for. Setting Accept-Encoding
// ourselves turns off the transport's transparent gzip handling.
func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return zr, nil
	default:
		return resp.Body, nil
	}
}

func (f *HTTPFetcher) wait(ctx context.Context, rawURL string) error {
	if f.rps <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return utils.Permanent(fmt.Errorf("parse url: %w", err))
	}

	f.mu.Lock()
	lim, ok := f.limiters[u.Host]
	if !ok {
		burst := int(f.rps)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(f.rps), burst)
		f.limiters[u.Host] = lim
	}
	f.mu.Unlock()

	return lim.Wait(ctx)
}
