package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpfetch "github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"secondhand-aggregator/utils"
)

// selectorTimeout bounds the optional wait for Options.WaitSelector.
const selectorTimeout = 8 * time.Second

// PageRenderer loads url in a new page of browser and returns the document HTML.
// The page must be closed before it returns.
type PageRenderer func(ctx, browser context.Context, url string, opts Options) (string, error)

// RenderFetcher loads pages in the shared headless browser, for sites that
// build their listings with JavaScript or sit behind a bot check.
type RenderFetcher struct {
	pool    *BrowserPool
	render  PageRenderer
	retries int
	backoff time.Duration
	timeout time.Duration
	settle  time.Duration
}

// RenderOption configures a RenderFetcher.
type RenderOption func(*RenderFetcher)

// WithRenderer replaces the chromedp page logic; tests use it with a fake pool.
func WithRenderer(r PageRenderer) RenderOption {
	return func(f *RenderFetcher) { f.render = r }
}

// WithRenderRetries sets the extra attempts and the linear backoff step.
func WithRenderRetries(n int, backoff time.Duration) RenderOption {
	return func(f *RenderFetcher) {
		f.retries = n
		f.backoff = backoff
	}
}

// WithSettle sets the default post-load wait.
func WithSettle(d time.Duration) RenderOption {
	return func(f *RenderFetcher) { f.settle = d }
}

func NewRenderFetcher(pool *BrowserPool, timeout time.Duration, opts ...RenderOption) *RenderFetcher {
	f := &RenderFetcher{
		pool:    pool,
		render:  chromeRender,
		retries: 2,
		backoff: time.Second,
		timeout: timeout,
		settle:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch renders url and returns its HTML. After the last failed attempt the
// error is a *RenderTimeoutError.
func (f *RenderFetcher) Fetch(ctx context.Context, url string, opts Options) (string, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = f.timeout
	}
	if opts.Settle <= 0 {
		opts.Settle = f.settle
	}

	attempts := f.retries + 1
	var html string
	err := utils.Retry(ctx, attempts, f.backoff, func(attempt int) error {
		if attempt > 1 {
			utils.Debug("[browser] retry %d for %s", attempt-1, url)
		}

		browser, err := f.pool.Acquire(ctx)
		if err != nil {
			if errors.Is(err, ErrPoolClosed) {
				return utils.Permanent(err)
			}
			return err
		}

		out, err := f.render(ctx, browser, url, opts)
		if err != nil {
			if browser.Err() != nil || isSessionError(err) {
				f.pool.Invalidate(browser)
			}
			return err
		}
		if len(out) < MinBodyBytes {
			return fmt.Errorf("%s: %w (%d bytes)", url, ErrBodyTooShort, len(out))
		}
		html = out
		return nil
	})
	if err != nil {
		return "", &RenderTimeoutError{URL: url, Attempts: attempts, Err: err}
	}
	return html, nil
}

func isSessionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "session closed") ||
		strings.Contains(msg, "websocket")
}

// blockedResources are never downloaded by rendered pages.
var blockedResources = []network.ResourceType{
	network.ResourceTypeImage,
	network.ResourceTypeFont,
	network.ResourceTypeMedia,
}

func chromeRender(ctx, browser context.Context, url string, opts Options) (string, error) {
	tabCtx, closeTab := chromedp.NewContext(browser)
	defer closeTab()

	tabCtx, cancel := context.WithTimeout(tabCtx, opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		paused, ok := ev.(*cdpfetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(tabCtx)
			if c == nil || c.Target == nil {
				return
			}
			execCtx := cdp.WithExecutor(tabCtx, c.Target)
			_ = cdpfetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
		}()
	})

	patterns := make([]*cdpfetch.RequestPattern, 0, len(blockedResources))
	for _, rt := range blockedResources {
		patterns = append(patterns, &cdpfetch.RequestPattern{URLPattern: "*", ResourceType: rt})
	}

	if err := chromedp.Run(tabCtx,
		cdpfetch.Enable().WithPatterns(patterns),
		chromedp.Navigate(url),
		utils.HideWebDriver(),
	); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}

	if opts.WaitSelector != "" {
		waitCtx, waitCancel := context.WithTimeout(tabCtx, selectorTimeout)
		err := chromedp.Run(waitCtx, chromedp.WaitReady(opts.WaitSelector, chromedp.ByQuery))
		waitCancel()
		if err != nil {
			return "", fmt.Errorf("wait for %q on %s: %w", opts.WaitSelector, url, err)
		}
	}

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(opts.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return html, nil
}
