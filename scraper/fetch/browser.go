package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"golang.org/x/sync/singleflight"

	"secondhand-aggregator/utils"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("browser pool closed")

// Launcher starts a browser. The returned context is the browser session:
// pages are opened as children of it, and cancel tears the browser down.
type Launcher func() (browser context.Context, cancel context.CancelFunc, err error)

// ChromeLauncher launches a local Chrome through chromedp with the stealth flags.
func ChromeLauncher(headless bool) Launcher {
	return func() (context.Context, context.CancelFunc, error) {
		allocCtx, allocCancel := chromedp.NewExecAllocator(
			context.Background(),
			utils.StealthOpts(headless)...,
		)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)

		// An empty Run starts the browser process.
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			return nil, nil, fmt.Errorf("launch chrome: %w", err)
		}

		return browserCtx, func() {
			browserCancel()
			allocCancel()
		}, nil
	}
}

// BrowserPool owns one shared browser. It is launched on first use, reused
// while healthy, relaunched after a disconnect, and shut down by Close.
type BrowserPool struct {
	launch Launcher
	group  singleflight.Group

	mu      sync.Mutex
	browser context.Context
	cancel  context.CancelFunc
	closed  bool
}

func NewBrowserPool(launch Launcher) *BrowserPool {
	return &BrowserPool{launch: launch}
}

// Acquire returns the live browser session, launching it if needed.
// Concurrent first callers share a single launch.
func (p *BrowserPool) Acquire(ctx context.Context) (context.Context, error) {
	if b, err := p.current(); b != nil || err != nil {
		return b, err
	}

	ch := p.group.DoChan("launch", func() (interface{}, error) {
		if b, err := p.current(); b != nil || err != nil {
			return b, err
		}

		utils.Info("[browser] launching headless browser...")
		b, cancel, err := p.launch()
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			cancel()
			return nil, ErrPoolClosed
		}
		p.browser, p.cancel = b, cancel
		utils.Success("[browser] browser ready")
		return b, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(context.Context), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// current returns the healthy browser, or nil when one has to be launched.
func (p *BrowserPool) current() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if p.browser == nil {
		return nil, nil
	}
	if p.browser.Err() != nil {
		utils.Warn("[browser] browser disconnected, will relaunch")
		p.cancel()
		p.browser, p.cancel = nil, nil
		return nil, nil
	}
	return p.browser, nil
}

// Invalidate drops browser if it is still the current one, so the next
// Acquire relaunches. Callers use it when a page fails with a session error.
func (p *BrowserPool) Invalidate(browser context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser == nil || p.browser != browser {
		return
	}
	utils.Warn("[browser] dropping broken browser session")
	p.cancel()
	p.browser, p.cancel = nil, nil
}

// Close shuts the browser down. Later Acquire calls fail with ErrPoolClosed.
func (p *BrowserPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	if p.cancel != nil {
		utils.Info("[browser] closing browser...")
		p.cancel()
	}
	p.browser, p.cancel = nil, nil
}
