package utils

import (
	"context"
	"math/rand"
	"net/http"

	"github.com/chromedp/chromedp"
)

// AcceptLanguage covers the Baltic marketplaces we read; English first so
// sites that localize labels fall back to the vocabulary the adapters know.
const AcceptLanguage = "en-US,en;q=0.9,lv;q=0.8,et;q=0.7,ru;q=0.6"

// Desktop browser strings rotated per browser launch and per plain request.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// SetBrowserHeaders makes a plain request look like a desktop browser navigation.
func SetBrowserHeaders(h http.Header) {
	h.Set("User-Agent", RandomUserAgent())
	h.Set("Accept-Language", AcceptLanguage)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
}

// StealthOpts returns ChromeDP launch options that hide automation.
//
//   - disable-blink-features=AutomationControlled removes the navigator.webdriver flag
//   - headless=new is the newer headless mode, harder to fingerprint
//   - a normal window size; bots often run with tiny default windows
func StealthOpts(headless bool) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("lang", "en-US"),
		chromedp.WindowSize(1280, 800),
		chromedp.UserAgent(RandomUserAgent()),
	}

	if headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}

	return opts
}

// HideWebDriver patches the JS properties bot checks look at.
// Run it right after navigation, before the page scripts probe the environment.
func HideWebDriver() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return chromedp.Evaluate(`
			Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
			Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
			Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en', 'lv', 'et'] });
		`, nil).Do(ctx)
	})
}
