package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/types"
)

// BrowserFetcher renders pages in headless Chromium for sources whose
// listings are built client-side. Pages are stealth-patched and pooled.
type BrowserFetcher struct {
	browser  *rod.Browser
	cfg      *config.FetcherConfig
	logger   *slog.Logger
	pagePool chan *rod.Page
}

// NewBrowserFetcher launches Chromium and connects to it.
func NewBrowserFetcher(cfg *config.FetcherConfig, logger *slog.Logger) (*BrowserFetcher, error) {
	l := launcher.New().
		Headless(cfg.Browser.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	size := cfg.Browser.PoolSize
	if size < 1 {
		size = 1
	}
	bf := &BrowserFetcher{
		browser:  browser,
		cfg:      cfg,
		logger:   logger.With("component", "browser_fetcher"),
		pagePool: make(chan *rod.Page, size),
	}
	bf.logger.Info("browser fetcher ready", "pool_size", size, "headless", cfg.Browser.Headless)
	return bf, nil
}

// Fetch navigates to the URL and returns the rendered HTML.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	start := time.Now()

	page, err := bf.getPage()
	if err != nil {
		return nil, &types.FetchError{SourceID: req.SourceID, URL: req.URLString(), Err: err, Retryable: true, Attempts: 1}
	}
	defer bf.putPage(page)

	timeout := bf.cfg.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	p := page.Context(ctx).Timeout(timeout)

	if len(bf.cfg.UserAgents) > 0 {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      bf.cfg.UserAgents[0],
			AcceptLanguage: "en-US,en;q=0.9",
		}); err != nil {
			bf.logger.Warn("failed to set user agent", "error", err)
		}
	}

	if err := p.Navigate(req.URLString()); err != nil {
		return nil, &types.FetchError{SourceID: req.SourceID, URL: req.URLString(), Err: err, Retryable: true, Attempts: 1}
	}
	if err := p.WaitStable(bf.cfg.Browser.WaitIdle); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", req.URLString(), "error", err)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, &types.FetchError{SourceID: req.SourceID, URL: req.URLString(), Err: err, Retryable: true, Attempts: 1}
	}

	finalURL := req.URLString()
	if info, err := p.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	bf.logger.Debug("browser fetch complete", "url", req.URLString(), "final_url", finalURL, "size", len(html), "duration", duration)
	return types.NewBrowserResponse(req, 200, []byte(html), finalURL, duration), nil
}

// Close shuts down the browser and releases pooled pages.
func (bf *BrowserFetcher) Close() error {
	close(bf.pagePool)
	for page := range bf.pagePool {
		_ = page.Close()
	}
	return bf.browser.Close()
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}

func (bf *BrowserFetcher) getPage() (*rod.Page, error) {
	select {
	case page := <-bf.pagePool:
		return page, nil
	default:
		return stealth.Page(bf.browser)
	}
}

func (bf *BrowserFetcher) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")
	select {
	case bf.pagePool <- page:
	default:
		_ = page.Close()
	}
}
