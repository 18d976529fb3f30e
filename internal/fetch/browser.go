package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	eqerrors "eventqual/internal/errors"
	"eventqual/internal/logging"
)

// BrowserConfig configures the headless browser fetcher.
type BrowserConfig struct {
	// DebuggerURL connects to a running Chrome instead of launching one.
	DebuggerURL string
	Headless    bool
	NavTimeout  time.Duration
}

// BrowserFetcher renders pages in Chrome for sites that build their content
// with JavaScript. The browser is started on first use.
type BrowserFetcher struct {
	cfg BrowserConfig

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewBrowserFetcher creates a browser fetcher. Nothing is launched yet.
func NewBrowserFetcher(cfg BrowserConfig) *BrowserFetcher {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	return &BrowserFetcher{cfg: cfg}
}

// Name returns the fetcher name.
func (f *BrowserFetcher) Name() string { return "headless_browser" }

func (f *BrowserFetcher) start() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		if _, err := f.browser.Version(); err == nil {
			return f.browser, nil
		}
		logging.BrowserDebug("Stale browser connection detected, reconnecting")
		_ = f.browser.Close()
		f.browser = nil
	}

	controlURL := f.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(f.cfg.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		f.launcher = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	f.browser = b
	logging.Browser("Browser connected")
	return b, nil
}

// Fetch opens pageURL in a fresh incognito context and returns its text.
func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (Page, error) {
	b, err := f.start()
	if err != nil {
		return Page{}, eqerrors.Wrap(eqerrors.EExternalUnavailable, "fetch.browser", err)
	}

	incognito, err := b.Incognito()
	if err != nil {
		return Page{}, eqerrors.Wrap(eqerrors.EExternalUnavailable, "fetch.browser", fmt.Errorf("incognito context: %w", err))
	}
	defer func() { _ = incognito.Close() }()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return Page{}, eqerrors.Wrap(eqerrors.EExternalUnavailable, "fetch.browser", fmt.Errorf("create page: %w", err))
	}
	defer func() { _ = page.Close() }()

	p := page.Context(ctx).Timeout(f.cfg.NavTimeout)
	if err := p.Navigate(pageURL); err != nil {
		return Page{}, eqerrors.Wrap(eqerrors.EExternalUnavailable, "fetch.browser", fmt.Errorf("navigate: %w", err))
	}
	if err := p.WaitLoad(); err != nil {
		return Page{}, eqerrors.Wrap(eqerrors.EExternalUnavailable, "fetch.browser", fmt.Errorf("wait load: %w", err))
	}

	markup, err := p.HTML()
	if err != nil {
		return Page{}, eqerrors.Wrap(eqerrors.EExternalUnavailable, "fetch.browser", fmt.Errorf("read html: %w", err))
	}

	text, err := HTMLToText(markup)
	if err != nil {
		return Page{}, eqerrors.Wrap(eqerrors.EMalformedResponse, "fetch.browser", err)
	}

	logging.Browser("Browser fetch completed: %s (%d chars)", pageURL, len(text))
	return Page{URL: pageURL, Text: text, FetchedBy: f.Name()}, nil
}

// Close shuts the browser down and kills a launched Chrome process.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.launcher != nil {
		f.launcher.Kill()
		f.launcher = nil
	}
	return err
}
