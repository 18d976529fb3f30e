package fetch

import (
	"context"
	"net/http"
	"time"

	eqerrors "eventqual/internal/errors"
)

// Fetch modes.
const (
	ModeAuto     = "auto"
	ModeUnlocker = "unlocker"
	ModeDirect   = "direct"
	ModeBrowser  = "browser"
)

// Options selects and configures the fetchers behind a Service.
type Options struct {
	Mode string

	BrightDataEndpoint string
	BrightDataToken    string
	UnlockerZone       string

	Headless    bool
	DebuggerURL string
	NavTimeout  time.Duration

	Timeout    time.Duration
	CacheTTL   time.Duration
	MaxEntries int
}

// Service is the configured fetch stack: a fallback chain behind a cache.
type Service struct {
	cache   *Cache
	browser *BrowserFetcher
}

// New builds the fetch stack for opts.Mode. In auto mode the unlocker is
// used when a token is present, then a direct request, then a browser when
// a debugger URL is configured.
func New(opts Options) (*Service, error) {
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}

	s := &Service{}
	var chain Chain

	unlocker := func() error {
		f, err := NewUnlockerFetcher(UnlockerConfig{
			Endpoint: opts.BrightDataEndpoint,
			Token:    opts.BrightDataToken,
			Zone:     opts.UnlockerZone,
			Client:   &http.Client{Timeout: opts.Timeout},
		})
		if err != nil {
			return err
		}
		chain = append(chain, f)
		return nil
	}
	browser := func() {
		s.browser = NewBrowserFetcher(BrowserConfig{
			DebuggerURL: opts.DebuggerURL,
			Headless:    opts.Headless,
			NavTimeout:  opts.NavTimeout,
		})
		chain = append(chain, s.browser)
	}

	switch opts.Mode {
	case ModeUnlocker:
		if err := unlocker(); err != nil {
			return nil, err
		}
	case ModeDirect:
		chain = append(chain, NewHTTPFetcher(opts.Timeout))
	case ModeBrowser:
		browser()
	case ModeAuto:
		if opts.BrightDataToken != "" {
			if err := unlocker(); err != nil {
				return nil, err
			}
		}
		chain = append(chain, NewHTTPFetcher(opts.Timeout))
		if opts.DebuggerURL != "" {
			browser()
		}
	default:
		return nil, eqerrors.Newf(eqerrors.EInvalidInput, "fetch.New", "unknown fetch mode %q", opts.Mode)
	}

	s.cache = NewCache(chain, opts.CacheTTL, opts.MaxEntries)
	return s, nil
}

// Name describes the fetch stack.
func (s *Service) Name() string { return s.cache.Name() }

// Fetch retrieves pageURL through the cache and the fallback chain.
func (s *Service) Fetch(ctx context.Context, pageURL string) (Page, error) {
	if err := ValidateURL(pageURL); err != nil {
		return Page{}, err
	}
	return s.cache.Fetch(ctx, pageURL)
}

// Close releases the browser, if one was started.
func (s *Service) Close() error {
	if s.browser == nil {
		return nil
	}
	return s.browser.Close()
}
