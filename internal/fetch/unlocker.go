package fetch

import (
	"context"
	"net/http"
	"strings"
	"time"

	eqerrors "eventqual/internal/errors"
	"eventqual/internal/logging"
	"eventqual/internal/websearch"
)

// UnlockerConfig configures the Bright Data Web Unlocker fetcher.
type UnlockerConfig struct {
	Endpoint string
	Token    string
	Zone     string
	Client   *http.Client
}

// UnlockerFetcher fetches pages through a Bright Data unlocker zone, which
// handles bot protection and returns the rendered HTML.
type UnlockerFetcher struct {
	cfg UnlockerConfig
}

// NewUnlockerFetcher creates an unlocker fetcher. A token is required.
func NewUnlockerFetcher(cfg UnlockerConfig) (*UnlockerFetcher, error) {
	if cfg.Token == "" {
		return nil, eqerrors.New(eqerrors.EInvalidInput, "fetch.NewUnlockerFetcher", "Bright Data API token is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.brightdata.com"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Zone == "" {
		cfg.Zone = "unblocker"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 60 * time.Second}
	}
	return &UnlockerFetcher{cfg: cfg}, nil
}

// Name returns the fetcher name.
func (f *UnlockerFetcher) Name() string { return "brightdata_unlocker" }

// Fetch retrieves pageURL through the unlocker zone.
func (f *UnlockerFetcher) Fetch(ctx context.Context, pageURL string) (Page, error) {
	logging.FetchDebug("Unlocker fetch: url=%s zone=%s", pageURL, f.cfg.Zone)

	body, err := websearch.Request(ctx, f.cfg.Client, f.cfg.Endpoint, f.cfg.Token, f.cfg.Zone, pageURL)
	if err != nil {
		return Page{}, err
	}

	text, err := bodyText("", body)
	if err != nil {
		return Page{}, eqerrors.Wrap(eqerrors.EMalformedResponse, "fetch.unlocker", err)
	}

	logging.Fetch("Unlocker fetch completed: %s (%d chars)", pageURL, len(text))
	return Page{URL: pageURL, Text: text, FetchedBy: f.Name()}, nil
}
