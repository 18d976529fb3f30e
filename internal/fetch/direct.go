package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	eqerrors "eventqual/internal/errors"
	"eventqual/internal/logging"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; eventqual/1.0)"
	maxBodyBytes = 2 << 20
)

// HTTPFetcher fetches pages with a plain GET.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher creates a direct fetcher with the given timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Name returns the fetcher name.
func (f *HTTPFetcher) Name() string { return "direct_http" }

// Fetch retrieves pageURL and converts HTML bodies to text.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (Page, error) {
	logging.FetchDebug("Direct fetch: url=%s", pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, eqerrors.Wrap(eqerrors.EInvalidInput, "fetch.direct", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.Client.Do(req)
	if err != nil {
		return Page{}, eqerrors.Wrap(eqerrors.EExternalUnavailable, "fetch.direct", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, eqerrors.Newf(eqerrors.EExternalUnavailable, "fetch.direct", "HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, eqerrors.Wrap(eqerrors.EExternalUnavailable, "fetch.direct", fmt.Errorf("failed to read response: %w", err))
	}

	text, err := bodyText(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return Page{}, eqerrors.Wrap(eqerrors.EMalformedResponse, "fetch.direct", err)
	}

	logging.Fetch("Direct fetch completed: %s (%d chars)", pageURL, len(text))
	return Page{URL: pageURL, Text: text, FetchedBy: f.Name()}, nil
}
