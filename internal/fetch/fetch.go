// Package fetch retrieves event pages as plain text. Fetchers can be chained
// so a blocked unlocker request falls back to a direct request or a browser.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	eqerrors "eventqual/internal/errors"
	"eventqual/internal/logging"
)

// Page is a fetched page reduced to text.
type Page struct {
	URL  string
	Text string
	// FetchedBy names the fetcher that produced the page.
	FetchedBy string
}

// Fetcher retrieves a page.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, pageURL string) (Page, error)
}

// ErrEmptyPage is returned when a page yielded no text.
var ErrEmptyPage = errors.New("page has no text content")

// ValidateURL rejects anything that is not an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return eqerrors.Wrap(eqerrors.EInvalidInput, "fetch.ValidateURL", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return eqerrors.Newf(eqerrors.EInvalidInput, "fetch.ValidateURL", "not an http(s) URL: %q", raw)
	}
	return nil
}

// Chain tries each fetcher in order and returns the first page with text.
type Chain []Fetcher

// Name lists the chained fetchers.
func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, f := range c {
		names[i] = f.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Fetch returns the first successful page. When every fetcher fails the
// errors are joined.
func (c Chain) Fetch(ctx context.Context, pageURL string) (Page, error) {
	if err := ValidateURL(pageURL); err != nil {
		return Page{}, err
	}
	if len(c) == 0 {
		return Page{}, eqerrors.New(eqerrors.EExternalUnavailable, "fetch.Chain", "no fetchers configured")
	}

	var errs []error
	for _, f := range c {
		if err := ctx.Err(); err != nil {
			return Page{}, err
		}
		page, err := f.Fetch(ctx, pageURL)
		if err == nil && strings.TrimSpace(page.Text) == "" {
			err = ErrEmptyPage
		}
		if err == nil {
			return page, nil
		}
		logging.FetchWarn("Fetcher %s failed for %s: %v", f.Name(), pageURL, err)
		errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
	}
	return Page{}, eqerrors.Wrap(eqerrors.EExternalUnavailable, "fetch.Chain", errors.Join(errs...))
}
