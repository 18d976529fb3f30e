package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	eqerrors "eventqual/internal/errors"
)

// NewsProvider searches Google News through its RSS endpoint.
type NewsProvider struct {
	// Endpoint is the RSS search URL without query string.
	Endpoint   string
	Language   string // hl, e.g. "en-US"
	Country    string // gl, e.g. "US"
	MaxResults int
	Client     *http.Client
}

// NewNewsProvider creates a Google News RSS provider.
func NewNewsProvider() *NewsProvider {
	return &NewsProvider{
		Endpoint:   "https://news.google.com/rss/search",
		Language:   "en-US",
		Country:    "US",
		MaxResults: 10,
		Client:     http.DefaultClient,
	}
}

// Name returns the provenance tag.
func (p *NewsProvider) Name() string { return "google_news_rss" }

// Search returns a list of {title, link, description} records.
func (p *NewsProvider) Search(ctx context.Context, query string) (any, error) {
	lang := strings.SplitN(p.Language, "-", 2)[0]
	u := fmt.Sprintf("%s?q=%s&hl=%s&gl=%s&ceid=%s",
		p.Endpoint,
		url.QueryEscape(query),
		url.QueryEscape(p.Language),
		url.QueryEscape(p.Country),
		url.QueryEscape(p.Country+":"+lang),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.1")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, eqerrors.Wrap(eqerrors.EExternalUnavailable, "websearch.news", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eqerrors.Newf(eqerrors.ESearchFailed, "websearch.news", "rss http %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, eqerrors.Wrap(eqerrors.EMalformedResponse, "websearch.news", err)
	}

	limit := p.MaxResults
	if limit <= 0 {
		limit = 10
	}
	out := make([]any, 0, limit)
	for _, it := range feed.Items {
		if len(out) >= limit {
			break
		}
		out = append(out, map[string]any{
			"title":       strings.TrimSpace(it.Title),
			"link":        strings.TrimSpace(it.Link),
			"description": stripTags(it.Description),
		})
	}
	return out, nil
}

// stripTags reduces an HTML fragment to its text.
func stripTags(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.TrimSpace(fragment)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), nil)
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	var parts []string
	for _, n := range nodes {
		if t := textContent(n); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
