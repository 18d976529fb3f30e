package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	eqerrors "eventqual/internal/errors"
	"eventqual/internal/logging"
)

// BrightDataConfig configures the Bright Data SERP provider.
type BrightDataConfig struct {
	Endpoint string // https://api.brightdata.com
	Token    string
	Zone     string
	Country  string
	Client   *http.Client
}

// BrightDataProvider queries Google through the Bright Data Direct API.
type BrightDataProvider struct {
	cfg BrightDataConfig
}

// NewBrightDataProvider creates a SERP provider.
func NewBrightDataProvider(cfg BrightDataConfig) (*BrightDataProvider, error) {
	if cfg.Token == "" {
		return nil, eqerrors.New(eqerrors.EInvalidInput, "websearch.brightdata", "API token is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.brightdata.com"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Zone == "" {
		cfg.Zone = "serp_api1"
	}
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &BrightDataProvider{cfg: cfg}, nil
}

// Name returns the provenance tag.
func (p *BrightDataProvider) Name() string { return "brightdata_serp" }

type brightDataRequest struct {
	Zone   string `json:"zone"`
	URL    string `json:"url"`
	Format string `json:"format"`
}

// Search asks Bright Data for a parsed Google SERP. The decoded JSON object
// is returned when the body is JSON, otherwise the raw body string.
func (p *BrightDataProvider) Search(ctx context.Context, query string) (any, error) {
	serpURL := fmt.Sprintf("https://www.google.com/search?q=%s&gl=%s&hl=en&brd_json=1",
		url.QueryEscape(query), url.QueryEscape(p.cfg.Country))

	body, err := Request(ctx, p.cfg.Client, p.cfg.Endpoint, p.cfg.Token, p.cfg.Zone, serpURL)
	if err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		return decoded, nil
	}
	logging.SearchDebug("Bright Data returned non-JSON body (%d bytes)", len(body))
	return string(body), nil
}

// Request performs one Bright Data Direct API call for target through zone
// and returns the raw response body.
func Request(ctx context.Context, client *http.Client, endpoint, token, zone, target string) ([]byte, error) {
	payload, err := json.Marshal(brightDataRequest{Zone: zone, URL: target, Format: "raw"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/request", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, eqerrors.Wrap(eqerrors.EExternalUnavailable, "brightdata.request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, eqerrors.Wrap(eqerrors.EExternalUnavailable, "brightdata.request", fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		code := eqerrors.ESearchFailed
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode >= 500 {
			code = eqerrors.EExternalUnavailable
		}
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, eqerrors.Newf(code, "brightdata.request", "HTTP %d: %s", resp.StatusCode, msg)
	}

	return body, nil
}
