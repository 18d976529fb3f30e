// Package websearch issues search-engine queries through a pluggable provider
// and hands back the provider's raw result shape untouched.
package websearch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"eventqual/internal/logging"
)

// Provider performs one search and returns its provider-defined payload.
type Provider interface {
	// Name is the provenance tag stored with ingested results ("brightdata_serp").
	Name() string
	Search(ctx context.Context, query string) (any, error)
}

// Result is the outcome of one search. Raw carries whatever the provider
// returned; failures never escape as errors.
type Result struct {
	Success   bool      `json:"success"`
	Query     string    `json:"query"`
	Raw       any       `json:"results"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
}

// Connector wraps a provider with a per-call timeout and panic recovery.
// It never retries.
type Connector struct {
	provider Provider
	timeout  time.Duration
}

// NewConnector creates a connector. A zero timeout leaves the caller's deadline alone.
func NewConnector(p Provider, timeout time.Duration) *Connector {
	return &Connector{provider: p, timeout: timeout}
}

// Tool returns the provenance tag of the underlying provider.
func (c *Connector) Tool() string { return c.provider.Name() }

// Search runs query through the provider.
func (c *Connector) Search(ctx context.Context, query string) (res Result) {
	res = Result{Query: query, Provider: c.provider.Name(), Timestamp: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategorySearch).Error("search provider %s panicked: %v\n%s", c.provider.Name(), r, debug.Stack())
			res.Success = false
			res.Raw = nil
			res.Error = fmt.Sprintf("search provider panic: %v", r)
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	timer := logging.StartTimer(logging.CategorySearch, "Search:"+c.provider.Name())
	raw, err := c.provider.Search(ctx, query)
	timer.Stop()
	if err != nil {
		logging.SearchWarn("Search failed for %q via %s: %v", query, c.provider.Name(), err)
		res.Error = err.Error()
		return res
	}

	res.Success = true
	res.Raw = raw
	logging.Search("Search completed for %q via %s", query, c.provider.Name())
	return res
}
