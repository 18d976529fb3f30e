package event

import (
	"context"
	"fmt"

	"eventqual/internal/fetch"
	"eventqual/internal/jsonx"
	"eventqual/internal/llm"
	"eventqual/internal/logging"
)

const (
	// DefaultMaxContentChars bounds how much page text reaches the model.
	DefaultMaxContentChars = 4000
	rawContentChars        = 500

	parseFailedName   = "Event (parsing failed)"
	extractFailedName = "Event (extraction failed)"
)

// PageFetcher retrieves an event page. *fetch.Service satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (fetch.Page, error)
}

// Extractor turns an event page into Details with the help of a model.
type Extractor struct {
	fetcher         PageFetcher
	llm             llm.Client
	maxContentChars int
}

// NewExtractor creates an extractor. A non-positive maxContentChars uses the default.
func NewExtractor(fetcher PageFetcher, client llm.Client, maxContentChars int) *Extractor {
	if maxContentChars <= 0 {
		maxContentChars = DefaultMaxContentChars
	}
	return &Extractor{fetcher: fetcher, llm: client, maxContentChars: maxContentChars}
}

// Extract fetches url and asks the model for the event's details. It never
// fails: parse and fetch problems are reported inside the returned Details.
func (e *Extractor) Extract(ctx context.Context, url string) Details {
	page, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		logging.FetchWarn("Event page fetch failed for %s: %v", url, err)
		return extractionFailed(url, err)
	}

	raw, err := e.llm.Complete(ctx, ExtractionPrompt(url, truncate(page.Text, e.maxContentChars)))
	if err != nil {
		logging.AgentWarn("Event extraction model call failed for %s: %v", url, err)
		return extractionFailed(url, err)
	}

	m, err := jsonx.Object(raw)
	if err != nil {
		logging.AgentWarn("Could not parse event details for %s: %v", url, err)
		d := Defaults(url)
		d.Name = parseFailedName
		d.Description = fmt.Sprintf("Event details could not be fully parsed from %s", url)
		d.RawContent = truncate(page.Text, rawContentChars)
		return d
	}

	d := FromMap(m).MergeOver(Defaults(url))
	logging.Agent("Extracted event %q from %s via %s", d.Name, url, page.FetchedBy)
	return d
}

func extractionFailed(url string, err error) Details {
	d := Defaults(url)
	d.Name = extractFailedName
	d.Description = fmt.Sprintf("Failed to extract event details from %s", url)
	d.ExtractionError = err.Error()
	return d
}

// ExtractionPrompt asks for the event JSON structure given page text.
func ExtractionPrompt(url, content string) string {
	return fmt.Sprintf(`Extract event details from the following scraped web content.
Return ONLY a valid JSON object with the following structure:
{
    "name": "Event Name",
    "type": "Event Type (conference/workshop/meetup/etc.)",
    "date": "Event Date",
    "location": "Event Location",
    "description": "Brief description",
    "requirements": ["requirement1", "requirement2"],
    "audience": "Target audience",
    "format": "Event format (presentation/panel/workshop/etc.)",
    "topics": ["topic1", "topic2"],
    "url": %q
}

Scraped Content:
%s
`, url, content)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
