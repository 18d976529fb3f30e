// Package dedup decides, per gathering round, whether previously stored
// knowledge answers a query or the open web must be searched, and persists
// new web results without duplicates.
package dedup

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventqual/internal/evidence"
	"eventqual/internal/knowledge"
	"eventqual/internal/logging"
	"eventqual/internal/retry"
	"eventqual/internal/websearch"
)

const (
	// DefaultThreshold is the similarity a stored match must reach without lexical corroboration.
	DefaultThreshold = 0.6

	storeLimit   = 10
	rawLimit     = 10
	payloadLimit = 5
	snippetChars = 200
)

// Store is the slice of the knowledge store the deduplicator needs.
type Store interface {
	Query(ctx context.Context, q knowledge.Query) ([]knowledge.Result, error)
	Upsert(ctx context.Context, docs []knowledge.Document) (knowledge.UpsertResult, error)
}

// Searcher runs a web search. *websearch.Connector satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) websearch.Result
	Tool() string
}

// Options tune a Deduplicator.
type Options struct {
	// Collection documents are written to; empty uses the store default.
	Collection string
	Retry      retry.Config
	Now        func() time.Time
}

// Deduplicator implements the reuse-or-search decision.
type Deduplicator struct {
	store    Store
	searcher Searcher
	opts     Options
}

// New creates a Deduplicator. A nil store makes every round a web search.
func New(store Store, searcher Searcher, opts Options) *Deduplicator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = knowledge.IsUnavailable
	}
	if opts.Retry.Category == "" {
		opts.Retry.Category = logging.CategoryStore
	}
	return &Deduplicator{store: store, searcher: searcher, opts: opts}
}

// FetchEvidence returns the best stored match for query when one clears the
// (possibly relaxed) threshold, otherwise searches the web and ingests the
// results. It never returns an error; degradations are logged and recorded.
func (d *Deduplicator) FetchEvidence(ctx context.Context, query string, threshold float64, keywordBoost bool) evidence.Record {
	log := logging.Get(logging.CategoryDedup)

	if d.store != nil {
		if rec, ok := d.fromStore(ctx, query, threshold, keywordBoost); ok {
			log.Info("Reusing stored knowledge for %q", query)
			return rec
		}
	}

	log.Info("No stored match for %q, searching the web", query)
	return d.fromWeb(ctx, query)
}

func (d *Deduplicator) fromStore(ctx context.Context, query string, threshold float64, keywordBoost bool) (evidence.Record, bool) {
	q := knowledge.Query{
		Text:          query,
		Mode:          knowledge.ModeSimilarity,
		Limit:         storeLimit,
		IncludeScores: true,
		Collection:    d.opts.Collection,
	}
	results, err := d.store.Query(ctx, q)
	if err != nil {
		logging.DedupWarn("Knowledge store query failed for %q, falling back to web: %v", query, err)
		return evidence.Record{}, false
	}

	best, ok := BestMatch(query, results, threshold, keywordBoost)
	if !ok {
		return evidence.Record{}, false
	}

	snippet := best.Snippet
	if snippet == "" {
		snippet = truncate(best.Content, snippetChars)
	}
	sim := *best.Similarity
	return evidence.Record{
		Source:      evidence.SourceKnowledgeStore,
		Query:       query,
		RetrievedAt: d.opts.Now(),
		Payload: []evidence.Item{{
			Title:      best.Title,
			URL:        best.URL,
			Snippet:    snippet,
			Similarity: &sim,
		}},
		FoundExisting: true,
	}, true
}

// BestMatch picks the most similar content-relevant result whose similarity
// clears its effective threshold. Ties keep the earlier result.
func BestMatch(query string, results []knowledge.Result, threshold float64, keywordBoost bool) (knowledge.Result, bool) {
	var (
		best    knowledge.Result
		bestSim = 0.0
		found   bool
	)
	for _, r := range results {
		if r.Similarity == nil {
			continue
		}
		rel, exact := Relevance(query, r.Content+" "+r.Title+" "+r.Snippet)
		relevant := IsContentRelevant(rel, exact)
		eff := EffectiveThreshold(threshold, relevant, exact, keywordBoost)

		logging.DedupDebug("Candidate %q: similarity=%.3f relevance=%.2f exact=%d effective=%.2f",
			r.Title, *r.Similarity, rel, exact, eff)

		if relevant && *r.Similarity >= eff && *r.Similarity > bestSim {
			best, bestSim, found = r, *r.Similarity, true
		}
	}
	return best, found
}

func (d *Deduplicator) fromWeb(ctx context.Context, query string) evidence.Record {
	res := d.searcher.Search(ctx, query)
	rec := evidence.Record{
		Source:      evidence.SourceWebSearch,
		Query:       query,
		RetrievedAt: d.opts.Now(),
	}
	if !res.Success {
		rec.Error = res.Error
		if rec.Error == "" {
			rec.Error = "web search failed"
		}
		return rec
	}

	if d.store != nil {
		docs := BuildDocuments(query, res, d.searcher.Tool(), d.opts.Collection, d.opts.Now())
		if len(docs) > 0 {
			ing, err := d.ingest(ctx, docs)
			if err != nil {
				logging.DedupWarn("Ingesting %d results for %q failed: %v", len(docs), query, err)
				rec.Error = "ingestion failed: " + err.Error()
			} else {
				rec.Ingestion = &evidence.Ingestion{Inserted: ing.Inserted, Skipped: ing.Skipped}
				logging.Dedup("Ingested %d new results for %q (%d duplicates skipped)", ing.Inserted, query, ing.Skipped)
			}
		}
	}

	rec.Payload = Payload(res.Raw)
	return rec
}

func (d *Deduplicator) ingest(ctx context.Context, docs []knowledge.Document) (knowledge.UpsertResult, error) {
	var out knowledge.UpsertResult
	err := retry.Do(ctx, d.opts.Retry, "knowledge.Upsert", func(ctx context.Context) error {
		r, err := d.store.Upsert(ctx, docs)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// BuildDocuments turns a successful search into documents ready for upsert.
func BuildDocuments(query string, res websearch.Result, tool, collection string, now time.Time) []knowledge.Document {
	entries := NormalizeRaw(res.Raw)
	if len(entries) > rawLimit {
		entries = entries[:rawLimit]
	}

	stamp := res.Timestamp
	if stamp.IsZero() {
		stamp = now
	}

	docs := make([]knowledge.Document, 0, len(entries))
	for i, e := range entries {
		if e.Title == "" || e.URL == "" {
			continue
		}
		if strings.Contains(e.URL, "google.com") || strings.HasPrefix(e.URL, "/search") {
			continue
		}
		content := strings.TrimSpace(e.Title + "\n\n" + e.Snippet)
		docs = append(docs, knowledge.Document{
			ID:              uuid.NewString(),
			Collection:      collection,
			Content:         content,
			ContentHash:     knowledge.ContentHash(e.URL, content),
			URL:             e.URL,
			Title:           e.Title,
			Snippet:         e.Snippet,
			Source:          string(evidence.SourceWebSearch),
			SearchQuery:     query,
			SearchTimestamp: stamp.Format(time.RFC3339),
			ResultIndex:     i,
			IngestionDate:   now.Format("2006-01-02"),
			Tool:            tool,
		})
	}
	return docs
}

// Payload extracts up to five result items from a raw search payload.
func Payload(raw any) []evidence.Item {
	entries := NormalizeRaw(raw)
	if len(entries) > payloadLimit {
		entries = entries[:payloadLimit]
	}
	items := make([]evidence.Item, 0, len(entries))
	for _, e := range entries {
		if e.Title == "" && e.Snippet == "" && e.URL == "" {
			continue
		}
		items = append(items, evidence.Item{Title: e.Title, Snippet: e.Snippet, URL: e.URL})
	}
	return items
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
