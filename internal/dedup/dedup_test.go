package dedup

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventqual/internal/embedding"
	eqerrors "eventqual/internal/errors"
	"eventqual/internal/evidence"
	"eventqual/internal/knowledge"
	"eventqual/internal/retry"
	"eventqual/internal/websearch"
)

type fakeStore struct {
	results   []knowledge.Result
	queryErr  error
	upsertErr error
	upserts   atomic.Int32
	docs      []knowledge.Document
	lastQuery knowledge.Query
}

func (f *fakeStore) Query(_ context.Context, q knowledge.Query) ([]knowledge.Result, error) {
	f.lastQuery = q
	return f.results, f.queryErr
}

func (f *fakeStore) Upsert(_ context.Context, docs []knowledge.Document) (knowledge.UpsertResult, error) {
	f.upserts.Add(1)
	if f.upsertErr != nil {
		return knowledge.UpsertResult{}, f.upsertErr
	}
	f.docs = append(f.docs, docs...)
	return knowledge.UpsertResult{Inserted: len(docs)}, nil
}

type fakeSearcher struct {
	res   websearch.Result
	calls atomic.Int32
}

func (f *fakeSearcher) Search(_ context.Context, query string) websearch.Result {
	f.calls.Add(1)
	r := f.res
	r.Query = query
	return r
}

func (f *fakeSearcher) Tool() string { return "brightdata_serp" }

func sim(v float64) *float64 { return &v }

func fixedNow() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func serp() map[string]any {
	return map[string]any{
		"organic": []any{
			map[string]any{"title": "Jane Doe - Acme", "link": "https://acme.example/jane", "description": "Jane Doe leads ML at Acme."},
			map[string]any{"title": "Search more", "link": "https://www.google.com/search?q=jane"},
			map[string]any{"title": "Talk", "link": "/search?q=talk"},
			map[string]any{"title": "", "link": "https://untitled.example"},
			map[string]any{"title": "Jane Doe keynote", "link": "https://conf.example/jane", "description": "Keynote on applied ML."},
		},
	}
}

func TestRelevance(t *testing.T) {
	rel, exact := Relevance("Jane Doe machine learning keynote", "Jane Doe gave a keynote on machine learning")
	assert.InDelta(t, 1.0, rel, 1e-9)
	assert.Equal(t, 3, exact) // machine, learning, keynote

	rel, exact = Relevance("Jane Doe founder startup", "Jane Doe is a founder of a startup")
	assert.InDelta(t, 1.0, rel, 1e-9)
	assert.Equal(t, 0, exact, "short and common terms never count as exact")

	rel, exact = Relevance("José Nuño", "josé nuño keynote")
	assert.InDelta(t, 1.0, rel, 1e-9)
	assert.Equal(t, 0, exact, "four-letter accented names are not exact matches")
	assert.InDelta(t, 0.6, EffectiveThreshold(0.6, IsContentRelevant(rel, exact), exact, true), 1e-9)

	_, exact = Relevance("Zoë Müller", "zoë müller")
	assert.Equal(t, 1, exact, "müller has six characters")

	rel, exact = Relevance("", "anything")
	assert.Zero(t, rel)
	assert.Zero(t, exact)
}

func TestIsContentRelevant(t *testing.T) {
	assert.True(t, IsContentRelevant(0.6, 0))
	assert.True(t, IsContentRelevant(0.4, 2))
	assert.False(t, IsContentRelevant(0.4, 1))
	assert.False(t, IsContentRelevant(0.59, 0))
}

func TestEffectiveThreshold(t *testing.T) {
	tests := []struct {
		name     string
		thr      float64
		relevant bool
		exact    int
		boost    bool
		want     float64
	}{
		{"relevant with two exact", 0.6, true, 2, true, 0.02},
		{"relevant with one exact", 0.6, true, 1, true, 0.2},
		{"relevant with one exact floor", 0.3, true, 1, true, 0.1},
		{"three exact not relevant", 0.6, false, 3, true, 0.3},
		{"three exact floor", 0.4, false, 3, true, 0.2},
		{"nothing", 0.6, false, 0, true, 0.6},
		{"boost disabled", 0.6, true, 3, false, 0.6},
		{"capped at threshold", 0.05, true, 1, true, 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EffectiveThreshold(tt.thr, tt.relevant, tt.exact, tt.boost), 1e-9)
		})
	}
}

// Raising the threshold never turns a rejected candidate into an accepted one.
func TestThresholdMonotonicity(t *testing.T) {
	results := []knowledge.Result{
		{Document: knowledge.Document{Title: "Jane Doe", Content: "Jane Doe machine learning keynote speaker"}, Similarity: sim(0.35)},
		{Document: knowledge.Document{Title: "Jane", Content: "Jane Doe bio"}, Similarity: sim(0.7)},
		{Document: knowledge.Document{Title: "Weather", Content: "rain"}, Similarity: sim(0.9)},
	}
	queries := []string{"Jane Doe machine learning", "Jane Doe", "weather forecast", "Jane Doe keynote speaker biography"}

	for _, q := range queries {
		for _, boost := range []bool{true, false} {
			prevMatched := true
			for thr := 0.0; thr <= 1.0; thr += 0.05 {
				_, matched := BestMatch(q, results, thr, boost)
				if matched && !prevMatched {
					t.Fatalf("query %q boost=%v: match reappeared at threshold %.2f", q, boost, thr)
				}
				prevMatched = matched
			}
		}
	}
}

func TestBestMatchPrefersHighestAndKeepsFirstOnTie(t *testing.T) {
	results := []knowledge.Result{
		{Document: knowledge.Document{Title: "first", Content: "jane doe"}, Similarity: sim(0.8)},
		{Document: knowledge.Document{Title: "second", Content: "jane doe"}, Similarity: sim(0.8)},
		{Document: knowledge.Document{Title: "none"}, Similarity: nil},
		{Document: knowledge.Document{Title: "lower", Content: "jane doe"}, Similarity: sim(0.7)},
	}
	best, ok := BestMatch("jane doe", results, 0.6, true)
	require.True(t, ok)
	assert.Equal(t, "first", best.Title)
}

func TestBestMatchCountsCharactersNotBytes(t *testing.T) {
	results := []knowledge.Result{
		{Document: knowledge.Document{Title: "José Nuño", Content: "josé nuño keynote"}, Similarity: sim(0.05)},
	}
	_, ok := BestMatch("José Nuño", results, 0.6, true)
	assert.False(t, ok, "a low-similarity doc must not be reused for short accented names")
}

func TestNormalizeRaw(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want []Entry
	}{
		{
			name: "organic map",
			raw: map[string]any{"organic": []any{
				map[string]any{"title": "A", "link": "https://a", "description": "da"},
			}},
			want: []Entry{{Title: "A", URL: "https://a", Snippet: "da"}},
		},
		{
			name: "results map with url and snippet",
			raw: map[string]any{"results": []any{
				map[string]any{"title": "B", "url": "https://b", "snippet": "sb"},
			}},
			want: []Entry{{Title: "B", URL: "https://b", Snippet: "sb"}},
		},
		{
			name: "empty organic falls back to results",
			raw: map[string]any{"organic": []any{}, "results": []any{
				map[string]any{"title": "C", "href": "https://c"},
			}},
			want: []Entry{{Title: "C", URL: "https://c"}},
		},
		{
			name: "list prefers url and snippet",
			raw: []any{
				map[string]any{"title": "D", "url": "https://d", "link": "https://other", "snippet": "sd", "description": "dd"},
				"not an object",
			},
			want: []Entry{{Title: "D", URL: "https://d", Snippet: "sd"}, {}},
		},
		{
			name: "json string",
			raw:  `{"organic":[{"title":"E","link":"https://e"}]}`,
			want: []Entry{{Title: "E", URL: "https://e"}},
		},
		{name: "plain string", raw: "<html>captcha</html>", want: nil},
		{name: "json scalar string", raw: `"quoted"`, want: nil},
		{name: "number", raw: 42, want: nil},
		{name: "nil", raw: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeRaw(tt.raw)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NormalizeRaw mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildDocuments(t *testing.T) {
	res := websearch.Result{Success: true, Raw: serp(), Timestamp: fixedNow()}
	docs := BuildDocuments("Jane Doe", res, "brightdata_serp", "", fixedNow())

	require.Len(t, docs, 2)
	first := docs[0]
	assert.Equal(t, "Jane Doe - Acme\n\nJane Doe leads ML at Acme.", first.Content)
	assert.Equal(t, knowledge.ContentHash("https://acme.example/jane", first.Content), first.ContentHash)
	assert.Equal(t, "web_search", first.Source)
	assert.Equal(t, "Jane Doe", first.SearchQuery)
	assert.Equal(t, "2025-03-14", first.IngestionDate)
	assert.Equal(t, "2025-03-14T09:30:00Z", first.SearchTimestamp)
	assert.Equal(t, "brightdata_serp", first.Tool)
	assert.Equal(t, 0, first.ResultIndex)
	assert.NotEmpty(t, first.ID)

	assert.Equal(t, 4, docs[1].ResultIndex, "positions of skipped entries are preserved")
}

func TestBuildDocumentsOnlyConsidersFirstTen(t *testing.T) {
	organic := make([]any, 0, 12)
	for i := 0; i < 10; i++ {
		organic = append(organic, map[string]any{"title": "blocked", "link": "https://google.com/x"})
	}
	organic = append(organic, map[string]any{"title": "late", "link": "https://late.example"})
	res := websearch.Result{Success: true, Raw: map[string]any{"organic": organic}}

	assert.Empty(t, BuildDocuments("q", res, "t", "", fixedNow()))
}

func TestPayload(t *testing.T) {
	items := Payload(serp())
	require.Len(t, items, 5)
	assert.Equal(t, evidence.Item{Title: "Jane Doe - Acme", Snippet: "Jane Doe leads ML at Acme.", URL: "https://acme.example/jane"}, items[0])

	assert.Empty(t, Payload("not json"))
	assert.Len(t, Payload([]any{map[string]any{}, map[string]any{"title": "x"}}), 1)
}

// Scenario A: nothing stored, the web is searched and results are ingested.
func TestFetchEvidenceSearchesWebWhenStoreEmpty(t *testing.T) {
	store := &fakeStore{}
	search := &fakeSearcher{res: websearch.Result{Success: true, Raw: serp(), Timestamp: fixedNow()}}
	d := New(store, search, Options{Now: fixedNow, Retry: fastRetry()})

	rec := d.FetchEvidence(context.Background(), "Jane Doe machine learning", DefaultThreshold, true)

	assert.Equal(t, evidence.SourceWebSearch, rec.Source)
	assert.False(t, rec.FoundExisting)
	assert.Len(t, rec.Payload, 5)
	require.NotNil(t, rec.Ingestion)
	assert.Equal(t, 2, rec.Ingestion.Inserted)
	assert.Empty(t, rec.Error)
	assert.Equal(t, int32(1), search.calls.Load())

	assert.Equal(t, knowledge.ModeSimilarity, store.lastQuery.Mode)
	assert.Equal(t, 10, store.lastQuery.Limit)
	assert.True(t, store.lastQuery.IncludeScores)
}

// Scenario B: a relevant stored document is reused without searching.
func TestFetchEvidenceReusesStoredMatch(t *testing.T) {
	store := &fakeStore{results: []knowledge.Result{{
		Document: knowledge.Document{
			Title:   "Jane Doe keynote",
			URL:     "https://conf.example/jane",
			Content: "Jane Doe keynote on machine learning systems",
		},
		Similarity: sim(0.31),
	}}}
	search := &fakeSearcher{}
	d := New(store, search, Options{Now: fixedNow})

	rec := d.FetchEvidence(context.Background(), "Jane Doe machine learning keynote", DefaultThreshold, true)

	assert.Equal(t, evidence.SourceKnowledgeStore, rec.Source)
	assert.True(t, rec.FoundExisting)
	require.Len(t, rec.Payload, 1)
	item := rec.Payload[0]
	assert.Equal(t, "https://conf.example/jane", item.URL)
	assert.Equal(t, "Jane Doe keynote on machine learning systems", item.Snippet, "snippet falls back to content")
	require.NotNil(t, item.Similarity)
	assert.InDelta(t, 0.31, *item.Similarity, 1e-9)
	assert.Zero(t, search.calls.Load())
}

func TestFetchEvidenceWithoutBoostNeedsFullThreshold(t *testing.T) {
	store := &fakeStore{results: []knowledge.Result{{
		Document:   knowledge.Document{Title: "Jane Doe keynote", Content: "Jane Doe keynote on machine learning"},
		Similarity: sim(0.31),
	}}}
	search := &fakeSearcher{res: websearch.Result{Success: true, Raw: []any{}}}
	d := New(store, search, Options{Now: fixedNow})

	rec := d.FetchEvidence(context.Background(), "Jane Doe machine learning keynote", DefaultThreshold, false)

	assert.Equal(t, evidence.SourceWebSearch, rec.Source)
	assert.Empty(t, rec.Payload)
	assert.Equal(t, int32(1), search.calls.Load())
}

// Scenario C: the store is down and the search fails; the round degrades.
func TestFetchEvidenceDegradesWhenEverythingFails(t *testing.T) {
	store := &fakeStore{queryErr: eqerrors.New(eqerrors.EStoreUnavailable, "knowledge.Query", "connection refused")}
	search := &fakeSearcher{res: websearch.Result{Success: false, Error: "HTTP 503"}}
	d := New(store, search, Options{Now: fixedNow})

	rec := d.FetchEvidence(context.Background(), "Jane Doe", DefaultThreshold, true)

	assert.Equal(t, evidence.SourceWebSearch, rec.Source)
	assert.Empty(t, rec.Payload)
	assert.Equal(t, "HTTP 503", rec.Error)
	assert.Zero(t, store.upserts.Load())
}

func TestFetchEvidenceRetriesUnavailableUpsert(t *testing.T) {
	store := &fakeStore{upsertErr: eqerrors.Wrap(eqerrors.EStoreUnavailable, "knowledge.Upsert", errors.New("disk I/O error"))}
	search := &fakeSearcher{res: websearch.Result{Success: true, Raw: serp()}}
	d := New(store, search, Options{Now: fixedNow, Retry: fastRetry()})

	rec := d.FetchEvidence(context.Background(), "Jane Doe", DefaultThreshold, true)

	assert.Equal(t, int32(3), store.upserts.Load(), "one attempt plus two retries")
	assert.Contains(t, rec.Error, "ingestion failed")
	assert.Nil(t, rec.Ingestion)
	assert.Len(t, rec.Payload, 5, "payload survives an ingestion failure")
}

func TestFetchEvidenceDoesNotRetryOtherUpsertErrors(t *testing.T) {
	store := &fakeStore{upsertErr: errors.New("constraint violated")}
	search := &fakeSearcher{res: websearch.Result{Success: true, Raw: serp()}}
	d := New(store, search, Options{Now: fixedNow, Retry: fastRetry()})

	d.FetchEvidence(context.Background(), "Jane Doe", DefaultThreshold, true)
	assert.Equal(t, int32(1), store.upserts.Load())
}

func TestFetchEvidenceWithoutStore(t *testing.T) {
	search := &fakeSearcher{res: websearch.Result{Success: true, Raw: serp()}}
	d := New(nil, search, Options{})

	rec := d.FetchEvidence(context.Background(), "Jane Doe", DefaultThreshold, true)
	assert.Equal(t, evidence.SourceWebSearch, rec.Source)
	assert.Nil(t, rec.Ingestion)
	assert.Len(t, rec.Payload, 5)
}

// A second identical query is answered from what the first one ingested.
func TestFetchEvidenceRoundTripThroughSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := knowledge.Open(ctx, knowledge.Options{
		Path:     filepath.Join(t.TempDir(), "kb.db"),
		Embedder: embedding.NewHashEngine(256),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	raw := map[string]any{"organic": []any{
		map[string]any{
			"title":       "Jane Doe keynote on distributed systems",
			"link":        "https://conf.example/jane",
			"description": "Jane Doe gives the distributed systems keynote.",
		},
	}}
	search := &fakeSearcher{res: websearch.Result{Success: true, Raw: raw}}
	d := New(store, search, Options{Now: fixedNow, Retry: fastRetry()})

	query := "Jane Doe distributed systems keynote"
	first := d.FetchEvidence(ctx, query, DefaultThreshold, true)
	require.Equal(t, evidence.SourceWebSearch, first.Source)
	require.NotNil(t, first.Ingestion)
	assert.Equal(t, 1, first.Ingestion.Inserted)

	second := d.FetchEvidence(ctx, query, DefaultThreshold, true)
	assert.Equal(t, evidence.SourceKnowledgeStore, second.Source)
	assert.True(t, second.FoundExisting)
	assert.Equal(t, int32(1), search.calls.Load())

	// Ingesting the same results again inserts nothing.
	again, err := store.Upsert(ctx, BuildDocuments(query, search.res, "brightdata_serp", "", fixedNow()))
	require.NoError(t, err)
	assert.Zero(t, again.Inserted)
}
