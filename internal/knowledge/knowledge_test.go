package knowledge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventqual/internal/embedding"
	eqerrors "eventqual/internal/errors"
)

func openTestStore(t *testing.T, embedder embedding.EmbeddingEngine) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), Options{
		Path:     filepath.Join(t.TempDir(), "kb.db"),
		Embedder: embedder,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func doc(url, title, snippet string) Document {
	content := title + "\n\n" + snippet
	return Document{
		Content:     content,
		ContentHash: ContentHash(url, content),
		URL:         url,
		Title:       title,
		Snippet:     snippet,
		Source:      "web_search",
		Tool:        "brightdata_serp",
		Metadata:    map[string]any{"engine": "google"},
	}
}

func seed(t *testing.T, s *SQLiteStore) {
	t.Helper()
	_, err := s.Upsert(context.Background(), []Document{
		doc("https://acme.example/team", "Jane Doe - CTO at Acme", "Jane Doe leads engineering at Acme and speaks on distributed systems."),
		doc("https://conf.example/speakers", "Speakers 2024", "Keynote speakers include researchers in machine learning."),
		doc("https://news.example/weather", "Weekend weather", "Rain expected across the region on Saturday."),
	})
	require.NoError(t, err)
}

func TestSimilarityFromDistance(t *testing.T) {
	tests := []struct {
		d    float64
		want float64
		ok   bool
	}{
		{0, 1, true},
		{0.25, 0.75, true},
		{1, 0, true},
		{1.5, 0.25, true},
		{2, 0, true},
		{-0.1, 0, false},
		{2.5, 0, false},
	}
	for _, tt := range tests {
		got, ok := SimilarityFromDistance(tt.d)
		assert.Equal(t, tt.ok, ok, "d=%v", tt.d)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "d=%v", tt.d)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("https://x.example", "Title\n\nSnippet")
	b := ContentHash("https://x.example", "  Title\n\nSnippet \n")
	assert.Equal(t, a, b, "surrounding whitespace must not change the hash")
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, ContentHash("https://y.example", "Title\n\nSnippet"))
	assert.NotEqual(t, a, ContentHash("https://x.example", "Title\n\nOther"))
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := openTestStore(t, embedding.NewHashEngine(64))
	ctx := context.Background()

	d1 := doc("https://a.example", "A", "first")
	d2 := doc("https://b.example", "B", "second")

	res, err := s.Upsert(ctx, []Document{d1, d2, d1})
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Inserted: 2, Skipped: 1}, res)

	res, err = s.Upsert(ctx, []Document{d1, d2})
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Inserted: 0, Skipped: 2}, res)

	// same url, different content: url match still counts as existing
	res, err = s.Upsert(ctx, []Document{doc("https://a.example", "A v2", "changed")})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)

	found, err := s.Exists(ctx, "", d2.ContentHash, "")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.Exists(ctx, "", "nope", "https://nowhere.example")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestQuerySimilarity(t *testing.T) {
	s := openTestStore(t, embedding.NewHashEngine(128))
	seed(t, s)

	results, err := s.Query(context.Background(), NewQuery("Jane Doe CTO Acme engineering"))
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, "https://acme.example/team", top.URL)
	require.NotNil(t, top.Distance)
	require.NotNil(t, top.Similarity)
	assert.InDelta(t, 1-*top.Distance, *top.Similarity, 1e-9)
	assert.Equal(t, "google", top.Metadata["engine"])

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, *results[i-1].Distance, *results[i].Distance, "ordered by distance")
	}
}

func TestQueryKeyword(t *testing.T) {
	s := openTestStore(t, nil)
	seed(t, s)

	results, err := s.Query(context.Background(), Query{Text: "Acme keynote", Mode: ModeKeyword, Limit: 5, IncludeScores: true})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		require.NotNil(t, r.Similarity)
		assert.InDelta(t, 0.5, *r.Similarity, 1e-9, "each doc matches one of two terms")
		assert.InDelta(t, 0.5, *r.Distance, 1e-9)
		assert.Greater(t, *r.Score, 0.0)
	}
	// "acme" repeats on the team page, so it outranks the keynote hits
	assert.Equal(t, "https://acme.example/team", results[0].URL)
}

func TestQueryHybrid(t *testing.T) {
	s := openTestStore(t, embedding.NewHashEngine(128))
	seed(t, s)

	alpha := 0.5
	results, err := s.Query(context.Background(), Query{Text: "Jane Doe Acme", Mode: ModeHybrid, Limit: 2, Alpha: &alpha, IncludeScores: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://acme.example/team", results[0].URL)
	assert.InDelta(t, *results[0].Score, *results[0].Similarity, 1e-9)
	assert.GreaterOrEqual(t, *results[0].Score, *results[1].Score)
}

func TestQueryWithoutEmbedder(t *testing.T) {
	s := openTestStore(t, nil)
	seed(t, s)

	_, err := s.Query(context.Background(), NewQuery("anything"))
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))

	_, err = s.Query(context.Background(), Query{Text: "anything", Mode: ModeHybrid})
	assert.True(t, IsUnavailable(err))
}

func TestQueryFilter(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()
	other := doc("https://manual.example/acme", "Acme manual", "Acme notes")
	other.Source = "manual"
	other.Metadata = map[string]any{"engine": "bing"}
	seed(t, s)
	_, err := s.Upsert(ctx, []Document{other})
	require.NoError(t, err)

	base := Query{Text: "acme", Mode: ModeKeyword, Limit: 10, IncludeScores: true}

	q := base
	q.Filter = &Filter{Property: "source", Operator: "Equal", Value: "manual"}
	results, err := s.Query(ctx, q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "manual", results[0].Source)

	q.Filter = &Filter{Property: "source", Operator: "not-equal", Value: "manual"}
	results, err = s.Query(ctx, q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "web_search", results[0].Source)

	q.Filter = &Filter{Property: "engine", Operator: "equal", Value: "bing"}
	results, err = s.Query(ctx, q)
	require.NoError(t, err)
	require.Len(t, results, 1, "non-column properties filter through metadata")

	q.Filter = &Filter{Property: "url", Operator: "ContainsAny", Value: []any{"manual.example", "nowhere"}}
	results, err = s.Query(ctx, q)
	require.NoError(t, err)
	require.Len(t, results, 1)

	q.Filter = &Filter{Property: "url; DROP TABLE documents", Operator: "equal", Value: "x"}
	_, err = s.Query(ctx, q)
	require.Error(t, err)
	assert.True(t, eqerrors.Is(err, eqerrors.EInvalidInput))
}

func TestNormalizeOperator(t *testing.T) {
	tests := map[string]string{
		"equal":        opEqual,
		"Equal":        opEqual,
		"not-equal":    opNotEqual,
		"NotEqualTo":   opNotEqual,
		"not_equal":    opNotEqual,
		"greater-than": opGreaterThan,
		"LESS_THAN":    opLessThan,
		"contains-any": opContainsAny,
		"like":         opEqual,
		"":             opEqual,
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeOperator(in), in)
	}
}

func TestBuildFilterContainsAnyFallback(t *testing.T) {
	where, args, err := buildFilter(&Filter{Property: "title", Operator: "contains-any", Value: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "title = ?", where)
	assert.Equal(t, []any{"Acme"}, args)

	where, args, err = buildFilter(&Filter{Property: "title", Operator: "containsany", Value: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Contains(t, where, " OR ")
	assert.Len(t, args, 2)

	where, _, err = buildFilter(&Filter{Property: "speaker_rank", Operator: "greaterthan", Value: 3})
	require.NoError(t, err)
	assert.Equal(t, "json_extract(metadata, '$.speaker_rank') > ?", where)

	where, args, err = buildFilter(nil)
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestIncludeScoresFalse(t *testing.T) {
	s := openTestStore(t, embedding.NewHashEngine(64))
	seed(t, s)

	q := NewQuery("Acme")
	q.IncludeScores = false
	results, err := s.Query(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Nil(t, r.Distance)
		assert.Nil(t, r.Similarity)
		assert.Nil(t, r.Score)
	}
}

func TestCollections(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	cols, err := s.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []CollectionInfo{{Name: "WebSearchResults", Documents: 0}}, cols)

	seed(t, s)
	extra := doc("https://z.example", "Z", "z")
	extra.Collection = "Archive"
	_, err = s.Upsert(ctx, []Document{extra})
	require.NoError(t, err)

	cols, err = s.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []CollectionInfo{{Name: "Archive", Documents: 1}, {Name: "WebSearchResults", Documents: 3}}, cols)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s := openTestStore(t, nil)
	require.NoError(t, s.Close())

	_, err := s.Query(context.Background(), Query{Text: "acme", Mode: ModeKeyword})
	assert.True(t, IsUnavailable(err))

	_, err = s.Upsert(context.Background(), []Document{doc("https://a.example", "A", "a")})
	assert.True(t, IsUnavailable(err))
}

func TestVecDistanceCosine(t *testing.T) {
	blob := encodeVector([]float32{1, 0, 0})
	d, err := vecDistanceCosine(blob, "[1, 0, 0]")
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-9)

	d, err = vecDistanceCosine(blob, encodeVector([]float32{-1, 0, 0}))
	require.NoError(t, err)
	assert.InDelta(t, 2, d, 1e-9)

	_, err = vecDistanceCosine(blob, encodeVector([]float32{1, 0}))
	assert.Error(t, err)

	_, err = vecDistanceCosine([]byte{1, 2, 3}, blob)
	assert.Error(t, err)
}

func TestCosineDistanceMatchesEmbeddingSimilarity(t *testing.T) {
	a, b := []float32{0.3, 0.4, 0.5}, []float32{0.5, 0.1, 0.2}
	sim, err := embedding.CosineSimilarity(a, b)
	require.NoError(t, err)
	d, err := cosineDistance(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1-sim, d, 1e-9)

	d, err = cosineDistance([]float32{0, 1}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1, d, 1e-9)

	d, err = cosineDistance([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d, "zero vectors are orthogonal")

	d, err = cosineDistance(nil, []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "postgres", Path: filepath.Join(t.TempDir(), "x.db")})
	require.Error(t, err)
	assert.True(t, eqerrors.Is(err, eqerrors.EInvalidInput))
}
