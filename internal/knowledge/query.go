package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"eventqual/internal/embedding"
	eqerrors "eventqual/internal/errors"
	"eventqual/internal/logging"
)

const (
	documentColumns = `id, collection, content, content_hash, url, title, snippet, source, search_query,
		search_timestamp, result_index, ingestion_date, tool, metadata`
	// keyword candidates pulled from SQL before lexical scoring
	keywordCandidateLimit = 200
	// vector candidates per requested result in hybrid mode
	hybridOversample = 4
)

// Query runs a similarity, keyword or hybrid lookup.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Result, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Query")
	defer timer.Stop()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Mode == "" {
		q.Mode = ModeSimilarity
	}
	alpha := s.alpha
	if q.Alpha != nil {
		alpha = math.Max(0, math.Min(1, *q.Alpha))
	}
	collection := s.collectionOr(q.Collection)

	where, args, err := buildFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	logging.StoreDebug("Query mode=%s limit=%d collection=%s text=%q", q.Mode, q.Limit, collection, q.Text)

	var results []Result
	switch q.Mode {
	case ModeSimilarity:
		results, err = s.similarity(ctx, collection, q.Text, q.Limit, where, args)
	case ModeKeyword:
		results, err = s.keyword(ctx, collection, q.Text, q.Limit, where, args)
	case ModeHybrid:
		results, err = s.hybrid(ctx, collection, q.Text, q.Limit, alpha, where, args)
	default:
		return nil, eqerrors.Newf(eqerrors.EInvalidInput, "knowledge.Query", "unknown search mode %q", q.Mode)
	}
	if err != nil {
		logging.StoreError("Query failed: %v", err)
		return nil, unavailable("knowledge.Query", err)
	}

	if !q.IncludeScores {
		for i := range results {
			results[i].Distance, results[i].Similarity, results[i].Score = nil, nil, nil
		}
	}
	logging.Store("Query returned %d results (mode=%s)", len(results), q.Mode)
	return results, nil
}

func (s *SQLiteStore) queryVector(ctx context.Context, text string) ([]byte, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedding engine configured")
	}
	vec, err := embedding.EmbedQuery(ctx, s.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	return encodeVector(vec), nil
}

// scored is one candidate row with its vector distance (when computed).
type scored struct {
	doc      Document
	distance *float64
}

func (s *SQLiteStore) vectorCandidates(ctx context.Context, collection string, qvec []byte, limit int, where string, args []any) ([]scored, error) {
	query := `SELECT ` + documentColumns + `, vec_distance_cosine(embedding, ?) AS distance
		FROM documents WHERE collection = ? AND embedding IS NOT NULL`
	params := []any{qvec, collection}
	if where != "" {
		query += " AND " + where
		params = append(params, args...)
	}
	query += " ORDER BY distance ASC LIMIT ?"
	params = append(params, limit)

	return s.scan(ctx, query, params, true)
}

func (s *SQLiteStore) similarity(ctx context.Context, collection, text string, limit int, where string, args []any) ([]Result, error) {
	qvec, err := s.queryVector(ctx, text)
	if err != nil {
		return nil, err
	}
	rows, err := s.vectorCandidates(ctx, collection, qvec, limit, where, args)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(rows))
	for _, r := range rows {
		res := Result{Document: r.doc, Distance: r.distance}
		if r.distance != nil {
			if sim, ok := SimilarityFromDistance(*r.distance); ok {
				res.Similarity = &sim
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// queryTerms splits text into lowercase terms with surrounding punctuation removed.
func queryTerms(text string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		t := strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

func (s *SQLiteStore) keywordCandidates(ctx context.Context, collection string, terms []string, qvec []byte, where string, args []any) ([]scored, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	cols := documentColumns
	var params []any
	if qvec != nil {
		cols += ", vec_distance_cosine(embedding, ?) AS distance"
		params = append(params, qvec)
	}
	params = append(params, collection)

	likes := make([]string, len(terms))
	for i, t := range terms {
		likes[i] = `(lower(content) LIKE ? ESCAPE '\' OR lower(title) LIKE ? ESCAPE '\' OR lower(snippet) LIKE ? ESCAPE '\')`
		pat := "%" + escapeLike(t) + "%"
		params = append(params, pat, pat, pat)
	}
	query := `SELECT ` + cols + ` FROM documents WHERE collection = ? AND (` + strings.Join(likes, " OR ") + `)`
	if where != "" {
		query += " AND " + where
		params = append(params, args...)
	}
	query += " LIMIT ?"
	params = append(params, keywordCandidateLimit)

	return s.scan(ctx, query, params, qvec != nil)
}

// lexical scores a document against terms: score is the sum of log(1+tf),
// coverage the share of terms present.
func lexical(d Document, terms []string) (score, coverage float64) {
	if len(terms) == 0 {
		return 0, 0
	}
	text := strings.ToLower(d.Title + " " + d.Snippet + " " + d.Content)
	matched := 0
	for _, t := range terms {
		tf := strings.Count(text, t)
		if tf > 0 {
			matched++
			score += math.Log1p(float64(tf))
		}
	}
	return score, float64(matched) / float64(len(terms))
}

func (s *SQLiteStore) keyword(ctx context.Context, collection, text string, limit int, where string, args []any) ([]Result, error) {
	terms := queryTerms(text)
	rows, err := s.keywordCandidates(ctx, collection, terms, nil, where, args)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(rows))
	for _, r := range rows {
		score, coverage := lexical(r.doc, terms)
		if coverage == 0 {
			continue
		}
		dist := 1 - coverage
		sim := coverage
		sc := score
		out = append(out, Result{Document: r.doc, Distance: &dist, Similarity: &sim, Score: &sc})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if *out[i].Score != *out[j].Score {
			return *out[i].Score > *out[j].Score
		}
		return *out[i].Similarity > *out[j].Similarity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SQLiteStore) hybrid(ctx context.Context, collection, text string, limit int, alpha float64, where string, args []any) ([]Result, error) {
	qvec, err := s.queryVector(ctx, text)
	if err != nil {
		return nil, err
	}
	terms := queryTerms(text)

	vrows, err := s.vectorCandidates(ctx, collection, qvec, limit*hybridOversample, where, args)
	if err != nil {
		return nil, err
	}
	krows, err := s.keywordCandidates(ctx, collection, terms, qvec, where, args)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]scored, len(vrows)+len(krows))
	order := make([]string, 0, len(vrows)+len(krows))
	for _, r := range append(vrows, krows...) {
		if _, ok := byID[r.doc.ID]; ok {
			continue
		}
		byID[r.doc.ID] = r
		order = append(order, r.doc.ID)
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		r := byID[id]
		var vecSim float64
		if r.distance != nil {
			vecSim, _ = SimilarityFromDistance(*r.distance)
		}
		_, coverage := lexical(r.doc, terms)
		fused := alpha*vecSim + (1-alpha)*coverage
		dist := 1 - fused
		sim := fused
		sc := fused
		out = append(out, Result{Document: r.doc, Distance: &dist, Similarity: &sim, Score: &sc})
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Score > *out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SQLiteStore) scan(ctx context.Context, query string, params []any, withDistance bool) ([]scored, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scored
	for rows.Next() {
		var (
			d        Document
			meta     string
			distance sql.NullFloat64
		)
		dest := []any{&d.ID, &d.Collection, &d.Content, &d.ContentHash, &d.URL, &d.Title, &d.Snippet,
			&d.Source, &d.SearchQuery, &d.SearchTimestamp, &d.ResultIndex, &d.IngestionDate, &d.Tool, &meta}
		if withDistance {
			dest = append(dest, &distance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
				logging.StoreDebug("Ignoring unreadable metadata on %s: %v", d.ID, err)
			}
		}
		r := scored{doc: d}
		if withDistance && distance.Valid {
			v := distance.Float64
			r.distance = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
