// Package knowledge is the vector/keyword knowledge store that backs evidence
// reuse. Documents live in SQLite; similarity is computed with a registered
// vec_distance_cosine function (or the native sqlite-vec extension).
package knowledge

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"

	eqerrors "eventqual/internal/errors"
)

// Mode selects how a query is matched.
type Mode string

const (
	ModeSimilarity Mode = "similarity"
	ModeKeyword    Mode = "keyword"
	ModeHybrid     Mode = "hybrid"
)

// Defaults for an unqualified query.
const (
	DefaultLimit = 5
	DefaultAlpha = 0.75
)

// Filter restricts a query to documents whose property matches value.
type Filter struct {
	Property string `json:"property"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Query describes a knowledge store lookup.
type Query struct {
	Text          string   `json:"query"`
	Mode          Mode     `json:"mode"`
	Limit         int      `json:"limit"`
	Alpha         *float64 `json:"alpha,omitempty"`
	Filter        *Filter  `json:"filter,omitempty"`
	IncludeScores bool     `json:"include_scores"`
	// Collection overrides the store's default collection.
	Collection string `json:"collection,omitempty"`
}

// NewQuery returns a similarity query with the default limit and scores included.
func NewQuery(text string) Query {
	return Query{Text: text, Mode: ModeSimilarity, Limit: DefaultLimit, IncludeScores: true}
}

// Document is one stored piece of evidence.
type Document struct {
	ID              string         `json:"id"`
	Collection      string         `json:"collection"`
	Content         string         `json:"text"`
	ContentHash     string         `json:"content_hash"`
	URL             string         `json:"url"`
	Title           string         `json:"title"`
	Snippet         string         `json:"snippet"`
	Source          string         `json:"source"`
	SearchQuery     string         `json:"search_query"`
	SearchTimestamp string         `json:"search_timestamp"`
	ResultIndex     int            `json:"result_index"`
	IngestionDate   string         `json:"ingestion_date"`
	Tool            string         `json:"tool"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Result is a matched document plus its optional scores.
type Result struct {
	Document
	Distance   *float64 `json:"distance,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

// UpsertResult counts what an upsert did.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// CollectionInfo describes one collection.
type CollectionInfo struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
}

// Store is the knowledge store contract used by the deduplicator and the
// outer surfaces.
type Store interface {
	Query(ctx context.Context, q Query) ([]Result, error)
	Upsert(ctx context.Context, docs []Document) (UpsertResult, error)
	Exists(ctx context.Context, collection, contentHash, url string) (bool, error)
	Collections(ctx context.Context) ([]CollectionInfo, error)
	Close() error
}

// SimilarityFromDistance maps a distance to a similarity in [0,1].
// Distances in [0,1] map to 1-d, distances in (1,2] to max(0, 1-d/2).
// Anything else has no defined similarity.
func SimilarityFromDistance(d float64) (float64, bool) {
	switch {
	case d >= 0 && d <= 1:
		return 1 - d, true
	case d > 1 && d <= 2:
		s := 1 - d/2
		if s < 0 {
			s = 0
		}
		return s, true
	default:
		return 0, false
	}
}

// ContentHash is the dedup key of a document: md5 hex of url + "|" + trimmed content.
func ContentHash(url, content string) string {
	sum := md5.Sum([]byte(url + "|" + strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// IsUnavailable reports whether err means the store could not serve a request.
func IsUnavailable(err error) bool {
	return eqerrors.Is(err, eqerrors.EStoreUnavailable)
}

func unavailable(op string, err error) error {
	return eqerrors.Wrap(eqerrors.EStoreUnavailable, op, err)
}
