package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventqual/internal/embedding"
	eqerrors "eventqual/internal/errors"
	"eventqual/internal/logging"
)

// Options configures a SQLiteStore.
type Options struct {
	// Driver: "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo)
	Driver     string
	Path       string
	Collection string
	// Default hybrid weighting when a query does not carry one
	Alpha float64
	// Per-operation timeout; zero leaves the caller's deadline alone
	Timeout time.Duration
	// Embedder for documents and queries; nil disables vector search
	Embedder embedding.EmbeddingEngine
}

// SQLiteStore implements Store on a single SQLite database.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	collection string
	alpha      float64
	timeout    time.Duration
	embedder   embedding.EmbeddingEngine

	// serializes Upsert so concurrent runs cannot double-insert
	upsertMu sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	snippet TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	search_query TEXT NOT NULL DEFAULT '',
	search_timestamp TEXT NOT NULL DEFAULT '',
	result_index INTEGER NOT NULL DEFAULT 0,
	ingestion_date TEXT NOT NULL DEFAULT '',
	tool TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	embedding BLOB,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(collection, content_hash);
CREATE INDEX IF NOT EXISTS idx_documents_url ON documents(collection, url);
`

// Open opens (creating if needed) the knowledge database.
func Open(ctx context.Context, opts Options) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	driverName, err := resolveDriver(opts.Driver)
	if err != nil {
		return nil, eqerrors.Wrap(eqerrors.EInvalidInput, "knowledge.Open", err)
	}
	if opts.Collection == "" {
		opts.Collection = "WebSearchResults"
	}
	if opts.Alpha == 0 {
		opts.Alpha = DefaultAlpha
	}

	logging.Store("Opening knowledge store at %s (driver=%s, collection=%s)", opts.Path, driverName, opts.Collection)

	if opts.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, unavailable("knowledge.Open", fmt.Errorf("failed to create directory: %w", err))
		}
	}

	db, err := sql.Open(driverName, opts.Path)
	if err != nil {
		return nil, unavailable("knowledge.Open", fmt.Errorf("failed to open database: %w", err))
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, unavailable("knowledge.Open", fmt.Errorf("failed to initialize schema: %w", err))
	}

	if opts.Embedder == nil {
		logging.StoreWarn("No embedding engine configured; similarity and hybrid queries are unavailable")
	}

	return &SQLiteStore{
		db:         db,
		path:       opts.Path,
		collection: opts.Collection,
		alpha:      opts.Alpha,
		timeout:    opts.Timeout,
		embedder:   opts.Embedder,
	}, nil
}

func resolveDriver(name string) (string, error) {
	switch name {
	case "", "sqlite":
		return "sqlite", nil
	case "sqlite3":
		if cgoDriver == "" {
			return "", fmt.Errorf("driver sqlite3 requires a cgo build")
		}
		return cgoDriver, nil
	default:
		return "", fmt.Errorf("unsupported knowledge driver %q", name)
	}
}

// Collection returns the default collection name.
func (s *SQLiteStore) Collection() string { return s.collection }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	logging.Store("Closing knowledge store at %s", s.path)
	return s.db.Close()
}

func (s *SQLiteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *SQLiteStore) collectionOr(name string) string {
	if name == "" {
		return s.collection
	}
	return name
}

// Exists reports whether a document with the content hash, or the url when
// one is given, is already stored.
func (s *SQLiteStore) Exists(ctx context.Context, collection, contentHash, url string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ok, err := s.exists(ctx, s.db, s.collectionOr(collection), contentHash, url)
	if err != nil {
		return false, unavailable("knowledge.Exists", err)
	}
	return ok, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) exists(ctx context.Context, q queryer, collection, contentHash, url string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE collection = ? AND (content_hash = ? OR (? != '' AND url = ?)) LIMIT 1`,
		collection, contentHash, url, url).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Upsert inserts documents not already present by content hash or url.
// Duplicates inside the batch count as skipped.
func (s *SQLiteStore) Upsert(ctx context.Context, docs []Document) (UpsertResult, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Upsert")
	defer timer.Stop()

	s.upsertMu.Lock()
	defer s.upsertMu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var res UpsertResult
	seenHash := make(map[string]bool)
	seenURL := make(map[string]bool)
	fresh := make([]Document, 0, len(docs))

	for _, d := range docs {
		d.Collection = s.collectionOr(d.Collection)
		if d.ContentHash == "" {
			d.ContentHash = ContentHash(d.URL, d.Content)
		}
		hashKey := d.Collection + "\x00" + d.ContentHash
		urlKey := d.Collection + "\x00" + d.URL
		if seenHash[hashKey] || (d.URL != "" && seenURL[urlKey]) {
			res.Skipped++
			continue
		}
		found, err := s.exists(ctx, s.db, d.Collection, d.ContentHash, d.URL)
		if err != nil {
			return res, unavailable("knowledge.Upsert", fmt.Errorf("existence check failed: %w", err))
		}
		seenHash[hashKey] = true
		if d.URL != "" {
			seenURL[urlKey] = true
		}
		if found {
			logging.StoreDebug("Skipping existing document hash=%s url=%s", d.ContentHash, d.URL)
			res.Skipped++
			continue
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		fresh = append(fresh, d)
	}

	if len(fresh) == 0 {
		logging.Store("Upsert: nothing new (skipped=%d)", res.Skipped)
		return res, nil
	}

	var vectors [][]float32
	if s.embedder != nil {
		texts := make([]string, len(fresh))
		for i, d := range fresh {
			texts[i] = d.Content
		}
		var err error
		vectors, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return res, unavailable("knowledge.Upsert", fmt.Errorf("embedding failed: %w", err))
		}
		if len(vectors) != len(fresh) {
			return res, unavailable("knowledge.Upsert", fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(fresh)))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, unavailable("knowledge.Upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents
		(id, collection, content, content_hash, url, title, snippet, source, search_query,
		 search_timestamp, result_index, ingestion_date, tool, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return res, unavailable("knowledge.Upsert", err)
	}
	defer stmt.Close()

	for i, d := range fresh {
		meta, err := json.Marshal(d.Metadata)
		if err != nil || d.Metadata == nil {
			meta = []byte("{}")
		}
		var vec any
		if vectors != nil {
			vec = encodeVector(vectors[i])
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Collection, d.Content, d.ContentHash, d.URL, d.Title,
			d.Snippet, d.Source, d.SearchQuery, d.SearchTimestamp, d.ResultIndex, d.IngestionDate,
			d.Tool, string(meta), vec); err != nil {
			return res, unavailable("knowledge.Upsert", fmt.Errorf("insert failed: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return res, unavailable("knowledge.Upsert", fmt.Errorf("commit failed: %w", err))
	}

	res.Inserted = len(fresh)
	logging.Store("Upsert: inserted=%d skipped=%d", res.Inserted, res.Skipped)
	return res, nil
}

// Collections lists every collection with its document count. The default
// collection is always listed.
func (s *SQLiteStore) Collections(ctx context.Context) ([]CollectionInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT collection, COUNT(*) FROM documents GROUP BY collection ORDER BY collection`)
	if err != nil {
		return nil, unavailable("knowledge.Collections", err)
	}
	defer rows.Close()

	var out []CollectionInfo
	hasDefault := false
	for rows.Next() {
		var ci CollectionInfo
		if err := rows.Scan(&ci.Name, &ci.Documents); err != nil {
			return nil, unavailable("knowledge.Collections", err)
		}
		if ci.Name == s.collection {
			hasDefault = true
		}
		out = append(out, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("knowledge.Collections", err)
	}
	if !hasDefault {
		out = append([]CollectionInfo{{Name: s.collection}}, out...)
	}
	return out, nil
}
