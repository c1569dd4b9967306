// Package store persists interaction records: one row per answered
// recommendation request, with its citations broken out so analytics can
// count the most recommended books. Records are append-only; writing the
// same record ID twice is a no-op, so at-least-once delivery is harmless.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/BiancaGL2104/rag-book-recommender/internal/rag"
)

// ErrNotFound is returned when a record ID is unknown.
var ErrNotFound = errors.New("interaction not found")

// Logger records interactions. Implementations must be safe for concurrent
// use and must ignore records whose ID was already written.
type Logger interface {
	// Record appends rec.
	Record(ctx context.Context, rec rag.InteractionRecord) error
}

// CitationCount is one row of the "most recommended books" report.
type CitationCount struct {
	// BookID is the cited catalog ID.
	BookID string `json:"book_id"`
	// Title is the title recorded with the most recent citation.
	Title string `json:"title"`
	// Count is the number of responses that cited the book.
	Count int `json:"count"`
}

// SQLiteStore is a Logger backed by a local SQLite database, with read paths
// for analytics and for alternative-request lookups.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// Compile-time check.
var _ Logger = (*SQLiteStore)(nil)

// DefaultDBPath returns the default path for the interaction database.
// It resolves to ~/.bookrec/interactions.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".bookrec")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "interactions.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// on one connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS interactions (
    id             TEXT    PRIMARY KEY,
    created_at     INTEGER NOT NULL,  -- Unix milliseconds
    query_text     TEXT    NOT NULL,
    status         TEXT    NOT NULL,
    style          TEXT    NOT NULL,
    mood           TEXT    NOT NULL,
    alternative_of TEXT    NOT NULL DEFAULT '',
    record         TEXT    NOT NULL   -- full JSON record
);
CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions (created_at);

CREATE TABLE IF NOT EXISTS citations (
    interaction_id TEXT    NOT NULL REFERENCES interactions (id),
    position       INTEGER NOT NULL,
    book_id        TEXT    NOT NULL,
    title          TEXT    NOT NULL,
    PRIMARY KEY (interaction_id, position)
);
CREATE INDEX IF NOT EXISTS idx_citations_book ON citations (book_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record inserts rec and its citations in one transaction. A record whose ID
// already exists is ignored.
func (s *SQLiteStore) Record(ctx context.Context, rec rag.InteractionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("store: record: empty ID")
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: record: encode: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: record: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insert = `INSERT OR IGNORE INTO interactions
    (id, created_at, query_text, status, style, mood, alternative_of, record)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, insert,
		rec.ID, rec.CreatedAt.UnixMilli(), rec.Query.Text, string(rec.Response.Status),
		string(rec.Mode.Style), rec.Mode.Mood.Label, rec.Response.AlternativeOf, string(blob))
	if err != nil {
		return fmt.Errorf("store: record: insert: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return tx.Commit()
	}

	const cite = `INSERT INTO citations (interaction_id, position, book_id, title) VALUES (?, ?, ?, ?)`
	for i, c := range rec.Response.Citations {
		if _, err := tx.ExecContext(ctx, cite, rec.ID, i, c.BookID, c.Title); err != nil {
			return fmt.Errorf("store: record: insert citation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: record: commit: %w", err)
	}
	return nil
}

// Get returns the record with the given ID, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*rag.InteractionRecord, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM interactions WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: get %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %q: %w", id, err)
	}
	var rec rag.InteractionRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return nil, fmt.Errorf("store: get %q: decode: %w", id, err)
	}
	return &rec, nil
}

// Recent returns up to n records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]rag.InteractionRecord, error) {
	const q = `SELECT record FROM interactions ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var out []rag.InteractionRecord
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		var rec rag.InteractionRecord
		if err := json.Unmarshal([]byte(blob), &rec); err != nil {
			return nil, fmt.Errorf("store: recent decode: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return out, nil
}

// CitationCounts returns the most cited books, highest count first and ties
// by book ID.
func (s *SQLiteStore) CitationCounts(ctx context.Context, limit int) ([]CitationCount, error) {
	const q = `
SELECT book_id, MAX(title), COUNT(*) AS n
FROM   citations
GROUP  BY book_id
ORDER  BY n DESC, book_id ASC
LIMIT  ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: citation counts: %w", err)
	}
	defer rows.Close()

	var out []CitationCount
	for rows.Next() {
		var c CitationCount
		if err := rows.Scan(&c.BookID, &c.Title, &c.Count); err != nil {
			return nil, fmt.Errorf("store: citation counts scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: citation counts rows: %w", err)
	}
	return out, nil
}

// CitedBookIDs returns the books cited by the response with the given ID in
// citation order, or ErrNotFound when the ID is unknown.
func (s *SQLiteStore) CitedBookIDs(ctx context.Context, id string) ([]string, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM interactions WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: cited books %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: cited books %q: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT book_id FROM citations WHERE interaction_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("store: cited books %q: %w", id, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("store: cited books scan: %w", err)
		}
		ids = append(ids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: cited books rows: %w", err)
	}
	return ids, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Name returns the dependency label used in readiness responses.
func (s *SQLiteStore) Name() string { return "interactions" }

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
