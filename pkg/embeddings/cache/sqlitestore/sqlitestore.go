// Package sqlitestore is a cache.Store backed by a SQLite table.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/quill/pkg/embeddings/cache"
	"github.com/papercomputeco/quill/pkg/vector"
)

const schema = `
CREATE TABLE IF NOT EXISTS embedding_cache (
	key         TEXT PRIMARY KEY,
	model       TEXT NOT NULL,
	text_length INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	embedding   BLOB NOT NULL
)`

// Store implements cache.Store with SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path. Use ":memory:" for an
// in-memory cache.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("cache database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	return &Store{db: db}, nil
}

// Load reads the entry for key.
func (s *Store) Load(ctx context.Context, key string) (*cache.Entry, error) {
	var (
		e         cache.Entry
		createdAt int64
		blob      []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT model, text_length, created_at, embedding FROM embedding_cache WHERE key = ?`, key,
	).Scan(&e.Model, &e.TextLength, &createdAt, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	e.Embedding, err = vector.DecodeFloat32(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrCorrupt, err)
	}
	e.CreatedAt = time.Unix(0, createdAt)

	return &e, nil
}

// Save upserts the entry inside a transaction.
func (s *Store) Save(ctx context.Context, key string, e *cache.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO embedding_cache (key, model, text_length, created_at, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			model = excluded.model,
			text_length = excluded.text_length,
			created_at = excluded.created_at,
			embedding = excluded.embedding
	`, key, e.Model, e.TextLength, e.CreatedAt.UnixNano(), vector.EncodeFloat32(e.Embedding))
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Remove deletes the entry for key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("removing cache entry: %w", err)
	}
	return nil
}

// Walk visits every row. Rows are read fully before fn is called so that fn
// may issue its own statements.
func (s *Store) Walk(ctx context.Context, fn func(key string, e *cache.Entry) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, model, text_length, created_at, embedding FROM embedding_cache`)
	if err != nil {
		return fmt.Errorf("listing cache entries: %w", err)
	}

	type row struct {
		key   string
		entry *cache.Entry
	}
	var all []row

	for rows.Next() {
		var (
			r         row
			e         cache.Entry
			createdAt int64
			blob      []byte
		)
		if err := rows.Scan(&r.key, &e.Model, &e.TextLength, &createdAt, &blob); err != nil {
			rows.Close()
			return fmt.Errorf("scanning cache entry: %w", err)
		}
		if vec, err := vector.DecodeFloat32(blob); err == nil {
			e.Embedding = vec
			e.CreatedAt = time.Unix(0, createdAt)
			r.entry = &e
		}
		all = append(all, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating cache entries: %w", err)
	}

	for _, r := range all {
		if err := fn(r.key, r.entry); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ cache.Store = (*Store)(nil)
