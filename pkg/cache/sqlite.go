package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS feed_cache (
	key          TEXT PRIMARY KEY,
	body         BLOB NOT NULL,
	content_hash TEXT NOT NULL,
	content_type TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	expires_at   INTEGER NOT NULL,
	params       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS feed_cache_expires_idx ON feed_cache (expires_at);
`

// SQLiteStore is a persistent single-node Store. Entries survive process
// restarts, which keeps a freshly restarted instance from regenerating
// every feed at once.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the entry for key, or ErrCacheMiss if absent or expired.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	var (
		body        []byte
		contentHash string
		contentType string
		createdAt   int64
		expiresAt   int64
		paramsJSON  string
	)

	row := s.db.QueryRowContext(ctx,
		"SELECT body, content_hash, content_type, created_at, expires_at, params FROM feed_cache WHERE key = ?", key)
	if err := row.Scan(&body, &contentHash, &contentType, &createdAt, &expiresAt, &paramsJSON); err != nil {
		if err == sql.ErrNoRows {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("sqlite get: %w", err)
	}

	entry := &Entry{
		Key:         key,
		Body:        body,
		ContentHash: contentHash,
		ContentType: contentType,
		CreatedAt:   time.Unix(createdAt, 0),
		ExpiresAt:   time.Unix(expiresAt, 0),
	}
	if err := json.Unmarshal([]byte(paramsJSON), &entry.Params); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = s.Delete(ctx, key)
		CacheEvictions.WithLabelValues("expired").Inc()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("sqlite").Inc()
	return entry, nil
}

// Set stores a new entry for key, overwriting any existing row.
func (s *SQLiteStore) Set(ctx context.Context, key string, body []byte, contentType string, params Params, ttl time.Duration) (*Entry, error) {
	entry := newEntry(key, body, contentType, params, ttl)

	paramsJSON, err := json.Marshal(entry.Params)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO feed_cache (key, body, content_hash, content_type, created_at, expires_at, params) VALUES (?, ?, ?, ?, ?, ?, ?)",
		key, entry.Body, entry.ContentHash, entry.ContentType,
		entry.CreatedAt.Unix(), entry.ExpiresAt.Unix(), string(paramsJSON))
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return nil, fmt.Errorf("sqlite set: %w", err)
	}

	return entry, nil
}

// Delete removes the entry for key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM feed_cache WHERE key = ?", key); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// DeleteMatching walks all rows and evicts entries whose params match.
func (s *SQLiteStore) DeleteMatching(ctx context.Context, match func(Params) bool) (int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, params FROM feed_cache")
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return 0, fmt.Errorf("sqlite select during match: %w", err)
	}

	var matched []string
	for rows.Next() {
		var key, paramsJSON string
		if err := rows.Scan(&key, &paramsJSON); err != nil {
			rows.Close()
			CacheErrors.WithLabelValues("delete").Inc()
			return 0, fmt.Errorf("sqlite scan during match: %w", err)
		}
		var params Params
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			// Corrupted row: evict it rather than let it linger.
			matched = append(matched, key)
			continue
		}
		if match(params) {
			matched = append(matched, key)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		CacheErrors.WithLabelValues("delete").Inc()
		return 0, fmt.Errorf("sqlite rows during match: %w", err)
	}
	rows.Close()

	for _, key := range matched {
		if err := s.Delete(ctx, key); err != nil {
			return 0, err
		}
	}

	if len(matched) > 0 {
		CacheEvictions.WithLabelValues("invalidated").Add(float64(len(matched)))
	}
	return len(matched), nil
}

// ClearAll removes every entry.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM feed_cache")
	if err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("sqlite clear: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		CacheEvictions.WithLabelValues("cleared").Add(float64(n))
	}
	return nil
}
