package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found or has expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the feed body cache. Implementations must be safe for
// concurrent use from multiple request goroutines.
type Store interface {
	// Get returns the entry for key, or ErrCacheMiss if absent or expired.
	// Expired entries are lazily removed.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores a freshly generated body under key, computing its content
	// hash and expiry. An existing entry for the key is overwritten whole;
	// concurrent writers race benignly (last writer wins, no torn writes).
	Set(ctx context.Context, key string, body []byte, contentType string, params Params, ttl time.Duration) (*Entry, error)

	// Delete removes the entry for key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// DeleteMatching removes all entries whose generation params match.
	// Returns the number of entries evicted.
	DeleteMatching(ctx context.Context, match func(Params) bool) (int, error)

	// ClearAll removes every entry.
	ClearAll(ctx context.Context) error
}
