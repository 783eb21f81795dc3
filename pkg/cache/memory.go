package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store guarded by a single lock. Entry
// counts are small (one per feed variant), so a coarse lock is enough.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Get returns the entry for key, or ErrCacheMiss if absent or expired.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if entry.IsExpired() {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// replaced the expired entry with a fresh one.
		if current, ok := s.entries[key]; ok && current.IsExpired() {
			delete(s.entries, key)
			CacheEvictions.WithLabelValues("expired").Inc()
		}
		s.mu.Unlock()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()
	return entry, nil
}

// Set stores a new entry for key, overwriting any existing one.
func (s *MemoryStore) Set(ctx context.Context, key string, body []byte, contentType string, params Params, ttl time.Duration) (*Entry, error) {
	entry := newEntry(key, body, contentType, params, ttl)

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	return entry, nil
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		CacheEvictions.WithLabelValues("invalidated").Inc()
	}
	s.mu.Unlock()
	return nil
}

// DeleteMatching removes all entries whose params match the predicate.
func (s *MemoryStore) DeleteMatching(ctx context.Context, match func(Params) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, entry := range s.entries {
		if match(entry.Params) {
			delete(s.entries, key)
			evicted++
		}
	}
	if evicted > 0 {
		CacheEvictions.WithLabelValues("invalidated").Add(float64(evicted))
	}
	return evicted, nil
}

// ClearAll removes every entry.
func (s *MemoryStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	cleared := len(s.entries)
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()

	if cleared > 0 {
		CacheEvictions.WithLabelValues("cleared").Add(float64(cleared))
	}
	return nil
}

// Len returns the current entry count. Expired but not yet evicted
// entries are included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
