package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces feedgate entries so ClearAll and
// DeleteMatching never touch foreign keys in a shared Redis.
const redisKeyPrefix = "feedgate:"

// RedisStore is a Store backed by Redis. Entries are JSON-marshalled and
// expire server-side via the Redis TTL, with the usual lazy expiry check
// on read as a safety net against clock skew.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a cache store with a Redis backend.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{client: client}
}

// Get returns the entry for key, or ErrCacheMiss if absent or expired.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = s.Delete(ctx, key)
		CacheEvictions.WithLabelValues("expired").Inc()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Set stores a new entry for key with a matching Redis TTL.
func (s *RedisStore) Set(ctx context.Context, key string, body []byte, contentType string, params Params, ttl time.Duration) (*Entry, error) {
	entry := newEntry(key, body, contentType, params, ttl)

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return nil, fmt.Errorf("redis set: %w", err)
	}

	return entry, nil
}

// Delete removes the entry for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteMatching scans all feedgate keys and evicts entries whose params
// match. O(n) over the keyspace; intended for invalidation events only.
func (s *RedisStore) DeleteMatching(ctx context.Context, match func(Params) bool) (int, error) {
	evicted := 0

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()

		data, err := s.client.Get(ctx, redisKey).Bytes()
		if err != nil {
			// Key vanished between scan and get; nothing to evict.
			if err == redis.Nil {
				continue
			}
			CacheErrors.WithLabelValues("delete").Inc()
			return evicted, fmt.Errorf("redis get during scan: %w", err)
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			// Corrupted entry: evict it rather than let it linger.
			_ = s.client.Del(ctx, redisKey).Err()
			continue
		}

		if match(entry.Params) {
			if err := s.client.Del(ctx, redisKey).Err(); err != nil {
				CacheErrors.WithLabelValues("delete").Inc()
				return evicted, fmt.Errorf("redis del during scan: %w", err)
			}
			evicted++
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return evicted, fmt.Errorf("redis scan: %w", err)
	}

	if evicted > 0 {
		CacheEvictions.WithLabelValues("invalidated").Add(float64(evicted))
	}
	return evicted, nil
}

// ClearAll removes every feedgate entry. Foreign keys in the same Redis
// are left untouched.
func (s *RedisStore) ClearAll(ctx context.Context) error {
	cleared := 0

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			CacheErrors.WithLabelValues("clear").Inc()
			return fmt.Errorf("redis del during clear: %w", err)
		}
		cleared++
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("redis scan during clear: %w", err)
	}

	if cleared > 0 {
		CacheEvictions.WithLabelValues("cleared").Add(float64(cleared))
	}
	return nil
}
