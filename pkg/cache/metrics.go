package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend (memory, redis, sqlite)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedgate_cache_hits_total",
			Help: "Total number of feed cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedgate_cache_misses_total",
			Help: "Total number of feed cache misses",
		},
	)

	// CacheErrors tracks cache backend operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedgate_cache_errors_total",
			Help: "Total number of cache backend operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "clear"
	)

	// CacheEvictions tracks evictions by reason
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedgate_cache_evictions_total",
			Help: "Total number of cache entries evicted",
		},
		[]string{"reason"}, // "expired", "invalidated", "cleared"
	)
)
