// Package metrics provides the centralized Prometheus metrics registry for
// the feed engine. All metrics are defined in their respective packages
// (delivery, cache, invalidate) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the feed engine.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/delivery):
//   - feedgate_requests_total{route, status} (Counter): Total feed requests by route and HTTP status
//   - feedgate_request_duration_seconds{route} (Histogram): Request duration by route
//   - feedgate_not_modified_total (Counter): 304 Not Modified responses
//   - feedgate_generation_failures_total{reason} (Counter): Failed generations (timeout, error)
//   - feedgate_compressed_responses_total (Counter): Responses served gzip-encoded
//
// Cache Metrics (pkg/cache):
//   - feedgate_cache_hits_total{backend} (Counter): Cache hits by backend
//   - feedgate_cache_misses_total (Counter): Cache misses
//   - feedgate_cache_errors_total{operation} (Counter): Cache operation errors
//   - feedgate_cache_evictions_total{reason} (Counter): Evictions (expired, invalidated)
//
// Invalidation Metrics (pkg/invalidate):
//   - feedgate_invalidations_total{trigger} (Counter): Invalidation events (content_change, clear, warm)
//   - feedgate_warmed_entries_total (Counter): Entries populated by warm operations
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(feedgate_cache_hits_total[5m])) /
//   (sum(rate(feedgate_cache_hits_total[5m])) + sum(rate(feedgate_cache_misses_total[5m])))
//
//   # 304 Response Rate
//   rate(feedgate_not_modified_total[5m]) / sum(rate(feedgate_requests_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(feedgate_request_duration_seconds_bucket[5m]))
//
//   # Generation Failure Rate
//   rate(feedgate_generation_failures_total[5m])
