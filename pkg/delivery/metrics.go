package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts feed requests by resolved route and status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedgate_requests_total",
		Help: "Total feed requests by route and HTTP status",
	}, []string{"route", "status"})

	// RequestDuration tracks end-to-end request latency per route.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedgate_request_duration_seconds",
		Help:    "Feed request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// NotModifiedTotal counts 304 responses served from validators alone.
	NotModifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedgate_not_modified_total",
		Help: "Total 304 Not Modified responses",
	})

	// GenerationFailures counts failed content generations by reason.
	GenerationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedgate_generation_failures_total",
		Help: "Total failed feed generations by reason",
	}, []string{"reason"}) // "timeout", "error"

	// CompressedResponses counts responses served gzip-encoded.
	CompressedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedgate_compressed_responses_total",
		Help: "Total responses served with Content-Encoding: gzip",
	})
)
