// Package invalidate evicts cache entries in response to content-change
// events from the host platform and exposes the manual clear and warm
// operations of the administrative surface.
package invalidate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/feedgate/feedgate/pkg/cache"
	"github.com/feedgate/feedgate/pkg/feedgen"
	"github.com/feedgate/feedgate/pkg/fingerprint"
	"github.com/feedgate/feedgate/pkg/routes"
)

var (
	invalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedgate_invalidations_total",
		Help: "Total invalidation events by trigger",
	}, []string{"trigger"}) // "content_change", "clear", "warm"

	warmedEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedgate_warmed_entries_total",
		Help: "Total cache entries populated by warm operations",
	})
)

// Config holds invalidation and warm settings.
type Config struct {
	// TTL for entries written by Warm.
	TTL time.Duration

	// WarmConcurrency is the worker count for Warm.
	WarmConcurrency int

	// WarmTimeout bounds a single generation during Warm.
	WarmTimeout time.Duration

	// DefaultPostTypes are the content types of the default feed.
	DefaultPostTypes []string
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		TTL:              time.Hour,
		WarmConcurrency:  4,
		WarmTimeout:      15 * time.Second,
		DefaultPostTypes: []string{"post"},
	}
}

// Trigger wires content-change events to cache eviction. The host
// platform calls OnContentChanged directly from its write path, so
// eviction completes before the next read of an affected key.
type Trigger struct {
	store  cache.Store
	gen    feedgen.Generator
	source routes.Source
	cfg    Config
	logger zerolog.Logger
}

// New creates a trigger.
func New(store cache.Store, gen feedgen.Generator, source routes.Source, cfg Config, logger zerolog.Logger) *Trigger {
	if cfg.WarmConcurrency <= 0 {
		cfg.WarmConcurrency = 4
	}
	if cfg.WarmTimeout <= 0 {
		cfg.WarmTimeout = 15 * time.Second
	}
	return &Trigger{
		store:  store,
		gen:    gen,
		source: source,
		cfg:    cfg,
		logger: logger,
	}
}

// OnContentChanged evicts every cache entry whose feed includes the
// changed content type. Coarse but safe: over-invalidation is acceptable,
// serving stale content after a relevant change is not. Re-invalidating
// an already-evicted key is a no-op.
func (t *Trigger) OnContentChanged(ctx context.Context, contentType string, postID int64) (int, error) {
	evicted, err := t.store.DeleteMatching(ctx, func(p cache.Params) bool {
		return p.HasPostType(contentType)
	})
	if err != nil {
		return evicted, fmt.Errorf("evict entries for %s: %w", contentType, err)
	}

	invalidationsTotal.WithLabelValues("content_change").Inc()
	t.logger.Debug().
		Str("post_type", contentType).
		Int64("post_id", postID).
		Int("evicted", evicted).
		Msg("Invalidated cache entries for content change")

	return evicted, nil
}

// ClearAll flushes the whole cache.
func (t *Trigger) ClearAll(ctx context.Context) error {
	if err := t.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	invalidationsTotal.WithLabelValues("clear").Inc()
	t.logger.Info().Msg("Cache cleared")
	return nil
}

// warmJob is one feed variant to pre-populate.
type warmJob struct {
	key    string
	req    feedgen.Request
	params cache.Params
}

// Warm pre-populates cache entries for the default feed and every enabled
// custom route by invoking content generation proactively. Generations
// run through a bounded worker pool; a failed item is logged and skipped,
// the rest still warm.
func (t *Trigger) Warm(ctx context.Context) (int, error) {
	start := time.Now()
	jobs := t.warmJobs()

	queue := make(chan warmJob, len(jobs))
	for _, job := range jobs {
		queue <- job
	}
	close(queue)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		warmed int
		first  error
	)
	for i := 0; i < t.cfg.WarmConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				select {
				case <-ctx.Done():
					return
				default:
				}

				if err := t.warmOne(ctx, job); err != nil {
					t.logger.Warn().Err(err).Str("key", job.key).Msg("Warm generation failed")
					mu.Lock()
					if first == nil {
						first = err
					}
					mu.Unlock()
					continue
				}

				mu.Lock()
				warmed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	invalidationsTotal.WithLabelValues("warm").Inc()
	warmedEntriesTotal.Add(float64(warmed))
	t.logger.Info().
		Int("warmed", warmed).
		Int("total", len(jobs)).
		Dur("duration", time.Since(start)).
		Msg("Cache warm complete")

	return warmed, first
}

func (t *Trigger) warmOne(ctx context.Context, job warmJob) error {
	genCtx, cancel := context.WithTimeout(ctx, t.cfg.WarmTimeout)
	defer cancel()

	result, err := t.gen.Generate(genCtx, job.req)
	if err != nil {
		return err
	}

	if _, err := t.store.Set(ctx, job.key, result.Body, result.ContentType, job.params, t.cfg.TTL); err != nil {
		return err
	}
	return nil
}

// warmJobs builds one job per feed: the default feed plus each enabled
// custom route, all in their default format.
func (t *Trigger) warmJobs() []warmJob {
	jobs := []warmJob{{
		key: fingerprint.Key{Identity: "default", Format: routes.FormatRSS2}.String(),
		req: feedgen.Request{
			Identity:  "default",
			Format:    routes.FormatRSS2,
			PostTypes: t.cfg.DefaultPostTypes,
		},
		params: cache.Params{
			Identity:  "default",
			Format:    routes.FormatRSS2,
			PostTypes: t.cfg.DefaultPostTypes,
		},
	}}

	for _, route := range t.source.Snapshot().Routes {
		if !route.Enabled {
			continue
		}
		identity := "custom:" + route.Slug
		jobs = append(jobs, warmJob{
			key: fingerprint.Key{Identity: identity, Format: routes.FormatRSS2}.String(),
			req: feedgen.Request{
				Identity:       identity,
				Format:         routes.FormatRSS2,
				Title:          route.Title,
				Description:    route.Description,
				PostTypes:      route.PostTypes,
				ItemLimit:      route.ItemLimit,
				OrderBy:        route.OrderBy,
				OrderDirection: route.OrderDirection,
			},
			params: cache.Params{
				Identity:  identity,
				Format:    routes.FormatRSS2,
				PostTypes: route.PostTypes,
			},
		})
	}

	return jobs
}
