// Package delivery is the request pipeline: resolve the path, look up the
// cache, evaluate conditional validators, generate on miss, compress, and
// respond. Caching degrades to generation on backend failure; a broken
// cache slows feeds down but never breaks them.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/feedgate/feedgate/pkg/cache"
	"github.com/feedgate/feedgate/pkg/compress"
	"github.com/feedgate/feedgate/pkg/conditional"
	"github.com/feedgate/feedgate/pkg/feedgen"
	"github.com/feedgate/feedgate/pkg/fingerprint"
	"github.com/feedgate/feedgate/pkg/routes"
)

// Config holds delivery pipeline settings.
type Config struct {
	// TTL applied to entries written on cache miss.
	TTL time.Duration

	// GenerationTimeout bounds one content generation.
	GenerationTimeout time.Duration

	// Compression settings for response encoding.
	Compression compress.Config

	// DefaultPostTypes are the content types of the default feed.
	DefaultPostTypes []string
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		TTL:               time.Hour,
		GenerationTimeout: 10 * time.Second,
		Compression:       compress.Config{Enabled: true, MinSize: 1024},
		DefaultPostTypes:  []string{"post"},
	}
}

// Orchestrator serves feed requests. It implements http.Handler for the
// whole feed URL space; everything under it is resolved by the registry.
type Orchestrator struct {
	store    cache.Store
	registry *routes.Registry
	gen      feedgen.Generator
	cfg      Config
	logger   zerolog.Logger

	// group collapses concurrent misses on the same key into one
	// generation; the rest wait and share the result.
	group singleflight.Group
}

// New creates an orchestrator.
func New(store cache.Store, registry *routes.Registry, gen feedgen.Generator, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 10 * time.Second
	}
	return &Orchestrator{
		store:    store,
		registry: registry,
		gen:      gen,
		cfg:      cfg,
		logger:   logger,
	}
}

// ServeHTTP handles one feed request.
func (o *Orchestrator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		o.finish(w, r, "none", http.StatusMethodNotAllowed, start)
		return
	}

	res := o.registry.Resolve(r.URL.Path)
	switch res.Kind {
	case routes.KindNotFound:
		o.finish(w, r, "not_found", http.StatusNotFound, start)
		return

	case routes.KindRedirect:
		http.Redirect(w, r, res.Redirect.ToPath, res.Redirect.StatusCode)
		RequestsTotal.WithLabelValues("redirect", strconv.Itoa(res.Redirect.StatusCode)).Inc()
		RequestDuration.WithLabelValues("redirect").Observe(time.Since(start).Seconds())
		return
	}

	o.serveFeed(w, r, res, start)
}

// serveFeed handles default and custom feed resolutions.
func (o *Orchestrator) serveFeed(w http.ResponseWriter, r *http.Request, res routes.Resolution, start time.Time) {
	identity := res.Identity()
	format := resolveFormat(r, res)

	var extra []string
	if res.Route != nil {
		extra = res.Route.ExtraParams
	}
	fp := fingerprint.Key{
		Identity:        identity,
		Format:          format,
		Params:          r.URL.Query(),
		ExtraRecognized: extra,
	}
	key := fp.String()

	entry, err := o.store.Get(r.Context(), key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			// Backend trouble is a miss, not a failure.
			o.logger.Warn().Err(err).Str("key", key).Msg("Cache lookup failed, regenerating")
		}
		entry, err = o.generate(r.Context(), key, res, format, fp.Recognized())
		if err != nil {
			genErr := &GenerationError{}
			status := http.StatusInternalServerError
			if errors.As(err, &genErr) {
				status = genErr.StatusCode
			}
			o.logger.Error().Err(err).Str("key", key).Msg("Feed generation failed")
			o.finish(w, r, identity, status, start)
			return
		}
	}

	o.respond(w, r, entry, identity, start)
}

// generate builds the feed body for a cache miss and stores it.
// Concurrent misses on the same key share one generation.
func (o *Orchestrator) generate(ctx context.Context, key string, res routes.Resolution, format string, query map[string]string) (*cache.Entry, error) {
	v, err, _ := o.group.Do(key, func() (interface{}, error) {
		// The result is shared with every waiter, so the generation must
		// not die with the leader request: detach from its cancellation
		// and keep only the timeout bound.
		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.GenerationTimeout)
		defer cancel()

		req := o.generationRequest(res, format, query)
		result, err := o.gen.Generate(genCtx, req)
		if err != nil {
			genErr := classifyGenerationError(err)
			if genErr.Timeout {
				GenerationFailures.WithLabelValues("timeout").Inc()
			} else {
				GenerationFailures.WithLabelValues("error").Inc()
			}
			return nil, genErr
		}

		params := cache.Params{
			Identity:  res.Identity(),
			Format:    format,
			PostTypes: req.PostTypes,
			Query:     query,
		}
		entry, err := o.store.Set(genCtx, key, result.Body, result.ContentType, params, o.cfg.TTL)
		if err != nil {
			// Serve the generated body anyway; only this request misses
			// the cache.
			o.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed, serving uncached")
			now := time.Now().UTC()
			entry = &cache.Entry{
				Key:         key,
				Body:        result.Body,
				ContentHash: fingerprint.ContentHash(result.Body),
				ContentType: result.ContentType,
				CreatedAt:   now,
				ExpiresAt:   now.Add(o.cfg.TTL),
				Params:      params,
			}
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cache.Entry), nil
}

// generationRequest translates a resolution into a generator request.
func (o *Orchestrator) generationRequest(res routes.Resolution, format string, query map[string]string) feedgen.Request {
	if res.Kind == routes.KindCustom {
		route := res.Route
		return feedgen.Request{
			Identity:       res.Identity(),
			Format:         format,
			Title:          route.Title,
			Description:    route.Description,
			PostTypes:      route.PostTypes,
			ItemLimit:      route.ItemLimit,
			OrderBy:        route.OrderBy,
			OrderDirection: route.OrderDirection,
			Params:         query,
		}
	}
	return feedgen.Request{
		Identity:  res.Identity(),
		Format:    format,
		PostTypes: o.cfg.DefaultPostTypes,
		Params:    query,
	}
}

// respond writes the entry, honoring conditional validators and
// compression negotiation.
func (o *Orchestrator) respond(w http.ResponseWriter, r *http.Request, entry *cache.Entry, routeLabel string, start time.Time) {
	etag := entry.ETag()

	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Last-Modified", entry.CreatedAt.UTC().Format(http.TimeFormat))
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", entry.MaxAge()))
	if o.cfg.Compression.Enabled {
		h.Set("Vary", "Accept-Encoding")
	}

	if conditional.Negotiate(r, etag, entry.CreatedAt) == conditional.NotModified {
		w.WriteHeader(http.StatusNotModified)
		NotModifiedTotal.Inc()
		RequestsTotal.WithLabelValues(routeLabel, "304").Inc()
		RequestDuration.WithLabelValues(routeLabel).Observe(time.Since(start).Seconds())
		return
	}

	body := entry.Body
	enc := compress.Negotiate(r.Header.Get("Accept-Encoding"), len(body), o.cfg.Compression)
	body, contentEncoding, err := compress.Encode(body, enc)
	if err != nil {
		o.logger.Warn().Err(err).Str("key", entry.Key).Msg("Compression failed, serving identity")
	}
	if contentEncoding != "" {
		h.Set("Content-Encoding", contentEncoding)
		CompressedResponses.Inc()
	}

	h.Set("Content-Type", entry.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(body)
	}

	RequestsTotal.WithLabelValues(routeLabel, "200").Inc()
	RequestDuration.WithLabelValues(routeLabel).Observe(time.Since(start).Seconds())
}

// finish writes a bodyless status response and records metrics.
func (o *Orchestrator) finish(w http.ResponseWriter, r *http.Request, routeLabel string, status int, start time.Time) {
	http.Error(w, http.StatusText(status), status)
	RequestsTotal.WithLabelValues(routeLabel, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(routeLabel).Observe(time.Since(start).Seconds())
}

// resolveFormat applies the format query override when it names a known
// format; otherwise the resolved default stands.
func resolveFormat(r *http.Request, res routes.Resolution) string {
	format := res.Format
	if format == "" {
		format = routes.FormatRSS2
	}
	switch r.URL.Query().Get("format") {
	case routes.FormatRSS2:
		format = routes.FormatRSS2
	case routes.FormatAtom:
		format = routes.FormatAtom
	case routes.FormatJSON:
		format = routes.FormatJSON
	}
	return format
}
