package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/feedgate/feedgate/pkg/cache"
	"github.com/feedgate/feedgate/pkg/compress"
	"github.com/feedgate/feedgate/pkg/config"
	"github.com/feedgate/feedgate/pkg/delivery"
	"github.com/feedgate/feedgate/pkg/feedgen"
	"github.com/feedgate/feedgate/pkg/invalidate"
	"github.com/feedgate/feedgate/pkg/logging"
	"github.com/feedgate/feedgate/pkg/routes"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := logging.Setup(logging.DefaultConfig())
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
	})

	store, closeStore, err := newStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.CacheBackend).Msg("Failed to create cache store")
	}
	defer closeStore()
	logger.Info().Str("backend", cfg.CacheBackend).Msg("Cache store ready")

	source := routes.NewMemorySource(routes.DefaultOptions())
	seedDefinitions(source, cfg, logger)
	registry := routes.NewRegistry(source, logging.NewLogger("routes"))

	builder := feedgen.NewBuilder(demoSource{}, feedgen.SiteInfo{
		Title:       cfg.Site.Title,
		Link:        cfg.Site.Link,
		Description: cfg.Site.Description,
		Author:      cfg.Site.Author,
	}, cfg.MaxItemsPerFeed, logging.NewLogger("feedgen"))

	orchestrator := delivery.New(store, registry, builder, delivery.Config{
		TTL:               cfg.CacheTTL(),
		GenerationTimeout: cfg.GenerationTimeout(),
		Compression: compress.Config{
			Enabled: cfg.CompressionEnabled,
			MinSize: cfg.CompressionMinBytes,
		},
		DefaultPostTypes: cfg.DefaultPostTypes,
	}, logging.NewLogger("delivery"))

	trigger := invalidate.New(store, builder, source, invalidate.Config{
		TTL:              cfg.CacheTTL(),
		WarmConcurrency:  cfg.WarmConcurrency,
		WarmTimeout:      cfg.GenerationTimeout(),
		DefaultPostTypes: cfg.DefaultPostTypes,
	}, logging.NewLogger("invalidate"))

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/feed", orchestrator)
	router.Handle("/feed/*", orchestrator)
	router.Mount("/admin", newAdminHandler(trigger, source, logging.NewLogger("admin")))

	// Redirect rules may map arbitrary paths, not just /feed/*.
	router.NotFound(orchestrator.ServeHTTP)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("Starting feedgate server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// newStore creates the configured cache backend.
func newStore(cfg config.Config) (cache.Store, func(), error) {
	switch cfg.CacheBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		return cache.NewRedisStore(client), func() { client.Close() }, nil

	case config.BackendSQLite:
		store, err := cache.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	default:
		return cache.NewMemoryStore(), func() {}, nil
	}
}

// seedDefinitions loads configured routes and redirects into the source.
// A bad definition aborts startup; silently serving a partial route table
// would be worse than failing loud.
func seedDefinitions(source *routes.MemorySource, cfg config.Config, logger zerolog.Logger) {
	for _, rc := range cfg.Routes {
		route := routes.FeedRoute{
			Slug:           rc.Slug,
			Title:          rc.Title,
			Description:    rc.Description,
			PostTypes:      rc.PostTypes,
			ItemLimit:      rc.ItemLimit,
			OrderBy:        rc.OrderBy,
			OrderDirection: rc.OrderDirection,
			Enabled:        rc.Enabled,
		}
		if err := source.AddRoute(route); err != nil {
			logger.Fatal().Err(err).Str("slug", rc.Slug).Msg("Invalid route definition")
		}
	}
	for _, rc := range cfg.Redirects {
		rule := routes.RedirectRule{
			FromPath:   rc.FromPath,
			ToPath:     rc.ToPath,
			StatusCode: rc.StatusCode,
			Enabled:    rc.Enabled,
		}
		if err := source.AddRedirect(rule); err != nil {
			logger.Fatal().Err(err).Str("from", rc.FromPath).Msg("Invalid redirect definition")
		}
	}
	logger.Info().
		Int("routes", len(cfg.Routes)).
		Int("redirects", len(cfg.Redirects)).
		Msg("Seeded feed definitions")
}
