package routes

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Kind classifies a resolution outcome.
type Kind int

const (
	// KindNotFound means no definition matched the path.
	KindNotFound Kind = iota

	// KindDefault is the platform's default feed.
	KindDefault

	// KindCustom is a custom feed route.
	KindCustom

	// KindRedirect is a redirect rule; it short-circuits generation.
	KindRedirect
)

// Resolution is the outcome of resolving a request path.
type Resolution struct {
	Kind Kind

	// Format is the feed format for Default and Custom resolutions.
	// A format query parameter may still override it downstream.
	Format string

	// Route is set for Custom resolutions.
	Route *FeedRoute

	// Redirect is set for Redirect resolutions.
	Redirect *RedirectRule
}

// Identity returns the logical feed identity string used in cache keys.
func (r Resolution) Identity() string {
	switch r.Kind {
	case KindDefault:
		return "default"
	case KindCustom:
		return "custom:" + r.Route.Slug
	default:
		return ""
	}
}

// Source provides definition snapshots. Revision must change whenever the
// definitions change; the registry only re-snapshots on a revision bump
// instead of polling the underlying store every request.
type Source interface {
	Revision() uint64
	Snapshot() Snapshot
}

// routeIndex is one immutable resolution index. Rebuilt off to the side
// and swapped atomically, never mutated in place.
type routeIndex struct {
	revision  uint64
	bySlug    map[string]*FeedRoute
	redirects map[string]*RedirectRule
}

// Registry resolves request paths against the current definitions.
type Registry struct {
	source Source
	logger zerolog.Logger

	rebuildMu sync.Mutex
	index     atomic.Pointer[routeIndex]
}

// NewRegistry creates a registry over the given definition source.
func NewRegistry(source Source, logger zerolog.Logger) *Registry {
	r := &Registry{
		source: source,
		logger: logger,
	}
	r.index.Store(r.build(source.Revision()))
	return r
}

// Resolve maps a request path to a feed identity, redirect or not-found.
// Redirects are checked before feed routes: a redirect short-circuits
// content generation entirely.
func (r *Registry) Resolve(path string) Resolution {
	idx := r.current()

	path = normalizePath(path)

	if rule, ok := idx.redirects[path]; ok {
		return Resolution{Kind: KindRedirect, Redirect: rule}
	}

	if path == "/feed" {
		return Resolution{Kind: KindDefault, Format: FormatRSS2}
	}

	slug, ok := strings.CutPrefix(path, "/feed/")
	if !ok || slug == "" || strings.Contains(slug, "/") {
		return Resolution{Kind: KindNotFound}
	}

	switch slug {
	case "rss", "rss2", "rdf":
		return Resolution{Kind: KindDefault, Format: FormatRSS2}
	case "atom":
		return Resolution{Kind: KindDefault, Format: FormatAtom}
	case "json":
		return Resolution{Kind: KindDefault, Format: FormatJSON}
	}

	if route, ok := idx.bySlug[slug]; ok {
		return Resolution{Kind: KindCustom, Format: FormatRSS2, Route: route}
	}

	return Resolution{Kind: KindNotFound}
}

// current returns the up-to-date index, rebuilding it first if the source
// revision moved. Readers racing a rebuild see either the old or the new
// fully built index.
func (r *Registry) current() *routeIndex {
	idx := r.index.Load()
	rev := r.source.Revision()
	if idx.revision == rev {
		return idx
	}

	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	// Another goroutine may have rebuilt while we waited for the lock.
	if idx = r.index.Load(); idx.revision == rev {
		return idx
	}

	idx = r.build(rev)
	r.index.Store(idx)
	return idx
}

// build constructs a fresh index from a source snapshot. Disabled
// definitions are left out, so resolution never needs to re-check them.
func (r *Registry) build(revision uint64) *routeIndex {
	snap := r.source.Snapshot()

	idx := &routeIndex{
		revision:  revision,
		bySlug:    make(map[string]*FeedRoute, len(snap.Routes)),
		redirects: make(map[string]*RedirectRule, len(snap.Redirects)),
	}
	for i := range snap.Routes {
		route := snap.Routes[i]
		if route.Enabled {
			idx.bySlug[route.Slug] = &route
		}
	}
	for i := range snap.Redirects {
		rule := snap.Redirects[i]
		if rule.Enabled {
			idx.redirects[normalizePath(rule.FromPath)] = &rule
		}
	}

	r.logger.Debug().
		Uint64("revision", revision).
		Int("routes", len(idx.bySlug)).
		Int("redirects", len(idx.redirects)).
		Msg("Rebuilt route index")

	return idx
}

func normalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
