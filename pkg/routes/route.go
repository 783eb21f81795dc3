// Package routes maintains custom feed route and redirect definitions and
// resolves incoming request paths against them. The resolution index is
// rebuilt only when the definition source's revision changes and swapped
// atomically, so readers always see a fully built index.
package routes

import (
	"errors"
	"fmt"
	"strings"
)

// Feed formats.
const (
	FormatRSS2 = "rss2"
	FormatAtom = "atom"
	FormatJSON = "json"
)

// reservedSlugs are the platform's default feed slugs. Custom routes and
// redirects must not shadow them.
var reservedSlugs = map[string]bool{
	"feed": true,
	"rss":  true,
	"rss2": true,
	"rdf":  true,
	"atom": true,
	"json": true,
}

// Configuration errors, rejected synchronously at definition time and
// never reaching the request path.
var (
	// ErrSlugReserved indicates a slug shadowing a default feed path.
	ErrSlugReserved = errors.New("slug is reserved for a default feed")

	// ErrSlugConflict indicates a slug already used by a route or redirect.
	ErrSlugConflict = errors.New("slug conflicts with an existing definition")

	// ErrInvalidItemLimit indicates a non-positive item limit.
	ErrInvalidItemLimit = errors.New("item limit must be positive")

	// ErrUnknownPostType indicates a content type the host does not know.
	ErrUnknownPostType = errors.New("unknown post type")

	// ErrUnknownOrderBy indicates an unsupported ordering field.
	ErrUnknownOrderBy = errors.New("unknown order-by field")

	// ErrInvalidOrderDirection indicates a direction other than asc/desc.
	ErrInvalidOrderDirection = errors.New("order direction must be asc or desc")

	// ErrInvalidStatusCode indicates a redirect status outside 301/302/307/308.
	ErrInvalidStatusCode = errors.New("redirect status must be 301, 302, 307 or 308")

	// ErrInvalidPath indicates a malformed from-path or slug.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotFound indicates a delete target that does not exist.
	ErrNotFound = errors.New("definition not found")
)

// FeedRoute defines one custom feed endpoint.
type FeedRoute struct {
	// Slug is the unique URL segment of the feed, served at /feed/<slug>.
	Slug string `json:"slug"`

	// Title and Description are display metadata, not cache-relevant.
	Title       string `json:"title"`
	Description string `json:"description"`

	// PostTypes are the content types included in the feed.
	PostTypes []string `json:"post_types"`

	// ItemLimit caps the item count per response.
	ItemLimit int `json:"item_limit"`

	// OrderBy and OrderDirection define item ordering.
	OrderBy        string `json:"order_by"`
	OrderDirection string `json:"order_direction"`

	// ExtraParams are query parameter names whitelisted into this
	// route's cache key in addition to the defaults.
	ExtraParams []string `json:"extra_params,omitempty"`

	// Enabled routes resolve; disabled ones resolve as not found.
	Enabled bool `json:"enabled"`
}

// Path returns the request path the route is served at.
func (r FeedRoute) Path() string {
	return "/feed/" + r.Slug
}

// RedirectRule maps a request path onto another path or external URL.
type RedirectRule struct {
	// FromPath is the incoming request path to match.
	FromPath string `json:"from_path"`

	// ToPath is the redirect target, a path or an absolute URL.
	ToPath string `json:"to_path"`

	// StatusCode is one of 301, 302, 307, 308.
	StatusCode int `json:"status_code"`

	// Enabled rules match; disabled ones are skipped.
	Enabled bool `json:"enabled"`
}

// Options enumerate the host platform's known content types and ordering
// fields, used to validate definitions.
type Options struct {
	PostTypes   []string
	OrderFields []string
}

// DefaultOptions returns the options of a typical content platform.
func DefaultOptions() Options {
	return Options{
		PostTypes:   []string{"post", "page", "episode"},
		OrderFields: []string{"date", "modified", "title"},
	}
}

func (o Options) knowsPostType(t string) bool {
	for _, pt := range o.PostTypes {
		if pt == t {
			return true
		}
	}
	return false
}

func (o Options) knowsOrderField(f string) bool {
	for _, of := range o.OrderFields {
		if of == f {
			return true
		}
	}
	return false
}

// Snapshot is a consistent view of all definitions, produced by a Source.
type Snapshot struct {
	Routes    []FeedRoute    `json:"routes"`
	Redirects []RedirectRule `json:"redirects"`
}

// ValidateRoute checks a route definition against the options and the
// current snapshot. Called before persisting; a validated snapshot never
// produces resolution-time surprises.
func ValidateRoute(route FeedRoute, snap Snapshot, opts Options) error {
	slug := strings.TrimSpace(route.Slug)
	if slug == "" || strings.Contains(slug, "/") {
		return fmt.Errorf("%w: slug %q", ErrInvalidPath, route.Slug)
	}
	if reservedSlugs[slug] {
		return fmt.Errorf("%w: %q", ErrSlugReserved, slug)
	}
	for _, existing := range snap.Routes {
		if existing.Slug == slug {
			return fmt.Errorf("%w: route %q", ErrSlugConflict, slug)
		}
	}
	routePath := "/feed/" + slug
	for _, rule := range snap.Redirects {
		if normalizePath(rule.FromPath) == routePath {
			return fmt.Errorf("%w: redirect from %q", ErrSlugConflict, rule.FromPath)
		}
	}

	if route.ItemLimit <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidItemLimit, route.ItemLimit)
	}
	if len(route.PostTypes) == 0 {
		return fmt.Errorf("%w: route needs at least one", ErrUnknownPostType)
	}
	for _, pt := range route.PostTypes {
		if !opts.knowsPostType(pt) {
			return fmt.Errorf("%w: %q", ErrUnknownPostType, pt)
		}
	}
	if route.OrderBy != "" && !opts.knowsOrderField(route.OrderBy) {
		return fmt.Errorf("%w: %q", ErrUnknownOrderBy, route.OrderBy)
	}
	switch route.OrderDirection {
	case "", "asc", "desc":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOrderDirection, route.OrderDirection)
	}

	return nil
}

// ValidateRedirect checks a redirect rule against the current snapshot.
// Comparisons run on the normalized from-path (trailing slash trimmed),
// the same form the resolution index matches on; a raw "/feed/" must not
// slip past checks written against "/feed".
func ValidateRedirect(rule RedirectRule, snap Snapshot, opts Options) error {
	from := normalizePath(strings.TrimSpace(rule.FromPath))
	if from == "" || !strings.HasPrefix(from, "/") {
		return fmt.Errorf("%w: from path %q", ErrInvalidPath, rule.FromPath)
	}

	// A from-path must not alias a reserved default feed path or an
	// existing route; redirects short-circuit content generation and
	// would silently shadow them.
	if slug, ok := strings.CutPrefix(from, "/feed/"); ok && reservedSlugs[slug] {
		return fmt.Errorf("%w: %q", ErrSlugReserved, from)
	}
	if from == "/feed" {
		return fmt.Errorf("%w: %q", ErrSlugReserved, from)
	}
	for _, route := range snap.Routes {
		if route.Path() == from {
			return fmt.Errorf("%w: route %q", ErrSlugConflict, route.Slug)
		}
	}
	for _, existing := range snap.Redirects {
		if normalizePath(existing.FromPath) == from {
			return fmt.Errorf("%w: redirect from %q", ErrSlugConflict, from)
		}
	}

	switch rule.StatusCode {
	case 301, 302, 307, 308:
	default:
		return fmt.Errorf("%w: got %d", ErrInvalidStatusCode, rule.StatusCode)
	}
	if strings.TrimSpace(rule.ToPath) == "" {
		return fmt.Errorf("%w: empty to path", ErrInvalidPath)
	}

	return nil
}
