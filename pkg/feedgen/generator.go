// Package feedgen defines the content-generation contract consumed by the
// delivery pipeline and ships a reference generator built on gorilla/feeds.
// The pipeline treats generated bodies as opaque bytes; only this package
// knows how a feed is assembled.
package feedgen

import (
	"context"
	"errors"
)

// ErrUnknownFormat indicates a format no generator can render.
var ErrUnknownFormat = errors.New("unknown feed format")

// Request describes one feed to generate.
type Request struct {
	// Identity is the logical feed identity, e.g. "default" or "custom:podcast".
	Identity string

	// Format is one of rss2, atom, json.
	Format string

	// Title and Description of the feed channel.
	Title       string
	Description string

	// PostTypes are the content types to include.
	PostTypes []string

	// ItemLimit caps the item count. Zero means the generator's maximum.
	ItemLimit int

	// OrderBy and OrderDirection define item ordering.
	OrderBy        string
	OrderDirection string

	// Params are the recognized query parameters, normalized.
	Params map[string]string
}

// Result is a generated feed body plus its media type.
type Result struct {
	Body        []byte
	ContentType string
}

// Generator builds feed bodies. Implementations must honor ctx: the
// delivery pipeline applies a bounded generation timeout.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// ContentTypeFor returns the media type for a feed format.
func ContentTypeFor(format string) string {
	switch format {
	case "atom":
		return "application/atom+xml; charset=utf-8"
	case "json":
		return "application/feed+json; charset=utf-8"
	default:
		return "application/rss+xml; charset=utf-8"
	}
}
