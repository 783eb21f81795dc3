// Package fingerprint derives cache keys and content hashes for generated
// feed bodies. Keys are deterministic and order-independent over query
// parameters; hashes are compact ASCII tokens suitable for ETag values.
package fingerprint

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Recognized query parameters included in cache keys for every feed.
// Anything else (tracking parameters and the like) is excluded unless
// explicitly whitelisted per route.
var defaultRecognizedParams = map[string]bool{
	"paged": true,
	"page":  true,
	"lang":  true,
}

// Key identifies one cacheable feed variant.
type Key struct {
	// Identity is the logical feed identity, e.g. "default" or "custom:podcast".
	Identity string

	// Format is the requested feed format (rss2, atom, json).
	Format string

	// Params are the incoming query parameters. Only recognized parameters
	// contribute to the key.
	Params url.Values

	// ExtraRecognized are additional per-route parameter names to include.
	ExtraRecognized []string
}

// String generates a deterministic cache key string.
// Format: feed:identity:format:param1=val1:param2=val2
//
// Example:
//
//	feed:custom:podcast:rss2:paged=2
func (k Key) String() string {
	parts := []string{"feed"}

	if k.Identity != "" {
		parts = append(parts, k.Identity)
	}
	if k.Format != "" {
		parts = append(parts, k.Format)
	}

	extra := make(map[string]bool, len(k.ExtraRecognized))
	for _, name := range k.ExtraRecognized {
		extra[name] = true
	}

	// Sorted for determinism so ?a=1&b=2 and ?b=2&a=1 collapse to one key.
	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		if defaultRecognizedParams[name] || extra[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		values := append([]string(nil), k.Params[name]...)
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, fmt.Sprintf("%s=%s", name, v))
		}
	}

	return strings.Join(parts, ":")
}

// Recognized extracts the recognized parameters (defaults plus extra) as
// a flat map, first value wins. The same whitelist that fragments the
// cache key also reaches content generation: a parameter that produces a
// distinct entry must produce distinct content.
func (k Key) Recognized() map[string]string {
	extra := make(map[string]bool, len(k.ExtraRecognized))
	for _, name := range k.ExtraRecognized {
		extra[name] = true
	}

	var out map[string]string
	for name, values := range k.Params {
		if (defaultRecognizedParams[name] || extra[name]) && len(values) > 0 {
			if out == nil {
				out = make(map[string]string)
			}
			out[name] = values[0]
		}
	}
	return out
}
