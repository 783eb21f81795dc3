// Package conditional evaluates HTTP conditional request validators
// (If-None-Match, If-Modified-Since) against a cached feed entry to decide
// between a 304 Not Modified and a full 200 response.
package conditional

import (
	"net/http"
	"strings"
	"time"
)

// Decision is the outcome of validator evaluation.
type Decision int

const (
	// Serve means the client's copy is stale (or it has none): send the
	// full body.
	Serve Decision = iota

	// NotModified means the client's copy is current: send 304 with no
	// body, but still with the current validators and cache headers.
	NotModified
)

// Negotiate compares the request validators against the cached entry's
// ETag and creation time.
//
// Per RFC 9110, If-None-Match takes precedence: when the request carries
// one, If-Modified-Since is ignored entirely, even if the date comparison
// would decide differently.
func Negotiate(r *http.Request, etag string, createdAt time.Time) Decision {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		if etagMatches(inm, etag) {
			return NotModified
		}
		return Serve
	}

	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		since, err := http.ParseTime(ims)
		if err != nil {
			return Serve
		}
		// HTTP dates carry second precision only.
		if !createdAt.Truncate(time.Second).After(since) {
			return NotModified
		}
	}

	return Serve
}

// etagMatches reports whether any client-held ETag in the (possibly
// comma-separated) If-None-Match value matches the current ETag. Weak
// comparison: a W/ prefix on either side is ignored, which is the correct
// mode for If-None-Match.
func etagMatches(ifNoneMatch, etag string) bool {
	if strings.TrimSpace(ifNoneMatch) == "*" {
		return true
	}

	current := trimWeak(strings.TrimSpace(etag))
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if trimWeak(strings.TrimSpace(candidate)) == current {
			return true
		}
	}
	return false
}

func trimWeak(etag string) string {
	return strings.TrimPrefix(etag, "W/")
}
