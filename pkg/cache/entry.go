package cache

import (
	"time"

	"github.com/feedgate/feedgate/pkg/fingerprint"
)

// Params is the normalized parameter set a feed body was generated from.
// It is stored alongside the body so invalidation can scope evictions to
// affected content types.
type Params struct {
	// Identity is the logical feed identity, e.g. "default" or "custom:podcast".
	Identity string `json:"identity"`

	// Format is the feed format (rss2, atom, json).
	Format string `json:"format"`

	// PostTypes are the content types included in the feed.
	PostTypes []string `json:"post_types"`

	// Query holds the recognized query parameters, normalized.
	Query map[string]string `json:"query,omitempty"`
}

// HasPostType reports whether the feed includes the given content type.
func (p Params) HasPostType(t string) bool {
	for _, pt := range p.PostTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// Entry is one cached feed body plus its validators. The body is stored
// uncompressed; response compression is applied after retrieval so a single
// entry serves both compressing and non-compressing clients.
type Entry struct {
	// Key the entry is stored under.
	Key string `json:"key"`

	// Body is the generated feed content, pre-compression.
	Body []byte `json:"body"`

	// ContentHash is a stable hash of Body, used as the ETag validator.
	ContentHash string `json:"content_hash"`

	// ContentType of the generated body.
	ContentType string `json:"content_type"`

	// CreatedAt is when the body was generated.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is CreatedAt plus the configured TTL.
	ExpiresAt time.Time `json:"expires_at"`

	// Params the body was generated from.
	Params Params `json:"params"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.ExpiresAt)
}

// TTL returns the remaining time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// MaxAge returns the remaining TTL in whole seconds, never negative.
// Used for the Cache-Control max-age directive.
func (e *Entry) MaxAge() int {
	return int(e.TTL() / time.Second)
}

// ETag returns the quoted content hash per HTTP ETag syntax.
func (e *Entry) ETag() string {
	return fingerprint.ETag(e.ContentHash)
}

// newEntry builds an entry from a freshly generated body.
func newEntry(key string, body []byte, contentType string, params Params, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Key:         key,
		Body:        body,
		ContentHash: fingerprint.ContentHash(body),
		ContentType: contentType,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		Params:      params,
	}
}
