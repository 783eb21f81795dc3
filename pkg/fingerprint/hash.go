package fingerprint

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ContentHash returns a stable 64-bit hash of the body encoded as a
// 16-character hex token. Not cryptographic; collision resistance is only
// needed across the handful of bodies a feed can produce.
func ContentHash(body []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(body))
}

// ETag quotes a content hash per HTTP ETag syntax.
func ETag(contentHash string) string {
	return `"` + contentHash + `"`
}
