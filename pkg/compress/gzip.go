// Package compress negotiates and applies response compression. Cached
// entries always hold the uncompressed body; encoding happens per response
// so one entry serves both compressing and non-compressing clients.
package compress

import (
	"bytes"
	"compress/gzip"
	"strconv"
	"strings"
)

// Encoding is a negotiated response encoding.
type Encoding int

const (
	// None serves the body as-is.
	None Encoding = iota

	// Gzip serves the body gzip-compressed with Content-Encoding: gzip.
	Gzip
)

// Config controls compression behavior.
type Config struct {
	// Enabled turns compression off entirely when false.
	Enabled bool

	// MinSize is the minimum uncompressed body length worth compressing.
	// Compressing trivially small bodies wastes CPU for negative gain.
	MinSize int
}

// Negotiate selects an encoding from the client's Accept-Encoding header
// and the uncompressed body size.
func Negotiate(acceptEncoding string, bodySize int, cfg Config) Encoding {
	if !cfg.Enabled || bodySize < cfg.MinSize {
		return None
	}
	if acceptsGzip(acceptEncoding) {
		return Gzip
	}
	return None
}

// Encode applies the encoding to body. It returns the encoded body and
// the Content-Encoding header value ("" for identity). An encoder error
// falls back to the uncompressed body; compression is never worth failing
// a request over.
func Encode(body []byte, enc Encoding) ([]byte, string, error) {
	if enc != Gzip {
		return body, "", nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		zw.Close()
		return body, "", err
	}
	if err := zw.Close(); err != nil {
		return body, "", err
	}
	return buf.Bytes(), "gzip", nil
}

// acceptsGzip parses the Accept-Encoding header and reports whether the
// client accepts gzip with a non-zero quality value.
func acceptsGzip(acceptEncoding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name := part
		q := 1.0
		if i := strings.Index(part, ";"); i >= 0 {
			name = strings.TrimSpace(part[:i])
			params := strings.TrimSpace(part[i+1:])
			if strings.HasPrefix(params, "q=") {
				if parsed, err := strconv.ParseFloat(params[2:], 64); err == nil {
					q = parsed
				}
			}
		}

		if (strings.EqualFold(name, "gzip") || name == "*") && q > 0 {
			return true
		}
	}
	return false
}
