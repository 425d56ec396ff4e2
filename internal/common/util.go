package common

import (
	"crypto/rand"
	"strings"
)

// GenerateRandByteArray returns size bytes from crypto/rand. It panics if the
// system random source fails.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// WipeByteArray zeroes b. Derived keys go through it once used.
func WipeByteArray(b []byte) {
	clear(b)
}

// RedactURL drops the query string, which carries presigned S3 signatures
// and CDN tokens, and any userinfo.
func RedactURL(s string) string {
	if before, _, ok := strings.Cut(s, "?"); ok {
		s = before + "?[redacted]"
	}
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return s
	}
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		if slash := strings.IndexByte(rest, '/'); slash < 0 || at < slash {
			rest = rest[at+1:]
		}
	}
	return scheme + "://" + rest
}
