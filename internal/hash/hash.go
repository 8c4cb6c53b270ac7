// Package hash provides the stable content digest used as cache key,
// change sentinel, and chunk provenance across the indexing pipeline.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Bytes returns the hex-encoded SHA-256 digest of b.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Reader returns the hex-encoded SHA-256 digest of everything read from r.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// String returns the hex-encoded SHA-256 digest of s.
func String(s string) string {
	return Bytes([]byte(s))
}
