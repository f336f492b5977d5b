// Package digest is the single hashing primitive: SHA-256 rendered as
// lowercase hex.
package digest

import (
	"encoding/hex"

	sha256 "github.com/minio/sha256-simd"
)

// Size is the length of a hex digest.
const Size = 2 * sha256.Size

// Empty is the digest of zero bytes.
const Empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Hex returns the lowercase hex SHA-256 of b.
func Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// String hashes the UTF-8 bytes of s.
func String(s string) string { return Hex([]byte(s)) }

// Valid reports whether h looks like a digest produced by Hex.
func Valid(h string) bool {
	if len(h) != Size {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
