// Package hash wraps the xxHash64 functions used for integrity checks.
package hash

import "github.com/cespare/xxhash/v2"

// Checksum computes the xxHash64 of a byte slice.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// NewDigest returns a streaming xxHash64 digest.
func NewDigest() *xxhash.Digest {
	return xxhash.New()
}
