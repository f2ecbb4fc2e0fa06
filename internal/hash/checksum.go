// Package hash wraps xxHash64 for page checksums.
package hash

import "github.com/cespare/xxhash/v2"

// Checksum computes the xxHash64 of a decoded page payload.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}
