package estuary

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// hashKey computes a seeded 64-bit avalanche hash of key, used both as the
// open-addressing probe code (low bits mod total_entry pick the bucket,
// top byte is the tag) and, for the F-engine, as the bucket selector
// alone. cespare/xxhash/v2's public API fixes its internal seed to zero,
// so the seed is folded in by streaming it as an 8-byte little-endian
// prefix ahead of the key bytes into a fresh Digest; the same seed must be
// supplied on every call against a given file, which is why it is
// persisted in the header at Create time.
func hashKey(seed uint64, key []byte) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	d := xxhash.New()
	d.Write(buf[:])
	d.Write(key)
	return d.Sum64()
}

// tagOf returns the top 8 bits of a hash code, cached in an entry/tag slot
// as a fast mismatch filter.
func tagOf(code uint64) uint8 {
	return uint8(code >> 56)
}
