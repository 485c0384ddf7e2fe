package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for the hash distribution of an index.
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// HashBytes hashes b with a seeded FNV-1a and xor-folds the result to 32 bits.
func HashBytes(b []byte, seed uint64) uint32 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for _, c := range b {
		hash ^= uint64(c)
		hash *= prime64
	}
	return uint32(hash>>32) ^ uint32(hash)
}

// HashString is HashBytes for strings without the conversion.
func HashString(s string, seed uint64) uint32 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return uint32(hash>>32) ^ uint32(hash)
}

// MaxDigits is the number of 8 bit digits of a 32 bit hash.
const MaxDigits = 4

// Digit returns the i-th 8 bit digit of hash, counted from the most significant byte.
func Digit(hash uint32, i int) int {
	return int(hash>>(8*(MaxDigits-1-i))) & 0xFF
}

// ShardID combines the first n digits of hash into a single shard id in
// [0, 256^n). Keys sharing a shard id share a skip list.
func ShardID(hash uint32, n int) uint32 {
	if n >= MaxDigits {
		return hash
	}
	return hash >> (8 * (MaxDigits - n))
}

// ShardDigit returns the i-th digit of a shard id built from n digits, counted
// from the most significant one. ShardDigit(ShardID(h, n), n, i) == Digit(h, i).
func ShardDigit(id uint32, n, i int) int {
	return int(id>>(8*(n-1-i))) & 0xFF
}
