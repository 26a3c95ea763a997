package util

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed returns a random seed for bucket and shard hashing.
// If the system random source fails the current time is used instead.
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// StoreMax raises the value of target to v if v is larger, using a CAS loop.
// It returns the value held by target after the call.
func StoreMax(target *atomic.Uint64, v uint64) uint64 {
	for {
		current := target.Load()
		if v <= current {
			return current
		}
		if target.CompareAndSwap(current, v) {
			return v
		}
	}
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// HashString hashes s with FNV-1a, mixing seed into the offset basis.
func HashString(s string, seed uint64) uint64 {
	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}

// HashBytes is HashString for byte slices. HashBytes(b, seed) == HashString(string(b), seed).
func HashBytes(b []byte, seed uint64) uint64 {
	hash := uint64(offset64) ^ seed
	for _, c := range b {
		hash ^= uint64(c)
		hash *= prime64
	}
	return hash
}
