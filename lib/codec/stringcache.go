package codec

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// StringCache deduplicates strings produced by decoding. A single cache can be
// shared by any number of codecs.
//
// Thread-safety: all methods are safe for concurrent use.
type StringCache struct {
	entries  *xsync.MapOf[string, string]
	maxBytes int // strings longer than this are not cached
	maxSize  int // number of entries after which new strings are not cached
}

// NewStringCache creates a cache that keeps strings of at most maxBytes bytes
// and stops admitting new entries once maxSize entries are held.
// Non-positive limits mean unbounded.
func NewStringCache(maxBytes, maxSize int) *StringCache {
	return &StringCache{
		entries:  xsync.NewMapOf[string, string](),
		maxBytes: maxBytes,
		maxSize:  maxSize,
	}
}

// Get returns the cached string equal to b, storing a new one if needed.
func (sc *StringCache) Get(b []byte) string {
	if sc.maxBytes > 0 && len(b) > sc.maxBytes {
		return string(b)
	}
	if s, ok := sc.entries.Load(string(b)); ok {
		return s
	}
	s := string(b)
	if sc.maxSize > 0 && sc.entries.Size() >= sc.maxSize {
		return s
	}
	actual, _ := sc.entries.LoadOrStore(s, s)
	return actual
}

// Len returns the number of cached strings.
func (sc *StringCache) Len() int {
	return sc.entries.Size()
}

// Clear drops every cached string.
func (sc *StringCache) Clear() {
	sc.entries.Clear()
}
