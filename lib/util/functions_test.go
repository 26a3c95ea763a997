package util

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashBytesMatchesHashString(t *testing.T) {
	for _, s := range []string{"", "a", "doc-1", "ünïcödé", "a much longer key with spaces"} {
		for _, seed := range []uint64{0, 1, 42, GenerateSeed()} {
			assert.Equal(t, HashString(s, seed), HashBytes([]byte(s), seed), "key %q seed %d", s, seed)
		}
	}
}

func TestHashStringSeedChangesHash(t *testing.T) {
	assert.NotEqual(t, HashString("doc-1", 0), HashString("doc-1", 1))
	assert.Equal(t, HashString("doc-1", 7), HashString("doc-1", 7))
}

func TestStoreMax(t *testing.T) {
	var v atomic.Uint64
	assert.Equal(t, uint64(5), StoreMax(&v, 5))
	assert.Equal(t, uint64(5), StoreMax(&v, 3))
	assert.Equal(t, uint64(9), StoreMax(&v, 9))

	var wg sync.WaitGroup
	for i := uint64(0); i < 100; i++ {
		wg.Add(1)
		go func(i uint64) {
			defer wg.Done()
			StoreMax(&v, i*3)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, uint64(297), v.Load())
}
