package gate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketsRouting(t *testing.T) {
	b := NewBuckets(16)
	assert.Equal(t, 16, b.Len())

	used := map[int]bool{}
	for i := 0; i < 1000; i++ {
		key := []byte(fmt.Sprintf("doc-%d", i))
		idx := b.Index(key)
		require.True(t, idx >= 0 && idx < b.Len())
		assert.Same(t, b.At(idx), b.For(key))
		assert.Equal(t, idx, b.Index(key), "routing must be stable")
		used[idx] = true
	}
	assert.Len(t, used, 16, "1000 keys should touch every bucket")
}

func TestBucketsSeed(t *testing.T) {
	a := NewSeededBuckets(1024, 1)
	b := NewSeededBuckets(1024, 2)
	differs := false
	for i := 0; i < 100 && !differs; i++ {
		key := []byte(fmt.Sprintf("doc-%d", i))
		differs = a.Index(key) != b.Index(key)
	}
	assert.True(t, differs)

	same := NewSeededBuckets(1024, 1)
	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("doc-%d", i))
		assert.Equal(t, a.Index(key), same.Index(key))
	}
}

func TestBucketsRandomSeed(t *testing.T) {
	seeds := map[uint64]bool{}
	for i := 0; i < 8; i++ {
		seeds[NewBuckets(4).seed] = true
	}
	assert.Greater(t, len(seeds), 1, "every Buckets should draw its own seed")
}

func TestBucketsAtLeastOne(t *testing.T) {
	b := NewBuckets(0)
	assert.Equal(t, 1, b.Len())
	assert.Same(t, b.At(0), b.For([]byte("anything")))
}

func TestBucketsHighest(t *testing.T) {
	b := NewBuckets(4)
	b.At(0).UpdateHighest(10)
	b.At(3).UpdateHighest(-30)
	b.At(2).UpdateHighest(20)
	assert.Equal(t, uint64(30), b.Highest())

	b.SignalAll()
	require.NoError(t, b.For([]byte("k")).RunExclusive(context.Background(), []byte("k"), 0, func() error { return nil }))
}
