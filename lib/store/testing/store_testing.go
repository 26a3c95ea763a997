package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/codec"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory creates a new, empty store. Stores that need files should
// place them in t.TempDir().
type StoreFactory func(t *testing.T) store.IStore

// RunStoreTests runs the shared test suite for an IStore implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, open(t, factory))
		})

		t.Run("CopySemantics", func(t *testing.T) {
			testCopySemantics(t, open(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, open(t, factory))
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, open(t, factory))
		})

		t.Run("Range", func(t *testing.T) {
			testRange(t, open(t, factory))
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, open(t, factory), open(t, factory))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, open(t, factory))
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, open(t, factory))
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// open creates a store that is closed when the test ends.
func open(t *testing.T, factory StoreFactory) store.IStore {
	s := factory(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustLen(t *testing.T, s store.IStore) int {
	n, err := s.Len()
	require.NoError(t, err)
	return n
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.IStore) {
	require.NoError(t, s.Set("doc-1", []byte("one")))
	require.NoError(t, s.Set("doc-2", []byte("two")))

	v, ok, err := s.Get("doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("one"), v)

	require.NoError(t, s.Set("doc-1", []byte("uno")))
	v, ok, err = s.Get("doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("uno"), v)

	_, ok, err = s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 2, mustLen(t, s))
}

func testCopySemantics(t *testing.T, s store.IStore) {
	buf := []byte("original")
	require.NoError(t, s.Set("k", buf))
	buf[0] = 'X'

	v, _, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), v, "store must copy values on Set")

	v[0] = 'Y'
	again, _, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again, "store must copy values on Get")
}

func testDelete(t *testing.T, s store.IStore) {
	require.NoError(t, s.Set("k", []byte("v")))
	require.NoError(t, s.Delete("k"))

	_, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, mustLen(t, s))

	assert.NoError(t, s.Delete("k"), "deleting a missing key is not an error")
}

func testHas(t *testing.T, s store.IStore) {
	ok, err := s.Has("k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("k", nil))
	ok, err = s.Has("k")
	require.NoError(t, err)
	assert.True(t, ok, "a key with an empty value exists")
}

func testRange(t *testing.T, s store.IStore) {
	want := map[string][]byte{}
	for i := 0; i < 100; i++ {
		k := fmt.Sprintf("doc-%03d", i)
		want[k] = []byte(fmt.Sprintf("value-%d", i))
		require.NoError(t, s.Set(k, want[k]))
	}

	got := map[string][]byte{}
	require.NoError(t, s.Range(func(k string, v []byte) bool {
		got[k] = bytes.Clone(v)
		return true
	}))
	assert.Equal(t, want, got)

	visited := 0
	require.NoError(t, s.Range(func(string, []byte) bool {
		visited++
		return visited < 10
	}))
	assert.Equal(t, 10, visited, "Range must stop when f returns false")
}

func testSaveLoad(t *testing.T, src, dst store.IStore) {
	for i := 0; i < 50; i++ {
		require.NoError(t, src.Set(fmt.Sprintf("k%d", i), bytes.Repeat([]byte{byte(i)}, i)))
	}
	require.NoError(t, dst.Set("stale", []byte("removed by load")))

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf))
	require.NoError(t, dst.Load(&buf))

	assert.Equal(t, 50, mustLen(t, dst))
	_, ok, err := dst.Get("stale")
	require.NoError(t, err)
	assert.False(t, ok)
	for i := 0; i < 50; i++ {
		v, ok, err := dst.Get(fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, bytes.Repeat([]byte{byte(i)}, i), v)
	}

	// failed loads keep the current content
	partial, err := codec.Encode(map[string]any{"a": []byte{1}, "b": "not bytes", "c": []byte{3}})
	require.NoError(t, err)
	for name, snapshot := range map[string][]byte{
		"truncated":   {2, 0x06},
		"wrong value": partial,
		"not a map":   {2, 0x21, 'x'},
	} {
		err = dst.Load(bytes.NewReader(snapshot))
		assert.True(t, errors.Is(err, store.ErrCorrupted), "%s: got %v", name, err)

		assert.Equal(t, 50, mustLen(t, dst), name)
		v, ok, err := dst.Get("k7")
		require.NoError(t, err)
		require.True(t, ok, name)
		assert.Equal(t, bytes.Repeat([]byte{7}, 7), v)
		_, ok, err = dst.Get("a")
		require.NoError(t, err)
		assert.False(t, ok, name)
	}
}

func testEdgeCases(t *testing.T, s store.IStore) {
	err := s.Set("", []byte("v"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrInvalid))

	big := bytes.Repeat([]byte("abcdefgh"), 64*1024)
	require.NoError(t, s.Set("big", big))
	v, ok, err := s.Get("big")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big, v)

	unicode := "ключ-🔑"
	require.NoError(t, s.Set(unicode, []byte{0}))
	ok, err = s.Has(unicode)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testConcurrent(t *testing.T, s store.IStore) {
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := fmt.Sprintf("w%d-%d", w, i)
				assert.NoError(t, s.Set(k, []byte(k)))
				v, ok, err := s.Get(k)
				assert.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, []byte(k), v)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 8*200, mustLen(t, s))
}

func testClose(t *testing.T, s store.IStore) {
	require.NoError(t, s.Set("k", []byte("v")))
	require.NoError(t, s.Close())

	err := s.Set("k", []byte("v"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrInvalid), "got %v", err)
	_, _, err = s.Get("k")
	assert.Error(t, err)
}
