package compress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
	storetesting "github.com/ValentinKolb/dDoc/lib/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressedStore(t *testing.T) {
	for _, algo := range []Algorithm{None, LZ4, ZSTD} {
		storetesting.RunStoreTests(t, "Compressed-"+algo.String(), func(t *testing.T) store.IStore {
			return NewCompressedStore(lstore.NewLocalStore(nil), algo)
		})
	}
}

func TestCompressionShrinksRepetitiveValues(t *testing.T) {
	value := bytes.Repeat([]byte("field:value;"), 1000)
	for _, algo := range []Algorithm{LZ4, ZSTD} {
		t.Run(algo.String(), func(t *testing.T) {
			frame, err := compressValue(value, algo)
			require.NoError(t, err)
			assert.Equal(t, byte(algo), frame[0])
			assert.Less(t, len(frame), len(value)/4)

			out, err := decompressValue(frame)
			require.NoError(t, err)
			assert.Equal(t, value, out)
		})
	}
}

func TestIncompressibleValuesStayRaw(t *testing.T) {
	value := []byte{0x9c, 0x01, 0xf3, 0x44, 0x17}
	for _, algo := range []Algorithm{LZ4, ZSTD} {
		frame, err := compressValue(value, algo)
		require.NoError(t, err)
		assert.Equal(t, byte(None), frame[0])
		assert.Equal(t, value, frame[headerSize:])
	}
}

func TestReopenWithDifferentAlgorithm(t *testing.T) {
	inner := lstore.NewLocalStore(nil)
	value := bytes.Repeat([]byte("abc"), 500)

	require.NoError(t, NewCompressedStore(inner, ZSTD).Set("k", value))
	v, ok, err := NewCompressedStore(inner, LZ4).Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value, v)
}

func TestCorruptedFrame(t *testing.T) {
	inner := lstore.NewLocalStore(nil)
	require.NoError(t, inner.Set("short", []byte{1}))
	require.NoError(t, inner.Set("bad", []byte{9, 1, 0, 0, 0, 'x'}))

	s := NewCompressedStore(inner, ZSTD)
	for _, key := range []string{"short", "bad"} {
		_, _, err := s.Get(key)
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrCorrupted), "got %v", err)
	}

	err := s.Range(func(string, []byte) bool { return true })
	assert.True(t, errors.Is(err, store.ErrCorrupted), "got %v", err)
}

func TestParseAlgorithm(t *testing.T) {
	for in, want := range map[string]Algorithm{"": None, "none": None, "LZ4": LZ4, " zstd ": ZSTD} {
		got, err := ParseAlgorithm(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseAlgorithm("gzip")
	assert.Error(t, err)
}
