package bstore

import (
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/dDoc/lib/store"
	storetesting "github.com/ValentinKolb/dDoc/lib/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.IStore {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "docs.db"), &Options{NoSync: true})
	require.NoError(t, err)
	return s
}

func TestBoltStore(t *testing.T) {
	storetesting.RunStoreTests(t, "BoltStore", newTestStore)
}

func TestBoltStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.db")

	s, err := NewBoltStore(path, &Options{NoSync: true})
	require.NoError(t, err)
	require.NoError(t, s.Set("doc-1", []byte("persisted")))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get("doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("persisted"), v)
}

func TestBoltStoreEmptyValue(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	require.NoError(t, s.Set("empty", []byte{}))
	v, ok, err := s.Get("empty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, v)

	_, ok, err = s.Get("emptx")
	require.NoError(t, err)
	assert.False(t, ok, "a neighbouring key must not match")
}
