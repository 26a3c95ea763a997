package compress

import (
	"io"

	"github.com/ValentinKolb/dDoc/lib/store"
)

type storeImpl struct {
	inner store.IStore
	algo  Algorithm
}

// NewCompressedStore wraps inner so that values are compressed with algo
// before they reach it. Keys, Has, Delete, Len, Save and Load pass through;
// snapshots therefore contain the compressed frames.
func NewCompressedStore(inner store.IStore, algo Algorithm) store.IStore {
	return &storeImpl{inner: inner, algo: algo}
}

func corrupted(key string, err error) error {
	return store.Errorf(store.RetCCorrupted, "decompress %q: %v", key, err)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	frame, err := compressValue(value, s.algo)
	if err != nil {
		return store.Errorf(store.RetCInternalError, "compress %q: %v", key, err)
	}
	return s.inner.Set(key, frame)
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	frame, ok, err := s.inner.Get(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err := decompressValue(frame)
	if err != nil {
		return nil, false, corrupted(key, err)
	}
	return v, true, nil
}

func (s *storeImpl) Has(key string) (bool, error) { return s.inner.Has(key) }

func (s *storeImpl) Delete(key string) error { return s.inner.Delete(key) }

func (s *storeImpl) Len() (int, error) { return s.inner.Len() }

func (s *storeImpl) Range(f func(key string, value []byte) bool) error {
	var decodeErr error
	err := s.inner.Range(func(key string, frame []byte) bool {
		v, err := decompressValue(frame)
		if err != nil {
			decodeErr = corrupted(key, err)
			return false
		}
		return f(key, v)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

func (s *storeImpl) Save(w io.Writer) error { return s.inner.Save(w) }

func (s *storeImpl) Load(r io.Reader) error { return s.inner.Load(r) }

func (s *storeImpl) Close() error { return s.inner.Close() }
