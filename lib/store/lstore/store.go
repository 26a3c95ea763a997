package lstore

import (
	"io"
	"runtime"
	"sync/atomic"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// Options configures the local store.
type Options struct {
	NumShards int // Number of shards (0 = one per CPU)
}

// DefaultOptions returns the default local store options.
func DefaultOptions() *Options {
	return &Options{
		NumShards: runtime.NumCPU(),
	}
}

// shard is one partition of the store with its own concurrent map.
type shard struct {
	data *xsync.MapOf[string, []byte]
}

type storeImpl struct {
	seed   uint64
	shards []*shard
	closed atomic.Bool
}

// NewLocalStore creates a new in-memory store. opts may be nil.
//
// Thread-safety: The returned store is safe for concurrent use.
func NewLocalStore(opts *Options) store.IStore {
	if opts == nil {
		opts = DefaultOptions()
	}
	n := opts.NumShards
	if n < 1 {
		n = runtime.NumCPU()
	}

	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{data: xsync.NewMapOf[string, []byte]()}
	}
	return &storeImpl{
		seed:   util.GenerateSeed(),
		shards: shards,
	}
}

// getShard returns the shard responsible for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *storeImpl) getShard(key string) *shard {
	// the low bits feed the map's own hashing, so use the higher ones here
	h := util.HashString(key, s.seed) >> 7
	return s.shards[h%uint64(len(s.shards))]
}

func (s *storeImpl) check(key string) error {
	if s.closed.Load() {
		return store.NewError(store.RetCInvalidOperation, "store is closed")
	}
	if key == "" {
		return store.NewError(store.RetCInvalidOperation, "empty key")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if err := s.check(key); err != nil {
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.getShard(key).data.Store(key, cp)
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if err := s.check(key); err != nil {
		return nil, false, err
	}
	v, ok := s.getShard(key).data.Load(key)
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if err := s.check(key); err != nil {
		return false, err
	}
	_, ok := s.getShard(key).data.Load(key)
	return ok, nil
}

func (s *storeImpl) Delete(key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	s.getShard(key).data.Delete(key)
	return nil
}

func (s *storeImpl) Len() (int, error) {
	if s.closed.Load() {
		return 0, store.NewError(store.RetCInvalidOperation, "store is closed")
	}
	n := 0
	for _, sh := range s.shards {
		n += sh.data.Size()
	}
	return n, nil
}

func (s *storeImpl) Range(f func(key string, value []byte) bool) error {
	if s.closed.Load() {
		return store.NewError(store.RetCInvalidOperation, "store is closed")
	}
	for _, sh := range s.shards {
		cont := true
		sh.data.Range(func(k string, v []byte) bool {
			cont = f(k, v)
			return cont
		})
		if !cont {
			break
		}
	}
	return nil
}

func (s *storeImpl) Save(w io.Writer) error {
	return store.WriteSnapshot(w, s.Range)
}

func (s *storeImpl) Load(r io.Reader) error {
	if s.closed.Load() {
		return store.NewError(store.RetCInvalidOperation, "store is closed")
	}

	// decode everything first, a corrupt snapshot leaves the store untouched
	staged := make(map[string][]byte)
	err := store.ReadSnapshot(r, func(key string, value []byte) error {
		if key == "" {
			return store.NewError(store.RetCCorrupted, "read snapshot: empty key")
		}
		staged[key] = value
		return nil
	})
	if err != nil {
		return err
	}

	for _, sh := range s.shards {
		sh.data.Clear()
	}
	for key, value := range staged {
		s.getShard(key).data.Store(key, value)
	}
	return nil
}

func (s *storeImpl) Close() error {
	s.closed.Store(true)
	for _, sh := range s.shards {
		sh.data.Clear()
	}
	return nil
}
