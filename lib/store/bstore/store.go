package bstore

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"go.etcd.io/bbolt"
)

var log = logger.GetLogger("store")

var bucketName = []byte("docs")

// Options configures the bolt store.
type Options struct {
	NoSync          bool          // skip fsync after commits (tests, benchmarks)
	InitialMmapSize int           // initial mmap size in bytes (0 = bbolt default)
	Timeout         time.Duration // how long to wait for the file lock (0 = 10s)
}

type storeImpl struct {
	db     *bbolt.DB
	path   string
	closed atomic.Bool
}

// NewBoltStore opens (or creates) a bbolt file at path. opts may be nil.
//
// Thread-safety: The returned store is safe for concurrent use. Writes are
// serialized by bbolt, reads run in parallel.
func NewBoltStore(path string, opts *Options) (store.IStore, error) {
	if opts == nil {
		opts = &Options{}
	}
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opts.Timeout > 0 {
		bopt.Timeout = opts.Timeout
	}
	bopt.NoSync = opts.NoSync
	if opts.InitialMmapSize > 0 {
		bopt.InitialMmapSize = opts.InitialMmapSize
	}
	bopt.FreelistType = bbolt.FreelistMapType

	db, err := bbolt.Open(path, 0600, bopt)
	if err != nil {
		return nil, store.Errorf(store.RetCInternalError, "open %s: %v", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, store.Errorf(store.RetCInternalError, "create bucket: %v", err)
	}
	log.Infof("opened bolt store at %s", path)
	return &storeImpl{db: db, path: path}, nil
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

// lookup positions a cursor on key. bbolt's Bucket.Get cannot tell an empty
// value from a missing key, the cursor can.
func lookup(b *bbolt.Bucket, key []byte) ([]byte, bool) {
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	return v, true
}

func wrapErr(op string, err error) error {
	return store.Errorf(store.RetCInternalError, "%s: %v", op, err)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if err := s.check(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	}); err != nil {
		return wrapErr("set", err)
	}
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if err := s.check(key); err != nil {
		return nil, false, err
	}
	var (
		out []byte
		ok  bool
	)
	if err := s.db.View(func(tx *bbolt.Tx) error {
		var v []byte
		v, ok = lookup(tx.Bucket(bucketName), []byte(key))
		if ok {
			// bbolt memory is only valid inside the transaction
			out = bytes.Clone(v)
			if out == nil {
				out = []byte{}
			}
		}
		return nil
	}); err != nil {
		return nil, false, wrapErr("get", err)
	}
	return out, ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if err := s.check(key); err != nil {
		return false, err
	}
	var ok bool
	if err := s.db.View(func(tx *bbolt.Tx) error {
		_, ok = lookup(tx.Bucket(bucketName), []byte(key))
		return nil
	}); err != nil {
		return false, wrapErr("has", err)
	}
	return ok, nil
}

func (s *storeImpl) Delete(key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	}); err != nil {
		return wrapErr("delete", err)
	}
	return nil
}

func (s *storeImpl) Len() (int, error) {
	if s.closed.Load() {
		return 0, store.NewError(store.RetCInvalidOperation, "store is closed")
	}
	var n int
	if err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketName).Stats().KeyN
		return nil
	}); err != nil {
		return 0, wrapErr("len", err)
	}
	return n, nil
}

func (s *storeImpl) Range(f func(key string, value []byte) bool) error {
	if s.closed.Load() {
		return store.NewError(store.RetCInvalidOperation, "store is closed")
	}
	if err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !f(string(k), v) {
				break
			}
		}
		return nil
	}); err != nil {
		return wrapErr("range", err)
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
	var loadErr error
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(bucketName)
		if err != nil {
			return err
		}
		loadErr = store.ReadSnapshot(r, func(key string, value []byte) error {
			return b.Put([]byte(key), value)
		})
		return loadErr
	})
	if loadErr != nil {
		return loadErr
	}
	if err != nil {
		return wrapErr("load", err)
	}
	return nil
}

func (s *storeImpl) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return wrapErr(fmt.Sprintf("close %s", s.path), err)
	}
	return nil
}
