package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dDoc/lib/codec"
	"github.com/ValentinKolb/dDoc/lib/common"
	"github.com/ValentinKolb/dDoc/lib/gate"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/util"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.GetLogger("update")

// VersionField is the reserved field holding a document's version.
const VersionField = "_version_"

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("update: document not found")

// Field names repeat across records, the shared cache keeps one copy each.
const (
	cacheMaxBytes   = 64
	cacheMaxEntries = 1 << 14
)

type operation int

const (
	opAdd operation = iota
	opPatch
	opDelete
)

func (o operation) String() string {
	switch o {
	case opAdd:
		return "add"
	case opPatch:
		return "patch"
	case opDelete:
		return "delete"
	}
	return "unknown"
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

type updateOptions struct {
	skipIfExists  bool
	skipIfMissing bool
}

// UpdateOption modifies a single Update or Patch call.
type UpdateOption func(*updateOptions)

// SkipIfExists makes Update leave existing documents untouched.
func SkipIfExists() UpdateOption {
	return func(o *updateOptions) { o.skipIfExists = true }
}

// SkipIfMissing makes Patch ignore documents that do not exist yet.
func SkipIfMissing() UpdateOption {
	return func(o *updateOptions) { o.skipIfMissing = true }
}

// --------------------------------------------------------------------------
// Coordinator
// --------------------------------------------------------------------------

// Coordinator applies versioned writes to documents kept in a store.
//
// Every write for a document id runs inside the id's gate bucket, so the
// read-check-write sequence of one id is never interleaved with another
// write to the same id, while different ids proceed in parallel. Versions
// come from a clock that is monotonic across all buckets.
//
// Thread-safety: All methods are safe for concurrent use.
type Coordinator struct {
	cfg     common.CoordinatorConfig
	store   store.IStore
	buckets *gate.Buckets
	cache   *codec.StringCache
	metrics *coordinatorMetrics

	clock atomic.Uint64
	now   func() time.Time
}

// NewCoordinator creates a coordinator on top of s. The highest stored
// version of every bucket is restored from s, so versions keep growing
// across restarts.
func NewCoordinator(s store.IStore, cfg common.CoordinatorConfig) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("update: invalid config: %w", err)
	}
	m := newCoordinatorMetrics()
	c := &Coordinator{
		cfg:   cfg,
		store: s,
		buckets: gate.NewBuckets(cfg.Buckets,
			gate.WithWaitSlice(cfg.WaitSlice),
			gate.WithWaitObserver(func(d time.Duration) { m.gateWait.Update(d.Seconds()) }),
		),
		cache:   codec.NewStringCache(cacheMaxBytes, cacheMaxEntries),
		metrics: m,
		now:     time.Now,
	}
	if err := c.seedVersions(); err != nil {
		return nil, err
	}
	return c, nil
}

// seedVersions raises every bucket's highest version to the largest version
// stored for its ids.
func (c *Coordinator) seedVersions() error {
	var (
		n       int
		seedErr error
	)
	err := c.store.Range(func(id string, data []byte) bool {
		doc, err := c.decode(id, data)
		if err != nil {
			seedErr = err
			return false
		}
		v := storedVersion(doc)
		c.buckets.For([]byte(id)).UpdateHighest(v)
		util.StoreMax(&c.clock, uint64(max(v, 0)))
		n++
		return true
	})
	if err == nil {
		err = seedErr
	}
	if err != nil {
		return fmt.Errorf("update: restore versions: %w", err)
	}
	if n > 0 {
		log.Infof("restored versions of %d documents, highest %d", n, c.buckets.Highest())
	}
	return nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Update stores doc, replacing the previous content of its id, and returns
// the new version. A version in the document's _version_ field is checked
// against the stored one first (see checkVersion). With SkipIfExists an
// existing document is left alone and ErrSkipped is returned together with
// its current version.
func (c *Coordinator) Update(ctx context.Context, doc *codec.Document, opts ...UpdateOption) (int64, error) {
	return c.write(ctx, opAdd, doc, opts)
}

// Patch merges the fields of doc into the stored document: fields with a nil
// value are removed, all others are set. Child documents are replaced only
// when doc has children. A missing document is created unless SkipIfMissing
// is given, in which case ErrSkipped is returned.
func (c *Coordinator) Patch(ctx context.Context, doc *codec.Document, opts ...UpdateOption) (int64, error) {
	return c.write(ctx, opPatch, doc, opts)
}

func (c *Coordinator) write(ctx context.Context, op operation, doc *codec.Document, opts []UpdateOption) (int64, error) {
	start := time.Now()
	var o updateOptions
	for _, opt := range opts {
		opt(&o)
	}

	id, requested, err := c.identify(doc)
	if err != nil {
		c.observe(op, start, err)
		return 0, err
	}

	key := []byte(id)
	g := c.buckets.For(key)
	version, err := gate.Run(ctx, g, key, c.cfg.LockTimeout, func() (int64, error) {
		stored, exists, err := c.load(id)
		if err != nil {
			return 0, err
		}
		actual := storedVersion(stored)
		if err := checkVersion(id, requested, exists, actual); err != nil {
			return actual, err
		}

		var record *codec.Document
		switch op {
		case opAdd:
			if exists && o.skipIfExists {
				return actual, ErrSkipped
			}
			record = clone(doc)
		case opPatch:
			if !exists && o.skipIfMissing {
				return 0, ErrSkipped
			}
			record = merge(stored, doc)
		}

		v := c.nextVersion(g)
		record.Set(VersionField, v)
		data, err := codec.Encode(record)
		if err != nil {
			return 0, err
		}
		if err := c.store.Set(id, data); err != nil {
			return 0, err
		}
		return v, nil
	})
	c.observe(op, start, err)
	return version, err
}

// Delete removes the document id and returns the version assigned to the
// delete. version is checked like the _version_ field of Update. Deleting a
// missing document without a version constraint is not an error.
func (c *Coordinator) Delete(ctx context.Context, id string, version int64) (int64, error) {
	start := time.Now()
	if id == "" {
		err := fmt.Errorf("%w: empty id", ErrInvalidDocument)
		c.observe(opDelete, start, err)
		return 0, err
	}

	key := []byte(id)
	g := c.buckets.For(key)
	v, err := gate.Run(ctx, g, key, c.cfg.LockTimeout, func() (int64, error) {
		stored, exists, err := c.load(id)
		if err != nil {
			return 0, err
		}
		actual := storedVersion(stored)
		if err := checkVersion(id, version, exists, actual); err != nil {
			return actual, err
		}
		if exists {
			if err := c.store.Delete(id); err != nil {
				return 0, err
			}
		}
		return c.nextVersion(g), nil
	})
	c.observe(opDelete, start, err)
	return v, err
}

// UpdateAll runs Update for every document with at most parallelism calls in
// flight (no limit if parallelism < 1). The returned slice holds the new
// version of each document by index. Skipped documents do not fail the
// batch; the first other error cancels the remaining updates.
func (c *Coordinator) UpdateAll(ctx context.Context, docs []*codec.Document, parallelism int, opts ...UpdateOption) ([]int64, error) {
	versions := make([]int64, len(docs))
	eg, egCtx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		eg.SetLimit(parallelism)
	}
	for i, doc := range docs {
		eg.Go(func() error {
			v, err := c.Update(egCtx, doc, opts...)
			if err != nil && !errors.Is(err, ErrSkipped) {
				return fmt.Errorf("document %d: %w", i, err)
			}
			versions[i] = v
			return nil
		})
	}
	return versions, eg.Wait()
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the stored document and its version.
func (c *Coordinator) Get(ctx context.Context, id string) (*codec.Document, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	doc, exists, err := c.load(id)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, storedVersion(doc), nil
}

// HighestVersion returns the largest version assigned or restored so far.
func (c *Coordinator) HighestVersion() uint64 {
	return c.buckets.Highest()
}

// Stats returns the operation counters.
func (c *Coordinator) Stats() Stats {
	return c.metrics.stats()
}

// WriteMetrics writes the coordinator metrics in Prometheus text format.
func (c *Coordinator) WriteMetrics(w io.Writer) {
	c.metrics.writePrometheus(w)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// nextVersion returns a version larger than any handed out before and than
// the bucket's highest version. Versions start at the wall clock in
// milliseconds shifted left by 20 bits, leaving room for about a million
// versions per millisecond.
func (c *Coordinator) nextVersion(g *gate.Gate) int64 {
	floor := max(uint64(c.now().UnixMilli())<<20, g.Highest()+1)
	for {
		current := c.clock.Load()
		next := max(floor, current+1)
		if c.clock.CompareAndSwap(current, next) {
			g.UpdateHighest(int64(next))
			return int64(next)
		}
	}
}

func (c *Coordinator) identify(doc *codec.Document) (string, int64, error) {
	if doc == nil {
		return "", 0, fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	raw, _ := doc.Get(c.cfg.IDField)
	id, ok := raw.(string)
	if !ok || id == "" {
		return "", 0, fmt.Errorf("%w: field %q must be a non-empty string, found %T", ErrInvalidDocument, c.cfg.IDField, raw)
	}

	var requested int64
	switch v, _ := doc.Get(VersionField); x := v.(type) {
	case nil:
	case int64:
		requested = x
	case int32:
		requested = int64(x)
	case int:
		requested = int64(x)
	default:
		return "", 0, fmt.Errorf("%w: field %q must be an integer, found %T", ErrInvalidDocument, VersionField, v)
	}
	return id, requested, nil
}

func (c *Coordinator) load(id string) (*codec.Document, bool, error) {
	data, ok, err := c.store.Get(id)
	if err != nil || !ok {
		return nil, false, err
	}
	doc, err := c.decode(id, data)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (c *Coordinator) decode(id string, data []byte) (*codec.Document, error) {
	v, err := codec.Decode(data, codec.WithStringCache(c.cache))
	if err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "record %q: %v", id, err)
	}
	doc, ok := v.(*codec.Document)
	if !ok {
		return nil, store.Errorf(store.RetCCorrupted, "record %q is a %T, not a document", id, v)
	}
	return doc, nil
}

func (c *Coordinator) observe(op operation, start time.Time, err error) {
	c.metrics.duration.UpdateDuration(start)
	switch {
	case err == nil:
		switch op {
		case opAdd:
			c.metrics.adds.Inc()
		case opPatch:
			c.metrics.patches.Inc()
		case opDelete:
			c.metrics.deletes.Inc()
		}
	case errors.Is(err, ErrSkipped):
		c.metrics.skipped.Inc()
	case errors.Is(err, ErrVersionConflict):
		c.metrics.conflicts.Inc()
	default:
		c.metrics.errors.Inc()
		log.Warningf("%s failed: %v", op, err)
	}
}

// storedVersion returns the version of a stored record, 0 for nil.
func storedVersion(doc *codec.Document) int64 {
	if doc == nil {
		return 0
	}
	v, _ := doc.Get(VersionField)
	version, _ := v.(int64)
	return version
}

// clone copies the top level of doc without its version field.
func clone(doc *codec.Document) *codec.Document {
	out := &codec.Document{
		Fields:   make([]codec.Pair, 0, len(doc.Fields)+1),
		Children: doc.Children,
	}
	for _, f := range doc.Fields {
		if f.Name != VersionField {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

// merge applies patch to a copy of stored (which may be nil).
func merge(stored, patch *codec.Document) *codec.Document {
	if stored == nil {
		stored = codec.NewDocument()
	}
	out := clone(stored)
	for _, f := range patch.Fields {
		switch {
		case f.Name == VersionField:
		case f.Value == nil:
			out.Remove(f.Name)
		default:
			out.Set(f.Name, f.Value)
		}
	}
	if len(patch.Children) > 0 {
		out.Children = patch.Children
	}
	return out
}
