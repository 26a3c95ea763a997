package codec

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("codec")

// Option configures a Codec.
type Option func(*Codec)

// WithResolver installs a resolver for types the codec does not know.
func WithResolver(r ObjectResolver) Option {
	return func(c *Codec) { c.resolver = r }
}

// WithStringCache makes the reader deduplicate decoded strings through sc.
func WithStringCache(sc *StringCache) Option {
	return func(c *Codec) { c.cache = sc }
}

// WithWritableFields restricts which top-level document fields are written.
func WithWritableFields(f WritableFields) Option {
	return func(c *Codec) { c.writable = f }
}

// Codec converts values to and from the binary format. A Codec holds the
// per-stream interning tables and may be used for one Marshal or one
// Unmarshal only; further calls return ErrCodecUsed.
//
// Thread-safety: a Codec must not be used by more than one goroutine.
// Options (resolver, string cache) may be shared between codecs.
type Codec struct {
	resolver ObjectResolver
	cache    *StringCache
	writable WritableFields

	marshalled   bool
	unmarshalled bool

	// write side
	w          *bufio.Writer
	externKeys map[string]int
	childDepth int

	// read side
	in          *countingReader
	tag         byte
	depth       int
	externTable []string
	scratch     []byte

	num [8]byte
}

// New creates a single-use codec.
func New(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --------------------------------------------------------------------------
// Entry Points
// --------------------------------------------------------------------------

// Marshal writes the version byte followed by v to w.
func (c *Codec) Marshal(w io.Writer, v any) error {
	if c.marshalled {
		return ErrCodecUsed
	}
	c.marshalled = true

	c.w = bufio.NewWriter(w)
	err := c.w.WriteByte(Version)
	if err == nil {
		err = c.WriteVal(v)
	}
	if err == nil {
		err = c.w.Flush()
	}
	if err != nil {
		var ee *EncodeError
		if errors.As(err, &ee) {
			return err
		}
		return &EncodeError{Err: err}
	}
	return nil
}

// Unmarshal reads a version byte and one value from r.
// Failures are returned as *DecodeError.
func (c *Codec) Unmarshal(r io.Reader) (any, error) {
	if c.unmarshalled {
		return nil, ErrCodecUsed
	}
	c.unmarshalled = true

	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	c.in = &countingReader{r: br}
	c.scratch = getScratch()
	defer func() {
		putScratch(c.scratch)
		c.scratch = nil
	}()

	version, err := c.readByte()
	if err != nil {
		return nil, c.decodeErr(err)
	}
	if version != Version {
		c.tag = version
		return nil, c.decodeErr(ErrVersionMismatch)
	}
	v, err := c.ReadVal()
	if err != nil {
		return nil, c.decodeErr(err)
	}
	return v, nil
}

// Encode marshals v with a fresh codec and returns the bytes.
func Encode(v any, opts ...Option) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)
	if err := New(opts...).Marshal(buf, v); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Decode unmarshals b with a fresh codec.
func Decode(b []byte, opts ...Option) (any, error) {
	return New(opts...).Unmarshal(bytes.NewReader(b))
}
