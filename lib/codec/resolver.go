package codec

// ObjectResolver lets callers encode types the codec does not know.
//
// Resolve is called with a value of an unknown type. It may write the value
// itself through the codec's Write methods and return nil, or return a
// replacement value which the codec then tries to write as a known type.
// A value that implements ObjectResolver is asked to resolve itself before the
// codec-level resolver is consulted.
type ObjectResolver interface {
	Resolve(v any, c *Codec) (any, error)
}

// ResolverFunc adapts a function to ObjectResolver.
type ResolverFunc func(v any, c *Codec) (any, error)

// Resolve calls f(v, c).
func (f ResolverFunc) Resolve(v any, c *Codec) (any, error) { return f(v, c) }

// WritableFields decides which top-level document fields are written.
// Child documents are always written in full.
type WritableFields func(name string) bool
