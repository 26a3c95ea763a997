// Package compress wraps any store.IStore and compresses values at rest with
// lz4 or zstd. Every value is framed with a small header naming the
// algorithm and the uncompressed size; values that do not shrink by at least
// ten percent are kept raw.
package compress
