// Package store provides the persistence interface used by the versioned
// update coordinator, together with unified error reporting and a snapshot
// format shared by all implementations.
//
// The package focuses on:
//   - A unified interface (IStore) for keeping encoded records by document id
//   - Interchangeable backends so the coordinator can run in memory or on disk
//
// Key Components:
//
//   - IStore Interface: Set, Get, Has, Delete, Len and Range over opaque
//     byte values, plus Save/Load snapshots and Close. Stores copy values on
//     the way in and out, so callers may reuse their buffers.
//
//   - Error System: *Error carries a RetCode and a message. The sentinels
//     ErrInternal, ErrInvalid and ErrCorrupted match any error of their code
//     with errors.Is.
//
//   - Snapshots: WriteSnapshot/ReadSnapshot stream all pairs as one codec
//     MAP_ENTRY_ITER value, so a snapshot is itself a valid codec stream.
//
// Implementations:
//
//	- Local Store (lstore): sharded in-memory store built on xsync maps.
//	  Available in the "github.com/ValentinKolb/dDoc/lib/store/lstore" package.
//
//	- Bolt Store (bstore): persistent store in a single bbolt file.
//	  Available in the "github.com/ValentinKolb/dDoc/lib/store/bstore" package.
//
//	- Compressed Store (compress): wraps any IStore and compresses values at
//	  rest with zstd or lz4.
//	  Available in the "github.com/ValentinKolb/dDoc/lib/store/compress" package.
//
// Every implementation runs the shared suite in lib/store/testing.
package store
