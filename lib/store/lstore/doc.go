// Package lstore implements a local, in-memory store based on the
// store.IStore interface. Data lives entirely in memory and is not persisted
// between process restarts unless a snapshot is saved and loaded explicitly.
//
// Implementation Details:
//
//   - Sharding: keys are spread over a fixed number of shards (one per CPU by
//     default) by a seeded FNV-1a hash. Each shard is an xsync.MapOf, so
//     readers never block and writers only contend within a shard.
//
//   - Copy semantics: values are copied on Set and Get, callers may reuse or
//     modify their buffers freely.
//
//   - Snapshots: Save and Load use the codec based format of store.WriteSnapshot.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Range sees a weakly consistent
//	view when writes happen concurrently.
package lstore
