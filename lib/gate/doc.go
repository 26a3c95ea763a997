// Package gate provides per-key mutual exclusion for versioned updates.
//
// A Gate lets many goroutines run bodies concurrently as long as they work
// on different keys. Two bodies for the same key never overlap: the second
// waits until the first returns. The gate's internal lock only guards its
// registration table, bodies always run outside of it.
//
// Key Components:
//
//   - Gate: the registration table (key -> in-flight count), a broadcast
//     signal for waiters and the highest version magnitude seen so far.
//
//   - RunExclusive / Run: wait for a key, register it, run the body and
//     clean up, even when the body fails or panics.
//
//   - Buckets: a fixed array of gates selected by FNV-1a hash of the key.
//
// Waiting:
//
//	Waiters sleep until a release broadcasts, re-checking their key at least
//	every wait slice (250ms by default). A positive timeout bounds the total
//	wait (ErrGateTimeout); cancelling the context aborts the wait with an
//	error wrapping ctx.Err(). A waiter that gives up never registers its key.
//
// Thread Safety:
//
//	All methods of Gate and Buckets are safe for concurrent use.
//
// Usage:
//
//	buckets := gate.NewBuckets(64)
//	err := buckets.For(id).RunExclusive(ctx, id, time.Second, func() error {
//	    // read, check and write the record for id
//	    return nil
//	})
package gate
