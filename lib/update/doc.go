// Package update applies versioned writes to documents.
//
// A Coordinator sits between callers and a store.IStore holding encoded
// documents. Each write for a document id runs inside the gate bucket the id
// hashes to, so the read, version check and write of one id are serialized
// while writes to other ids run in parallel.
//
// Operations:
//
//   - Update: replace a document. Its _version_ field, if set, is checked
//     first (see below). SkipIfExists turns an insert over an existing
//     document into ErrSkipped.
//
//   - Patch: merge fields into the stored document, nil values remove a
//     field. SkipIfMissing turns a patch of a missing document into
//     ErrSkipped.
//
//   - Delete: remove a document under the same version rules.
//
//   - UpdateAll: run many updates through an errgroup with bounded
//     parallelism.
//
// Versions:
//
//	Every successful write gets a new version that is larger than any
//	version the coordinator handed out or restored from the store. The
//	requested version selects the check performed before writing:
//
//	  > 1  the stored version must be equal
//	  = 1  the document must exist
//	  < 0  the document must not exist
//	  = 0  no check
//
//	A failed check returns a *ConflictError (errors.Is ErrVersionConflict).
//
// Metrics:
//
//	Counters and latency histograms are kept in a VictoriaMetrics set per
//	coordinator, see Stats and WriteMetrics.
package update
