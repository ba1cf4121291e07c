// Package db provides a standardized interface for versioned document database
// implementations. The KVDB interface is the lowest layer of dLock: every lock
// record ends up as one document in a KVDB, and the conditional operations of
// this package are what the lock service ultimately relies on for mutual exclusion.
//
// The package focuses on:
//   - A unified interface for versioned key-value documents
//   - Atomic compare-and-swap writes and deletes per key
//   - Feature discovery through capability flags
//   - Standardized persistence operations
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides unconditional writes (Put, Delete), conditional writes (PutIf,
//     DeleteIf), reads (Get, Scan), metadata retrieval (GetInfo) and persistence
//     (Save, Load).
//
//   - Document: A value together with its version. The version of a document is the
//     write index at which it was last written. Because write indices only ever grow,
//     a key that is deleted and created again never reuses an old version.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method.
//
// Note on Write Indices:
//   - All write operations take a write index that serves as a logical timestamp.
//     Callers own the index: the local store uses an atomic counter, the raft store
//     uses the raft log index, so replicas stamp identical versions.
//   - Implementations must keep the write index monotonic. Attempts to set a lower
//     index than the current one are ignored.
//   - A write whose index is not greater than the stored version of the key is stale
//     and must not be applied.
//
// Related Packages:
//
// The engines/maple package provides a sharded in-memory implementation built on
// xsync maps. The testing package provides RunKVDBTests, a conformance suite every
// implementation is expected to pass.
package db
