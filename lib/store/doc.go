// Package store provides a high-level interface for versioned document storage with
// conditional writes and unified error handling. It serves as an abstraction layer over
// the lower-level db.KVDB implementations, adding write index management and standardized
// error reporting.
//
// Key Components:
//
//   - IStore Interface: The core abstraction for reading, writing and scanning documents.
//     Every document carries a version. PutIf and DeleteIf only take effect if the stored
//     version equals the expected one (db.VersionAbsent for "must not exist"), which gives
//     callers an optimistic compare-and-swap per key.
//
//   - Error System: All methods report failures as *Error with a RetCode. A failed
//     condition (RetCConditionFailed) is a routine outcome of a race and must be told
//     apart from infrastructure failures (RetCInternalError); use IsConditionFailed.
//
//   - DBFactory: A function type that abstracts the creation of underlying db.KVDB
//     instances.
//
// Implementations:
//
//   - Local Store (lstore): wraps a db.KVDB and hands out write indices from an atomic
//     counter. In-memory and single node.
//     Available in the "github.com/ValentinKolb/dLock/lib/store/lstore" package.
//
//   - Distributed Store (dstore): built on the Dragonboat RAFT consensus library. The
//     raft log index is the version, conditional writes are decided on every replica.
//     Available in the "github.com/ValentinKolb/dLock/lib/store/dstore" package.
//
//   - SQLite Store (sqlstore): persists documents in a single SQLite file.
//     Available in the "github.com/ValentinKolb/dLock/lib/store/sqlstore" package.
//
// A conformance suite for all implementations lives in the store/testing package.
package store
