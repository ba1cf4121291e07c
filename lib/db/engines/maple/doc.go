// Package maple implements a sharded, in-memory, versioned document database.
// It provides a complete implementation of the db.KVDB interface and is the
// storage engine behind both the local store and the raft replicated store.
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It manages
//     shards and the write index. The write index is supplied by the caller, so the
//     same engine can be driven by an atomic counter (local store) or by the raft
//     log index (replicated store).
//
//   - Shard: A partition of the key space backed by an xsync.MapOf. Keys are
//     assigned to shards with a seeded FNV-1a hash, right-shifted by 7 bits to use
//     the higher quality bits.
//
//   - Entry: The stored value plus the write index of the last write. That index
//     is the version handed out to callers.
//
// Conditional Writes:
//
// PutIf and DeleteIf run inside xsync.MapOf.Compute, which serializes all
// operations on one key. The compare (stored version == expected version) and the
// write happen under the same bucket lock, so two writers with the same expected
// version can never both succeed.
//
// Stale Write Prevention:
//
// A write is only applied if its write index is greater than the stored version of
// the key. Out of order or replayed writes therefore cannot overwrite newer data.
//
// Persistence:
//
// Save writes a fuzzy snapshot (magic header, format version, write index, then
// key/version/value triples). Load replaces the whole content of the database and
// restores the write index. The raft state machine uses both for its snapshots.
package maple
