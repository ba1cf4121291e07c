// Package lstore implements a local, in-memory, single-node document store based on
// the store.IStore interface. It is a thin wrapper around a db.KVDB that hands out
// write indices from an atomic counter. Data lives only in memory and is lost when
// the process stops.
//
// Implementation Details:
//
//   - Write Index Management: every write takes the next value of the counter. The
//     value becomes the version of the written document, so versions are unique
//     across all keys of the store.
//
//   - Conditional Writes: PutIf and DeleteIf are forwarded to the engine, which
//     compares and writes atomically per key. A version mismatch is reported as
//     RetCConditionFailed.
//
//   - Feature Detection: before every operation the store checks SupportsFeature on
//     the engine and returns RetCUnsupportedOperation instead of failing silently.
//
// Usage Example:
//
//	s := lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
//
//	version, err := s.PutIf(ctx, "lock/issues/7", body, db.VersionAbsent)
//	if store.IsConditionFailed(err) {
//		// somebody else created the document first
//	}
//
// The local store is what `dlock api --store=memory` and the `lstore` shard type of
// `dlock serve` use. For replicated deployments see the dstore package.
package lstore
