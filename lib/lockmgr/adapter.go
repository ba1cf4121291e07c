package lockmgr

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
)

// maxAttempts is the number of times a read-modify-write cycle is run before giving up
const maxAttempts = 2

// --------------------------------------------------------------------------
// Lock Store Adapter
// --------------------------------------------------------------------------

// lockStore is the narrow view of the store the service needs: read, conditional write
// and conditional delete of one lock record.
type lockStore struct {
	store store.IStore
}

// read returns the record of a lock. A missing record is not an error.
func (l *lockStore) read(ctx context.Context, collection, resourceKey string) (*LockRecord, bool, error) {
	doc, ok, err := l.store.Get(ctx, storeKey(collection, resourceKey))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	rec, err := decodeRecord(doc.Value, doc.Version)
	if err != nil {
		return nil, false, fmt.Errorf("lock %s/%s: %w", collection, resourceKey, err)
	}
	return rec, true, nil
}

// write stores rec if the stored version still equals expectedVersion
// (db.VersionAbsent: the lock must not exist) and updates rec.Version.
func (l *lockStore) write(ctx context.Context, rec *LockRecord, expectedVersion uint64) error {
	body, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	version, err := l.store.PutIf(ctx, storeKey(rec.Collection, rec.ResourceKey), body, expectedVersion)
	if err != nil {
		return err
	}
	rec.Version = version
	return nil
}

// create stores a new lock that must not exist yet
func (l *lockStore) create(ctx context.Context, rec *LockRecord) error {
	return l.write(ctx, rec, db.VersionAbsent)
}

// remove deletes a lock if the stored version still equals expectedVersion
func (l *lockStore) remove(ctx context.Context, collection, resourceKey string, expectedVersion uint64) error {
	return l.store.DeleteIf(ctx, storeKey(collection, resourceKey), expectedVersion)
}

// list returns all decodable lock records of a collection. Malformed documents are skipped.
func (l *lockStore) list(ctx context.Context, collection string) ([]*LockRecord, error) {
	docs, err := l.store.Scan(ctx, collectionPrefix(collection), 0)
	if err != nil {
		return nil, err
	}
	records := make([]*LockRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := decodeRecord(doc.Value, doc.Version)
		if err != nil {
			log.Warningf("skipping lock document %s: %v", doc.Key, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// --------------------------------------------------------------------------
// Transaction Wrapper
// --------------------------------------------------------------------------

// isRetryable reports whether a read-modify-write cycle may be run again after err:
// a lost conditional write or a transient store failure.
func isRetryable(err error) bool {
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		return false
	}
	return storeErr.Code == store.RetCConditionFailed || storeErr.Code == store.RetCInternalError
}

// withRetry runs fn (one complete read-modify-write cycle) and runs it once more if it
// failed with a retryable error. The result of the last attempt is returned.
func withRetry[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var (
		res T
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err = fn()
		if err == nil || !isRetryable(err) || ctx.Err() != nil {
			return res, err
		}
		if attempt < maxAttempts {
			log.Debugf("%s: attempt %d failed, retrying: %v", op, attempt, err)
			countRetry(op)
		}
	}
	return res, err
}
