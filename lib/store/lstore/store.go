package lstore

import (
	"context"
	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
	"sync/atomic"
)

type storeImpl struct {
	db    db.KVDB
	index atomic.Uint64
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// This works by using the maple engine from the db package directly.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return &storeImpl{
		db:    factory(),
		index: atomic.Uint64{},
	}
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique index (and thereby a unique version).
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

// check returns an error if the context is done or the db lacks the feature
func (s *storeImpl) check(ctx context.Context, feature db.Feature) error {
	if err := ctx.Err(); err != nil {
		return store.NewError(store.RetCInternalError, err.Error())
	}
	if !s.db.SupportsFeature(feature) {
		return store.NewError(store.RetCUnsupportedOperation, feature.String()+" operation is not supported")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(ctx context.Context, key string) (db.Document, bool, error) {
	if err := s.check(ctx, db.FeatureGet); err != nil {
		return db.Document{}, false, err
	}
	doc, ok := s.db.Get(key)
	return doc, ok, nil
}

func (s *storeImpl) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := s.check(ctx, db.FeaturePut); err != nil {
		return 0, err
	}
	idx := s.incAndGetIndex()
	s.db.Put(key, value, idx)
	return idx, nil
}

func (s *storeImpl) PutIf(ctx context.Context, key string, value []byte, expectedVersion uint64) (uint64, error) {
	if err := s.check(ctx, db.FeaturePutIf); err != nil {
		return 0, err
	}
	version, ok := s.db.PutIf(key, value, s.incAndGetIndex(), expectedVersion)
	if !ok {
		return 0, store.NewConditionFailedError(key, expectedVersion, version)
	}
	return version, nil
}

func (s *storeImpl) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, db.FeatureDelete); err != nil {
		return err
	}
	s.db.Delete(key, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) DeleteIf(ctx context.Context, key string, expectedVersion uint64) error {
	if err := s.check(ctx, db.FeatureDeleteIf); err != nil {
		return err
	}
	if version, ok := s.db.DeleteIf(key, s.incAndGetIndex(), expectedVersion); !ok {
		return store.NewConditionFailedError(key, expectedVersion, version)
	}
	return nil
}

func (s *storeImpl) Scan(ctx context.Context, prefix string, limit int) ([]db.Document, error) {
	if err := s.check(ctx, db.FeatureScan); err != nil {
		return nil, err
	}
	return s.db.Scan(prefix, limit), nil
}

func (s *storeImpl) GetDBInfo(ctx context.Context) (db.DatabaseInfo, error) {
	if err := ctx.Err(); err != nil {
		return db.DatabaseInfo{}, store.NewError(store.RetCInternalError, err.Error())
	}
	return s.db.GetInfo(), nil
}
