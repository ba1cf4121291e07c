package dstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4/logger"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the raft backed implementation of the store.IStore interface.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write proposes a Command via SyncPropose and waits until it is applied.
// It returns the raft result on success and a *store.Error otherwise.
func (s *storeImpl) write(parent context.Context, cmd internal.Command) (sm.Result, error) {
	for i := 0; i < retries; i++ {
		if err := parent.Err(); err != nil {
			return sm.Result{}, store.NewError(store.RetCInternalError, err.Error())
		}

		ctx, cancel := context.WithTimeout(parent, s.timeout)
		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return sm.Result{}, store.NewError(store.RetCInternalError, err.Error())
		}

		switch code := store.RetCode(res.Value); code {
		case store.RetCSuccess:
			return res, nil
		case store.RetCConditionFailed:
			return res, store.NewConditionFailedError(cmd.Key, cmd.ExpectedVersion, internal.DecodeVersion(res.Data))
		default:
			return res, store.NewError(code, string(res.Data))
		}
	}
	return sm.Result{}, store.NewError(store.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) by default to query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// If the read operation fails due to a system busy error, the function retries up to 5 times.
func read[R any](parent context.Context, r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		if err := parent.Err(); err != nil {
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		var res interface{}
		var err error

		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(parent, r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var storeErr *store.Error
			if errors.As(err, &storeErr) {
				return zero, storeErr
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(ctx context.Context, key string) (db.Document, bool, error) {
	res, err := read[internal.QueryResult](ctx, s, internal.Query{
		Type: internal.QueryTGet,
		Key:  key,
	}, false)
	if err != nil {
		return db.Document{}, false, err
	}
	return res.Doc, res.Ok, nil
}

func (s *storeImpl) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	res, err := s.write(ctx, internal.Command{
		Type:  internal.CommandTPut,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return 0, err
	}
	return internal.DecodeVersion(res.Data), nil
}

func (s *storeImpl) PutIf(ctx context.Context, key string, value []byte, expectedVersion uint64) (uint64, error) {
	res, err := s.write(ctx, internal.Command{
		Type:            internal.CommandTPutIf,
		Key:             key,
		ExpectedVersion: expectedVersion,
		Value:           value,
	})
	if err != nil {
		return 0, err
	}
	return internal.DecodeVersion(res.Data), nil
}

func (s *storeImpl) Delete(ctx context.Context, key string) error {
	_, err := s.write(ctx, internal.Command{
		Type: internal.CommandTDelete,
		Key:  key,
	})
	return err
}

func (s *storeImpl) DeleteIf(ctx context.Context, key string, expectedVersion uint64) error {
	_, err := s.write(ctx, internal.Command{
		Type:            internal.CommandTDeleteIf,
		Key:             key,
		ExpectedVersion: expectedVersion,
	})
	return err
}

func (s *storeImpl) Scan(ctx context.Context, prefix string, limit int) ([]db.Document, error) {
	return read[[]db.Document](ctx, s, internal.Query{
		Type:  internal.QueryTScan,
		Key:   prefix,
		Limit: limit,
	}, false)
}

func (s *storeImpl) GetDBInfo(ctx context.Context) (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		ctx,
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}
