package client

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/ValentinKolb/dLock/rpc/serializer"
	"github.com/ValentinKolb/dLock/rpc/transport"
)

// RPCStore is a store.IStore whose documents live on a remote server.
// Close releases the connections of the transport.
type RPCStore interface {
	store.IStore
	Close() error
}

// NewRPCStore creates a new RPC store
// The function takes a shard ID, a client config, a transport and a serializer as parameters.
// The transport is connected before the store is returned.
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (RPCStore, error) {

	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &rpcStore{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcStore struct {
	rpcClientAdapter
}

var _ store.IStore = (*rpcStore)(nil)

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (s *rpcStore) Get(ctx context.Context, key string) (doc db.Document, loaded bool, err error) {
	resp, err := s.invoke(ctx, common.NewGetRequest(key))
	if err != nil || !resp.Ok {
		return db.Document{}, false, err
	}
	return db.Document{Key: key, Value: resp.Value, Version: resp.Version}, true, nil
}

func (s *rpcStore) Put(ctx context.Context, key string, value []byte) (version uint64, err error) {
	resp, err := s.invoke(ctx, common.NewPutRequest(key, value))
	if err != nil {
		return 0, err
	}
	return resp.Version, nil
}

func (s *rpcStore) PutIf(ctx context.Context, key string, value []byte, expectedVersion uint64) (version uint64, err error) {
	resp, err := s.invoke(ctx, common.NewPutIfRequest(key, value, expectedVersion))
	if err != nil {
		return 0, err
	}
	return resp.Version, nil
}

func (s *rpcStore) Delete(ctx context.Context, key string) (err error) {
	_, err = s.invoke(ctx, common.NewDeleteRequest(key))
	return err
}

func (s *rpcStore) DeleteIf(ctx context.Context, key string, expectedVersion uint64) (err error) {
	_, err = s.invoke(ctx, common.NewDeleteIfRequest(key, expectedVersion))
	return err
}

func (s *rpcStore) Scan(ctx context.Context, prefix string, limit int) (docs []db.Document, err error) {
	resp, err := s.invoke(ctx, common.NewScanRequest(prefix, limit))
	if err != nil {
		return nil, err
	}
	docs, err = common.DecodeDocuments(resp.Meta)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid scan response: %v", err))
	}
	return docs, nil
}

func (s *rpcStore) GetDBInfo(ctx context.Context) (info db.DatabaseInfo, err error) {
	resp, err := s.invoke(ctx, common.NewDBInfoRequest())
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return db.DatabaseInfo{}, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid db info response: %v", err))
	}
	return info, nil
}

// Close closes the underlying transport
func (s *rpcStore) Close() error {
	return s.transport.Close()
}
