package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/ValentinKolb/dLock/rpc/serializer"
	"github.com/ValentinKolb/dLock/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends a request and waits for the response.
// Failures are always reported as *store.Error: errors of the remote store keep
// their return code, failures of the transport or the encoding are internal errors.
func (a *rpcClientAdapter) invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("rpc: failed to serialize %s request: %v", req.MsgType, err))
	}

	respBytes, err := a.transport.Send(ctx, a.shardId, reqBytes)
	if err != nil {
		Logger.Debugf("rpc: %s request to shard %d failed: %v", req.MsgType, a.shardId, err)
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("rpc: %v", err))
	}

	resp := &common.Message{}
	if err = a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("rpc: failed to deserialize response: %v", err))
	}

	if err := resp.ResponseError(); err != nil {
		return nil, err
	}

	if resp.MsgType != req.MsgType {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("rpc: unexpected message type %s, expected %s", resp.MsgType, req.MsgType))
	}
	return resp, nil
}
