package server

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/rpc/common"
	"math"
)

func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(ctx context.Context, req *common.Message, s store.IStore) *common.Message {
	if s == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	switch req.MsgType {
	case common.MsgTGet:
		doc, ok, err := s.Get(ctx, req.Key)
		resp := common.NewResponse(req.MsgType, err)
		if ok {
			resp.Ok, resp.Value, resp.Version = true, doc.Value, doc.Version
		}
		return resp

	case common.MsgTPut:
		version, err := s.Put(ctx, req.Key, req.Value)
		resp := common.NewResponse(req.MsgType, err)
		resp.Version = version
		return resp

	case common.MsgTPutIf:
		version, err := s.PutIf(ctx, req.Key, req.Value, req.Version)
		resp := common.NewResponse(req.MsgType, err)
		resp.Version = version
		return resp

	case common.MsgTDelete:
		return common.NewResponse(req.MsgType, s.Delete(ctx, req.Key))

	case common.MsgTDeleteIf:
		return common.NewResponse(req.MsgType, s.DeleteIf(ctx, req.Key, req.Version))

	case common.MsgTScan:
		limit := req.Limit
		if limit > math.MaxInt32 {
			limit = math.MaxInt32
		}
		docs, err := s.Scan(ctx, req.Key, int(limit))
		resp := common.NewResponse(req.MsgType, err)
		if err == nil {
			resp.Meta = common.EncodeDocuments(docs)
		}
		return resp

	case common.MsgTDBInfo:
		info, err := s.GetDBInfo(ctx)
		if err != nil {
			return common.NewResponse(req.MsgType, err)
		}
		meta, err := json.Marshal(info)
		resp := common.NewResponse(req.MsgType, err)
		resp.Meta = meta
		return resp

	default:
		return common.NewResponse(req.MsgType, store.NewError(store.RetCInvalidOperation,
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType)))
	}
}
