package server

import (
	"context"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle executes a request on the store and returns the response.
	// Failures are reported inside the response, never as a Go error.
	Handle(ctx context.Context, req *common.Message, store store.IStore) (resp *common.Message)
}
