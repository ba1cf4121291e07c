// Package server implements the RPC server of the store. It owns the shards of one
// node and routes every request to the store of its shard.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a store.IStore.
//
//   - NewIStoreServerAdapter: Factory function creating an adapter that translates
//     RPC requests to store.IStore method calls. Store errors are sent back with
//     their return code.
//
//   - RPCServer: The server created by NewRPCServer with the specified transport and
//     serializer. Serve blocks until its context is done, Close releases the shards.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	    Shards: []common.ServerShard{
//	        {ShardID: 100, Type: common.ShardTypeLocalIStore},
//	        {ShardID: 200, Type: common.ShardTypeSQLiteIStore},
//	    },
//	    DataDir:       "/var/lib/dlock",
//	    TimeoutSecond: 5,
//	    LogLevel:      "info",
//	    Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPDefaultServerTransport(), serializer.NewBinarySerializer())
//	defer s.Close()
//
//	if err := s.Serve(ctx); err != nil {
//	    log.Fatalf("Server error: %v", err)
//	}
//
// The server supports three types of shards, which can be mixed within a single server:
//
//   - ShardTypeLocalIStore: An in memory store, suitable for single-node deployments
//     or development environments.
//
//   - ShardTypeSQLiteIStore: A store persisted in DataDir/shard-<id>.db. Lock records
//     survive a restart of the node.
//
//   - ShardTypeRemoteIStore: A distributed store implementation using Raft consensus,
//     providing strong consistency across multiple nodes. When using this type,
//     RAFT configuration (RTTMillisecond, SnapshotEntries, CompactionOverhead,
//     DataDir, ReplicaID, and ClusterMembers) must be properly configured.
//
// Thread Safety:
//
//	The server can handle concurrent requests across multiple connections.
//	Serve should be called only once.
package server
