// Package client implements the RPC client of the store. NewRPCStore returns a
// store.IStore that forwards every operation to a shard on a remote server.
//
// Errors keep their meaning across the wire: a failed conditional write on the
// server is a RetCConditionFailed *store.Error on the client too, so code written
// against a local store (like the lock manager) works unchanged on a remote one.
// Transport failures and timeouts are reported as RetCInternalError.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	    TimeoutSecond: 5,
//	    Transport: common.ClientTransportConfig{
//	        Endpoints:              []string{"localhost:8080"},
//	        RetryCount:             3,
//	        ConnectionsPerEndpoint: 1,
//	    },
//	}
//
//	s, err := client.NewRPCStore(100, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	    // no endpoint reachable
//	}
//	defer s.Close()
//
//	version, err := s.PutIf(ctx, "mykey", []byte("myvalue"), db.VersionAbsent)
//	doc, exists, err := s.Get(ctx, "mykey")
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing ConnectionsPerEndpoint
//     can improve throughput by allowing parallel requests.
//
//   - The choice of serializer significantly affects performance. The binary serializer
//     provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	The store is safe for concurrent use from multiple goroutines.
package client
