// Package common provides the data structures shared by the rpc client and server:
// the message protocol, the configuration structs and the logger setup.
//
// Key Components:
//
//   - Message: The single structure used for all requests and responses. Each
//     store.IStore operation has its own MessageType and factory function. Failed
//     operations carry the store.RetCode in Code so the client can rebuild the
//     exact *store.Error (a failed condition stays a failed condition on the wire).
//
//   - Document Codec: Scan responses carry their documents in Meta, encoded by
//     EncodeDocuments.
//
//   - ServerConfig / ClientConfig: Configuration for server nodes (shards, RAFT
//     parameters, transport) and clients (endpoints, timeouts, retries). The server
//     config converts to the Dragonboat configuration structs.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
