// Package rpc makes a store.IStore available over the network, so that lock
// services on several machines can share one (optionally raft replicated) store.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: The RPC implementation of store.IStore.
//
//   - server: The server that hosts the shards and answers the client's requests.
package rpc
