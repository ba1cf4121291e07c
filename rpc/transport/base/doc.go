// Package base holds the stream transport shared by the tcp and unix packages. A concrete
// transport only supplies an IClientConnector (dial) and an IServerConnector (listen), which
// NetConnector implements for any network of package net. Framing and request routing live here.
//
// Frames:
//
//	Every frame starts with a fixed header carrying the shard id, a request id and the
//	payload length. The client correlates responses by request id, so many requests can be
//	in flight on one connection. Header and payload are written together with net.Buffers.
//
// Client:
//
//	The client opens ConnectionsPerEndpoint connections to every endpoint and picks one round
//	robin per request. A broken connection is redialed and the request gets up to
//	RetryCount attempts. Send returns as soon as its context is done, a late response is dropped.
//
// Server:
//
//	The server reads frames in one goroutine per connection and hands them to a bounded set
//	of workers (WorkersPerConn). Read buffers come from a sync.Pool. Each request gets a
//	context derived from the one passed to Listen, bounded by TimeoutSecond. Canceling the
//	Listen context closes every connection.
package base
