// Package http carries store RPC messages over plain HTTP.
//
// Every request is a POST to /{shardId} with the serialized common.Message as body, the
// response body is the serialized reply. The client spreads requests round-robin over
// its endpoints and retries on connection errors and 5xx answers. It injects the W3C
// trace context, which the server extracts before calling the handler, so a span of a
// lock api request continues on the store server.
//
// The server answers 400 for a malformed shard id or a body above the frame limit and
// shuts down gracefully when the context passed to Listen ends.
//
// Use this transport when the store sits behind a load balancer or proxy. tcp and unix
// are faster for direct connections.
package http
