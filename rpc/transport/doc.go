// Package transport defines how serialized store messages travel between the rpc client
// and the rpc server. Implementations live in the http, tcp and unix subpackages, tcp and
// unix share the framing and connection handling of base.
//
// A server transport calls its ServerHandleFunc once per request with the shard id and
// the raw request, and sends back whatever bytes the handler returns. A client transport
// sends raw requests to a shard and returns the raw response. Neither side looks into the
// payload, serialization is the job of the serializer package.
package transport
