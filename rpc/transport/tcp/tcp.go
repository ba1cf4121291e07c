package tcp

import (
	"github.com/ValentinKolb/dLock/rpc/transport"
	"github.com/ValentinKolb/dLock/rpc/transport/base"
)

const defaultBufferSize = 512 << 10

// NewTCPClientTransport creates a client transport that dials TCP endpoints ("host:port")
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(base.NewNetConnector("tcp", nil))
}

// NewTCPDefaultServerTransport creates a TCP server transport with a 512 KB read buffer
func NewTCPDefaultServerTransport() transport.IRPCServerTransport {
	return NewTCPServerTransport(defaultBufferSize)
}

// NewTCPServerTransport creates a TCP server transport with the given read buffer size
func NewTCPServerTransport(bufferSize int) transport.IRPCServerTransport {
	return base.NewBaseServerTransport(base.NewNetConnector("tcp", nil), bufferSize)
}
