package unix

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dLock/rpc/transport"
	"github.com/ValentinKolb/dLock/rpc/transport/base"
)

const defaultBufferSize = 64 << 10

// removeStaleSocket deletes a socket file left behind by a server that did not shut down cleanly
func removeStaleSocket(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove existing socket %s: %w", path, err)
	}
	return nil
}

// NewUnixClientTransport creates a client transport that dials socket paths
func NewUnixClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(base.NewNetConnector("unix", nil))
}

// NewUnixDefaultServerTransport creates a Unix socket server transport with a 64 KB read buffer
func NewUnixDefaultServerTransport() transport.IRPCServerTransport {
	return NewUnixServerTransport(defaultBufferSize)
}

// NewUnixServerTransport creates a Unix socket server transport with the given read buffer size
func NewUnixServerTransport(bufferSize int) transport.IRPCServerTransport {
	return base.NewBaseServerTransport(base.NewNetConnector("unix", removeStaleSocket), bufferSize)
}
