package base

import (
	"context"
	"fmt"
	"net"
)

// NetConnector dials and listens on one network of package net ("tcp", "unix", ...).
// It implements both IClientConnector and IServerConnector.
type NetConnector struct {
	network string
	dialer  net.Dialer
	// prepare runs before Listen, e.g. to remove a stale socket file
	prepare func(endpoint string) error
}

// NewNetConnector creates a connector for network. prepare may be nil.
func NewNetConnector(network string, prepare func(endpoint string) error) *NetConnector {
	return &NetConnector{network: network, prepare: prepare}
}

func (c *NetConnector) GetName() string {
	return c.network
}

func (c *NetConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	return c.dialer.DialContext(ctx, c.network, endpoint)
}

func (c *NetConnector) Listen(endpoint string) (net.Listener, error) {
	if c.prepare != nil {
		if err := c.prepare(endpoint); err != nil {
			return nil, err
		}
	}
	listener, err := net.Listen(c.network, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s %s: %w", c.network, endpoint, err)
	}
	return listener, nil
}
