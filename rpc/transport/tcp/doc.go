// Package tcp runs the base stream transport over plain TCP connections. NoDelay, keep
// alive and linger are taken from common.TCPConf on both sides.
//
// The server read buffer defaults to 512 KB. NewTCPServerTransport takes another size.
package tcp
