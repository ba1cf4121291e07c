// Package unix runs the base stream transport over Unix domain sockets. Use it when the
// lock API and the store server share a host: it skips the TCP stack entirely.
//
// The endpoint is a socket path. A stale socket file left by a crashed server is removed
// before listening. The server read buffer defaults to 64 KB.
package unix
