package base

import (
	"github.com/ValentinKolb/dLock/rpc/common"
	"net"
	"time"
)

// applySocketOptions applies the configured socket and tcp options to conn.
// Options that do not apply to the kind of connection are ignored.
func applySocketOptions(conn net.Conn, socket common.SocketConf, tcp common.TCPConf) error {
	type bufferedConn interface {
		SetReadBuffer(bytes int) error
		SetWriteBuffer(bytes int) error
	}

	if bc, ok := conn.(bufferedConn); ok {
		if socket.WriteBufferSize > 0 {
			if err := bc.SetWriteBuffer(socket.WriteBufferSize); err != nil {
				return err
			}
		}
		if socket.ReadBufferSize > 0 {
			if err := bc.SetReadBuffer(socket.ReadBufferSize); err != nil {
				return err
			}
		}
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	// Disable Nagle's algorithm if configured
	if err := tcpConn.SetNoDelay(tcp.TCPNoDelay); err != nil {
		return err
	}

	if tcp.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(tcp.TCPKeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	if tcp.TCPLingerSec >= 0 {
		if err := tcpConn.SetLinger(tcp.TCPLingerSec); err != nil {
			return err
		}
	}
	return nil
}
