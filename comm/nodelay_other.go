//go:build !linux

package comm

import "net"

// setNoDelay falls back to the stdlib convenience method on platforms where
// golang.org/x/sys/unix's socket-option constants aren't the right ones
// (TCP_NODELAY's numeric value and IPPROTO_TCP differ across BSD/Darwin).
func setNoDelay(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}
