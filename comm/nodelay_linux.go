//go:build linux

package comm

// TCP_NODELAY via the raw file descriptor: the protocol is a long run of
// small fixed-width frames (a handshake int, a query-channel rank prefix, a
// scalar payload) where Nagle's algorithm would otherwise coalesce writes
// and add tens of milliseconds of latency per round trip.

import (
	"net"

	"github.com/coupling-rt/commsock/cmn/nlog"
	"golang.org/x/sys/unix"
)

func setNoDelay(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		nlog.Warningf("setNoDelay: SyscallConn: %v", err)
		return
	}
	cerr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			nlog.Warningf("setNoDelay: setsockopt: %v", err)
		}
	})
	if cerr != nil {
		nlog.Warningf("setNoDelay: raw control: %v", cerr)
	}
}
