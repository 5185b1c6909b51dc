package comm

// Handshake (C3): establishes rank assignments and group size between the
// server and N clients, and doubles as rank-to-socket registration so the
// server can address any client by user-level rank directly (§4.3).

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/coupling-rt/commsock/cmn/nlog"
)

// AcceptConnection binds a listening socket on cfg.Port (IPv4), accepts
// exactly remoteSize client sockets (remoteSize is discovered from the
// first client's handshake), and runs the handshake. localSize must be 1:
// only one process may ever hold the Server role (§3 invariant 1).
func (c *Communicator) AcceptConnection(acceptorName, requesterName string, localRank, localSize int) error {
	nlogTracef("AcceptConnection", "acceptor=%s requester=%s", acceptorName, requesterName)
	start := time.Now()
	if localSize != 1 {
		return newErr(ErrConfiguration, "AcceptConnection", fmt.Errorf("acceptor communicator size must be 1, got %d", localSize))
	}
	c.acceptorName, c.requesterName = acceptorName, requesterName
	c.localRank, c.localSize = localRank, localSize

	ln, err := net.Listen("tcp4", ":"+strconv.Itoa(c.cfg.Port))
	if err != nil {
		return newErr(ErrConfiguration, "AcceptConnection", fmt.Errorf("bind port %d: %w", c.cfg.Port, err))
	}
	defer ln.Close()

	first, err := ln.Accept()
	if err != nil {
		return newErr(ErrHandshake, "AcceptConnection", fmt.Errorf("accept first client: %w", err))
	}
	setNoDelay(first)

	remoteRank, remoteSize, err := readHandshakeHdr(first)
	if err != nil {
		first.Close()
		return newErr(ErrHandshake, "AcceptConnection", err)
	}
	if remoteSize <= 0 {
		first.Close()
		return newErr(ErrHandshake, "AcceptConnection", fmt.Errorf("requester communicator size must be > 0, got %d", remoteSize))
	}
	if remoteRank < 0 || remoteRank >= remoteSize {
		first.Close()
		return newErr(ErrHandshake, "AcceptConnection", fmt.Errorf("rank %d out of range [0,%d)", remoteRank, remoteSize))
	}

	c.remoteSize = remoteSize
	c.endpoints = make([]*endpoint, remoteSize)
	c.endpoints[remoteRank] = newEndpoint(remoteRank, first)
	if err := writeHandshakeHdr(first, int32(localRank), int32(localSize)); err != nil {
		return newErr(ErrHandshake, "AcceptConnection", err)
	}

	for i := 1; i < remoteSize; i++ {
		conn, err := ln.Accept()
		if err != nil {
			return newErr(ErrHandshake, "AcceptConnection", fmt.Errorf("accept client %d/%d: %w", i+1, remoteSize, err))
		}
		setNoDelay(conn)
		rr, rs, err := readHandshakeHdr(conn)
		if err != nil {
			conn.Close()
			return newErr(ErrHandshake, "AcceptConnection", err)
		}
		if rs != remoteSize {
			conn.Close()
			return newErr(ErrHandshake, "AcceptConnection",
				fmt.Errorf("remote communicator sizes are inconsistent: first=%d, rank %d reports %d", remoteSize, rr, rs))
		}
		if rr < 0 || rr >= remoteSize {
			conn.Close()
			return newErr(ErrHandshake, "AcceptConnection", fmt.Errorf("rank %d out of range [0,%d)", rr, remoteSize))
		}
		if c.endpoints[rr] != nil {
			conn.Close()
			return newErr(ErrHandshake, "AcceptConnection", fmt.Errorf("duplicate request to connect by same rank (%d)", rr))
		}
		c.endpoints[rr] = newEndpoint(rr, conn)
		if err := writeHandshakeHdr(conn, int32(localRank), int32(localSize)); err != nil {
			return newErr(ErrHandshake, "AcceptConnection", err)
		}
	}

	c.role = RoleServer
	c.connected.Store(true)
	c.srv = newServerQueryChannel(c)
	c.srv.start()
	if c.cfg.Stats != nil {
		c.cfg.Stats.SetEndpointsConnected(remoteSize)
		c.cfg.Stats.ObserveHandshakeSeconds(time.Since(start).Seconds())
	}
	nlog.Infof("AcceptConnection: accepted %d requester(s) as %q <- %q", remoteSize, acceptorName, requesterName)
	return nil
}

// RequestConnection repeatedly attempts to connect to the acceptor endpoint
// with backoff (§4.3 step 1; §9's "reasonable modernization" adds a dial
// cap on top of the original's unbounded loop). It returns as soon as this
// process's own handshake completes — it does NOT wait for sibling
// requesters to connect (§9 "Handshake ambiguity"): a coupling-scheme driver
// must not assume "all clients connected" on return from RequestConnection.
func (c *Communicator) RequestConnection(acceptorName, requesterName string, localRank, localSize int) error {
	nlogTracef("RequestConnection", "acceptor=%s requester=%s rank=%d size=%d", acceptorName, requesterName, localRank, localSize)
	start := time.Now()
	c.acceptorName, c.requesterName = acceptorName, requesterName
	c.localRank, c.localSize = localRank, localSize

	conn, err := c.dial()
	if err != nil {
		return newErr(ErrHandshake, "RequestConnection", err)
	}
	setNoDelay(conn)

	if err := writeHandshakeHdr(conn, int32(localRank), int32(localSize)); err != nil {
		conn.Close()
		return newErr(ErrHandshake, "RequestConnection", err)
	}

	// Arms the query channel: from here on, every Send prefixes its own
	// rank (§4.3 step 3, §4.4 "Client-side emission").
	c.selfRank = localRank

	remoteRank, remoteSize, err := readHandshakeHdr(conn)
	if err != nil {
		conn.Close()
		return newErr(ErrHandshake, "RequestConnection", err)
	}
	if remoteRank != 0 {
		conn.Close()
		return newErr(ErrHandshake, "RequestConnection", fmt.Errorf("acceptor base rank must be 0, got %d", remoteRank))
	}
	if remoteSize != 1 {
		conn.Close()
		return newErr(ErrHandshake, "RequestConnection", fmt.Errorf("acceptor communicator size must be 1, got %d", remoteSize))
	}

	c.remoteSize = remoteSize
	c.endpoints = []*endpoint{newEndpoint(0, conn)}
	c.role = RoleClient
	c.connected.Store(true)
	if c.cfg.Stats != nil {
		c.cfg.Stats.SetEndpointsConnected(1)
		c.cfg.Stats.ObserveHandshakeSeconds(time.Since(start).Seconds())
	}
	nlog.Infof("RequestConnection: connected to acceptor %q as requester %q, rank=%d", acceptorName, requesterName, localRank)
	return nil
}

func (c *Communicator) dial() (net.Conn, error) {
	addr := "127.0.0.1:" + strconv.Itoa(c.cfg.Port)
	backoff := c.cfg.DialBackoff
	for attempt := 1; ; attempt++ {
		conn, err := net.Dial("tcp4", addr)
		if err == nil {
			return conn, nil
		}
		if c.cfg.MaxDialAttempts > 0 && attempt >= c.cfg.MaxDialAttempts {
			return nil, fmt.Errorf("dial %s: giving up after %d attempts: %w", addr, attempt, err)
		}
		time.Sleep(backoff)
		if backoff < c.cfg.MaxDialBackoff {
			backoff *= 2
			if backoff > c.cfg.MaxDialBackoff {
				backoff = c.cfg.MaxDialBackoff
			}
		}
	}
}

func writeHandshakeHdr(conn net.Conn, rank, size int32) error {
	if err := writeInt(conn, rank); err != nil {
		return fmt.Errorf("write rank: %w", err)
	}
	if err := writeInt(conn, size); err != nil {
		return fmt.Errorf("write size: %w", err)
	}
	return nil
}

func readHandshakeHdr(conn net.Conn) (rank, size int, err error) {
	r, err := readInt(conn)
	if err != nil {
		return 0, 0, fmt.Errorf("read rank: %w", err)
	}
	s, err := readInt(conn)
	if err != nil {
		return 0, 0, fmt.Errorf("read size: %w", err)
	}
	return int(r), int(s), nil
}
