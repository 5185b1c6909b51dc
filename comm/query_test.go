package comm

import (
	"encoding/binary"
	"net"
	"testing"
	"time"
)

// newTestServerComm wires n in-process net.Pipe endpoints directly into a
// Server-role Communicator, skipping the handshake so the query channel's
// arm/dispatch behavior can be exercised without a real listener.
func newTestServerComm(t *testing.T, n int) (*Communicator, []net.Conn) {
	t.Helper()
	c := New(Config{})
	c.role = RoleServer
	c.remoteSize = n
	c.endpoints = make([]*endpoint, n)
	peers := make([]net.Conn, n)
	for i := 0; i < n; i++ {
		local, remote := net.Pipe()
		c.endpoints[i] = newEndpoint(i, local)
		peers[i] = remote
	}
	c.connected.Store(true)
	c.srv = newServerQueryChannel(c)
	c.srv.start()
	return c, peers
}

func announce(t *testing.T, peer net.Conn, rank int) {
	t.Helper()
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(rank))
	if _, err := peer.Write(b[:]); err != nil {
		t.Fatalf("announce(rank=%d): %v", rank, err)
	}
}

func TestQueryChannelAnyResolvesArmedAnnouncement(t *testing.T) {
	c, peers := newTestServerComm(t, 2)
	defer c.srv.stop()
	defer peers[0].Close()
	defer peers[1].Close()

	announce(t, peers[1], 1)

	done := make(chan int, 1)
	go func() { done <- c.getSenderRank(AnySender) }()

	select {
	case rank := <-done:
		if rank != 1 {
			t.Fatalf("getSenderRank(AnySender) = %d, want 1", rank)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("getSenderRank(AnySender) did not resolve")
	}
}

func TestQueryChannelStopUnblocksWaiters(t *testing.T) {
	c, peers := newTestServerComm(t, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { recover() }() // getSenderRank panics once closing and nothing pending
		c.getSenderRank(AnySender)
	}()

	time.Sleep(20 * time.Millisecond) // let the goroutine reach cond.Wait()
	c.srv.stop()                      // marks closing and broadcasts without joining readers

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop() did not unblock a waiting getSenderRank")
	}

	peers[0].Close() // unblock the still-outstanding announcement reader
	c.srv.join()
}
