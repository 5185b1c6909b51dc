package comm

// Query channel (C4): an asynchronous one-way stream of "I am about to
// send" announcements from each client to the server, so the server can
// service an ANY_SENDER receive (or an out-of-order targeted receive)
// without a blocking read stalling on an arbitrary, possibly-silent,
// endpoint (§4.4).
//
// Go-native HOW (§5, §9 "Async I/O abstraction"): rather than one reactor
// thread driving callback-based async reads, each endpoint's outstanding
// announcement read is a single blocking goroutine — cheap in Go, and it
// collapses the state machine in §4.4 (Armed/Announced/Consumed) down to
// "is there a goroutine reading this endpoint's 4-byte prefix right now."
// golang.org/x/sync/errgroup supervises the pool so CloseConnection can join
// every announcement-reader goroutine with one Wait() (after shutting down
// the endpoints those readers are blocked on). An unexpected read error
// (anything other than the expected close-induced one) is logged as a
// warning by the reader itself; readers always return nil to the group.

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/coupling-rt/commsock/cmn/atomic"
	"github.com/coupling-rt/commsock/cmn/debug"
	"github.com/coupling-rt/commsock/cmn/nlog"
	"golang.org/x/sync/errgroup"
)

type serverQueryChannel struct {
	c *Communicator

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[int]struct{}

	g       errgroup.Group
	closing atomic.Bool
}

func newServerQueryChannel(c *Communicator) *serverQueryChannel {
	s := &serverQueryChannel{c: c, pending: make(map[int]struct{}, len(c.endpoints))}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *serverQueryChannel) start() {
	for rank := range s.c.endpoints {
		s.arm(rank)
	}
}

// arm launches the one-shot announcement reader for rank. Exactly one is
// outstanding per endpoint at a time (§3 invariant 3): start() arms every
// endpoint once, and the only other caller is reArm, invoked after a
// user-level receive has consumed that endpoint's pending announcement.
func (s *serverQueryChannel) arm(rank int) {
	ep := s.c.endpoints[rank]
	s.g.Go(func() error {
		var buf [4]byte
		_, err := io.ReadFull(ep.conn, buf[:])
		if err != nil {
			if s.closing.Load() || isExpectedShutdownErr(err) {
				nlog.Infof("query channel: endpoint %d quiescent: %v", rank, err)
				return nil
			}
			nlog.Warningf("query channel: endpoint %d: unexpected read error: %v", rank, err)
			return nil
		}
		got := int32(binary.LittleEndian.Uint32(buf[:]))
		debug.Assertf(int(got) == rank, "announcement on endpoint %d carried rank %d", rank, got)
		if int(got) != rank {
			nlog.Errorf("query channel: endpoint %d: desynchronized stream, announcement carried rank %d", rank, got)
			return nil
		}

		s.mu.Lock()
		s.pending[rank] = struct{}{}
		n := len(s.pending)
		s.cond.Broadcast()
		s.mu.Unlock()
		if s.c.cfg.Stats != nil {
			s.c.cfg.Stats.SetPendingQueries(n)
		}
		return nil
	})
}

// reArm is called by the dispatcher's caller (Receive) immediately after
// synchronously reading a payload off `rank`, transitioning that endpoint
// back from Consumed to Armed (§4.4).
func (s *serverQueryChannel) reArm(rank int) { s.arm(rank) }

// stop marks the channel closing and wakes any dispatcher goroutine blocked
// in getSenderRank on an empty pending set. It does not join the
// announcement-reader goroutines: those are blocked on a live io.ReadFull
// against their endpoint's connection and only return once that connection
// is shut down. Call join after the caller (CloseConnection) has shut down
// every endpoint.
func (s *serverQueryChannel) stop() {
	s.closing.Store(true)
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// join waits for every outstanding announcement-reader goroutine to return.
// Must be called after every endpoint's connection is shut down, or it
// blocks forever on readers still parked in io.ReadFull.
func (s *serverQueryChannel) join() {
	if err := s.g.Wait(); err != nil {
		nlog.Warningf("query channel: reader group reported: %v", err)
	}
}

func isExpectedShutdownErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
