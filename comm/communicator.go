package comm

// Communicator façade (C6): unifies the frame codec, connection table,
// handshake, query channel, and dispatcher behind a typed send/receive API,
// and enforces the role invariants from §3.

import (
	"fmt"
	"io"

	"github.com/coupling-rt/commsock/cmn/cos"
	"github.com/coupling-rt/commsock/cmn/nlog"
)

func (c *Communicator) requireConnected(op string) {
	if !c.connected.Load() {
		panic(op + ": not connected")
	}
}

// withSend serializes one user-level send to `rank`: the client-side query
// announcement (§4.4 "Client-side emission") immediately followed by the
// typed payload, both under the same per-endpoint write lock so a
// concurrent Send to the same rank cannot interleave its announcement
// between this one's prefix and payload.
func (c *Communicator) withSend(op string, rank int, payload func(w io.Writer) error) error {
	c.requireConnected(op)
	c.checkRank(rank)
	ep := c.endpoints[rank]

	ep.wmu.Lock()
	defer ep.wmu.Unlock()

	cw := &countWriter{Writer: ep.conn}
	if c.role == RoleClient && c.selfRank != AnySender {
		if err := writeInt(cw, int32(c.selfRank)); err != nil {
			return newErr(ErrTransport, op, fmt.Errorf("send query announcement: %w", err))
		}
	}
	if err := payload(cw); err != nil {
		return newErr(ErrTransport, op, err)
	}
	ep.bytesSent.Add(cw.n)
	if c.cfg.Stats != nil {
		c.cfg.Stats.AddBytesSent(rank, cw.n)
	}
	return nil
}

// receiveOn resolves desiredRank via the dispatcher, runs `body` against the
// resolved endpoint's connection, and — on the server — re-arms that
// endpoint's announcement read before returning (§4.4 Consumed -> Armed).
func (c *Communicator) receiveOn(op string, desiredRank int, body func(r io.Reader) error) (int, error) {
	c.requireConnected(op)
	rank := c.getSenderRank(desiredRank)
	c.checkRank(rank)
	ep := c.endpoints[rank]

	cr := &countReader{Reader: ep.conn}
	err := body(cr)
	ep.bytesRecv.Add(cr.n)
	if c.cfg.Stats != nil {
		c.cfg.Stats.AddBytesRecv(rank, cr.n)
	}
	if c.role == RoleServer {
		c.srv.reArm(rank)
	}
	if err != nil {
		return rank, newErr(ErrTransport, op, err)
	}
	return rank, nil
}

func (c *Communicator) SendInt(v int32, rank int) error {
	return c.withSend("SendInt", rank, func(w io.Writer) error { return writeInt(w, v) })
}

func (c *Communicator) SendDouble(v float64, rank int) error {
	return c.withSend("SendDouble", rank, func(w io.Writer) error { return writeDouble(w, v) })
}

func (c *Communicator) SendBool(v bool, rank int) error {
	return c.withSend("SendBool", rank, func(w io.Writer) error { return writeBool(w, v) })
}

func (c *Communicator) SendInts(v []int32, rank int) error {
	return c.withSend("SendInts", rank, func(w io.Writer) error {
		if err := writeInts(w, v); err != nil {
			return err
		}
		if c.cfg.VerifyFrames {
			return writeChecksum(w, int32sToBytes(v))
		}
		return nil
	})
}

func (c *Communicator) SendDoubles(v []float64, rank int) error {
	return c.withSend("SendDoubles", rank, func(w io.Writer) error {
		if err := writeDoubles(w, v); err != nil {
			return err
		}
		if c.cfg.VerifyFrames {
			return writeChecksum(w, float64sToBytes(v))
		}
		return nil
	})
}

func (c *Communicator) SendString(v string, rank int) error {
	return c.withSend("SendString", rank, func(w io.Writer) error { return writeString(w, v) })
}

func (c *Communicator) ReceiveInt(desiredRank int) (int32, int, error) {
	var v int32
	rank, err := c.receiveOn("ReceiveInt", desiredRank, func(r io.Reader) (e error) {
		v, e = readInt(r)
		return
	})
	return v, rank, err
}

func (c *Communicator) ReceiveDouble(desiredRank int) (float64, int, error) {
	var v float64
	rank, err := c.receiveOn("ReceiveDouble", desiredRank, func(r io.Reader) (e error) {
		v, e = readDouble(r)
		return
	})
	return v, rank, err
}

func (c *Communicator) ReceiveBool(desiredRank int) (bool, int, error) {
	var v bool
	rank, err := c.receiveOn("ReceiveBool", desiredRank, func(r io.Reader) (e error) {
		v, e = readBool(r)
		return
	})
	return v, rank, err
}

func (c *Communicator) ReceiveInts(out []int32, desiredRank int) (int, error) {
	rank, err := c.receiveOn("ReceiveInts", desiredRank, func(r io.Reader) error {
		if err := readInts(r, out); err != nil {
			return err
		}
		if c.cfg.VerifyFrames {
			return verifyChecksum(r, int32sToBytes(out))
		}
		return nil
	})
	return rank, err
}

func (c *Communicator) ReceiveDoubles(out []float64, desiredRank int) (int, error) {
	rank, err := c.receiveOn("ReceiveDoubles", desiredRank, func(r io.Reader) error {
		if err := readDoubles(r, out); err != nil {
			return err
		}
		if c.cfg.VerifyFrames {
			return verifyChecksum(r, float64sToBytes(out))
		}
		return nil
	})
	return rank, err
}

func (c *Communicator) ReceiveString(desiredRank int) (string, int, error) {
	var v string
	rank, err := c.receiveOn("ReceiveString", desiredRank, func(r io.Reader) (e error) {
		v, e = readString(r)
		return
	})
	return v, rank, err
}

// CloseConnection is idempotent (§4.1, §7): marks the query channel closing,
// shuts every endpoint down both ways (which unblocks its announcement
// reader), then joins those reader goroutines.
func (c *Communicator) CloseConnection() {
	nlogTracef("CloseConnection", "")
	if !c.connected.CAS(true, false) {
		return // already closed
	}

	if c.srv != nil {
		c.srv.stop()
	}

	var errs cos.Errs
	for _, ep := range c.endpoints {
		if ep == nil {
			continue
		}
		ep.shutdownBoth()
		if err := ep.close(); err != nil {
			errs.Add(err)
		}
	}

	if c.srv != nil {
		c.srv.join()
	}
	if err := errs.JoinErr(); err != nil {
		nlog.Warningf("CloseConnection: %v", err)
	}
}
