// Package comm implements the socket-based communicator: a bidirectional,
// rank-addressed messaging channel between a single acceptor process and one
// or more requester processes of a partitioned coupling run. See the
// package's companion design notes for the wire protocol, handshake, and the
// asynchronous query channel that lets the acceptor service an ANY_SENDER
// receive without polling.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package comm

import (
	"fmt"
	"time"

	"github.com/coupling-rt/commsock/cmn/atomic"
)

// AnySender is the sentinel rank meaning "whichever remote rank has a
// payload waiting." Only valid as the desiredRank argument to Receive on a
// Server-role Communicator.
const AnySender = -1

type Role int

const (
	RoleUnbound Role = iota
	RoleServer
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "unbound"
	}
}

// Config configures a Communicator. Port, role cardinality, and dial backoff
// are the only configuration surface the protocol needs (§6 of the design:
// a single TCP port, role, participant names for logging, and local
// rank/size).
type Config struct {
	Port int

	// DialBackoff is the wait between connection attempts while a client
	// spins up before the acceptor has bound its listener. The protocol
	// mandates 100ms (§4.3); DialBackoff defaults to that. The wait doubles
	// after each failed attempt up to MaxDialBackoff, which defaults to
	// DialBackoff, so with both left at zero the wait stays fixed at 100ms.
	DialBackoff    time.Duration
	MaxDialBackoff time.Duration

	// MaxDialAttempts caps RequestConnection's retry loop; 0 means retry
	// forever, matching the original implementation.
	MaxDialAttempts int

	// VerifyFrames appends an xxhash64 checksum to every int-array and
	// double-array payload frame and validates it on receipt, to catch a
	// desynchronized sender/receiver contract early instead of silently
	// misinterpreting bytes. Scalar and string frames carry no checksum. Off
	// by default to keep the wire format exactly as specified.
	VerifyFrames bool

	// Stats, if non-nil, is fed live counters as the communicator runs (see
	// package commstats for a Prometheus-backed implementation). Optional:
	// a nil Stats means the hooks are skipped entirely.
	Stats StatsHook
}

// StatsHook lets an external metrics tracker (package commstats) observe a
// Communicator without comm importing prometheus itself.
type StatsHook interface {
	SetEndpointsConnected(n int)
	SetPendingQueries(n int)
	AddBytesSent(rank int, n int64)
	AddBytesRecv(rank int, n int64)
	ObserveHandshakeSeconds(seconds float64)
}

func (c *Config) setDefaults() {
	if c.DialBackoff <= 0 {
		c.DialBackoff = 100 * time.Millisecond
	}
	if c.MaxDialBackoff <= 0 {
		c.MaxDialBackoff = c.DialBackoff
	}
}

// Communicator is the façade described by the design: construct it Unbound,
// promote it via AcceptConnection (exactly one process, Server role) or
// RequestConnection (any of N processes, Client role), then use the typed
// Send/Receive operations until CloseConnection.
type Communicator struct {
	cfg Config

	role       Role
	localRank  int
	localSize  int
	remoteSize int

	acceptorName, requesterName string

	endpoints []*endpoint // index: remote rank

	connected atomic.Bool

	// client-only: own rank once armed, AnySender (-1) before handshake
	// completes — mirrors the original's "_processRank != -1" flag that
	// gates query emission.
	selfRank int

	srv *serverQueryChannel // non-nil only in RoleServer
}

// New constructs an Unbound Communicator. Call AcceptConnection or
// RequestConnection to promote it before using Send/Receive.
func New(cfg Config) *Communicator {
	cfg.setDefaults()
	return &Communicator{cfg: cfg, role: RoleUnbound, selfRank: AnySender}
}

func (c *Communicator) IsConnected() bool { return c.connected.Load() }

func (c *Communicator) GetRemoteCommunicatorSize() int {
	if !c.IsConnected() {
		panic("GetRemoteCommunicatorSize: not connected")
	}
	return c.remoteSize
}

func (c *Communicator) Role() Role { return c.role }

// StartSendPackage, FinishSendPackage, StartReceivePackage, and
// FinishReceivePackage are observer hooks kept for API compatibility with
// the abstract communication interface that coupling-scheme code is written
// against; none of them touch wire state.
func (c *Communicator) StartSendPackage(rankReceiver int) {
	nlogTracef("StartSendPackage", "rankReceiver=%d", rankReceiver)
}

func (c *Communicator) FinishSendPackage() {
	nlogTracef("FinishSendPackage", "")
}

func (c *Communicator) StartReceivePackage(rankSender int) int {
	nlogTracef("StartReceivePackage", "rankSender=%d", rankSender)
	return rankSender
}

func (c *Communicator) FinishReceivePackage() {
	nlogTracef("FinishReceivePackage", "")
}

func (c *Communicator) checkRank(rank int) {
	if rank < 0 || rank >= len(c.endpoints) {
		panic(fmt.Sprintf("rank %d out of range [0,%d)", rank, len(c.endpoints)))
	}
}
