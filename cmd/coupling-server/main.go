// Package main runs the acceptor side of a coupling communicator: it binds
// the rendezvous port, accepts every requester, and then hands the connected
// Communicator to a pass-through loop that echoes every received string back
// to its sender, so the binary doubles as an integration fixture for the
// wire protocol.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coupling-rt/commsock/cmn/cos"
	"github.com/coupling-rt/commsock/cmn/nlog"
	"github.com/coupling-rt/commsock/comm"
	"github.com/coupling-rt/commsock/commstats"
	jsoniter "github.com/json-iterator/go"
)

var (
	port          int
	acceptorName  string
	requesterName string
	remoteSize    int
	logDir        string
	metricsAddr   string
	verifyFrames  bool
	printConfig   bool
)

func init() {
	nlog.InitFlags(flag.CommandLine)
	flag.IntVar(&port, "port", 51310, "TCP port to bind and accept requester connections on")
	flag.StringVar(&acceptorName, "acceptor", "server", "acceptor participant name (for logging/metrics only)")
	flag.StringVar(&requesterName, "requester", "client", "requester participant name (for logging/metrics only)")
	flag.IntVar(&remoteSize, "remote-size", 1, "expected number of requester ranks (reported by -print-config only; the actual count comes from the first requester's handshake)")
	flag.StringVar(&logDir, "log-dir", "", "directory for log files; empty logs to stderr")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flag.BoolVar(&verifyFrames, "verify-frames", false, "append and verify an xxhash64 checksum on every array frame")
	flag.BoolVar(&printConfig, "print-config", false, "dump the resolved configuration as JSON and exit")
}

func main() {
	flag.Parse()
	nlog.SetLogDirRole(logDir, "coupling-server")
	nlog.SetTitle("coupling-server")
	installSignalHandler()

	cfg := comm.Config{
		Port:         port,
		VerifyFrames: verifyFrames,
	}

	if printConfig {
		dumpConfig(cfg)
		return
	}

	var tracker *commstats.Tracker
	if metricsAddr != "" {
		tracker = commstats.NewTracker("server", acceptorName, requesterName)
		cfg.Stats = tracker
		go func() {
			if err := tracker.Serve(metricsAddr); err != nil {
				nlog.Warningf("metrics server exited: %v", err)
			}
		}()
	}

	c := comm.New(cfg)
	if err := c.AcceptConnection(acceptorName, requesterName, 0, 1); err != nil {
		cos.ExitLogf("AcceptConnection failed: %v", err)
	}
	nlog.Infof("accepted %d requester(s); echoing until closed", c.GetRemoteCommunicatorSize())

	runEchoLoop(c)

	c.CloseConnection()
	nlog.Flush(true)
}

// runEchoLoop receives one string from ANY_SENDER at a time and echoes it
// back to whichever rank sent it, so a requester driving the typed Send/
// Receive API against this server exercises the full round trip.
func runEchoLoop(c *comm.Communicator) {
	for {
		s, rank, err := c.ReceiveString(comm.AnySender)
		if err != nil {
			nlog.Infof("echo loop: receive ended: %v", err)
			return
		}
		if s == "__shutdown__" {
			nlog.Infof("echo loop: shutdown request from rank %d", rank)
			return
		}
		if err := c.SendString(s, rank); err != nil {
			nlog.Warningf("echo loop: send to rank %d failed: %v", rank, err)
			return
		}
	}
}

func dumpConfig(cfg comm.Config) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary
	b, err := json.MarshalIndent(struct {
		Port         int           `json:"port"`
		Acceptor     string        `json:"acceptor"`
		Requester    string        `json:"requester"`
		RemoteSize   int           `json:"remote_size"`
		VerifyFrames bool          `json:"verify_frames"`
		MetricsAddr  string        `json:"metrics_addr,omitempty"`
		DialBackoff  time.Duration `json:"dial_backoff"`
	}{
		Port:         cfg.Port,
		Acceptor:     acceptorName,
		Requester:    requesterName,
		RemoteSize:   remoteSize,
		VerifyFrames: cfg.VerifyFrames,
		MetricsAddr:  metricsAddr,
		DialBackoff:  cfg.DialBackoff,
	}, "", "  ")
	if err != nil {
		cos.ExitLogf("print-config: marshal failed: %v", err)
	}
	fmt.Println(string(b))
}

func installSignalHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		nlog.Flush(true)
		os.Exit(0)
	}()
}
