// Package main runs one requester rank of a coupling communicator: it dials
// the acceptor, then sends a sequence of strings read from stdin (or, with
// -ping, a fixed probe payload) and prints back whatever the acceptor
// echoes, exercising the requester side of the typed Send/Receive API.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"bufio"
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
	port            int
	acceptorName    string
	requesterName   string
	rank            int
	localSize       int
	logDir          string
	metricsAddr     string
	verifyFrames    bool
	ping            bool
	maxDialAttempts int
	printConfig     bool
)

func init() {
	nlog.InitFlags(flag.CommandLine)
	flag.IntVar(&port, "port", 51310, "TCP port the acceptor is listening on")
	flag.StringVar(&acceptorName, "acceptor", "server", "acceptor participant name (for logging/metrics only)")
	flag.StringVar(&requesterName, "requester", "client", "requester participant name (for logging/metrics only)")
	flag.IntVar(&rank, "rank", 0, "this process's rank within the requester communicator")
	flag.IntVar(&localSize, "size", 1, "number of ranks in this requester communicator")
	flag.StringVar(&logDir, "log-dir", "", "directory for log files; empty logs to stderr")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flag.BoolVar(&verifyFrames, "verify-frames", false, "append and verify an xxhash64 checksum on every array frame")
	flag.BoolVar(&ping, "ping", false, "send a single fixed probe payload instead of reading stdin")
	flag.IntVar(&maxDialAttempts, "max-dial-attempts", 0, "cap RequestConnection's retry loop; 0 retries forever")
	flag.BoolVar(&printConfig, "print-config", false, "dump the resolved configuration as JSON and exit")
}

func main() {
	flag.Parse()
	nlog.SetLogDirRole(logDir, "coupling-client")
	nlog.SetTitle("coupling-client")
	installSignalHandler()

	cfg := comm.Config{
		Port:            port,
		VerifyFrames:    verifyFrames,
		MaxDialAttempts: maxDialAttempts,
	}

	if printConfig {
		dumpConfig(cfg)
		return
	}

	var tracker *commstats.Tracker
	if metricsAddr != "" {
		tracker = commstats.NewTracker("client", acceptorName, requesterName)
		cfg.Stats = tracker
		go func() {
			if err := tracker.Serve(metricsAddr); err != nil {
				nlog.Warningf("metrics server exited: %v", err)
			}
		}()
	}

	c := comm.New(cfg)
	if err := c.RequestConnection(acceptorName, requesterName, rank, localSize); err != nil {
		cos.ExitLogf("RequestConnection failed: %v", err)
	}
	nlog.Infof("connected to acceptor %q as rank %d/%d", acceptorName, rank, localSize)

	if ping {
		if err := runPing(c); err != nil {
			nlog.Warningf("ping failed: %v", err)
		}
	} else {
		runStdinLoop(c)
	}

	c.SendString("__shutdown__", 0)
	c.CloseConnection()
	nlog.Flush(true)
}

func runPing(c *comm.Communicator) error {
	const probe = "ping"
	if err := c.SendString(probe, 0); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	reply, _, err := c.ReceiveString(0)
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	fmt.Println(reply)
	return nil
}

func runStdinLoop(c *comm.Communicator) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := sc.Text()
		if err := c.SendString(line, 0); err != nil {
			nlog.Warningf("send failed: %v", err)
			return
		}
		reply, _, err := c.ReceiveString(0)
		if err != nil {
			nlog.Warningf("receive failed: %v", err)
			return
		}
		fmt.Println(reply)
	}
}

func dumpConfig(cfg comm.Config) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary
	b, err := json.MarshalIndent(struct {
		Port            int           `json:"port"`
		Acceptor        string        `json:"acceptor"`
		Requester       string        `json:"requester"`
		Rank            int           `json:"rank"`
		Size            int           `json:"size"`
		VerifyFrames    bool          `json:"verify_frames"`
		MetricsAddr     string        `json:"metrics_addr,omitempty"`
		DialBackoff     time.Duration `json:"dial_backoff"`
		MaxDialAttempts int           `json:"max_dial_attempts"`
	}{
		Port:            cfg.Port,
		Acceptor:        acceptorName,
		Requester:       requesterName,
		Rank:            rank,
		Size:            localSize,
		VerifyFrames:    cfg.VerifyFrames,
		MetricsAddr:     metricsAddr,
		DialBackoff:     cfg.DialBackoff,
		MaxDialAttempts: cfg.MaxDialAttempts,
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
