// Package main runs a self-contained, single-process demonstration of an
// uncoupled exchange: an acceptor and one requester, each driving the
// communicator directly rather than through a negotiated coupling scheme.
// Every "timestep" the requester sends its accumulated time and the
// acceptor echoes back a step counter, the minimal send/receive shape an
// uncoupled scheme performs once per advance() with no convergence
// measures and no data mapping.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"sync"

	"github.com/coupling-rt/commsock/cmn/cos"
	"github.com/coupling-rt/commsock/cmn/nlog"
	"github.com/coupling-rt/commsock/comm"
)

var (
	port      int
	steps     int
	timeDelta float64
)

func init() {
	nlog.InitFlags(flag.CommandLine)
	flag.IntVar(&port, "port", 51399, "loopback TCP port for the demo pair")
	flag.IntVar(&steps, "steps", 5, "number of simulated timesteps to exchange")
	flag.Float64Var(&timeDelta, "dt", 0.1, "time added per timestep (addComputedTime)")
}

func main() {
	flag.Parse()
	nlog.SetTitle("coupling-demo")

	var wg sync.WaitGroup
	wg.Add(2)

	var serverErr, clientErr error

	go func() {
		defer wg.Done()
		serverErr = runAcceptor()
	}()
	go func() {
		defer wg.Done()
		clientErr = runRequester()
	}()

	wg.Wait()
	if serverErr != nil {
		cos.ExitLogf("acceptor failed: %v", serverErr)
	}
	if clientErr != nil {
		cos.ExitLogf("requester failed: %v", clientErr)
	}
	nlog.Flush(true)
}

func runAcceptor() error {
	c := comm.New(comm.Config{Port: port})
	if err := c.AcceptConnection("acceptor", "requester", 0, 1); err != nil {
		return fmt.Errorf("AcceptConnection: %w", err)
	}
	defer c.CloseConnection()

	for step := 0; step < steps; step++ {
		t, rank, err := c.ReceiveDouble(comm.AnySender)
		if err != nil {
			return fmt.Errorf("step %d: receive: %w", step, err)
		}
		nlog.Infof("acceptor: step %d received accumulated time %.3f from rank %d", step, t, rank)
		if err := c.SendInt(int32(step), rank); err != nil {
			return fmt.Errorf("step %d: send: %w", step, err)
		}
	}
	return nil
}

func runRequester() error {
	c := comm.New(comm.Config{Port: port})
	if err := c.RequestConnection("acceptor", "requester", 0, 1); err != nil {
		return fmt.Errorf("RequestConnection: %w", err)
	}
	defer c.CloseConnection()

	accumulated := 0.0
	for step := 0; step < steps; step++ {
		accumulated += timeDelta // addComputedTime
		if err := c.SendDouble(accumulated, 0); err != nil {
			return fmt.Errorf("step %d: send: %w", step, err)
		}
		ack, _, err := c.ReceiveInt(0)
		if err != nil {
			return fmt.Errorf("step %d: receive: %w", step, err)
		}
		nlog.Infof("requester: step %d acknowledged by acceptor as step %d", step, ack)
	}
	return nil
}
