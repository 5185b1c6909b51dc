package comm_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/coupling-rt/commsock/comm"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestHandshakeSingleClient(t *testing.T) {
	port := freePort(t)
	srv := comm.New(comm.Config{Port: port})
	cli := comm.New(comm.Config{Port: port})

	var srvErr, cliErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		srvErr = srv.AcceptConnection("acceptor", "requester", 0, 1)
	}()
	go func() {
		defer wg.Done()
		cliErr = cli.RequestConnection("acceptor", "requester", 0, 1)
	}()
	wg.Wait()

	if srvErr != nil {
		t.Fatalf("AcceptConnection: %v", srvErr)
	}
	if cliErr != nil {
		t.Fatalf("RequestConnection: %v", cliErr)
	}
	if !srv.IsConnected() || !cli.IsConnected() {
		t.Fatalf("expected both sides connected")
	}
	if srv.Role() != comm.RoleServer {
		t.Fatalf("srv.Role() = %v, want RoleServer", srv.Role())
	}
	if cli.Role() != comm.RoleClient {
		t.Fatalf("cli.Role() = %v, want RoleClient", cli.Role())
	}
	if srv.GetRemoteCommunicatorSize() != 1 {
		t.Fatalf("srv.GetRemoteCommunicatorSize() = %d, want 1", srv.GetRemoteCommunicatorSize())
	}
	if cli.GetRemoteCommunicatorSize() != 1 {
		t.Fatalf("cli.GetRemoteCommunicatorSize() = %d, want 1", cli.GetRemoteCommunicatorSize())
	}

	srv.CloseConnection()
	cli.CloseConnection()
}

func TestSendReceiveTypedRoundTrip(t *testing.T) {
	port := freePort(t)
	srv := comm.New(comm.Config{Port: port, VerifyFrames: true})
	cli := comm.New(comm.Config{Port: port, VerifyFrames: true})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := srv.AcceptConnection("acceptor", "requester", 0, 1); err != nil {
			t.Errorf("AcceptConnection: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := cli.RequestConnection("acceptor", "requester", 0, 1); err != nil {
			t.Errorf("RequestConnection: %v", err)
		}
	}()
	wg.Wait()
	defer srv.CloseConnection()
	defer cli.CloseConnection()

	if err := cli.SendInt(7, 0); err != nil {
		t.Fatalf("cli.SendInt: %v", err)
	}
	v, rank, err := srv.ReceiveInt(comm.AnySender)
	if err != nil {
		t.Fatalf("srv.ReceiveInt: %v", err)
	}
	if v != 7 || rank != 0 {
		t.Fatalf("srv.ReceiveInt = (%d, %d), want (7, 0)", v, rank)
	}

	if err := srv.SendDoubles([]float64{1.5, 2.5, 3.5}, 0); err != nil {
		t.Fatalf("srv.SendDoubles: %v", err)
	}
	out := make([]float64, 3)
	if _, err := cli.ReceiveDoubles(out, 0); err != nil {
		t.Fatalf("cli.ReceiveDoubles: %v", err)
	}
	want := []float64{1.5, 2.5, 3.5}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("ReceiveDoubles[%d] = %v, want %v", i, out[i], want[i])
		}
	}

	if err := cli.SendString("hello from rank 0", 0); err != nil {
		t.Fatalf("cli.SendString: %v", err)
	}
	s, _, err := srv.ReceiveString(comm.AnySender)
	if err != nil {
		t.Fatalf("srv.ReceiveString: %v", err)
	}
	if s != "hello from rank 0" {
		t.Fatalf("srv.ReceiveString = %q, want %q", s, "hello from rank 0")
	}
}

func TestAnySenderAcrossMultipleClients(t *testing.T) {
	port := freePort(t)
	const n = 3
	srv := comm.New(comm.Config{Port: port})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.AcceptConnection("acceptor", "requester", 0, 1); err != nil {
			t.Errorf("AcceptConnection: %v", err)
		}
	}()

	clients := make([]*comm.Communicator, n)
	for i := 0; i < n; i++ {
		clients[i] = comm.New(comm.Config{Port: port})
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			if err := clients[rank].RequestConnection("acceptor", "requester", rank, n); err != nil {
				t.Errorf("RequestConnection(rank=%d): %v", rank, err)
			}
		}(i)
	}
	wg.Wait()
	defer srv.CloseConnection()
	for _, c := range clients {
		defer c.CloseConnection()
	}

	if srv.GetRemoteCommunicatorSize() != n {
		t.Fatalf("srv.GetRemoteCommunicatorSize() = %d, want %d", srv.GetRemoteCommunicatorSize(), n)
	}

	for i := 0; i < n; i++ {
		if err := clients[i].SendInt(int32(100+i), 0); err != nil {
			t.Fatalf("clients[%d].SendInt: %v", i, err)
		}
	}

	seen := make(map[int]int32)
	for i := 0; i < n; i++ {
		v, rank, err := srv.ReceiveInt(comm.AnySender)
		if err != nil {
			t.Fatalf("srv.ReceiveInt: %v", err)
		}
		seen[rank] = v
	}
	for i := 0; i < n; i++ {
		v, ok := seen[i]
		if !ok {
			t.Fatalf("no announcement ever resolved to rank %d", i)
		}
		if v != int32(100+i) {
			t.Fatalf("seen[%d] = %d, want %d", i, v, 100+i)
		}
	}
}

func TestTargetedReceiveBypassesEarlierAnnouncement(t *testing.T) {
	port := freePort(t)
	srv := comm.New(comm.Config{Port: port})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.AcceptConnection("acceptor", "requester", 0, 1); err != nil {
			t.Errorf("AcceptConnection: %v", err)
		}
	}()

	c0 := comm.New(comm.Config{Port: port})
	c1 := comm.New(comm.Config{Port: port})
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := c0.RequestConnection("acceptor", "requester", 0, 2); err != nil {
			t.Errorf("c0.RequestConnection: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := c1.RequestConnection("acceptor", "requester", 1, 2); err != nil {
			t.Errorf("c1.RequestConnection: %v", err)
		}
	}()
	wg.Wait()
	defer srv.CloseConnection()
	defer c0.CloseConnection()
	defer c1.CloseConnection()

	// Rank 0 announces first and sleeps to let the server observe it before
	// rank 1 announces. A targeted receive(1) must not be starved behind the
	// earlier rank-0 announcement (the REDESIGN FLAG resolution under test).
	if err := c0.SendInt(1, 0); err != nil {
		t.Fatalf("c0.SendInt: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := c1.SendInt(2, 0); err != nil {
		t.Fatalf("c1.SendInt: %v", err)
	}

	v, rank, err := srv.ReceiveInt(1)
	if err != nil {
		t.Fatalf("srv.ReceiveInt(1): %v", err)
	}
	if rank != 1 || v != 2 {
		t.Fatalf("srv.ReceiveInt(1) = (%d, %d), want (2, 1)", v, rank)
	}

	v, rank, err = srv.ReceiveInt(0)
	if err != nil {
		t.Fatalf("srv.ReceiveInt(0): %v", err)
	}
	if rank != 0 || v != 1 {
		t.Fatalf("srv.ReceiveInt(0) = (%d, %d), want (1, 0)", v, rank)
	}
}

func TestCloseConnectionIdempotent(t *testing.T) {
	port := freePort(t)
	srv := comm.New(comm.Config{Port: port})
	cli := comm.New(comm.Config{Port: port})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := srv.AcceptConnection("acceptor", "requester", 0, 1); err != nil {
			t.Errorf("AcceptConnection: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := cli.RequestConnection("acceptor", "requester", 0, 1); err != nil {
			t.Errorf("RequestConnection: %v", err)
		}
	}()
	wg.Wait()

	srv.CloseConnection()
	srv.CloseConnection() // must not panic or block
	cli.CloseConnection()
	cli.CloseConnection()

	if srv.IsConnected() || cli.IsConnected() {
		t.Fatalf("expected both sides disconnected after close")
	}
}
