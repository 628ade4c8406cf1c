//go:build linux

package reactor_test

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-httpd/reactor"
	"github.com/momentics/hioload-httpd/transport"
)

func tcpPair(t *testing.T) (client net.Conn, server *transport.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	nc, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	server = transport.NewConn(nc, 0)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestPollerReadiness(t *testing.T) {
	p, err := reactor.NewPoller()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	client, server := tcpPair(t)
	if err := p.Add(server.Fd()); err != nil {
		t.Fatal(err)
	}

	events := make([]reactor.Event, 8)
	n, err := p.Wait(events, 50*time.Millisecond)
	if err != nil || n != 0 {
		t.Fatalf("idle wait: n=%d err=%v", n, err)
	}

	if _, err := client.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	n, err = p.Wait(events, time.Second)
	if err != nil || n != 1 || events[0].Fd != server.Fd() || !events[0].Readable {
		t.Fatalf("ready wait: n=%d err=%v ev=%+v", n, err, events[0])
	}

	if err := p.Remove(server.Fd()); err != nil {
		t.Fatal(err)
	}
	n, _ = p.Wait(events, 50*time.Millisecond)
	if n != 0 {
		t.Fatalf("removed fd still reported")
	}
}

func TestPollerWake(t *testing.T) {
	p, err := reactor.NewPoller()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	done := make(chan time.Duration, 1)
	go func() {
		start := time.Now()
		_, _ = p.Wait(make([]reactor.Event, 4), 10*time.Second)
		done <- time.Since(start)
	}()
	time.Sleep(20 * time.Millisecond)
	if err := p.Wake(); err != nil {
		t.Fatal(err)
	}
	select {
	case d := <-done:
		if d > 5*time.Second {
			t.Fatalf("wake took %v", d)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait not interrupted by Wake")
	}
}

func TestProbe(t *testing.T) {
	client, server := tcpPair(t)

	if r, err := reactor.Probe(server.Fd()); err != nil || r != reactor.NotReady {
		t.Fatalf("idle probe = %v, %v", r, err)
	}
	client.Write([]byte("abc"))
	deadline := time.Now().Add(time.Second)
	for {
		r, err := reactor.Probe(server.Fd())
		if err != nil {
			t.Fatal(err)
		}
		if r == reactor.DataReady {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("probe = %v, want data-ready", r)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n, err := reactor.Pending(server.Fd()); err != nil || n != 3 {
		t.Fatalf("Pending = %d, %v", n, err)
	}

	buf := make([]byte, 3)
	if _, err := server.ReceiveExact(buf); err != nil {
		t.Fatal(err)
	}
	client.Close()
	deadline = time.Now().Add(time.Second)
	for {
		r, _ := reactor.Probe(server.Fd())
		if r == reactor.PeerClosed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("probe = %v, want peer-closed", r)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
