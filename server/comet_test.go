// File: server/comet_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server_test

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/http1"
)

type cometApp struct {
	signal  chan struct{}
	timeout time.Duration
	fired   atomic.Int32
}

func (a *cometApp) Process(_ api.Server, req *http1.Request, hdr *http1.ResponseHeader) (any, error) {
	var wait <-chan struct{}
	switch req.Path() {
	case "/wait":
		wait = a.signal
	case "/deadline":
	case "/nohandler":
		return &api.Comet{Deadline: time.Now().Add(time.Second)}, nil
	default:
		return "now", nil
	}
	return api.NewComet(req, hdr, wait, a.timeout, req.Path(), func(c *api.Comet, timedOut bool) (any, error) {
		a.fired.Add(1)
		if timedOut {
			return "timeout " + c.Context.(string), nil
		}
		c.Response.Set("X-Trigger", "signal")
		return "signalled " + c.Context.(string), nil
	}), nil
}

func TestCometSignal(t *testing.T) {
	app := &cometApp{signal: make(chan struct{}), timeout: 10 * time.Second}
	srv, addr := startServer(t, app)

	c := dial(t, addr)
	io.WriteString(c, "GET /wait HTTP/1.1\r\n\r\n")
	eventually(t, "comet registration", func() bool { return srv.Stats()["connections_comet"] == 1 })
	close(app.signal)

	resp, body := c.read(t, "GET")
	if body != "signalled /wait" || resp.Header.Get("X-Trigger") != "signal" {
		t.Fatalf("got %q", body)
	}
	// The connection follows normal keep-alive rules afterwards.
	if _, body := c.roundTrip(t, get); body != "now" {
		t.Fatalf("after comet: %q", body)
	}
	if n := srv.Stats()["comet_signalled"]; n != 1 {
		t.Fatalf("comet_signalled = %d", n)
	}
}

func TestCometDeadline(t *testing.T) {
	app := &cometApp{timeout: 100 * time.Millisecond}
	srv, addr := startServer(t, app)

	start := time.Now()
	c := dial(t, addr)
	_, body := c.roundTrip(t, "GET /deadline HTTP/1.1\r\n\r\n")
	if body != "timeout /deadline" {
		t.Fatalf("got %q", body)
	}
	if el := time.Since(start); el < 100*time.Millisecond {
		t.Fatalf("completed after %v, before the deadline", el)
	}
	if n := srv.Stats()["comet_timed_out"]; n != 1 {
		t.Fatalf("comet_timed_out = %d", n)
	}
}

func TestCometSingleFire(t *testing.T) {
	const conns = 20
	app := &cometApp{signal: make(chan struct{}), timeout: 150 * time.Millisecond}
	_, addr := startServer(t, app)

	clients := make([]*client, conns)
	for i := range clients {
		clients[i] = dial(t, addr)
		io.WriteString(clients[i], "GET /wait HTTP/1.1\r\n\r\n")
	}
	// Race the signal against the deadline.
	time.AfterFunc(150*time.Millisecond, func() { close(app.signal) })

	for _, c := range clients {
		c.read(t, "GET")
	}
	time.Sleep(300 * time.Millisecond)
	if n := app.fired.Load(); n != conns {
		t.Fatalf("handler ran %d times for %d waits", n, conns)
	}
	for _, c := range clients {
		if _, body := c.roundTrip(t, get); body != "now" {
			t.Fatalf("stray bytes after completion: %q", body)
		}
	}
}

func TestCometWithoutHandler(t *testing.T) {
	_, addr := startServer(t, &cometApp{})
	c := dial(t, addr)
	resp, _ := c.roundTrip(t, "GET /nohandler HTTP/1.1\r\n\r\n")
	if resp.StatusCode != 500 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCometClosedServer(t *testing.T) {
	app := &cometApp{signal: make(chan struct{}), timeout: time.Minute}
	srv, addr := startServer(t, app)
	c := dial(t, addr)
	io.WriteString(c, "GET /wait HTTP/1.1\r\n\r\n")
	eventually(t, "comet registration", func() bool { return srv.Stats()["connections_comet"] == 1 })
	srv.Close()
	c.expectClosed(t)
	if n := app.fired.Load(); n != 0 {
		t.Fatalf("handler ran %d times after Close", n)
	}
}

var _ api.Application = (*cometApp)(nil)
