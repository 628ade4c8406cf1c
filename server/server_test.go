// File: server/server_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// End-to-end tests over loopback TCP.

package server_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/http1"
	"github.com/momentics/hioload-httpd/server"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, app api.Application, opts ...server.Option) (*server.Server, string) {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.Addrs = []string{"127.0.0.1:0"}
	cfg.Workers = 4
	cfg.AcceptTimeout = 50 * time.Millisecond
	cfg.KeepAliveSweepTimeout = 50 * time.Millisecond
	cfg.CometSweepInterval = 50 * time.Millisecond
	cfg.WebSocketSweepTimeout = 50 * time.Millisecond
	cfg.FrameReadTimeout = time.Second

	srv, err := server.New(app, cfg, append([]server.Option{server.WithLogger(testLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, srv.Addrs()[0].String()
}

type client struct {
	net.Conn
	br *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	_ = c.SetDeadline(time.Now().Add(10 * time.Second))
	return &client{Conn: c, br: bufio.NewReader(c)}
}

// roundTrip writes raw and reads one response. The body is returned
// separately and resp.Body is already drained.
func (c *client) roundTrip(t *testing.T, raw string) (*http.Response, string) {
	t.Helper()
	if _, err := io.WriteString(c, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
	return c.read(t, raw)
}

func (c *client) read(t *testing.T, raw string) (*http.Response, string) {
	t.Helper()
	method, _, _ := strings.Cut(raw, " ")
	resp, err := http.ReadResponse(c.br, &http.Request{Method: method})
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp, string(body)
}

// expectClosed asserts that the server closes the connection without
// writing anything more.
func (c *client) expectClosed(t *testing.T) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, err := c.br.Read(make([]byte, 1))
	if n != 0 || err == nil {
		t.Fatalf("expected close, got %d bytes, err %v", n, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		t.Fatal("connection still open")
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func hello() api.Application {
	return api.ApplicationFunc(func(api.Server, *http1.Request, *http1.ResponseHeader) (any, error) {
		return "Hello World", nil
	})
}

const get = "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"

func TestHelloWorldKeepAlive(t *testing.T) {
	srv, addr := startServer(t, hello())
	c := dial(t, addr)

	for i := 0; i < 3; i++ {
		resp, body := c.roundTrip(t, get)
		if resp.StatusCode != 200 || body != "Hello World" {
			t.Fatalf("request %d: %d %q", i, resp.StatusCode, body)
		}
		if resp.ContentLength != 11 {
			t.Fatalf("Content-Length = %d", resp.ContentLength)
		}
		if resp.Close {
			t.Fatal("connection not kept alive")
		}
	}
	if n := srv.Stats()["connections_accepted"]; n != 1 {
		t.Fatalf("connections_accepted = %d, want 1", n)
	}
}

func TestBufferedRequestsResubmitted(t *testing.T) {
	_, addr := startServer(t, hello())
	c := dial(t, addr)
	if _, err := io.WriteString(c, get+get); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if resp, body := c.read(t, get); resp.StatusCode != 200 || body != "Hello World" {
			t.Fatalf("response %d: %d %q", i, resp.StatusCode, body)
		}
	}
}

func TestIdleConnectionClosed(t *testing.T) {
	srv, addr := startServer(t, hello(), server.WithKeepAliveTimeout(150*time.Millisecond))

	c := dial(t, addr)
	c.roundTrip(t, get)
	c.expectClosed(t)

	silent := dial(t, addr)
	silent.expectClosed(t)

	eventually(t, "registry to empty", func() bool {
		st := srv.Stats()
		return st["connections_keepalive"] == 0 && st["connections_active"] == 0
	})
}

func TestHTTP10Closes(t *testing.T) {
	_, addr := startServer(t, hello())
	c := dial(t, addr)
	resp, body := c.roundTrip(t, "GET / HTTP/1.0\r\n\r\n")
	if body != "Hello World" || !resp.Close {
		t.Fatalf("got %q, close=%v", body, resp.Close)
	}
	c.expectClosed(t)
}

func TestHeadOmitsBody(t *testing.T) {
	_, addr := startServer(t, hello())
	c := dial(t, addr)
	resp, body := c.roundTrip(t, "HEAD / HTTP/1.1\r\n\r\n")
	if resp.ContentLength != 11 || body != "" {
		t.Fatalf("HEAD: Content-Length %d body %q", resp.ContentLength, body)
	}
	// A stray body would corrupt the next response.
	if _, body := c.roundTrip(t, get); body != "Hello World" {
		t.Fatalf("GET after HEAD: %q", body)
	}
}

func TestMalformedRequestClosedSilently(t *testing.T) {
	_, addr := startServer(t, hello())
	for _, raw := range []string{
		"GET / HTP/1.1\r\n\r\n",
		"GET / HTTP/1.10\r\n\r\n",
		"GET /\r\n\r\n",
		"GET / HTTP/1.1\r\nNoColon\r\n\r\n",
	} {
		c := dial(t, addr)
		io.WriteString(c, raw)
		c.expectClosed(t)
	}
}

func TestBodyErrors(t *testing.T) {
	app := api.ApplicationFunc(func(_ api.Server, req *http1.Request, _ *http1.ResponseHeader) (any, error) {
		body, err := req.Body(64)
		if err != nil {
			return nil, err
		}
		return body, nil
	})
	_, addr := startServer(t, app)

	cases := []struct {
		name   string
		raw    string
		half   bool
		status int
	}{
		{"echo", "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello", false, 200},
		{"length required", "POST / HTTP/1.1\r\n\r\n", false, 411},
		{"too large", "POST / HTTP/1.1\r\nContent-Length: 1000\r\n\r\n", false, 500},
		{"short", "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc", true, 400},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := dial(t, addr)
			io.WriteString(c, tc.raw)
			if tc.half {
				c.Conn.(*net.TCPConn).CloseWrite()
			}
			resp, body := c.read(t, tc.raw)
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			if tc.status != 200 && (resp.ContentLength != 0 || body != "") {
				t.Fatalf("error response carries a body: %q", body)
			}
		})
	}
}

func TestPanicAndErrorApplication(t *testing.T) {
	app := api.ApplicationFunc(func(_ api.Server, req *http1.Request, _ *http1.ResponseHeader) (any, error) {
		switch req.Path() {
		case "/panic":
			panic("boom")
		case "/missing":
			return nil, http1.NewStatusError(http1.StatusNotFound, "no such page")
		}
		return "ok", nil
	})
	errApp := api.ApplicationFunc(func(_ api.Server, req *http1.Request, hdr *http1.ResponseHeader) (any, error) {
		hdr.Set(http1.HeaderContentType, "text/plain")
		return fmt.Sprintf("error %d", hdr.Status()), nil
	})

	t.Run("plain", func(t *testing.T) {
		_, addr := startServer(t, app)
		c := dial(t, addr)
		resp, body := c.roundTrip(t, "GET /panic HTTP/1.1\r\n\r\n")
		if resp.StatusCode != 500 || body != "" {
			t.Fatalf("panic: %d %q", resp.StatusCode, body)
		}
		resp, _ = c.roundTrip(t, "GET /missing HTTP/1.1\r\n\r\n")
		if resp.StatusCode != 404 {
			t.Fatalf("missing: %d", resp.StatusCode)
		}
	})

	t.Run("error application", func(t *testing.T) {
		var seen atomic.Value
		wrapped := api.ApplicationFunc(func(srv api.Server, req *http1.Request, hdr *http1.ResponseHeader) (any, error) {
			if err := server.RequestError(req); err != nil {
				seen.Store(err.Error())
			}
			return errApp.Process(srv, req, hdr)
		})
		_, addr := startServer(t, app, server.WithErrorApplication(wrapped))
		c := dial(t, addr)
		resp, body := c.roundTrip(t, "GET /missing HTTP/1.1\r\n\r\n")
		if resp.StatusCode != 404 || body != "error 404" || resp.Header.Get("Content-Type") != "text/plain" {
			t.Fatalf("got %d %q", resp.StatusCode, body)
		}
		if msg, _ := seen.Load().(string); !strings.Contains(msg, "no such page") {
			t.Fatalf("error application saw %q", msg)
		}
		resp, body = c.roundTrip(t, "HEAD /missing HTTP/1.1\r\n\r\n")
		if resp.StatusCode != 404 || resp.ContentLength != 0 || body != "" {
			t.Fatalf("HEAD error: %d %d %q", resp.StatusCode, resp.ContentLength, body)
		}
	})
}

type plainReader struct{ r io.Reader }

func (p plainReader) Read(b []byte) (int, error) { return p.r.Read(b) }

type closeTracker struct {
	io.Reader
	closed atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return nil
}

func TestStreamResults(t *testing.T) {
	tracked := &closeTracker{Reader: strings.NewReader("tracked")}
	app := api.ApplicationFunc(func(_ api.Server, req *http1.Request, _ *http1.ResponseHeader) (any, error) {
		switch req.Path() {
		case "/sized":
			return strings.NewReader("sized stream"), nil
		case "/tracked":
			return tracked, nil
		}
		return plainReader{strings.NewReader("unsized stream")}, nil
	})
	_, addr := startServer(t, app)

	c := dial(t, addr)
	resp, body := c.roundTrip(t, "GET /sized HTTP/1.1\r\n\r\n")
	if resp.ContentLength != int64(len("sized stream")) || body != "sized stream" || resp.Close {
		t.Fatalf("sized: %d %q close=%v", resp.ContentLength, body, resp.Close)
	}

	resp, body = c.roundTrip(t, "GET /unsized HTTP/1.1\r\n\r\n")
	if resp.ContentLength != -1 || body != "unsized stream" || !resp.Close {
		t.Fatalf("unsized: %d %q close=%v", resp.ContentLength, body, resp.Close)
	}
	c.expectClosed(t)

	c = dial(t, addr)
	if _, body = c.roundTrip(t, "GET /tracked HTTP/1.1\r\n\r\n"); body != "tracked" {
		t.Fatalf("tracked: %q", body)
	}
	eventually(t, "stream close", tracked.closed.Load)
}

func TestBodylessStatus(t *testing.T) {
	app := api.ApplicationFunc(func(_ api.Server, _ *http1.Request, hdr *http1.ResponseHeader) (any, error) {
		hdr.SetStatus(http1.StatusNoContent)
		return "ignored", nil
	})
	_, addr := startServer(t, app)
	c := dial(t, addr)
	for i := 0; i < 2; i++ {
		resp, body := c.roundTrip(t, get)
		if resp.StatusCode != 204 || body != "" || resp.Header.Get("Content-Length") != "" {
			t.Fatalf("204: %q %q", body, resp.Header.Get("Content-Length"))
		}
		if resp.Close {
			t.Fatal("204 must not force close")
		}
	}
}

func TestSetCookieOnWire(t *testing.T) {
	app := api.ApplicationFunc(func(_ api.Server, req *http1.Request, hdr *http1.ResponseHeader) (any, error) {
		v, _ := req.Cookie("a")
		hdr.AddCookie(&http1.Cookie{Name: "seen", Value: v, Path: "/app"})
		return req.Query("b"), nil
	})
	_, addr := startServer(t, app)
	c := dial(t, addr)
	resp, body := c.roundTrip(t, "GET /app?a=1&b=2&b=3 HTTP/1.1\r\nCookie: a=x; a=y\r\n\r\n")
	if body != "3" {
		t.Fatalf("query b = %q", body)
	}
	got := resp.Header.Get("Set-Cookie")
	if !strings.HasPrefix(got, "seen=y") || !strings.HasSuffix(got, "; path=/app") {
		t.Fatalf("Set-Cookie = %q", got)
	}
}

func TestStartAndClose(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Addrs = []string{"127.0.0.1:0"}
	srv, err := server.New(hello(), cfg, server.WithLogger(testLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(context.Background()); !errors.Is(err, server.ErrAlreadyRunning) {
		t.Fatalf("second Start: %v", err)
	}
	c := dial(t, srv.Addrs()[0].String())
	c.roundTrip(t, get)

	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	c.expectClosed(t)
	if err := srv.Start(context.Background()); !errors.Is(err, api.ErrServerClosed) {
		t.Fatalf("Start after Close: %v", err)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Addrs = []string{"127.0.0.1:0"}
	srv, err := server.New(hello(), cfg, server.WithLogger(testLogger()))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	eventually(t, "listener", func() bool { return len(srv.Addrs()) == 1 })
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestListenFailure(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Addrs = []string{"256.0.0.1:0"}
	srv, err := server.New(hello(), cfg, server.WithLogger(testLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded without a bindable address")
	}
}

func TestDebugProbes(t *testing.T) {
	srv, addr := startServer(t, hello())
	dial(t, addr).roundTrip(t, get)
	state := srv.Debug().DumpState()
	for _, k := range []string{"connections", "wait_sets", "config", "executor"} {
		if _, ok := state[k]; !ok {
			t.Fatalf("probe %q missing from %v", k, state)
		}
	}
}

func TestPinnedLoopsServe(t *testing.T) {
	_, addr := startServer(t, hello(), server.WithCPUAffinity(0))
	c := dial(t, addr)
	defer c.Close()
	res, body := c.roundTrip(t, get)
	if res.StatusCode != 200 || body != "Hello World" {
		t.Fatalf("got %d %q", res.StatusCode, body)
	}
}
