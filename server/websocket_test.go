// File: server/websocket_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebSocket sessions driven by an independent gorilla/websocket client.

package server_test

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/http1"
	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/server"
)

func echoApp() api.Application {
	return api.ApplicationFunc(func(_ api.Server, req *http1.Request, hdr *http1.ResponseHeader) (any, error) {
		if req.Path() != "/ws" {
			return "plain", nil
		}
		return api.NewWebSocket(req, hdr, func(ws *api.WebSocket, ev api.WebSocketEvent) {
			switch ev.Opcode {
			case protocol.OpcodeText:
				if string(ev.Payload) == "bye" {
					ws.Close()
					return
				}
				ws.SendText(string(ev.Payload))
			case protocol.OpcodeBinary:
				ws.SendBinary(ev.Payload)
			case protocol.OpcodeClose:
				ws.State = "closed by peer"
			}
		}, nil)
	})
}

func dialWS(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
		WriteBufferSize:  128 << 10,
	}
	ws, resp, err := d.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	if resp.StatusCode != 101 {
		t.Fatalf("handshake status %d", resp.StatusCode)
	}
	t.Cleanup(func() { ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	return ws
}

func TestWebSocketEcho(t *testing.T) {
	srv, addr := startServer(t, echoApp())
	ws := dialWS(t, addr)

	for _, size := range []int{0, 5, 125, 126, 65535, 65536, 70000} {
		msg := bytes.Repeat([]byte{'x'}, size)
		if err := ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			t.Fatal(err)
		}
		typ, got, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
		if typ != websocket.BinaryMessage || !bytes.Equal(got, msg) {
			t.Fatalf("size %d: echo mismatch (type %d, len %d)", size, typ, len(got))
		}
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, got, err := ws.ReadMessage(); err != nil || string(got) != "hello" {
		t.Fatalf("text echo: %q %v", got, err)
	}
	if n := srv.Stats()["connections_websocket"]; n != 1 {
		t.Fatalf("connections_websocket = %d", n)
	}
}

func TestWebSocketPing(t *testing.T) {
	_, addr := startServer(t, echoApp())
	ws := dialWS(t, addr)

	pong := make(chan string, 1)
	ws.SetPongHandler(func(data string) error {
		pong <- data
		return nil
	})
	if err := ws.WriteControl(websocket.PingMessage, []byte("ignored"), time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	ws.WriteMessage(websocket.TextMessage, []byte("after ping"))
	if _, got, err := ws.ReadMessage(); err != nil || string(got) != "after ping" {
		t.Fatalf("echo: %q %v", got, err)
	}
	select {
	case data := <-pong:
		if data != "" {
			t.Fatalf("pong payload %q, want empty", data)
		}
	default:
		t.Fatal("no pong before the echo")
	}
}

func TestWebSocketCloseHandshake(t *testing.T) {
	srv, addr := startServer(t, echoApp())

	t.Run("peer initiated", func(t *testing.T) {
		ws := dialWS(t, addr)
		// The close was already sent; only observe the echo.
		ws.SetCloseHandler(func(int, string) error { return nil })
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := ws.WriteMessage(websocket.CloseMessage, msg); err != nil {
			t.Fatal(err)
		}
		_, _, err := ws.ReadMessage()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Fatalf("expected echoed close, got %v", err)
		}
	})

	t.Run("server initiated", func(t *testing.T) {
		ws := dialWS(t, addr)
		ws.WriteMessage(websocket.TextMessage, []byte("bye"))
		_, _, err := ws.ReadMessage()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Fatalf("expected close frame, got %v", err)
		}
	})

	eventually(t, "sessions to end", func() bool { return srv.Stats()["connections_websocket"] == 0 })
}

func TestWebSocketOversizeFrame(t *testing.T) {
	_, addr := startServer(t, echoApp(), server.WithMaxFramePayload(16))
	ws := dialWS(t, addr)
	ws.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("y", 32)))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("oversize frame did not end the session")
	}
}

func TestWebSocketFramesWithHandshake(t *testing.T) {
	_, addr := startServer(t, echoApp())
	c := dial(t, addr)

	key := "dGhlIHNhbXBsZSBub25jZQ=="
	raw := "GET /ws HTTP/1.1\r\nHost: localhost\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n" +
		"Sec-WebSocket-Version: 13\r\nSec-WebSocket-Key: " + key + "\r\n\r\n"
	frame := protocol.AppendMaskedFrame(nil, true, protocol.OpcodeText, []byte("early"), [4]byte{1, 2, 3, 4})
	if _, err := c.Write(append([]byte(raw), frame...)); err != nil {
		t.Fatal(err)
	}

	resp, _ := c.read(t, "GET")
	if resp.StatusCode != 101 || resp.Header.Get("Sec-WebSocket-Accept") != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("handshake: %d %q", resp.StatusCode, resp.Header.Get("Sec-WebSocket-Accept"))
	}
	f, err := protocol.ReadFrame(readerSource{c.br}, 1<<10)
	if err != nil {
		t.Fatal(err)
	}
	if f.Opcode != protocol.OpcodeText || string(f.Payload) != "early" || f.Masked {
		t.Fatalf("frame %+v", f)
	}
}

func TestNonUpgradeRequestRejected(t *testing.T) {
	_, addr := startServer(t, api.ApplicationFunc(func(_ api.Server, req *http1.Request, hdr *http1.ResponseHeader) (any, error) {
		ws, err := api.NewWebSocket(req, hdr, nil, nil)
		if err != nil {
			return nil, http1.NewStatusError(http1.StatusBadRequest, err.Error())
		}
		return ws, nil
	}))
	c := dial(t, addr)
	if resp, _ := c.roundTrip(t, get); resp.StatusCode != 400 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWebSocketWithoutHandshakeRejected(t *testing.T) {
	_, addr := startServer(t, api.ApplicationFunc(func(_ api.Server, req *http1.Request, _ *http1.ResponseHeader) (any, error) {
		return &api.WebSocket{Request: req}, nil
	}))
	c := dial(t, addr)
	resp, _ := c.roundTrip(t, get)
	if resp.StatusCode != 500 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	// Still plain HTTP on the same connection.
	if resp, _ = c.roundTrip(t, get); resp.StatusCode != 500 {
		t.Fatalf("second status = %d", resp.StatusCode)
	}
}

func TestCopiedUpgradeTokenCloses(t *testing.T) {
	_, addr := startServer(t, echoApp())
	c := dial(t, addr)
	resp, body := c.roundTrip(t, "GET /plain HTTP/1.1\r\nHost: localhost\r\nConnection: Upgrade\r\n\r\n")
	if body != "plain" || !resp.Close {
		t.Fatalf("got %q, close=%v", body, resp.Close)
	}
	c.expectClosed(t)
}

type readerSource struct{ r io.Reader }

func (s readerSource) ReceiveExact(p []byte) (int, error) { return io.ReadFull(s.r, p) }
