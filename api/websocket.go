// File: api/websocket.go
// Author: momentics <momentics@gmail.com>
//
// WebSocket upgrade result and the server-side session handle.

package api

import (
	"sync"

	"github.com/momentics/hioload-httpd/http1"
	"github.com/momentics/hioload-httpd/protocol"
)

// WebSocketEvent is one inbound data or close frame.
type WebSocketEvent struct {
	Opcode  byte
	Fin     bool
	Payload []byte
}

// WebSocketHandler is invoked for every text, binary, continuation and
// close frame of a session, from the server's websocket sweeper.
type WebSocketHandler func(ws *WebSocket, ev WebSocketEvent)

// FrameSender is the server side of an upgraded connection.
type FrameSender interface {
	SendFrame(fin bool, opcode byte, payload []byte) error
	Close() error
}

// WebSocket is returned by an application to upgrade the connection and
// stays valid as the session handle afterwards.
type WebSocket struct {
	Request *http1.Request
	Handler WebSocketHandler
	State   any

	mu     sync.Mutex
	sender FrameSender
	closed bool
}

// NewWebSocket validates the upgrade request, turns hdr into the 101
// handshake response and returns the upgrade result.
func NewWebSocket(req *http1.Request, hdr *http1.ResponseHeader, handler WebSocketHandler, state any) (*WebSocket, error) {
	if !protocol.IsUpgradeRequest(req) {
		return nil, ErrNotUpgradeRequest
	}
	key, ok := req.LookupHeader(http1.HeaderSecWebSocketKey)
	if !ok || key == "" {
		return nil, ErrMissingWebSocketKey
	}
	protocol.WriteAcceptHeaders(hdr, key)
	return &WebSocket{Request: req, Handler: handler, State: state}, nil
}

// Attach binds the session to its connection. Called by the server once
// the handshake response is on the wire.
func (ws *WebSocket) Attach(s FrameSender) {
	ws.mu.Lock()
	ws.sender = s
	ws.mu.Unlock()
}

func (ws *WebSocket) send(opcode byte, payload []byte) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	switch {
	case ws.closed:
		return ErrSessionClosed
	case ws.sender == nil:
		return ErrSessionNotAttached
	}
	return ws.sender.SendFrame(true, opcode, payload)
}

// SendText sends one final text frame.
func (ws *WebSocket) SendText(s string) error { return ws.send(protocol.OpcodeText, []byte(s)) }

// SendBinary sends one final binary frame.
func (ws *WebSocket) SendBinary(b []byte) error { return ws.send(protocol.OpcodeBinary, b) }

// SendPong sends an empty pong frame.
func (ws *WebSocket) SendPong() error { return ws.send(protocol.OpcodePong, nil) }

// Closed reports whether the session ended.
func (ws *WebSocket) Closed() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.closed
}

// Close sends a normal close frame and tears the session down. Repeated
// calls are no-ops.
func (ws *WebSocket) Close() error {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return nil
	}
	ws.closed = true
	s := ws.sender
	ws.mu.Unlock()
	if s == nil {
		return nil
	}
	_ = s.SendFrame(true, protocol.OpcodeClose, protocol.ClosePayload(protocol.CloseNormalClosure))
	return s.Close()
}

// MarkClosed flags the session as ended without sending anything.
// Used by the server when the connection is already gone.
func (ws *WebSocket) MarkClosed() {
	ws.mu.Lock()
	ws.closed = true
	ws.mu.Unlock()
}
