// File: server/websocket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Upgraded connections: handshake finalization, the websocket sweeper
// and the server side of api.FrameSender.

package server

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/http1"
	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/reactor"
)

// wsSession binds an api.WebSocket to its connection.
type wsSession struct {
	srv    *Server
	entry  *connEntry
	ws     *api.WebSocket
	closed atomic.Bool
}

// SendFrame implements api.FrameSender.
func (w *wsSession) SendFrame(fin bool, opcode byte, payload []byte) error {
	if w.closed.Load() {
		return api.ErrSessionClosed
	}
	return w.entry.conn.Send(protocol.AppendFrame(nil, fin, opcode, payload))
}

// Close implements api.FrameSender.
func (w *wsSession) Close() error {
	w.srv.teardown(w, "closed by application")
	return nil
}

type wsSet struct {
	poller *reactor.Poller
	mu     sync.Mutex
	byFd   map[int]*wsSession
}

func newWSSet() (*wsSet, error) {
	p, err := reactor.NewPoller()
	if err != nil {
		return nil, err
	}
	return &wsSet{poller: p, byFd: make(map[int]*wsSession)}, nil
}

// add watches the session's socket. A session closed meanwhile is not
// added.
func (ws *wsSet) add(w *wsSession) (bool, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if w.closed.Load() {
		return false, nil
	}
	fd := w.entry.conn.Fd()
	if err := ws.poller.Add(fd); err != nil {
		return false, err
	}
	ws.byFd[fd] = w
	return true, nil
}

func (ws *wsSet) lookup(fd int) *wsSession {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.byFd[fd]
}

func (ws *wsSet) remove(w *wsSession) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	fd := w.entry.conn.Fd()
	if ws.byFd[fd] == w {
		delete(ws.byFd, fd)
		_ = ws.poller.Remove(fd)
	}
}

func (ws *wsSet) len() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.byFd)
}

func (ws *wsSet) close() error {
	ws.mu.Lock()
	ws.byFd = make(map[int]*wsSession)
	ws.mu.Unlock()
	return ws.poller.Close()
}

// upgrade writes the handshake response and moves e into the websocket
// set. Frames that arrived with the handshake are processed first.
func (s *Server) upgrade(e *connEntry, req *http1.Request, hdr *http1.ResponseHeader, ws *api.WebSocket) {
	hdr.Del(http1.HeaderContentLength)
	wire := hdr.WireBytes()
	hdr.Seal()
	if err := e.conn.Send(wire); err != nil {
		s.logger.Debug("handshake write failed", "conn", e.id, "err", err)
		ws.MarkClosed()
		s.closeEntry(e)
		return
	}
	if !s.reg.move(e, stateActive, stateWebSocket) {
		ws.MarkClosed()
		return
	}
	w := &wsSession{srv: s, entry: e, ws: ws}
	e.ws = w
	ws.Attach(w)
	s.logger.Debug("upgraded", "conn", e.id, "path", req.Path())

	if e.conn.Buffered() > 0 && !s.readFrames(w) {
		s.teardown(w, "protocol error")
		return
	}
	added, err := s.sockets.add(w)
	if err != nil {
		s.logger.Debug("watch websocket failed", "conn", e.id, "err", err)
		s.teardown(w, "watch failed")
		return
	}
	if !added {
		s.teardown(w, "closed during upgrade")
	}
}

// webSocketLoop decodes frames from readable sessions. Sessions that
// fail are torn down after the scan.
func (s *Server) webSocketLoop() {
	defer s.wg.Done()
	s.pin(slotWebSocket, "websocket")
	events := make([]reactor.Event, sweepBatch)
	var doomed []*wsSession

	for !s.closed.Load() {
		n, err := s.sockets.poller.Wait(events, s.cfg.WebSocketSweepTimeout)
		if err != nil {
			if errors.Is(err, reactor.ErrClosed) {
				return
			}
			s.logger.Error("websocket wait failed", "err", err)
			continue
		}
		doomed = doomed[:0]
		for _, ev := range events[:n] {
			w := s.sockets.lookup(ev.Fd)
			if w == nil || w.closed.Load() {
				continue
			}
			if !s.readFrames(w) {
				doomed = append(doomed, w)
			}
		}
		for _, w := range doomed {
			s.teardown(w, "read failed")
		}
	}
}

// readFrames decodes frames while the receive buffer holds bytes. It
// reports false when the session must end.
func (s *Server) readFrames(w *wsSession) bool {
	c := w.entry.conn
	_ = c.SetReadDeadline(time.Now().Add(s.cfg.FrameReadTimeout))
	defer c.SetReadDeadline(time.Time{})

	for {
		f, err := protocol.ReadFrame(c, s.cfg.MaxFramePayload)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("frame read failed", "conn", w.entry.id, "err", err)
			}
			return false
		}
		s.metrics.Frame(context.Background(), protocol.OpcodeName(f.Opcode))

		switch f.Opcode {
		case protocol.OpcodePing:
			if err := c.Send(protocol.PongFrame[:]); err != nil {
				return false
			}
		case protocol.OpcodePong:
		case protocol.OpcodeText, protocol.OpcodeBinary, protocol.OpcodeContinuation:
			s.deliver(w, f)
		case protocol.OpcodeClose:
			s.deliver(w, f)
			if !w.ws.Closed() {
				w.ws.MarkClosed()
				_ = c.Send(protocol.EncodeFrame(protocol.OpcodeClose, f.Payload[:min(len(f.Payload), 2)]))
			}
			return false
		default:
			s.logger.Debug("unknown opcode", "conn", w.entry.id, "opcode", f.Opcode)
			return false
		}
		if w.closed.Load() {
			return false
		}
		if c.Buffered() == 0 {
			return true
		}
	}
}

// deliver runs the session handler, recovering panics.
func (s *Server) deliver(w *wsSession, f *protocol.Frame) {
	if w.ws.Handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("websocket handler panic", "conn", w.entry.id, "panic", r)
		}
	}()
	w.ws.Handler(w.ws, api.WebSocketEvent{Opcode: f.Opcode, Fin: f.Fin, Payload: f.Payload})
}

// teardown ends a session once, whoever asks first.
func (s *Server) teardown(w *wsSession, reason string) {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	w.ws.MarkClosed()
	s.sockets.remove(w)
	s.logger.Debug("websocket closed", "conn", w.entry.id, "reason", reason)
	s.closeEntry(w.entry)
}
