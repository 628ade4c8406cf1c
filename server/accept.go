// File: server/accept.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/momentics/hioload-httpd/reactor"
	"github.com/momentics/hioload-httpd/transport"
	"github.com/momentics/hioload-httpd/transport/tcp"
)

// acceptLoop waits for readiness on every listener and accepts one
// connection per ready listener per cycle.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	s.pin(slotAccept, "accept")
	byFd := make(map[int]*tcp.Listener, len(s.listeners))
	for _, l := range s.listeners {
		byFd[l.Fd()] = l
	}
	events := make([]reactor.Event, len(s.listeners))

	for !s.closed.Load() {
		n, err := s.accept.Wait(events, s.cfg.AcceptTimeout)
		if err != nil {
			if errors.Is(err, reactor.ErrClosed) {
				return
			}
			s.logger.Error("accept wait failed", "err", err)
			continue
		}
		for _, ev := range events[:n] {
			if l := byFd[ev.Fd]; l != nil {
				s.acceptOne(l)
			}
		}
	}
}

func (s *Server) acceptOne(l *tcp.Listener) {
	// Readiness may be stale when another process shares the socket.
	_ = l.SetDeadline(time.Now().Add(s.cfg.AcceptTimeout))
	nc, err := l.Accept()
	if err != nil {
		var ne net.Error
		if s.closed.Load() || (errors.As(err, &ne) && ne.Timeout()) {
			return
		}
		s.logger.Error("accept failed", "addr", l.Addr().String(), "err", err)
		return
	}
	c := transport.NewConn(nc, s.cfg.ReceiveBufferSize)
	e := s.reg.add(c)
	s.metrics.ConnAccepted(context.Background())
	s.logger.Debug("accepted", "conn", e.id, "remote", c.RemoteAddr().String(), "fd", c.Fd())
	if s.closed.Load() {
		s.closeEntry(e)
		return
	}
	s.dispatch(e)
}

// dispatch hands an active connection to a worker.
func (s *Server) dispatch(e *connEntry) {
	if err := s.exec.Submit(func() { s.serve(e) }); err != nil {
		s.metrics.TaskRejected(context.Background())
		s.logger.Warn("connection dropped", "conn", e.id, "err", err)
		s.closeEntry(e)
	}
}

// closeEntry closes a connection owned by the caller or by a wait set.
func (s *Server) closeEntry(e *connEntry) {
	if !s.reg.remove(e) {
		return
	}
	_ = e.conn.Close()
	s.metrics.ConnClosed(context.Background())
	s.logger.Debug("closed", "conn", e.id)
}
