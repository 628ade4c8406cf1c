// File: server/keepalive.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"sync"
	"time"

	"github.com/momentics/hioload-httpd/reactor"
)

const sweepBatch = 128

// keepAliveSet holds connections parked between requests.
type keepAliveSet struct {
	poller *reactor.Poller
	mu     sync.Mutex
	byFd   map[int]*connEntry
}

func newKeepAliveSet() (*keepAliveSet, error) {
	p, err := reactor.NewPoller()
	if err != nil {
		return nil, err
	}
	return &keepAliveSet{poller: p, byFd: make(map[int]*connEntry)}, nil
}

func (k *keepAliveSet) add(e *connEntry) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	fd := e.conn.Fd()
	if err := k.poller.Add(fd); err != nil {
		return err
	}
	k.byFd[fd] = e
	return nil
}

// take removes the entry parked on fd, if any.
func (k *keepAliveSet) take(fd int) *connEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := k.byFd[fd]
	if e != nil {
		delete(k.byFd, fd)
		_ = k.poller.Remove(fd)
	}
	return e
}

// takeIdle removes every entry idle since before cutoff.
func (k *keepAliveSet) takeIdle(cutoff time.Time) []*connEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []*connEntry
	for fd, e := range k.byFd {
		if e.idleSince.Before(cutoff) {
			delete(k.byFd, fd)
			_ = k.poller.Remove(fd)
			out = append(out, e)
		}
	}
	return out
}

func (k *keepAliveSet) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.byFd)
}

func (k *keepAliveSet) close() error {
	k.mu.Lock()
	k.byFd = make(map[int]*connEntry)
	k.mu.Unlock()
	return k.poller.Close()
}

// park moves an active connection into the keep-alive set.
func (s *Server) park(e *connEntry) {
	if !s.reg.move(e, stateActive, stateKeepAlive) {
		return
	}
	if err := s.keepAlive.add(e); err != nil {
		s.logger.Debug("park failed", "conn", e.id, "err", err)
		if s.reg.move(e, stateKeepAlive, stateActive) {
			s.closeEntry(e)
		}
		return
	}
	s.logger.Debug("parked", "conn", e.id)
}

// keepAliveLoop resubmits parked connections that became readable and
// evicts those idle past KeepAliveTimeout.
func (s *Server) keepAliveLoop() {
	defer s.wg.Done()
	s.pin(slotKeepAlive, "keepalive")
	events := make([]reactor.Event, sweepBatch)
	lastScan := time.Now()

	for !s.closed.Load() {
		n, err := s.keepAlive.poller.Wait(events, s.cfg.KeepAliveSweepTimeout)
		if err != nil {
			if errors.Is(err, reactor.ErrClosed) {
				return
			}
			s.logger.Error("keep-alive wait failed", "err", err)
			continue
		}
		for _, ev := range events[:n] {
			e := s.keepAlive.take(ev.Fd)
			if e == nil || !s.reg.move(e, stateKeepAlive, stateActive) {
				continue
			}
			if pending, err := reactor.Pending(ev.Fd); err != nil || pending == 0 {
				s.logger.Debug("peer closed while parked", "conn", e.id)
				s.closeEntry(e)
				continue
			}
			s.dispatch(e)
		}

		now := time.Now()
		if now.Sub(lastScan) < s.cfg.KeepAliveSweepTimeout {
			continue
		}
		lastScan = now
		for _, e := range s.keepAlive.takeIdle(now.Add(-s.cfg.KeepAliveTimeout)) {
			if s.reg.move(e, stateKeepAlive, stateActive) {
				s.dispatch(e)
			}
		}
	}
}
