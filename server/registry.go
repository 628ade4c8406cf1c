// File: server/registry.go
// Author: momentics <momentics@gmail.com>
//
// Authoritative connection registry. Every connection is owned by exactly
// one state; wait sets only hold handles and all transitions go through
// move.

package server

import (
	"sync"
	"time"

	"github.com/momentics/hioload-httpd/transport"
)

type connState int

const (
	stateActive connState = iota
	stateKeepAlive
	stateComet
	stateWebSocket
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateKeepAlive:
		return "keepalive"
	case stateComet:
		return "comet"
	case stateWebSocket:
		return "websocket"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

type connEntry struct {
	id   uint64
	conn *transport.Conn

	state connState // guarded by registry.mu

	// idleSince is written by the current owner only.
	idleSince time.Time
	ws        *wsSession
}

type registry struct {
	mu     sync.Mutex
	nextID uint64
	conns  map[uint64]*connEntry
	counts [stateClosed]int64
}

func newRegistry() *registry {
	return &registry{conns: make(map[uint64]*connEntry)}
}

// add registers c as active.
func (r *registry) add(c *transport.Conn) *connEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e := &connEntry{id: r.nextID, conn: c, state: stateActive, idleSince: c.AcceptedAt()}
	r.conns[e.id] = e
	r.counts[stateActive]++
	return e
}

// move transfers e from one state to another. It fails when e is no
// longer in from, which makes each transition happen at most once.
func (r *registry) move(e *connEntry, from, to connState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.state != from {
		return false
	}
	r.counts[from]--
	e.state = to
	if to == stateClosed {
		delete(r.conns, e.id)
	} else {
		r.counts[to]++
	}
	return true
}

// remove marks e closed whatever its state. It reports false when e was
// already closed.
func (r *registry) remove(e *connEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.state == stateClosed {
		return false
	}
	r.counts[e.state]--
	e.state = stateClosed
	delete(r.conns, e.id)
	return true
}

// drain closes the registry's view of every connection and returns them.
func (r *registry) drain() []*connEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*connEntry, 0, len(r.conns))
	for id, e := range r.conns {
		r.counts[e.state]--
		e.state = stateClosed
		delete(r.conns, id)
		out = append(out, e)
	}
	return out
}

func (r *registry) sizes() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.counts))
	for st, n := range r.counts {
		out[connState(st).String()] = n
	}
	return out
}
