// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session state with per-key expiry and cancellation.

package session

import (
	"sync"
	"sync/atomic"
	"time"
)

type entry struct {
	val    any
	expiry time.Time
}

// Session is the state bound to one session id. Safe for concurrent use.
type Session struct {
	id       string
	mu       sync.RWMutex
	values   map[string]entry
	lastSeen atomic.Int64 // unix nanos
	done     chan struct{}
	once     sync.Once
}

func newSession(id string, now time.Time) *Session {
	s := &Session{
		id:     id,
		values: make(map[string]entry),
		done:   make(chan struct{}),
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Set stores a value without expiry.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = entry{val: value}
}

// SetWithTTL stores a value that disappears after ttl.
func (s *Session) SetWithTTL(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = entry{val: value, expiry: time.Now().Add(ttl)}
}

// Get fetches a value, returning (value, exists).
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.values[key]
	if !ok || (!e.expiry.IsZero() && time.Now().After(e.expiry)) {
		return nil, false
	}
	return e.val, true
}

// Delete removes a key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Keys returns all keys that have not expired.
func (s *Session) Keys() []string {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k, e := range s.values {
		if e.expiry.IsZero() || !now.After(e.expiry) {
			keys = append(keys, k)
		}
	}
	return keys
}

// LastSeen returns the last time the session was looked up.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

func (s *Session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

// Cancel signals session teardown; idempotent.
func (s *Session) Cancel() {
	s.once.Do(func() { close(s.done) })
}

// Done returns a channel closed upon cancellation.
func (s *Session) Done() <-chan struct{} { return s.done }
