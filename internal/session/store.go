// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe session store with idle expiry.

package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Store holds sessions in power-of-two shards selected by id hash.
type Store struct {
	shards []*shard
	mask   uint32
	ttl    time.Duration
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore constructs a store with shardCount shards (default 16) whose
// sessions expire after ttl without access. ttl <= 0 disables expiry.
func NewStore(shardCount int, ttl time.Duration) *Store {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard, m)
	for i := range shards {
		shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return &Store{shards: shards, mask: m - 1, ttl: ttl}
}

func (st *Store) shard(id string) *shard {
	return st.shards[fnv32(id)&st.mask]
}

func (st *Store) expired(s *Session, now time.Time) bool {
	return st.ttl > 0 && now.Sub(s.LastSeen()) > st.ttl
}

// GetOrCreate returns the live session for id, creating it when missing or
// expired. created reports whether a new session was made.
func (st *Store) GetOrCreate(id string) (s *Session, created bool) {
	now := time.Now()
	sh := st.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok := sh.sessions[id]; ok {
		if !st.expired(s, now) {
			s.touch(now)
			return s, false
		}
		s.Cancel()
	}
	s = newSession(id, now)
	sh.sessions[id] = s
	return s, true
}

// Get fetches a live session and refreshes its access time.
func (st *Store) Get(id string) (*Session, bool) {
	now := time.Now()
	sh := st.shard(id)
	sh.mu.RLock()
	s, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if !ok || st.expired(s, now) {
		return nil, false
	}
	s.touch(now)
	return s, true
}

// Delete cancels and removes the session.
func (st *Store) Delete(id string) {
	sh := st.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok := sh.sessions[id]; ok {
		s.Cancel()
		delete(sh.sessions, id)
	}
}

// Len returns the number of stored sessions, expired ones included until
// the next Sweep.
func (st *Store) Len() int {
	n := 0
	for _, sh := range st.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Sweep removes sessions idle for longer than the ttl and returns how many.
func (st *Store) Sweep(now time.Time) int {
	if st.ttl <= 0 {
		return 0
	}
	removed := 0
	for _, sh := range st.shards {
		sh.mu.Lock()
		for id, s := range sh.sessions {
			if st.expired(s, now) {
				s.Cancel()
				delete(sh.sessions, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			st.Sweep(now)
		}
	}
}

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
