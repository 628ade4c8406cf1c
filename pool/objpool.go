// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import "sync"

// ObjectPool is a generic object pool.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

// SyncPool wraps sync.Pool for generic usage. An optional reset hook runs
// on every Put, so callers always Get a clean object.
type SyncPool[T any] struct {
	pool  *sync.Pool
	reset func(T)
}

// NewSyncPool creates a new SyncPool with a creator function.
func NewSyncPool[T any](creator func() T) *SyncPool[T] {
	return &SyncPool[T]{
		pool: &sync.Pool{New: func() any { return creator() }},
	}
}

// WithReset installs fn as the reset hook and returns sp.
func (sp *SyncPool[T]) WithReset(fn func(T)) *SyncPool[T] {
	sp.reset = fn
	return sp
}

// Get returns a pooled object or a fresh one.
func (sp *SyncPool[T]) Get() T {
	return sp.pool.Get().(T)
}

// Put resets obj and returns it to the pool.
func (sp *SyncPool[T]) Put(obj T) {
	if sp.reset != nil {
		sp.reset(obj)
	}
	sp.pool.Put(obj)
}

var _ ObjectPool[int] = (*SyncPool[int])(nil)
