// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deadline-ordered queue with O(log n) removal of arbitrary entries.

package concurrency

import (
	"container/heap"
	"time"
)

// Timer is the handle of one queued item.
type Timer[T any] struct {
	Value    T
	Deadline time.Time
	index    int // position in the heap, -1 once removed
}

// Queued reports whether the timer is still in its queue.
func (t *Timer[T]) Queued() bool { return t.index >= 0 }

// DeadlineQueue keeps items ordered by deadline. Not safe for concurrent
// use; callers hold their own lock.
type DeadlineQueue[T any] struct {
	h timerHeap[T]
}

// Len returns the number of queued items.
func (q *DeadlineQueue[T]) Len() int { return len(q.h) }

// Push queues v for deadline and returns its handle.
func (q *DeadlineQueue[T]) Push(v T, deadline time.Time) *Timer[T] {
	t := &Timer[T]{Value: v, Deadline: deadline}
	heap.Push(&q.h, t)
	return t
}

// Remove drops t from the queue; it reports false if t was not queued.
func (q *DeadlineQueue[T]) Remove(t *Timer[T]) bool {
	if t == nil || t.index < 0 || t.index >= len(q.h) || q.h[t.index] != t {
		return false
	}
	heap.Remove(&q.h, t.index)
	return true
}

// Next returns the earliest deadline.
func (q *DeadlineQueue[T]) Next() (time.Time, bool) {
	if len(q.h) == 0 {
		return time.Time{}, false
	}
	return q.h[0].Deadline, true
}

// PopExpired removes and returns every item whose deadline is not after now,
// earliest first.
func (q *DeadlineQueue[T]) PopExpired(now time.Time) []T {
	var out []T
	for len(q.h) > 0 && !q.h[0].Deadline.After(now) {
		t := heap.Pop(&q.h).(*Timer[T])
		out = append(out, t.Value)
	}
	return out
}

// Drain removes and returns all items in deadline order.
func (q *DeadlineQueue[T]) Drain() []T {
	out := make([]T, 0, len(q.h))
	for len(q.h) > 0 {
		out = append(out, heap.Pop(&q.h).(*Timer[T]).Value)
	}
	return out
}

// timerHeap implements heap.Interface.
type timerHeap[T any] []*Timer[T]

func (h timerHeap[T]) Len() int           { return len(h) }
func (h timerHeap[T]) Less(i, j int) bool { return h[i].Deadline.Before(h[j].Deadline) }
func (h timerHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap[T]) Push(x any) {
	t := x.(*Timer[T])
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap[T]) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
