// File: internal/concurrency/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks to a fixed set of worker goroutines through a
// single FIFO guarded by a mutex and condition variable.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// PanicHandler receives the value recovered from a panicking task.
type PanicHandler func(recovered any)

// Executor manages a pool of worker goroutines.
type Executor struct {
	mu         sync.Mutex
	cond       *sync.Cond
	tasks      *queue.Queue // of TaskFunc
	maxPending int
	closed     bool
	onPanic    PanicHandler

	numWorkers int
	wg         sync.WaitGroup

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	rejectedTasks  atomic.Int64
	panics         atomic.Int64
}

// NewExecutor starts numWorkers workers. numWorkers <= 0 defaults to
// runtime.NumCPU(); maxPending <= 0 means the queue is unbounded.
// onPanic may be nil.
func NewExecutor(numWorkers, maxPending int, onPanic PanicHandler) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		tasks:      queue.New(),
		maxPending: maxPending,
		onPanic:    onPanic,
		numWorkers: numWorkers,
	}
	e.cond = sync.NewCond(&e.mu)
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go e.worker()
	}
	return e
}

// Submit enqueues a task for execution.
func (e *Executor) Submit(task TaskFunc) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.rejectedTasks.Add(1)
		return ErrExecutorClosed
	}
	if e.maxPending > 0 && e.tasks.Length() >= e.maxPending {
		e.mu.Unlock()
		e.rejectedTasks.Add(1)
		return ErrQueueFull
	}
	e.tasks.Add(task)
	e.mu.Unlock()
	e.totalTasks.Add(1)
	e.cond.Signal()
	return nil
}

// NumWorkers returns the number of workers.
func (e *Executor) NumWorkers() int { return e.numWorkers }

// Close stops accepting tasks, drops queued ones and waits up to grace for
// running tasks to finish. It returns the number of dropped tasks.
func (e *Executor) Close(grace time.Duration) (int, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, nil
	}
	e.closed = true
	dropped := e.tasks.Length()
	e.tasks = queue.New()
	e.mu.Unlock()
	e.cond.Broadcast()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return dropped, nil
	case <-time.After(grace):
		return dropped, ErrShutdownTimeout
	}
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	e.mu.Lock()
	pending := int64(e.tasks.Length())
	e.mu.Unlock()
	return map[string]int64{
		"total_tasks":     e.totalTasks.Load(),
		"completed_tasks": e.completedTasks.Load(),
		"rejected_tasks":  e.rejectedTasks.Load(),
		"panicked_tasks":  e.panics.Load(),
		"pending_tasks":   pending,
		"num_workers":     int64(e.numWorkers),
	}
}

// worker is the main loop of one executor goroutine.
func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for !e.closed && e.tasks.Length() == 0 {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		task := e.tasks.Remove().(TaskFunc)
		e.mu.Unlock()
		e.executeTask(task)
	}
}

// executeTask runs the task and updates statistics, recovering from panics.
func (e *Executor) executeTask(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			if e.onPanic != nil {
				e.onPanic(r)
			}
		}
		e.completedTasks.Add(1)
	}()
	task()
}
