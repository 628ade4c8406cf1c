// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrExecutorClosed indicates the executor has been shut down
	ErrExecutorClosed = errors.New("executor is closed")

	// ErrQueueFull indicates the pending task limit was reached
	ErrQueueFull = errors.New("executor queue is full")

	// ErrShutdownTimeout indicates workers did not stop within the grace period
	ErrShutdownTimeout = errors.New("executor shutdown timed out")
)
