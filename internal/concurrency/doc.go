// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives of the server core: a fixed-size worker pool fed
// from an unbounded FIFO, and a deadline-ordered queue used by the comet
// sweeper.
package concurrency
