// File: api/comet.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import (
	"time"

	"github.com/momentics/hioload-httpd/http1"
)

// CometHandler completes a deferred request. It runs exactly once, with
// timedOut set when the deadline passed before Wait was signalled. Its
// result is treated like an Application result.
type CometHandler func(c *Comet, timedOut bool) (any, error)

// Comet is a deferred (long-poll) result. The connection is parked until
// Wait becomes ready, by a send or by close, or Deadline passes.
// A nil Wait means the request completes on Deadline only.
type Comet struct {
	Wait     <-chan struct{}
	Deadline time.Time
	Handler  CometHandler
	Context  any

	Request  *http1.Request
	Response *http1.ResponseHeader
}

// NewComet builds a Comet for req that times out after timeout.
func NewComet(req *http1.Request, hdr *http1.ResponseHeader, wait <-chan struct{}, timeout time.Duration, ctx any, handler CometHandler) *Comet {
	return &Comet{
		Wait:     wait,
		Deadline: time.Now().Add(timeout),
		Handler:  handler,
		Context:  ctx,
		Request:  req,
		Response: hdr,
	}
}
