// File: api/application.go
// Package api defines the contract between the server core and the
// application it hosts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import (
	"log/slog"

	"github.com/momentics/hioload-httpd/http1"
)

// Server is the view of the hosting server an application receives.
type Server interface {
	Logger() *slog.Logger
	Stats() map[string]int64
	Debug() Debug
}

// Application handles one request. The result is one of:
//
//	nil             empty body
//	[]byte, string  immediate body
//	io.Reader       streamed body, closed afterwards if it is an io.Closer
//	*Comet          deferred completion
//	*WebSocket      protocol upgrade
//
// A returned error is answered with the status of an *http1.StatusError,
// or 500.
type Application interface {
	Process(srv Server, req *http1.Request, hdr *http1.ResponseHeader) (any, error)
}

// ApplicationFunc adapts a function to Application.
type ApplicationFunc func(srv Server, req *http1.Request, hdr *http1.ResponseHeader) (any, error)

// Process implements Application.
func (f ApplicationFunc) Process(srv Server, req *http1.Request, hdr *http1.ResponseHeader) (any, error) {
	return f(srv, req, hdr)
}

// Middleware wraps an Application.
type Middleware func(Application) Application

// Chain wraps app so that the first middleware is the outermost.
func Chain(app Application, mw ...Middleware) Application {
	for i := len(mw) - 1; i >= 0; i-- {
		app = mw[i](app)
	}
	return app
}
