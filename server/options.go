// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/momentics/hioload-httpd/api"
)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkers sets the number of executor workers.
func WithWorkers(n int) Option {
	return func(s *Server) {
		s.cfg.Workers = n
	}
}

// WithKeepAliveTimeout sets how long an idle connection stays parked.
func WithKeepAliveTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.cfg.KeepAliveTimeout = d
	}
}

// WithMaxFramePayload bounds inbound websocket payloads.
func WithMaxFramePayload(n int64) Option {
	return func(s *Server) {
		s.cfg.MaxFramePayload = n
	}
}

// WithMiddleware attaches middleware in FIFO order: the first one is the
// outermost.
func WithMiddleware(mw ...api.Middleware) Option {
	return func(s *Server) {
		s.middleware = append(s.middleware, mw...)
	}
}

// WithErrorApplication sets the application rendering error bodies. It
// sees the request and a fresh header carrying the error status.
func WithErrorApplication(app api.Application) Option {
	return func(s *Server) {
		s.errApp = app
	}
}

// WithMeterProvider sets the provider of the server instruments. The
// default is the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Server) {
		if mp != nil {
			s.meterProvider = mp
		}
	}
}

// WithTracerProvider sets the provider of per-request spans. The default
// is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		if tp != nil {
			s.tracerProvider = tp
		}
	}
}

// WithCPUAffinity pins the accept loop and the three sweepers to the given
// CPUs, assigned round-robin. Indices outside the machine are dropped with
// a warning. Pinning is only effective on Linux.
func WithCPUAffinity(cpus ...int) Option {
	return func(s *Server) {
		s.cpus = append(s.cpus[:0], cpus...)
	}
}
