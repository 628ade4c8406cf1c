// File: server/process.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection processing on a worker: probe, parse, run the pipeline.

package server

import (
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/http1"
	"github.com/momentics/hioload-httpd/reactor"
)

// serve handles at most one request of an active connection.
func (s *Server) serve(e *connEntry) {
	c := e.conn
	if c.Buffered() == 0 {
		state, err := reactor.Probe(c.Fd())
		switch {
		case err != nil:
			s.logger.Debug("probe failed", "conn", e.id, "err", err)
			s.closeEntry(e)
			return
		case state == reactor.PeerClosed:
			s.closeEntry(e)
			return
		case state == reactor.NotReady:
			if time.Since(e.idleSince) > s.cfg.KeepAliveTimeout {
				s.logger.Debug("idle timeout", "conn", e.id)
				s.closeEntry(e)
				return
			}
			s.park(e)
			return
		}
	}

	req, err := http1.ReadRequest(c)
	if err != nil {
		s.logger.Debug("parse failed", "conn", e.id, "remote", c.RemoteAddr().String(), "err", err)
		s.closeEntry(e)
		return
	}
	s.handle(e, req)
}

// handle runs the pipeline for req inside a server span and acts on the
// result.
func (s *Server) handle(e *connEntry, req *http1.Request) {
	start := time.Now()
	ctx, span := s.tracer.Start(req.Context(), "HTTP "+req.Method(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method()),
			attribute.String("url.path", req.Path()),
			attribute.String("network.protocol.version", req.Proto()),
			attribute.String("client.address", e.conn.RemoteAddr().String()),
		))
	defer span.End()
	req = req.WithContext(ctx)

	hdr := http1.NewResponseHeader(req)
	res, err := s.invoke(s.app, req, hdr)
	s.respond(e, req, hdr, res, err, start)
}

// invoke calls app, turning a panic into a 500 error.
func (s *Server) invoke(app api.Application, req *http1.Request, hdr *http1.ResponseHeader) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("application panic",
				"path", req.Path(),
				"panic", r,
				"stack", string(debug.Stack()))
			res, err = nil, http1.NewStatusError(http1.StatusInternalServerError, fmt.Sprint(r))
		}
	}()
	return app.Process(s, req, hdr)
}

// observe records the outcome of req on its span and in the request
// metrics. Server errors mark the span as failed.
func (s *Server) observe(req *http1.Request, status int, start time.Time) {
	span := trace.SpanFromContext(req.Context())
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if status >= http1.StatusInternalServerError {
		span.SetStatus(codes.Error, http1.StatusText(status))
	}
	s.metrics.Request(req.Context(), req.Method(), status, time.Since(start))
}
