// File: server/respond.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Response finalization, error responses and the keep-alive decision.

package server

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/http1"
)

// respond acts on a pipeline outcome for an active connection.
func (s *Server) respond(e *connEntry, req *http1.Request, hdr *http1.ResponseHeader, res any, err error, start time.Time) {
	if err == nil {
		switch v := res.(type) {
		case *api.Comet:
			if err = s.suspend(e, req, hdr, v); err == nil {
				return
			}
		case *api.WebSocket:
			if hdr.Status() != http1.StatusSwitchingProtocols {
				v.MarkClosed()
				err = api.ErrInvalidWebSocket
				break
			}
			s.upgrade(e, req, hdr, v)
			s.observe(req, hdr.Status(), start)
			return
		}
	}

	var sent bool
	if err == nil {
		sent, err = s.finalize(e, req, hdr, res)
	}
	if err != nil {
		if sent || hdr.Sealed() {
			s.logger.Debug("response aborted", "conn", e.id, "err", err)
			s.observe(req, hdr.Status(), start)
			s.closeEntry(e)
			return
		}
		hdr, sent, err = s.respondError(e, req, err)
		if err != nil {
			s.logger.Debug("error response failed", "conn", e.id, "err", err)
			s.closeEntry(e)
			return
		}
	}
	s.observe(req, hdr.Status(), start)
	s.afterResponse(e, hdr, sent)
}

// finalize writes hdr and the body of an immediate or streamed result.
// sent reports whether the header reached the wire.
func (s *Server) finalize(e *connEntry, req *http1.Request, hdr *http1.ResponseHeader, res any) (sent bool, err error) {
	var (
		body   []byte
		stream io.Reader
	)
	switch v := res.(type) {
	case nil:
	case []byte:
		body = v
	case string:
		body = []byte(v)
	case io.Reader:
		stream = v
		if c, ok := v.(io.Closer); ok {
			defer c.Close()
		}
	default:
		return false, fmt.Errorf("unsupported result type %T", res)
	}

	bodyless := !http1.BodyAllowed(hdr.Status())
	switch {
	case bodyless:
		hdr.Del(http1.HeaderContentLength)
	case stream == nil:
		hdr.SetContentLength(int64(len(body)))
	default:
		if n, ok := streamLength(stream); ok {
			hdr.SetContentLength(n)
		} else {
			hdr.Del(http1.HeaderContentLength)
		}
	}
	if !bodyless {
		if _, ok := hdr.ContentLength(); !ok && !isChunked(hdr) {
			hdr.Set(http1.HeaderConnection, "close")
		}
	}
	if !hdr.KeepAlive() {
		hdr.Set(http1.HeaderConnection, "close")
	}

	wire := hdr.WireBytes()
	hdr.Seal()
	skipBody := bodyless || req.Method() == http1.MethodHead
	if !skipBody && stream == nil {
		wire = append(wire, body...)
	}
	if err := e.conn.Send(wire); err != nil {
		return false, err
	}
	if !skipBody && stream != nil {
		if _, err := e.conn.SendStream(stream); err != nil {
			return true, err
		}
	}
	return true, nil
}

// respondError answers a failed request with the status carried by err,
// or 500. The optional error application renders the body.
func (s *Server) respondError(e *connEntry, req *http1.Request, cause error) (*http1.ResponseHeader, bool, error) {
	code := http1.StatusInternalServerError
	if c, ok := http1.StatusCode(cause); ok {
		code = c
	}
	if code >= 500 {
		s.logger.Warn("request failed", "conn", e.id, "path", req.Path(), "status", code, "err", cause)
	} else {
		s.logger.Debug("request rejected", "conn", e.id, "path", req.Path(), "status", code, "err", cause)
	}

	hdr := http1.NewResponseHeader(req)
	hdr.SetStatus(code)
	var res any
	if s.errApp != nil && req.Method() != http1.MethodHead && http1.BodyAllowed(code) {
		out, err := s.invoke(s.errApp, req.WithContext(context.WithValue(req.Context(), errorKey{}, cause)), hdr)
		switch out.(type) {
		case nil, []byte, string, io.Reader:
		default:
			err = fmt.Errorf("unsupported error result type %T", out)
		}
		if err != nil {
			s.logger.Warn("error application failed", "conn", e.id, "err", err)
			hdr = http1.NewResponseHeader(req)
			hdr.SetStatus(code)
		} else {
			res = out
		}
	}
	sent, err := s.finalize(e, req, hdr, res)
	return hdr, sent, err
}

type errorKey struct{}

// RequestError returns the error being rendered by the error application.
func RequestError(req *http1.Request) error {
	err, _ := req.Context().Value(errorKey{}).(error)
	return err
}

// afterResponse closes the connection or keeps it for the next request.
func (s *Server) afterResponse(e *connEntry, hdr *http1.ResponseHeader, sent bool) {
	if !sent || !hdr.KeepAlive() || s.closed.Load() {
		s.closeEntry(e)
		return
	}
	e.idleSince = time.Now()
	if e.conn.Buffered() > 0 {
		s.dispatch(e)
		return
	}
	s.park(e)
}

// streamLength reports the remaining length of r when it is knowable.
func streamLength(r io.Reader) (int64, bool) {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len()), true
	case io.Seeker:
		cur, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, false
		}
		end, err := v.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, false
		}
		if _, err := v.Seek(cur, io.SeekStart); err != nil {
			return 0, false
		}
		return end - cur, true
	}
	return 0, false
}

func isChunked(hdr *http1.ResponseHeader) bool {
	return strings.Contains(strings.ToLower(hdr.Get(http1.HeaderTransferEncoding)), "chunked")
}
