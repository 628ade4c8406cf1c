// File: http1/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Mutable response head assembled by the application and rendered by the
// server. Not safe for concurrent use.

package http1

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// ResponseHeader holds the status, headers and cookies of a response.
// After Seal every mutator is a no-op.
type ResponseHeader struct {
	status  int
	headers map[string]string
	cookies []Cookie
	sealed  bool
}

// NewResponseHeader creates a 200 response head for req. Connection is
// copied from the request, else "close" for HTTP/1.0 and "Keep-Alive"
// otherwise. Date is set to the current time.
func NewResponseHeader(req *Request) *ResponseHeader {
	h := &ResponseHeader{
		status:  StatusOK,
		headers: make(map[string]string, 8),
	}
	conn, ok := "", false
	if req != nil {
		conn, ok = req.LookupHeader(HeaderConnection)
	}
	if !ok {
		if req != nil && !req.ProtoAtLeast(1, 1) {
			conn = "close"
		} else {
			conn = "Keep-Alive"
		}
	}
	h.headers[HeaderConnection] = conn
	h.headers[HeaderDate] = time.Now().UTC().Format(TimeFormat)
	return h
}

// Status returns the response status code.
func (h *ResponseHeader) Status() int { return h.status }

// SetStatus sets the response status code.
func (h *ResponseHeader) SetStatus(code int) {
	if h.sealed {
		return
	}
	h.status = code
}

// Get returns the named header or "".
func (h *ResponseHeader) Get(name string) string {
	return h.headers[CanonicalHeaderName(name)]
}

// Lookup returns the named header and whether it is set.
func (h *ResponseHeader) Lookup(name string) (string, bool) {
	v, ok := h.headers[CanonicalHeaderName(name)]
	return v, ok
}

// Set stores a header, replacing any previous value. Empty values are kept
// but not rendered.
func (h *ResponseHeader) Set(name, value string) {
	if h.sealed {
		return
	}
	h.headers[CanonicalHeaderName(name)] = value
}

// Del removes a header.
func (h *ResponseHeader) Del(name string) {
	if h.sealed {
		return
	}
	delete(h.headers, CanonicalHeaderName(name))
}

// SetContentLength sets Content-Length to n.
func (h *ResponseHeader) SetContentLength(n int64) {
	h.Set(HeaderContentLength, strconv.FormatInt(n, 10))
}

// ContentLength returns the parsed Content-Length header.
func (h *ResponseHeader) ContentLength() (int64, bool) {
	v, ok := h.headers[HeaderContentLength]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// KeepAlive reports whether the Connection header carries a keep-alive
// token. Any other value, including a copied "Upgrade", means close.
func (h *ResponseHeader) KeepAlive() bool {
	return headerHasToken(h.headers[HeaderConnection], "keep-alive")
}

// AddCookie appends a Set-Cookie entry.
func (h *ResponseHeader) AddCookie(c *Cookie) {
	if h.sealed || c == nil {
		return
	}
	h.cookies = append(h.cookies, *c)
}

// Cookies returns a copy of the cookies added so far, in order.
func (h *ResponseHeader) Cookies() []Cookie { return slices.Clone(h.cookies) }

// Seal freezes the header; it is called once the bytes hit the wire.
func (h *ResponseHeader) Seal() { h.sealed = true }

// Sealed reports whether the header was already sent.
func (h *ResponseHeader) Sealed() bool { return h.sealed }

// WireBytes renders the status line, the non-empty headers in name order,
// one Set-Cookie line per cookie and the terminating empty line.
func (h *ResponseHeader) WireBytes() []byte {
	names := make([]string, 0, len(h.headers))
	for name, v := range h.headers {
		if v != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	b := make([]byte, 0, 256)
	b = append(b, "HTTP/1.1 "...)
	b = strconv.AppendInt(b, int64(h.status), 10)
	b = append(b, ' ')
	b = append(b, StatusText(h.status)...)
	b = append(b, "\r\n"...)
	for _, name := range names {
		b = append(b, name...)
		b = append(b, ": "...)
		b = append(b, h.headers[name]...)
		b = append(b, "\r\n"...)
	}
	for i := range h.cookies {
		c := &h.cookies[i]
		b = append(b, HeaderSetCookie...)
		b = append(b, ": "...)
		b = append(b, c.String()...)
		if c.Path != "" {
			b = append(b, "; path="...)
			b = append(b, c.Path...)
		}
		b = append(b, "\r\n"...)
	}
	return append(b, "\r\n"...)
}
