// File: http1/request.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Byte-level HTTP/1.x request parser and the immutable Request value.

package http1

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Request methods with special handling in the server core.
const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodDelete  = "DELETE"
	MethodOptions = "OPTIONS"
)

// Parser limits.
const (
	MaxLineLength = 16 << 10
	MaxHeaders    = 256
)

// Source is the byte-oriented input the parser reads from.
// transport.Conn implements it.
type Source interface {
	ReceiveByte() (byte, error)
	ReceiveExact(p []byte) (int, error)
	RemoteAddr() net.Addr
}

// Request is an HTTP request parsed from a Source. All accessors return
// copies; the only deferred part is the body, which is read from the
// source at most once.
type Request struct {
	method  string
	major   int
	minor   int
	url     *url.URL
	headers map[string]string
	query   map[string]string
	cookies map[string]string
	remote  net.Addr

	body *bodyState
	ctx  context.Context
}

type bodyState struct {
	mu   sync.Mutex
	src  Source
	done bool
	data []byte
	err  error
}

// ReadRequest parses one request head from src. Any violation, including a
// disconnect in the middle of a line, yields an error wrapping ErrMalformed.
// A disconnect before the first byte additionally matches io.EOF.
func ReadRequest(src Source) (*Request, error) {
	line := make([]byte, 0, 128)

	startLine, line, err := readLine(src, line)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(startLine, " ", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: start line %q", ErrMalformed, startLine)
	}
	major, minor, ok := parseVersion(parts[2])
	if !ok {
		return nil, fmt.Errorf("%w: version %q", ErrMalformed, parts[2])
	}

	req := &Request{
		method:  parts[0],
		major:   major,
		minor:   minor,
		headers: make(map[string]string),
		query:   make(map[string]string),
		cookies: make(map[string]string),
		remote:  src.RemoteAddr(),
		body:    &bodyState{src: src},
		ctx:     context.Background(),
	}

	for n := 0; ; n++ {
		var h string
		h, line, err = readLine(src, line)
		if err != nil {
			return nil, err
		}
		if h == "" {
			break
		}
		if n >= MaxHeaders {
			return nil, fmt.Errorf("%w: too many header lines", ErrMalformed)
		}
		pos := strings.IndexByte(h, ':')
		if pos <= 0 {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformed, h)
		}
		name := CanonicalHeaderName(strings.TrimRight(h[:pos], " \t"))
		req.headers[name] = strings.TrimLeft(h[pos+1:], " \t")
	}

	host, ok := req.headers[HeaderHost]
	if !ok || host == "" {
		host = "localhost"
	}
	if req.url, err = resolveURL(host, parts[1]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if req.url.RawQuery != "" {
		parseQuery(req.url.RawQuery, req.query)
	}
	if c, ok := req.headers[HeaderCookie]; ok {
		parseCookieHeader(c, req.cookies)
	}
	return req, nil
}

// readLine reads bytes up to CRLF, reusing buf as scratch space.
func readLine(src Source, buf []byte) (string, []byte, error) {
	buf = buf[:0]
	for {
		c, err := src.ReceiveByte()
		if err != nil {
			if len(buf) == 0 {
				return "", buf, fmt.Errorf("%w: %w", ErrMalformed, err)
			}
			return "", buf, fmt.Errorf("%w: disconnect mid-line", ErrMalformed)
		}
		switch c {
		case '\r':
			if next, err := src.ReceiveByte(); err != nil || next != '\n' {
				return "", buf, fmt.Errorf("%w: CR without LF", ErrMalformed)
			}
			return string(buf), buf, nil
		case '\n':
			return "", buf, fmt.Errorf("%w: bare LF", ErrMalformed)
		}
		if len(buf) >= MaxLineLength {
			return "", buf, fmt.Errorf("%w: line too long", ErrMalformed)
		}
		buf = append(buf, c)
	}
}

// parseVersion accepts exactly "HTTP/d.d".
func parseVersion(tok string) (major, minor int, ok bool) {
	if len(tok) != 8 || !strings.HasPrefix(tok, "HTTP/") || tok[6] != '.' {
		return 0, 0, false
	}
	if !isDigit(tok[5]) || !isDigit(tok[7]) {
		return 0, 0, false
	}
	return int(tok[5] - '0'), int(tok[7] - '0'), true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// resolveURL builds the absolute request URL from Host and the raw target.
// url.Parse strips the fragment at the first '#'.
func resolveURL(host, target string) (*url.URL, error) {
	if strings.HasPrefix(target, "/") {
		return url.Parse("http://" + host + target)
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("request target %q is not origin or absolute form", target)
	}
	return u, nil
}

// Method returns the request method as sent by the client.
func (r *Request) Method() string { return r.method }

// Proto returns the version token, e.g. "HTTP/1.1".
func (r *Request) Proto() string {
	return "HTTP/" + strconv.Itoa(r.major) + "." + strconv.Itoa(r.minor)
}

// ProtoAtLeast reports whether the request version is at least major.minor.
func (r *Request) ProtoAtLeast(major, minor int) bool {
	return r.major > major || (r.major == major && r.minor >= minor)
}

// URL returns a copy of the resolved request URL.
func (r *Request) URL() *url.URL {
	u := *r.url
	return &u
}

// Path returns the URL path.
func (r *Request) Path() string { return r.url.Path }

// Header returns the value of the named header or "".
func (r *Request) Header(name string) string {
	return r.headers[CanonicalHeaderName(name)]
}

// LookupHeader returns the named header and whether it was present.
func (r *Request) LookupHeader(name string) (string, bool) {
	v, ok := r.headers[CanonicalHeaderName(name)]
	return v, ok
}

// HeaderHasToken reports whether the comma separated header contains token.
func (r *Request) HeaderHasToken(name, token string) bool {
	v, ok := r.LookupHeader(name)
	return ok && headerHasToken(v, token)
}

// Headers returns a copy of the header map.
func (r *Request) Headers() map[string]string { return copyMap(r.headers) }

// Query returns the named query parameter or "".
func (r *Request) Query(name string) string { return r.query[name] }

// QueryData returns a copy of the query parameter map.
func (r *Request) QueryData() map[string]string { return copyMap(r.query) }

// Cookie returns the named request cookie.
func (r *Request) Cookie(name string) (string, bool) {
	v, ok := r.cookies[name]
	return v, ok
}

// Cookies returns a copy of the request cookie map.
func (r *Request) Cookies() map[string]string { return copyMap(r.cookies) }

// RemoteAddr returns the peer address of the connection.
func (r *Request) RemoteAddr() net.Addr { return r.remote }

// Context returns the request context; never nil.
func (r *Request) Context() context.Context { return r.ctx }

// WithContext returns a shallow copy of r carrying ctx. The copy shares
// the body with r, so the body is still read at most once.
func (r *Request) WithContext(ctx context.Context) *Request {
	if ctx == nil {
		panic("http1: nil context")
	}
	r2 := *r
	r2.ctx = ctx
	return &r2
}

// HasBody reports whether the request announces a body.
func (r *Request) HasBody() bool {
	for _, h := range []string{HeaderContentLength, HeaderTransferEncoding, HeaderContentType} {
		if _, ok := r.headers[h]; ok {
			return true
		}
	}
	return false
}

// Body reads the request body announced by Content-Length, at most max
// bytes. The outcome of the first call is cached and returned afterwards.
//
// Errors: ErrLengthRequired without a usable Content-Length, ErrBodyTooLarge
// above max, ErrBadRequest when the peer sends fewer bytes than declared.
func (r *Request) Body(max int) ([]byte, error) {
	b := r.body
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return b.data, b.err
	}

	size := -1
	if v, ok := r.headers[HeaderContentLength]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			size = n
		}
	}
	switch {
	case size == 0:
		b.data = []byte{}
	case size > max:
		b.err = fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, size, max)
	case size < 0:
		b.err = ErrLengthRequired
	default:
		data := make([]byte, size)
		if n, _ := b.src.ReceiveExact(data); n != size {
			b.err = ErrBadRequest
		} else {
			b.data = data
		}
	}
	b.done = true
	return b.data, b.err
}

// Form decodes an application/x-www-form-urlencoded body of at most max bytes.
func (r *Request) Form(max int) (map[string]string, error) {
	body, err := r.Body(max)
	if err != nil {
		return nil, err
	}
	return ParseURLEncoded(string(body)), nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ReaderSource adapts an io.Reader to Source, for parsing recorded traffic.
type ReaderSource struct {
	r      *bufio.Reader
	remote net.Addr
}

// NewReaderSource wraps r; remote may be nil.
func NewReaderSource(r io.Reader, remote net.Addr) *ReaderSource {
	return &ReaderSource{r: bufio.NewReader(r), remote: remote}
}

// ReceiveByte implements Source.
func (s *ReaderSource) ReceiveByte() (byte, error) { return s.r.ReadByte() }

// ReceiveExact implements Source.
func (s *ReaderSource) ReceiveExact(p []byte) (int, error) { return io.ReadFull(s.r, p) }

// RemoteAddr implements Source.
func (s *ReaderSource) RemoteAddr() net.Addr { return s.remote }
