// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package transport wraps accepted sockets with the fixed-size receive
// buffer the request parser and the frame decoder read from.
package transport

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// DefaultBufferSize is the receive buffer size used when none is given.
const DefaultBufferSize = 1024

// Conn is one accepted connection. Reads are not safe for concurrent use:
// exactly one owner (a worker or a sweeper) reads at a time. Sends are
// serialized internally.
type Conn struct {
	nc  net.Conn
	buf []byte
	r   int // read cursor
	w   int // fill offset

	fd         int
	acceptedAt time.Time

	wmu    sync.Mutex
	closed atomic.Bool
}

// NewConn wraps nc with a receive buffer of bufSize bytes. The descriptor
// is captured for readiness polling; it is -1 for sockets without one.
func NewConn(nc net.Conn, bufSize int) *Conn {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	c := &Conn{
		nc:         nc,
		buf:        make([]byte, bufSize),
		fd:         -1,
		acceptedAt: time.Now(),
	}
	if sc, ok := nc.(syscall.Conn); ok {
		if raw, err := sc.SyscallConn(); err == nil {
			_ = raw.Control(func(fd uintptr) { c.fd = int(fd) })
		}
	}
	return c
}

// fill refills the buffer; it is only called once the buffer is drained.
func (c *Conn) fill() error {
	n, err := c.nc.Read(c.buf)
	c.r, c.w = 0, n
	if n > 0 {
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}

// ReceiveByte returns the next byte; io.EOF once the peer closed.
func (c *Conn) ReceiveByte() (byte, error) {
	if c.r == c.w {
		if err := c.fill(); err != nil {
			return 0, err
		}
	}
	b := c.buf[c.r]
	c.r++
	return b, nil
}

// ReceiveExact fills p. On disconnect it returns the bytes read so far and
// io.EOF (nothing read) or io.ErrUnexpectedEOF (partial).
func (c *Conn) ReceiveExact(p []byte) (int, error) {
	n := copy(p, c.buf[c.r:c.w])
	c.r += n
	for n < len(p) {
		rest := p[n:]
		if len(rest) >= len(c.buf) {
			m, err := io.ReadFull(c.nc, rest)
			n += m
			if err != nil {
				return n, eofOrUnexpected(n, err)
			}
			continue
		}
		if err := c.fill(); err != nil {
			return n, eofOrUnexpected(n, err)
		}
		m := copy(rest, c.buf[c.r:c.w])
		c.r += m
		n += m
	}
	return n, nil
}

func eofOrUnexpected(n int, err error) error {
	if err == io.EOF && n > 0 {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Send writes p completely or fails.
func (c *Conn) Send(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.nc.Write(p)
	return err
}

// SendStream copies r to the socket until EOF.
func (c *Conn) SendStream(r io.Reader) (int64, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return io.Copy(c.nc, r)
}

// Buffered returns the number of received bytes not yet consumed.
func (c *Conn) Buffered() int { return c.w - c.r }

// Fd returns the socket descriptor or -1.
func (c *Conn) Fd() int { return c.fd }

// AcceptedAt returns the time the connection was wrapped.
func (c *Conn) AcceptedAt() time.Time { return c.acceptedAt }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// SetReadDeadline bounds the next reads; the zero time clears it.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.nc.SetReadDeadline(t) }

// Closed reports whether Close was called.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Close shuts down both directions and closes the socket. Errors are
// swallowed and repeated calls are no-ops.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if tc, ok := c.nc.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
		_ = tc.CloseRead()
	}
	_ = c.nc.Close()
	return nil
}
