// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
)

// ErrNoListeners is returned when none of the configured addresses bound.
var ErrNoListeners = errors.New("tcp: no address could be bound")

// Listener is a bound TCP listening socket with its descriptor.
type Listener struct {
	*net.TCPListener
	fd int
}

// Fd returns the listening descriptor or -1.
func (l *Listener) Fd() int { return l.fd }

// Listen binds every address in addrs. A failing address is logged and
// skipped; the call fails only when nothing could be bound.
func Listen(ctx context.Context, addrs []string, logger *slog.Logger) ([]*Listener, error) {
	var (
		lc   net.ListenConfig
		out  []*Listener
		errs []error
	)
	for _, addr := range addrs {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			logger.Error("listen failed", "addr", addr, "err", err)
			errs = append(errs, err)
			continue
		}
		tl := ln.(*net.TCPListener)
		l := &Listener{TCPListener: tl, fd: -1}
		if raw, err := tl.SyscallConn(); err == nil {
			_ = raw.Control(func(fd uintptr) { l.fd = int(fd) })
		}
		logger.Info("listening", "addr", tl.Addr().String(), "fd", l.fd)
		out = append(out, l)
	}
	if len(out) == 0 {
		if len(errs) == 0 {
			return nil, ErrNoListeners
		}
		return nil, fmt.Errorf("%w: %w", ErrNoListeners, errors.Join(errs...))
	}
	return out, nil
}
