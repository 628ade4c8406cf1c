// File: server/server.go
// Package server implements the connection lifecycle core: the accept
// loop, the worker pipeline and the keep-alive, comet and websocket
// sweepers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/control"
	"github.com/momentics/hioload-httpd/internal/concurrency"
	"github.com/momentics/hioload-httpd/reactor"
	"github.com/momentics/hioload-httpd/transport/tcp"
)

// ErrAlreadyRunning is returned by Start on a started server.
var ErrAlreadyRunning = errors.New("server already running")

// Server hosts one Application over raw TCP connections.
type Server struct {
	cfg        *Config
	logger     *slog.Logger
	app        api.Application
	middleware []api.Middleware
	errApp     api.Application
	cpus       []int

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	metrics        *control.Metrics
	debug          *control.DebugProbes

	reg       *registry
	exec      *concurrency.Executor
	listeners []*tcp.Listener
	accept    *reactor.Poller
	keepAlive *keepAliveSet
	comets    *cometSet
	sockets   *wsSet

	mu        sync.Mutex
	started   bool
	closed    atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New builds a server for app. cfg may be nil for DefaultConfig; it is
// copied, so later changes by the caller have no effect.
func New(app api.Application, cfg *Config, opts ...Option) (*Server, error) {
	if app == nil {
		return nil, errors.New("server: nil application")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		cfg:            cfg.clone(),
		logger:         slog.Default(),
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
		debug:          control.NewDebugProbes(),
		reg:            newRegistry(),
		done:           make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	s.normalizeCPUs()
	s.app = api.Chain(app, s.middleware...)
	s.tracer = s.tracerProvider.Tracer(control.ScopeName)

	var err error
	if s.metrics, err = control.NewMetrics(s.meterProvider, s.reg.sizes); err != nil {
		return nil, fmt.Errorf("server: metrics: %w", err)
	}
	if s.accept, err = reactor.NewPoller(); err != nil {
		s.metrics.Close()
		return nil, fmt.Errorf("server: accept poller: %w", err)
	}
	if s.keepAlive, err = newKeepAliveSet(); err != nil {
		s.metrics.Close()
		s.accept.Close()
		return nil, fmt.Errorf("server: keep-alive poller: %w", err)
	}
	if s.sockets, err = newWSSet(); err != nil {
		s.metrics.Close()
		s.accept.Close()
		s.keepAlive.close()
		return nil, fmt.Errorf("server: websocket poller: %w", err)
	}
	s.comets = newCometSet()

	s.debug.RegisterProbe("connections", func() any { return s.reg.sizes() })
	s.debug.RegisterProbe("wait_sets", func() any {
		return map[string]int{
			"keepalive": s.keepAlive.len(),
			"comet":     s.comets.len(),
			"websocket": s.sockets.len(),
		}
	})
	s.debug.RegisterProbe("config", func() any { return *s.cfg })
	s.debug.RegisterProbe("executor", func() any {
		if s.exec == nil {
			return nil
		}
		return s.exec.Stats()
	})
	return s, nil
}

// Start binds the listening sockets and launches the accept loop, the
// sweepers and the workers. It returns once the server is accepting.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return api.ErrServerClosed
	}
	if s.started {
		return ErrAlreadyRunning
	}

	listeners, err := tcp.Listen(ctx, s.cfg.Addrs, s.logger)
	if err != nil {
		return err
	}
	for _, l := range listeners {
		if err := s.accept.Add(l.Fd()); err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return fmt.Errorf("server: watch listener: %w", err)
		}
	}
	s.listeners = listeners
	s.exec = concurrency.NewExecutor(s.cfg.Workers, s.cfg.MaxPendingTasks, func(r any) {
		s.logger.Error("worker panic", "panic", r)
	})
	s.started = true

	s.wg.Add(4)
	go s.acceptLoop()
	go s.keepAliveLoop()
	go s.cometLoop()
	go s.webSocketLoop()

	s.logger.Info("server started",
		"addrs", s.cfg.Addrs,
		"workers", s.exec.NumWorkers(),
		"keepalive", s.cfg.KeepAliveTimeout,
		"cpus", s.cpus)
	return nil
}

// Run starts the server and blocks until ctx is cancelled, then closes it.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return s.Close()
}

// Addrs returns the bound listening addresses.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]net.Addr, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l.Addr())
	}
	return out
}

// Close stops accepting, wakes and joins the sweepers, stops the workers
// and closes every connection. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)

		s.mu.Lock()
		listeners := s.listeners
		exec := s.exec
		s.mu.Unlock()

		var errs []error
		for _, l := range listeners {
			_ = s.accept.Remove(l.Fd())
			if err := l.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		_ = s.accept.Wake()
		_ = s.keepAlive.poller.Wake()
		_ = s.sockets.poller.Wake()
		s.comets.notify()

		joined := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(joined)
		}()
		select {
		case <-joined:
		case <-time.After(s.cfg.ShutdownTimeout):
			s.logger.Warn("sweepers did not stop in time", "grace", s.cfg.ShutdownTimeout)
		}

		if exec != nil {
			if dropped, err := exec.Close(s.cfg.ShutdownTimeout); err != nil {
				s.logger.Warn("executor shutdown", "dropped", dropped, "err", err)
			}
		}

		for _, e := range s.reg.drain() {
			if e.ws != nil {
				e.ws.closed.Store(true)
				e.ws.ws.MarkClosed()
			}
			_ = e.conn.Close()
			s.metrics.ConnClosed(context.Background())
		}
		s.comets.drain()

		errs = append(errs,
			s.accept.Close(),
			s.keepAlive.close(),
			s.sockets.close(),
			s.metrics.Close())
		s.closeErr = errors.Join(errs...)
		s.logger.Info("server stopped")
	})
	return s.closeErr
}

// Logger implements api.Server.
func (s *Server) Logger() *slog.Logger { return s.logger }

// Debug implements api.Server.
func (s *Server) Debug() api.Debug { return s.debug }

// Stats implements api.Server. It merges the event counters, the
// executor statistics and the number of connections per state.
func (s *Server) Stats() map[string]int64 {
	out := s.metrics.Snapshot()
	s.mu.Lock()
	exec := s.exec
	s.mu.Unlock()
	if exec != nil {
		for k, v := range exec.Stats() {
			out["executor_"+k] = v
		}
	}
	for k, v := range s.reg.sizes() {
		out["connections_"+k] = v
	}
	return out
}
