// File: cmd/hioload-httpd/main.go
// Package main
// Demo server: Hello World behind the compression decorator, a long-poll
// message board, a WebSocket echo and a session hit counter.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/middleware"
	"github.com/momentics/hioload-httpd/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "hioload-httpd:", err)
		os.Exit(1)
	}
}

func run() error {
	addrs := flag.String("addr", ":8080", "comma-separated listen addresses, e.g. 0.0.0.0:8080,[::1]:8080")
	workers := flag.Int("workers", 0, "worker goroutines (0 = number of CPUs)")
	keepAlive := flag.Duration("keepalive", 120*time.Second, "idle keep-alive timeout")
	pollTimeout := flag.Duration("poll-timeout", 30*time.Second, "long-poll timeout of /poll")
	sessionTTL := flag.Duration("session-ttl", 30*time.Minute, "idle session lifetime")
	pin := flag.String("pin", "", "comma-separated CPUs for the accept loop and sweepers")
	otlp := flag.String("otlp", "", "OTLP/gRPC collector host:port (empty disables export)")
	debug := flag.Bool("debug", false, "log per-connection events")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []server.Option{
		server.WithWorkers(*workers),
		server.WithKeepAliveTimeout(*keepAlive),
		server.WithErrorApplication(api.ApplicationFunc(errorPage)),
	}

	if *otlp != "" {
		tel, err := setupTelemetry(ctx, *otlp, 15*time.Second)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tel.shutdown(sctx); err != nil {
				logger.Error("telemetry shutdown", "err", err)
			}
		}()
		logger = tel.logger
		opts = append(opts,
			server.WithMeterProvider(tel.meterProvider),
			server.WithTracerProvider(tel.tracerProvider))
	}

	if *pin != "" {
		cpus, err := parseCPUs(*pin)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithCPUAffinity(cpus...))
	}

	sessions := middleware.NewSessions(*sessionTTL)
	go sessions.Run(ctx, time.Minute)

	opts = append(opts,
		server.WithLogger(logger),
		server.WithMiddleware(middleware.Recover, sessions.Middleware(), middleware.Compress))

	cfg := server.DefaultConfig()
	cfg.Addrs = strings.Split(*addrs, ",")

	srv, err := server.New(&demo{board: newBoard(), pollTimeout: *pollTimeout}, cfg, opts...)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func parseCPUs(s string) ([]int, error) {
	var cpus []int
	for _, f := range strings.Split(s, ",") {
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(f), "%d", &n); err != nil {
			return nil, fmt.Errorf("bad cpu %q: %w", f, err)
		}
		cpus = append(cpus, n)
	}
	return cpus, nil
}
