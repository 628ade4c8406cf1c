// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/transport"
)

// Config holds all server-side configuration parameters.
type Config struct {
	Addrs             []string      // TCP bind addresses, e.g. ":8080", "[::]:8080"
	Workers           int           // executor workers (0 = runtime.NumCPU())
	MaxPendingTasks   int           // executor queue bound (0 = unbounded)
	ReceiveBufferSize int           // per-connection receive buffer
	KeepAliveTimeout  time.Duration // idle time before a parked connection is closed
	ShutdownTimeout   time.Duration // grace for sweepers and workers on Close

	KeepAliveSweepTimeout time.Duration // readiness wait of the keep-alive sweeper
	AcceptTimeout         time.Duration // readiness wait of the accept loop
	CometSweepInterval    time.Duration // upper bound of one comet wait
	WebSocketSweepTimeout time.Duration // readiness wait of the websocket sweeper
	FrameReadTimeout      time.Duration // read deadline while decoding frames
	MaxFramePayload       int64         // largest accepted websocket payload
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		Addrs:             []string{":8080"},
		Workers:           0,
		MaxPendingTasks:   0,
		ReceiveBufferSize: transport.DefaultBufferSize,
		KeepAliveTimeout:  120 * time.Second,
		ShutdownTimeout:   time.Second,

		KeepAliveSweepTimeout: 10 * time.Second,
		AcceptTimeout:         time.Second,
		CometSweepInterval:    500 * time.Millisecond,
		WebSocketSweepTimeout: time.Second,
		FrameReadTimeout:      5 * time.Second,
		MaxFramePayload:       protocol.MaxFramePayload,
	}
}

// Validate rejects negative settings and fills zero values from
// DefaultConfig.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if len(c.Addrs) == 0 {
		return errors.New("config: no listen address")
	}
	ints := []struct {
		name string
		v    *int
		def  int
	}{
		{"Workers", &c.Workers, def.Workers},
		{"MaxPendingTasks", &c.MaxPendingTasks, def.MaxPendingTasks},
		{"ReceiveBufferSize", &c.ReceiveBufferSize, def.ReceiveBufferSize},
	}
	for _, f := range ints {
		if *f.v < 0 {
			return fmt.Errorf("config: %s must not be negative", f.name)
		}
		if *f.v == 0 {
			*f.v = f.def
		}
	}
	durations := []struct {
		name string
		v    *time.Duration
		def  time.Duration
	}{
		{"KeepAliveTimeout", &c.KeepAliveTimeout, def.KeepAliveTimeout},
		{"ShutdownTimeout", &c.ShutdownTimeout, def.ShutdownTimeout},
		{"KeepAliveSweepTimeout", &c.KeepAliveSweepTimeout, def.KeepAliveSweepTimeout},
		{"AcceptTimeout", &c.AcceptTimeout, def.AcceptTimeout},
		{"CometSweepInterval", &c.CometSweepInterval, def.CometSweepInterval},
		{"WebSocketSweepTimeout", &c.WebSocketSweepTimeout, def.WebSocketSweepTimeout},
		{"FrameReadTimeout", &c.FrameReadTimeout, def.FrameReadTimeout},
	}
	for _, f := range durations {
		if *f.v < 0 {
			return fmt.Errorf("config: %s must not be negative", f.name)
		}
		if *f.v == 0 {
			*f.v = f.def
		}
	}
	if c.MaxFramePayload < 0 {
		return errors.New("config: MaxFramePayload must not be negative")
	}
	if c.MaxFramePayload == 0 {
		c.MaxFramePayload = def.MaxFramePayload
	}
	return nil
}

func (c *Config) clone() *Config {
	cp := *c
	cp.Addrs = append([]string(nil), c.Addrs...)
	return &cp
}
