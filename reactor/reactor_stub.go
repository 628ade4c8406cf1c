//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import "time"

// Poller is unavailable on this platform.
type Poller struct{}

// NewPoller returns ErrUnsupported.
func NewPoller() (*Poller, error) { return nil, ErrUnsupported }

func (p *Poller) Add(fd int) error { return ErrUnsupported }
func (p *Poller) Remove(fd int) error { return ErrUnsupported }
func (p *Poller) Wait(events []Event, _ time.Duration) (int, error) { return 0, ErrUnsupported }
func (p *Poller) Wake() error { return ErrUnsupported }
func (p *Poller) Close() error { return nil }

// Probe returns ErrUnsupported.
func Probe(fd int) (Readiness, error) { return NotReady, ErrUnsupported }

// Pending returns ErrUnsupported.
func Pending(fd int) (int, error) { return 0, ErrUnsupported }
