// File: server/pin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"runtime"

	"github.com/momentics/hioload-httpd/affinity"
	"github.com/momentics/hioload-httpd/internal/normalize"
)

// Loop slots used for round-robin CPU assignment.
const (
	slotAccept = iota
	slotKeepAlive
	slotComet
	slotWebSocket
)

// normalizeCPUs drops CPU indices the machine does not have.
func (s *Server) normalizeCPUs() {
	if len(s.cpus) == 0 {
		return
	}
	valid, rejected := normalize.CPUSet(s.cpus, runtime.NumCPU())
	if len(rejected) > 0 {
		s.logger.Warn("ignoring unknown cpus", "cpus", rejected, "available", runtime.NumCPU())
	}
	s.cpus = valid
}

// cpuFor returns the CPU assigned to slot.
func (s *Server) cpuFor(slot int) (int, bool) {
	if len(s.cpus) == 0 {
		return 0, false
	}
	return s.cpus[slot%len(s.cpus)], true
}

// pin binds the calling loop goroutine to the CPU of slot. A pinned
// loop keeps its OS thread locked until it returns.
func (s *Server) pin(slot int, name string) {
	cpu, ok := s.cpuFor(slot)
	if !ok {
		return
	}
	if err := affinity.Pin(cpu); err != nil {
		s.logger.Warn("cpu pinning failed", "loop", name, "cpu", cpu, "err", err)
		return
	}
	s.logger.Debug("loop pinned", "loop", name, "cpu", cpu)
}
