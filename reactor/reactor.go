// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral types shared by the poller implementations.

package reactor

import "errors"

// ErrUnsupported is returned by every operation on platforms without a
// poller implementation.
var ErrUnsupported = errors.New("reactor: this platform is not supported")

// ErrClosed is returned by operations on a closed poller.
var ErrClosed = errors.New("reactor: poller closed")

// Event is one readiness notification returned by Poller.Wait.
type Event struct {
	Fd       int
	Readable bool
	Hangup   bool // peer closed its side or the socket errored
}

// Readiness is the outcome of Probe.
type Readiness int

const (
	// NotReady means no bytes are pending and the peer is still connected.
	NotReady Readiness = iota
	// DataReady means at least one byte can be read without blocking.
	DataReady
	// PeerClosed means the socket is readable with nothing pending.
	PeerClosed
)

func (r Readiness) String() string {
	switch r {
	case NotReady:
		return "not-ready"
	case DataReady:
		return "data-ready"
	case PeerClosed:
		return "peer-closed"
	}
	return "unknown"
}
