// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error values shared by the server and application code.

package api

import "errors"

var (
	// ErrServerClosed is returned by Start and Run after Close.
	ErrServerClosed = errors.New("server closed")

	// ErrMissingWebSocketKey means an upgrade was attempted without
	// a Sec-WebSocket-Key request header.
	ErrMissingWebSocketKey = errors.New("missing Sec-WebSocket-Key header")

	// ErrNotUpgradeRequest means an upgrade was attempted on a request that
	// does not ask for one.
	ErrNotUpgradeRequest = errors.New("request is not a websocket upgrade")

	// ErrSessionNotAttached is returned by sends issued before the
	// handshake response was written.
	ErrSessionNotAttached = errors.New("websocket session not attached")

	// ErrSessionClosed is returned by sends on a closed session.
	ErrSessionClosed = errors.New("websocket session closed")

	// ErrInvalidWebSocket means an upgrade result whose response header
	// is not a 101 handshake, typically one not built by NewWebSocket.
	ErrInvalidWebSocket = errors.New("websocket result without a 101 handshake")

	// ErrInvalidComet means a comet result lacks a completion handler.
	ErrInvalidComet = errors.New("comet without handler")
)
