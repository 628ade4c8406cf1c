// File: protocol/handshake.go
// Package protocol implements the server side of the RFC 6455 opening
// handshake on top of the http1 request model.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"crypto/sha1"
	"encoding/base64"

	"github.com/momentics/hioload-httpd/http1"
)

// Constants used for handshake processing.
const (
	WebSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	RequiredWebSocketVersion = "13"
)

// AcceptKey computes Sec-WebSocket-Accept for a client key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// IsUpgradeRequest reports whether req asks for a WebSocket upgrade:
// a GET carrying "Connection: Upgrade" and "Upgrade: websocket".
func IsUpgradeRequest(req *http1.Request) bool {
	return req.Method() == http1.MethodGet &&
		req.HeaderHasToken(http1.HeaderConnection, "upgrade") &&
		req.HeaderHasToken(http1.HeaderUpgrade, "websocket")
}

// WriteAcceptHeaders turns hdr into a 101 Switching Protocols response for
// the given client key.
func WriteAcceptHeaders(hdr *http1.ResponseHeader, key string) {
	hdr.SetStatus(http1.StatusSwitchingProtocols)
	hdr.Set(http1.HeaderUpgrade, "websocket")
	hdr.Set(http1.HeaderConnection, "Upgrade")
	hdr.Set(http1.HeaderSecWebSocketAccept, AcceptKey(key))
}
