// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket wire protocol constants

package protocol

const (
	// Data opcodes
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2

	// Control opcodes
	OpcodeClose = 0x8
	OpcodePing  = 0x9
	OpcodePong  = 0xA

	// Frame limit settings
	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14 // for extended payloads with masking

	// Bit masks
	FinBit  = 0x80
	MaskBit = 0x80

	// Close codes
	CloseNormalClosure     = 1000
	CloseGoingAway         = 1001
	CloseProtocolError     = 1002
	CloseUnsupportedData   = 1003
	CloseMessageTooBig     = 1009
	CloseInternalServerErr = 1011
)

// MaxFramePayload is the default payload ceiling for a single inbound frame.
const MaxFramePayload = 1 << 20 // 1 MiB

// PongFrame is the empty unmasked pong sent in reply to every ping.
var PongFrame = [2]byte{FinBit | OpcodePong, 0x00}

// IsControl reports whether op is a control opcode.
func IsControl(op byte) bool { return op&0x8 != 0 }

// IsKnownOpcode reports whether op is defined by RFC 6455.
func IsKnownOpcode(op byte) bool {
	switch op {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
		return true
	}
	return false
}

// OpcodeName returns a short lowercase name used in logs and metrics.
func OpcodeName(op byte) string {
	switch op {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	}
	return "unknown"
}
