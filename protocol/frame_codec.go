// File: protocol/frame_codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frame encoding. Server frames go out unmasked; the masked variant exists
// for client-side use and tests.

package protocol

import "encoding/binary"

// AppendFrame appends an unmasked frame carrying payload to dst.
func AppendFrame(dst []byte, fin bool, opcode byte, payload []byte) []byte {
	dst = appendHeader(dst, fin, opcode, len(payload), 0)
	return append(dst, payload...)
}

// AppendMaskedFrame appends a frame masked with key. payload is not modified.
func AppendMaskedFrame(dst []byte, fin bool, opcode byte, payload []byte, key [4]byte) []byte {
	dst = appendHeader(dst, fin, opcode, len(payload), MaskBit)
	dst = append(dst, key[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	Mask(dst[start:], key)
	return dst
}

// EncodeFrame returns a new unmasked final frame.
func EncodeFrame(opcode byte, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, MaxFrameHeaderLen+len(payload)), true, opcode, payload)
}

// ClosePayload returns the two byte body of a close frame.
func ClosePayload(code int) []byte {
	return binary.BigEndian.AppendUint16(nil, uint16(code))
}

// EncodeClose returns a close frame with the given status code.
func EncodeClose(code int) []byte {
	return EncodeFrame(OpcodeClose, ClosePayload(code))
}

func appendHeader(dst []byte, fin bool, opcode byte, n int, maskBit byte) []byte {
	var b0 byte
	if fin {
		b0 = FinBit
	}
	b0 |= opcode & 0x0F

	switch {
	case n <= 125:
		return append(dst, b0, byte(n)|maskBit)
	case n <= 0xFFFF:
		dst = append(dst, b0, 126|maskBit)
		return binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b0, 127|maskBit)
		return binary.BigEndian.AppendUint64(dst, uint64(n))
	}
}
