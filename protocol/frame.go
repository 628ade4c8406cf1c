// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame decoding from a byte source and in-place unmasking.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrFrameTooLarge is returned when a declared payload exceeds the limit.
	ErrFrameTooLarge = errors.New("protocol: frame payload exceeds limit")
	// ErrShortFrame is returned when the peer disconnects inside a frame.
	ErrShortFrame = errors.New("protocol: truncated frame")
)

// Frame is one decoded WebSocket frame. Payload is already unmasked.
type Frame struct {
	Fin     bool
	Rsv     byte // RSV1..RSV3 in the low three bits
	Opcode  byte
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// Source supplies exact reads; transport.Conn implements it.
type Source interface {
	ReceiveExact(p []byte) (int, error)
}

// ReadFrame reads a single frame from src. A payload longer than limit is
// rejected before it is read. A stream that ends before the first header
// byte yields io.EOF; one that ends later yields ErrShortFrame.
func ReadFrame(src Source, limit int64) (*Frame, error) {
	var hdr [8]byte
	if n, err := src.ReceiveExact(hdr[:2]); n != 2 {
		if n == 0 && (err == nil || errors.Is(err, io.EOF)) {
			return nil, io.EOF
		}
		return nil, shortFrame(err)
	}

	f := &Frame{
		Fin:    hdr[0]&FinBit != 0,
		Rsv:    (hdr[0] >> 4) & 0x7,
		Opcode: hdr[0] & 0x0F,
		Masked: hdr[1]&MaskBit != 0,
	}

	length := uint64(hdr[1] & 0x7F)
	switch length {
	case 126:
		if n, err := src.ReceiveExact(hdr[:2]); n != 2 {
			return nil, shortFrame(err)
		}
		length = uint64(binary.BigEndian.Uint16(hdr[:2]))
	case 127:
		if n, err := src.ReceiveExact(hdr[:8]); n != 8 {
			return nil, shortFrame(err)
		}
		length = binary.BigEndian.Uint64(hdr[:8])
	}
	if limit >= 0 && length > uint64(limit) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, limit)
	}

	if f.Masked {
		if n, err := src.ReceiveExact(f.MaskKey[:]); n != 4 {
			return nil, shortFrame(err)
		}
	}

	f.Payload = make([]byte, length)
	if length > 0 {
		if n, err := src.ReceiveExact(f.Payload); uint64(n) != length {
			return nil, shortFrame(err)
		}
	}
	if f.Masked {
		Mask(f.Payload, f.MaskKey)
	}
	return f, nil
}

func shortFrame(err error) error {
	if err == nil {
		return ErrShortFrame
	}
	return fmt.Errorf("%w: %w", ErrShortFrame, err)
}

// Mask XORs buf in place with key. Applying it twice restores the input.
func Mask(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i&3]
	}
}
