// File: protocol/frame_codec.go
// Package protocol implements the frame codec with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Decoding works on a buffer that may hold a partial frame: the caller keeps
// appending transport bytes and retries until a frame (or an error) comes out.

package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DefaultMaxFramePayload is the largest payload a single inbound frame may
// declare unless configured otherwise.
const DefaultMaxFramePayload = 32 << 20 // 32 MiB

// EncodeFrame serializes one frame. With mask set a fresh key is generated
// and the payload copy is masked; payload itself is never modified.
func EncodeFrame(op Opcode, payload []byte, mask, fin bool) []byte {
	plen := len(payload)

	hdrLen := 2
	switch {
	case plen > 0xFFFF:
		hdrLen += 8
	case plen > MaxControlPayload:
		hdrLen += 2
	}
	if mask {
		hdrLen += 4
	}

	out := make([]byte, hdrLen+plen)
	out[0] = byte(op) & opcodeBits
	if fin {
		out[0] |= finBit
	}

	var mb byte
	if mask {
		mb = maskBit
	}
	offset := 2
	switch {
	case plen <= MaxControlPayload:
		out[1] = mb | byte(plen)
	case plen <= 0xFFFF:
		out[1] = mb | len16Code
		binary.BigEndian.PutUint16(out[offset:], uint16(plen))
		offset += 2
	default:
		out[1] = mb | len64Code
		binary.BigEndian.PutUint64(out[offset:], uint64(plen))
		offset += 8
	}

	if !mask {
		copy(out[offset:], payload)
		return out
	}
	key := newMaskKey()
	copy(out[offset:], key[:])
	offset += 4
	copy(out[offset:], payload)
	maskBytes(out[offset:], key)
	return out
}

// EncodeCloseFrame serializes a Close frame. A code that may not travel on
// the wire (zero, 1005, 1006, 1015) produces an empty payload and the
// reason is dropped with it.
func EncodeCloseFrame(code StatusCode, reason string, mask bool) []byte {
	if !code.onWire() {
		return EncodeFrame(OpcodeClose, nil, mask, true)
	}
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	return EncodeFrame(OpcodeClose, payload, mask, true)
}

// DecodeFrame parses one frame from the head of buf.
//
// It returns (nil, 0, nil) when buf does not yet hold a complete frame,
// a non-nil error wrapping ErrProtocolViolation when the bytes can never
// form a valid frame, or the frame together with the number of bytes it
// occupied. expectMasked is true on the server side: client frames must
// be masked and server frames must not. maxPayload <= 0 disables the
// size limit.
func DecodeFrame(buf []byte, expectMasked bool, maxPayload int64) (*Frame, int, error) {
	if len(buf) < 2 {
		return nil, 0, nil // Incomplete
	}
	b0, b1 := buf[0], buf[1]

	if b0&rsvBits != 0 {
		return nil, 0, fmt.Errorf("%w: reserved bits set (0x%02x)", ErrProtocolViolation, b0&rsvBits)
	}
	op := Opcode(b0 & opcodeBits)
	if !op.Valid() {
		return nil, 0, fmt.Errorf("%w: illegal opcode 0x%x", ErrProtocolViolation, byte(op))
	}
	fin := b0&finBit != 0
	if op.IsControl() && !fin {
		return nil, 0, fmt.Errorf("%w: fragmented %s frame", ErrProtocolViolation, op)
	}
	masked := b1&maskBit != 0
	if masked != expectMasked {
		if expectMasked {
			return nil, 0, fmt.Errorf("%w: unmasked frame from client", ErrProtocolViolation)
		}
		return nil, 0, fmt.Errorf("%w: masked frame from server", ErrProtocolViolation)
	}

	length := uint64(b1 & lengthBits)
	offset := 2
	switch length {
	case len16Code:
		if len(buf) < offset+2 {
			return nil, 0, nil // Incomplete
		}
		length = uint64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case len64Code:
		if len(buf) < offset+8 {
			return nil, 0, nil // Incomplete
		}
		length = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
		if length>>63 != 0 {
			return nil, 0, fmt.Errorf("%w: 64-bit length has the most significant bit set", ErrProtocolViolation)
		}
	}

	if op.IsControl() && length > MaxControlPayload {
		return nil, 0, fmt.Errorf("%w: %s payload of %d bytes", ErrProtocolViolation, op, length)
	}
	limit := uint64(math.MaxInt - MaxFrameHeaderLen)
	if maxPayload > 0 && uint64(maxPayload) < limit {
		limit = uint64(maxPayload)
	}
	if length > limit {
		return nil, 0, fmt.Errorf("%w: %d bytes declared, limit %d", ErrFrameTooLarge, length, limit)
	}

	var key [4]byte
	if masked {
		if len(buf) < offset+4 {
			return nil, 0, nil // Incomplete
		}
		copy(key[:], buf[offset:offset+4])
		offset += 4
	}

	if uint64(len(buf)-offset) < length {
		return nil, 0, nil // Incomplete
	}
	end := offset + int(length)
	payload := make([]byte, length)
	copy(payload, buf[offset:end])
	if masked {
		maskBytes(payload, key)
	}

	return &Frame{Fin: fin, Opcode: op, Payload: payload}, end, nil
}

// DecodeClosePayload splits a Close frame payload into status code and
// reason. An empty payload yields StatusNoStatusRcvd and an empty reason.
func DecodeClosePayload(payload []byte) (StatusCode, string, error) {
	switch len(payload) {
	case 0:
		return StatusNoStatusRcvd, "", nil
	case 1:
		return 0, "", fmt.Errorf("%w: close payload of 1 byte", ErrProtocolViolation)
	}
	code := StatusCode(binary.BigEndian.Uint16(payload))
	if code < StatusNormalClosure || !code.onWire() {
		return 0, "", fmt.Errorf("%w: close code %d not allowed on the wire", ErrProtocolViolation, uint16(code))
	}
	return code, string(payload[2:]), nil
}
