// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Logical WebSocket frame and masking helpers.

package protocol

import (
	"encoding/binary"
	"math/rand/v2"
)

// Frame represents a decoded WebSocket frame. Payload is always unmasked
// and owned by the frame.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

// newMaskKey returns a fresh masking key. Masks only need to be
// unpredictable to intermediaries, not cryptographically strong.
func newMaskKey() [4]byte {
	var key [4]byte
	binary.LittleEndian.PutUint32(key[:], rand.Uint32())
	return key
}

// maskBytes XORs buf in place with key cycling every 4 bytes.
// Applying it twice restores the original bytes.
func maskBytes(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i&3]
	}
}
