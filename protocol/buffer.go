// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Owned receive buffer with an explicit consumed-prefix offset.

package protocol

// shrinkThreshold is the capacity above which an emptied buffer is dropped
// instead of being kept for reuse.
const shrinkThreshold = 1 << 20

// byteBuffer accumulates transport bytes. Bytes before off have been parsed
// and are logically gone; they are physically reclaimed by compaction.
type byteBuffer struct {
	buf []byte
	off int
}

func (b *byteBuffer) Write(p []byte) {
	if b.off > 0 && b.off >= len(b.buf)-b.off {
		n := copy(b.buf, b.buf[b.off:])
		b.buf = b.buf[:n]
		b.off = 0
	}
	b.buf = append(b.buf, p...)
}

// Bytes returns the unconsumed bytes. The slice is valid until the next
// Write, Consume or Reset.
func (b *byteBuffer) Bytes() []byte {
	return b.buf[b.off:]
}

func (b *byteBuffer) Len() int {
	return len(b.buf) - b.off
}

// Consume discards the first n unconsumed bytes.
func (b *byteBuffer) Consume(n int) {
	b.off += n
	if b.off >= len(b.buf) {
		b.Reset()
	}
}

func (b *byteBuffer) Reset() {
	if cap(b.buf) > shrinkThreshold {
		b.buf = nil
	} else {
		b.buf = b.buf[:0]
	}
	b.off = 0
}
