// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

// BytePool hands out byte slices of one fixed size. Slices are stored as
// pointers so Put does not allocate.
type BytePool struct {
	pool *SyncPool[*[]byte]
	size int
}

// NewBytePool creates a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = 4096
	}
	return &BytePool{
		pool: NewSyncPool(func() *[]byte {
			b := make([]byte, size)
			return &b
		}),
		size: size,
	}
}

// Size returns the length of the buffers handed out by the pool.
func (b *BytePool) Size() int {
	return b.size
}

// GetBuffer returns a buffer of Size bytes. Its contents are undefined.
func (b *BytePool) GetBuffer() []byte {
	return (*b.pool.Get())[:b.size]
}

// PutBuffer returns a buffer to the pool. Buffers of a foreign capacity
// are dropped and left to the GC.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	buf = buf[:b.size]
	b.pool.Put(&buf)
}

// Stats reports reuse counters.
func (b *BytePool) Stats() Stats {
	return b.pool.Stats()
}
