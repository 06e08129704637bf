// File: protocol/inbound_stream.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// InboundStream exposes the fragments of one binary message to the
// application while later fragments are still arriving.

package protocol

import (
	"io"
	"iter"
	"sync"

	"github.com/eapache/queue"
)

// InboundStream is a lazy, finite, one-shot sequence of the payload chunks
// of a binary message, in arrival order. The connection is the only
// producer; a single consumer reads it through Next, Chunks or Read.
type InboundStream struct {
	mu        sync.Mutex
	ready     *sync.Cond
	chunks    *queue.Queue // of []byte
	size      int64
	done      bool
	truncated bool
	iterated  bool

	cur []byte // Read leftover, consumer side only
}

func newInboundStream() *InboundStream {
	s := &InboundStream{chunks: queue.New()}
	s.ready = sync.NewCond(&s.mu)
	return s
}

// addData appends one fragment's payload.
func (s *InboundStream) addData(p []byte) {
	if len(p) == 0 {
		return
	}
	s.mu.Lock()
	if !s.done {
		s.chunks.Add(p)
		s.size += int64(len(p))
		s.ready.Broadcast()
	}
	s.mu.Unlock()
}

// end marks the message complete.
func (s *InboundStream) end() {
	s.mu.Lock()
	s.done = true
	s.ready.Broadcast()
	s.mu.Unlock()
}

// abort ends the stream early because the connection went away.
func (s *InboundStream) abort() {
	s.mu.Lock()
	if !s.done {
		s.done = true
		s.truncated = true
	}
	s.ready.Broadcast()
	s.mu.Unlock()
}

// Next blocks until the next chunk is available and returns it, or returns
// false once the message has ended and every chunk was consumed.
func (s *InboundStream) Next() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.chunks.Length() == 0 && !s.done {
		s.ready.Wait()
	}
	if s.chunks.Length() == 0 {
		return nil, false
	}
	return s.chunks.Remove().([]byte), true
}

// Chunks returns the remaining chunks as an iterator. The sequence can be
// ranged over only once; later calls yield nothing.
func (s *InboundStream) Chunks() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		s.mu.Lock()
		if s.iterated {
			s.mu.Unlock()
			return
		}
		s.iterated = true
		s.mu.Unlock()
		for {
			p, ok := s.Next()
			if !ok || !yield(p) {
				return
			}
		}
	}
}

// Read implements io.Reader over the chunk sequence. A stream cut short by
// connection closure ends with io.ErrUnexpectedEOF instead of io.EOF.
func (s *InboundStream) Read(p []byte) (int, error) {
	for len(s.cur) == 0 {
		chunk, ok := s.Next()
		if !ok {
			if s.Truncated() {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, io.EOF
		}
		s.cur = chunk
	}
	n := copy(p, s.cur)
	s.cur = s.cur[n:]
	return n, nil
}

// Done reports whether no more chunks will be added.
func (s *InboundStream) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Truncated reports whether the stream was force-ended before its final
// fragment arrived.
func (s *InboundStream) Truncated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truncated
}

// Size returns the number of payload bytes received so far.
func (s *InboundStream) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}
