// File: protocol/outbound_stream.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// OutboundStream turns an incrementally written binary payload into a
// Binary frame followed by Continuation frames, each at most maxFragment
// bytes long.

package protocol

// OutboundStream is obtained from Connection.BeginBinaryStream. It buffers at
// most one fragment; Write emits a frame every time the buffer fills and End
// flushes the remainder as the final frame.
type OutboundStream struct {
	conn        *Connection
	maxFragment int
	buf         []byte
	started     bool
	ended       bool
	err         error
}

func newOutboundStream(c *Connection, maxFragment int) *OutboundStream {
	return &OutboundStream{conn: c, maxFragment: maxFragment}
}

// Write appends p to the message. It implements io.Writer.
func (s *OutboundStream) Write(p []byte) (int, error) {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return 0, err
	}
	written := 0
	for len(p) > 0 {
		room := s.maxFragment - len(s.buf)
		n := min(room, len(p))
		s.buf = append(s.buf, p[:n]...)
		p = p[n:]
		written += n
		if len(s.buf) == s.maxFragment {
			if err := s.flushLocked(false); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// End sends the buffered remainder as the final frame, even when empty,
// and frees the connection's stream slot. Ending twice is a no-op.
func (s *OutboundStream) End() error {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.ended && s.err == nil {
		return nil
	}
	if s.err != nil {
		return s.err
	}
	err := s.flushLocked(true)
	s.ended = true
	if c.outbound == s {
		c.outbound = nil
	}
	return err
}

// Close is End; it makes the stream an io.WriteCloser.
func (s *OutboundStream) Close() error {
	return s.End()
}

func (s *OutboundStream) usableLocked() error {
	switch {
	case s.err != nil:
		return s.err
	case s.ended:
		return ErrStreamEnded
	}
	return nil
}

// flushLocked emits the buffered bytes as one frame.
func (s *OutboundStream) flushLocked(fin bool) error {
	op := OpcodeContinuation
	if !s.started {
		op = OpcodeBinary
		s.started = true
	}
	err := s.conn.writeFrameLocked(op, s.buf, fin, nil)
	s.buf = s.buf[:0]
	return err
}

// abortLocked terminates the stream because the connection left Open.
func (s *OutboundStream) abortLocked() {
	if !s.ended {
		s.err = ErrStreamAborted
		s.buf = nil
	}
}
