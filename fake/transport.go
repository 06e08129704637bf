// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the transport contract.

package fake

import (
	"sync"

	"github.com/momentics/hioload-endpoint/api"
)

// Transport is a scriptable in-memory api.Transport. Bytes pushed with Push
// are returned by Read; bytes passed to Write are recorded. Write completion
// callbacks run synchronously after the write is recorded.
type Transport struct {
	mu         sync.Mutex
	inbox      [][]byte
	written    [][]byte
	closed     bool
	closeCalls int
	writeError error
	readError  error
}

// NewTransport creates a new fake transport.
func NewTransport() *Transport {
	return &Transport{}
}

// Read implements api.Transport.Read.
func (t *Transport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.readError != nil {
		err := t.readError
		t.readError = nil
		return 0, err
	}
	if len(t.inbox) == 0 {
		if t.closed {
			return 0, api.ErrTransportClosed
		}
		return 0, api.ErrNoData
	}
	n := copy(p, t.inbox[0])
	if n < len(t.inbox[0]) {
		t.inbox[0] = t.inbox[0][n:]
	} else {
		t.inbox = t.inbox[1:]
	}
	return n, nil
}

// Write implements api.Transport.Write.
func (t *Transport) Write(p []byte, done func(error)) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return api.ErrTransportClosed
	}
	if t.writeError != nil {
		err := t.writeError
		t.mu.Unlock()
		return err
	}
	t.written = append(t.written, append([]byte(nil), p...))
	t.mu.Unlock()

	if done != nil {
		done(nil)
	}
	return nil
}

// Close implements api.Transport.Close.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.closeCalls++
	return nil
}

// Push queues data to be returned by Read. Each call is a separate chunk.
func (t *Transport) Push(data ...[]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range data {
		t.inbox = append(t.inbox, append([]byte(nil), d...))
	}
}

// Deliver pushes data and notifies l, the way a real transport would after
// a socket read.
func (t *Transport) Deliver(l api.TransportListener, data ...[]byte) {
	t.Push(data...)
	l.HandleReadable()
}

// Written returns every buffer passed to Write so far.
func (t *Transport) Written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.written))
	copy(out, t.written)
	return out
}

// TakeWritten returns and forgets the recorded writes.
func (t *Transport) TakeWritten() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.written
	t.written = nil
	return out
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// CloseCalls returns how many times Close was called.
func (t *Transport) CloseCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCalls
}

// SetWriteError makes subsequent Write calls fail with err.
func (t *Transport) SetWriteError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeError = err
}

// SetReadError makes the next Read call fail with err.
func (t *Transport) SetReadError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readError = err
}
