// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the transport abstraction a WebSocket endpoint runs on top of.
// The transport owns the socket; the endpoint only pulls buffered bytes,
// pushes outbound bytes and reacts to readiness and teardown notifications.

package api

// Transport is the byte-stream collaborator of a WebSocket connection.
type Transport interface {
	// Read copies already-received bytes into p without blocking.
	// It returns ErrNoData when nothing is buffered yet and
	// ErrTransportClosed once the transport is gone.
	Read(p []byte) (n int, err error)

	// Write queues p for transmission. The transport takes ownership of p.
	// done, if non-nil, is invoked once p has been written or has failed.
	Write(p []byte, done func(error)) error

	// Close shuts the transport down after flushing queued writes.
	Close() error
}

// TransportListener receives transport notifications. A transport delivers
// at most one notification at a time per listener.
type TransportListener interface {
	// HandleReadable reports that Read will yield data.
	HandleReadable()

	// HandleTransportClosed reports that the peer or the local side tore
	// the transport down.
	HandleTransportClosed()

	// HandleTransportError reports a transport failure. A closed
	// notification always follows.
	HandleTransportError(err error)
}
