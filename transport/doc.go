// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package transport adapts blocking net.Conn sockets to the non-blocking
// api.Transport contract used by protocol.Connection.
//
// A NetConn runs two goroutines: a read pump that fills pooled buffers and
// notifies the listener, and a writer that drains an ordered queue and
// reports each write's completion. Close is graceful: queued writes are
// flushed before the socket is closed.
package transport
