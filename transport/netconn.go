// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-endpoint/api"
	"github.com/momentics/hioload-endpoint/pool"
)

// chunk is one socket read: data is a window into a pooled buffer.
type chunk struct {
	buf  []byte
	data []byte
}

type writeReq struct {
	data []byte
	done func(error)
}

// Stats counts socket-level traffic.
type Stats struct {
	BytesRead    int64
	BytesWritten int64
	Writes       int64
	QueuedWrites int
}

// NetConn implements api.Transport over a net.Conn.
type NetConn struct {
	conn net.Conn
	cfg  Config
	pool *pool.BytePool
	log  zerolog.Logger

	mu      sync.Mutex
	inbox   *queue.Queue // of *chunk
	readErr error        // set once the read pump stops

	wmu     sync.Mutex
	wcond   *sync.Cond
	writes  *queue.Queue // of writeReq
	closing bool
	wdone   chan struct{}

	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
	writeCount   atomic.Int64
}

// NewNetConn wraps conn and starts its writer. Reading starts with Serve.
func NewNetConn(conn net.Conn, opts ...Option) *NetConn {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Pool == nil {
		cfg.Pool = pool.NewBytePool(cfg.ReadBufferSize)
	}
	n := &NetConn{
		conn:   conn,
		cfg:    cfg,
		pool:   cfg.Pool,
		log:    cfg.Logger.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		inbox:  queue.New(),
		writes: queue.New(),
		wdone:  make(chan struct{}),
	}
	n.wcond = sync.NewCond(&n.wmu)
	if err := setSockopts(conn, cfg); err != nil {
		n.log.Debug().Err(err).Msg("socket options not applied")
	}
	go n.writeLoop()
	return n
}

// RemoteAddr returns the peer address.
func (n *NetConn) RemoteAddr() net.Addr {
	return n.conn.RemoteAddr()
}

// Read implements api.Transport. It never blocks: with nothing buffered it
// returns api.ErrNoData, or api.ErrTransportClosed once the socket is gone.
func (n *NetConn) Read(p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	total := 0
	for total < len(p) && n.inbox.Length() > 0 {
		c := n.inbox.Peek().(*chunk)
		m := copy(p[total:], c.data)
		total += m
		c.data = c.data[m:]
		if len(c.data) == 0 {
			n.inbox.Remove()
			n.pool.PutBuffer(c.buf)
		}
	}
	switch {
	case total > 0:
		return total, nil
	case n.readErr != nil:
		return 0, api.ErrTransportClosed
	default:
		return 0, api.ErrNoData
	}
}

// Write implements api.Transport. p is queued as is and must not be
// modified afterwards; done runs on the writer goroutine.
func (n *NetConn) Write(p []byte, done func(error)) error {
	n.wmu.Lock()
	defer n.wmu.Unlock()
	if n.closing {
		return api.ErrTransportClosed
	}
	n.writes.Add(writeReq{data: p, done: done})
	n.wcond.Signal()
	return nil
}

// Close implements api.Transport. Writes queued before Close are flushed,
// then the socket is closed. Safe to call repeatedly.
func (n *NetConn) Close() error {
	n.wmu.Lock()
	defer n.wmu.Unlock()
	if !n.closing {
		n.closing = true
		n.wcond.Broadcast()
	}
	return nil
}

// Abort closes the socket at once, dropping queued writes.
func (n *NetConn) Abort() error {
	n.Close()
	return n.conn.Close()
}

// Done is closed once the writer has stopped and the socket is closed.
func (n *NetConn) Done() <-chan struct{} {
	return n.wdone
}

// Stats returns a snapshot of the traffic counters.
func (n *NetConn) Stats() Stats {
	n.wmu.Lock()
	queued := n.writes.Length()
	n.wmu.Unlock()
	return Stats{
		BytesRead:    n.bytesRead.Load(),
		BytesWritten: n.bytesWritten.Load(),
		Writes:       n.writeCount.Load(),
		QueuedWrites: queued,
	}
}

// Serve pumps socket reads into l until the peer goes away, the socket is
// closed or ctx is cancelled. It returns once the writer has stopped too.
func (n *NetConn) Serve(ctx context.Context, l api.TransportListener) error {
	stop := context.AfterFunc(ctx, func() { n.Abort() })
	defer stop()

	var err error
	for {
		buf := n.pool.GetBuffer()
		var m int
		m, err = n.conn.Read(buf)
		if m > 0 {
			n.bytesRead.Add(int64(m))
			n.mu.Lock()
			n.inbox.Add(&chunk{buf: buf, data: buf[:m]})
			n.mu.Unlock()
			l.HandleReadable()
		} else {
			n.pool.PutBuffer(buf)
		}
		if err != nil {
			break
		}
	}

	n.mu.Lock()
	n.readErr = err
	n.mu.Unlock()

	expected := errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil
	if !expected {
		n.log.Debug().Err(err).Msg("read failed")
		l.HandleTransportError(err)
	}
	l.HandleTransportClosed()

	n.Close()
	<-n.wdone
	if expected {
		return nil
	}
	return err
}

func (n *NetConn) writeLoop() {
	defer close(n.wdone)
	defer n.conn.Close()

	for {
		n.wmu.Lock()
		for n.writes.Length() == 0 && !n.closing {
			n.wcond.Wait()
		}
		if n.writes.Length() == 0 {
			n.wmu.Unlock()
			return
		}
		req := n.writes.Remove().(writeReq)
		n.wmu.Unlock()

		err := n.writeOne(req.data)
		if req.done != nil {
			req.done(err)
		}
		if err != nil {
			n.log.Debug().Err(err).Msg("write failed")
			n.failPending(err)
			return
		}
	}
}

func (n *NetConn) writeOne(p []byte) error {
	if n.cfg.WriteTimeout > 0 {
		n.conn.SetWriteDeadline(time.Now().Add(n.cfg.WriteTimeout))
	}
	m, err := n.conn.Write(p)
	n.bytesWritten.Add(int64(m))
	n.writeCount.Add(1)
	return err
}

// failPending stops accepting writes and fails every queued one with err.
func (n *NetConn) failPending(err error) {
	n.wmu.Lock()
	n.closing = true
	var pending []writeReq
	for n.writes.Length() > 0 {
		pending = append(pending, n.writes.Remove().(writeReq))
	}
	n.wmu.Unlock()
	for _, req := range pending {
		if req.done != nil {
			req.done(err)
		}
	}
}
