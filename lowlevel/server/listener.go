// File: lowlevel/server/listener.go
// Package server accepts TCP connections and serves each one as a
// server-role WebSocket connection.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-endpoint/api"
	"github.com/momentics/hioload-endpoint/control"
	"github.com/momentics/hioload-endpoint/pool"
	"github.com/momentics/hioload-endpoint/protocol"
	"github.com/momentics/hioload-endpoint/transport"
)

// ErrListenerClosed is returned by Serve after Close or Shutdown.
var ErrListenerClosed = errors.New("listener closed")

// HandlerFactory builds the handler for one accepted socket.
type HandlerFactory func(remote net.Addr) protocol.Handler

type liveConn struct {
	conn *protocol.Connection
	nc   *transport.NetConn
}

// Listener accepts TCP connections and performs WebSocket handshakes.
type Listener struct {
	ln      net.Listener
	cfg     Config
	factory HandlerFactory
	log     zerolog.Logger
	metrics *control.MetricsRegistry
	pool    *pool.BytePool

	mu     sync.Mutex
	conns  map[string]liveConn
	slots  int // accepted sockets not yet finished, bounded by MaxConnections
	closed bool
	wg     sync.WaitGroup
}

// Listen binds addr. Serve must be called to start accepting.
func Listen(addr string, factory HandlerFactory, opts ...Option) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return NewListener(ln, factory, opts...), nil
}

// NewListener serves connections accepted from an existing net.Listener.
func NewListener(ln net.Listener, factory HandlerFactory, opts ...Option) *Listener {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = control.NewMetricsRegistry()
	}
	l := &Listener{
		ln:      ln,
		cfg:     cfg,
		factory: factory,
		log:     cfg.Logger.With().Str("listen", ln.Addr().String()).Logger(),
		metrics: cfg.Metrics,
		pool:    pool.NewBytePool(cfg.ReadBufferSize),
		conns:   make(map[string]liveConn),
	}
	l.metrics.Set("listen.addr", ln.Addr().String())
	return l
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Metrics returns the registry the listener publishes into.
func (l *Listener) Metrics() *control.MetricsRegistry {
	return l.metrics
}

// ActiveConnections returns the number of connections being served.
func (l *Listener) ActiveConnections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}

// RegisterProbes exposes listener state through dp.
func (l *Listener) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("listener.connections", func() any {
		l.mu.Lock()
		defer l.mu.Unlock()
		out := make(map[string]any, len(l.conns))
		for id, lc := range l.conns {
			out[id] = map[string]any{
				"state":  lc.conn.State().String(),
				"path":   lc.conn.RequestPath(),
				"remote": lc.nc.RemoteAddr().String(),
				"stats":  lc.conn.Stats(),
			}
		}
		return out
	})
	dp.RegisterProbe("pool.read_buffers", func() any {
		return l.pool.Stats()
	})
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed. Cancelling ctx aborts every live connection.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()

	l.log.Info().Msg("accepting connections")
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if closed || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrListenerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				l.log.Warn().Err(err).Msg("accept timeout")
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			conn.Close()
			return ErrListenerClosed
		}
		if limit := l.cfg.MaxConnections; limit > 0 && l.slots >= limit {
			l.mu.Unlock()
			l.log.Warn().Str("remote", conn.RemoteAddr().String()).Int("max", limit).Msg("connection limit reached")
			l.metrics.Add(control.MetricConnectionsRejected, 1)
			conn.Close()
			continue
		}
		l.slots++
		l.wg.Add(1)
		l.mu.Unlock()
		go l.serveConn(ctx, conn)
	}
}

func (l *Listener) serveConn(ctx context.Context, raw net.Conn) {
	defer l.wg.Done()
	defer l.releaseSlot()

	id := uuid.NewString()
	log := l.log.With().Str("conn_id", id).Str("remote", raw.RemoteAddr().String()).Logger()

	topts := append([]transport.Option{
		transport.WithPool(l.pool),
		transport.WithLogger(log),
	}, l.cfg.TransportOpts...)
	nc := transport.NewNetConn(raw, topts...)

	var h protocol.Handler = protocol.HandlerFuncs{}
	if l.factory != nil {
		h = l.factory(raw.RemoteAddr())
	}
	mw := append([]Middleware{l.metricsMiddleware}, l.cfg.Middleware...)
	h = NewHandlerChain(h, mw...)

	copts := append([]protocol.Option{
		protocol.WithLogger(l.cfg.Logger),
		protocol.WithConnID(id),
		protocol.WithReadBufferSize(l.cfg.ReadBufferSize),
	}, l.cfg.ConnOptions...)
	c := protocol.NewServer(nc, h, copts...)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		nc.Abort()
		return
	}
	l.conns[id] = liveConn{conn: c, nc: nc}
	l.mu.Unlock()
	l.metrics.Add(control.MetricConnectionsActive, 1)
	l.metrics.Add(control.MetricConnectionsTotal, 1)
	log.Debug().Msg("accepted")

	if err := nc.Serve(ctx, c); err != nil {
		log.Debug().Err(err).Msg("transport ended")
	}

	l.mu.Lock()
	delete(l.conns, id)
	l.mu.Unlock()
	l.metrics.Add(control.MetricConnectionsActive, -1)

	s := c.Stats()
	l.metrics.Add(control.MetricFramesReceived, s.FramesReceived)
	l.metrics.Add(control.MetricFramesSent, s.FramesSent)
	l.metrics.Add(control.MetricBytesReceived, s.BytesReceived)
	l.metrics.Add(control.MetricBytesSent, s.BytesSent)
	log.Debug().
		Int64("frames_in", s.FramesReceived).
		Int64("frames_out", s.FramesSent).
		Msg("connection done")
}

// metricsMiddleware counts handshake failures.
func (l *Listener) metricsMiddleware(next protocol.Handler) protocol.Handler {
	return protocol.HandlerFuncs{
		Connected: next.OnConnected,
		Text:      next.OnText,
		Binary:    next.OnBinary,
		Closed:    next.OnClose,
		Error: func(c *protocol.Connection, err error) {
			if api.CodeOf(err) == api.ErrCodeHandshake {
				l.metrics.Add(control.MetricHandshakeFailures, 1)
			}
			next.OnError(c, err)
		},
	}
}

// Close stops accepting and aborts every live connection without a close
// handshake.
func (l *Listener) Close() error {
	err := l.stopAccepting()
	for _, lc := range l.snapshot() {
		lc.nc.Abort()
	}
	l.wg.Wait()
	return err
}

// Shutdown stops accepting, starts a close handshake with StatusGoingAway
// on every open connection and waits for them to finish. Connections still
// alive when ctx expires or the shutdown timeout passes are aborted.
func (l *Listener) Shutdown(ctx context.Context) error {
	err := l.stopAccepting()
	for _, lc := range l.snapshot() {
		lc.conn.Close(protocol.StatusGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(l.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return err
	case <-ctx.Done():
	case <-timer.C:
	}
	l.log.Warn().Int("remaining", l.ActiveConnections()).Msg("shutdown grace period over, aborting")
	for _, lc := range l.snapshot() {
		lc.nc.Abort()
	}
	<-done
	return err
}

func (l *Listener) releaseSlot() {
	l.mu.Lock()
	l.slots--
	l.mu.Unlock()
}

func (l *Listener) stopAccepting() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (l *Listener) snapshot() []liveConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]liveConn, 0, len(l.conns))
	for _, lc := range l.conns {
		out = append(out, lc)
	}
	return out
}
