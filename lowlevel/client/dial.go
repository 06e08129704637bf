// Package client dials ws:// endpoints and runs a client-role
// protocol.Connection over a transport.NetConn.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-endpoint/api"
	"github.com/momentics/hioload-endpoint/protocol"
	"github.com/momentics/hioload-endpoint/transport"
)

// ErrUnsupportedScheme is returned for wss:// URLs; TLS is not implemented.
var ErrUnsupportedScheme = fmt.Errorf("%w: only ws:// URLs are supported", api.ErrNotSupported)

// Client is an open client connection and the goroutines serving it.
type Client struct {
	conn   *protocol.Connection
	nc     *transport.NetConn
	log    zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Dial connects to a ws:// URL and completes the opening handshake. It
// returns once the connection is open; h has already received OnConnected
// or is about to.
func Dial(ctx context.Context, rawURL string, h protocol.Handler, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if h == nil {
		h = protocol.HandlerFuncs{}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrInvalidArgument, err)
	}
	switch u.Scheme {
	case "ws":
	case "wss":
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, rawURL)
	default:
		return nil, fmt.Errorf("%w: scheme %q", api.ErrInvalidArgument, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", api.ErrInvalidArgument, rawURL)
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "80")
	}

	dctx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	id := uuid.NewString()
	log := cfg.Logger.With().Str("conn_id", id).Str("url", rawURL).Logger()

	var d net.Dialer
	raw, err := d.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	nc := transport.NewNetConn(raw, append([]transport.Option{transport.WithLogger(log)}, cfg.TransportOpts...)...)

	opened := make(chan error, 1)
	var once sync.Once
	signal := func(err error) {
		once.Do(func() { opened <- err })
	}
	wrapped := protocol.HandlerFuncs{
		Connected: func(c *protocol.Connection) {
			signal(nil)
			h.OnConnected(c)
		},
		Text:   h.OnText,
		Binary: h.OnBinary,
		Closed: func(c *protocol.Connection, code protocol.StatusCode, reason string) {
			signal(fmt.Errorf("%w: connection closed with %d", protocol.ErrHandshakeFailed, code))
			h.OnClose(c, code, reason)
		},
		Error: func(c *protocol.Connection, err error) {
			if api.CodeOf(err) == api.ErrCodeHandshake {
				signal(err)
			}
			h.OnError(c, err)
		},
	}

	path := u.RequestURI()
	copts := append([]protocol.Option{
		protocol.WithLogger(cfg.Logger),
		protocol.WithConnID(id),
	}, cfg.ConnOptions...)
	conn, err := protocol.NewClient(nc, u.Host, path, wrapped, copts...)
	if err != nil {
		nc.Abort()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		nc:     nc,
		log:    log,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		c.err = nc.Serve(runCtx, conn)
		close(c.done)
	}()

	select {
	case err = <-opened:
	case <-dctx.Done():
		err = fmt.Errorf("opening handshake: %w", dctx.Err())
	}
	if err != nil {
		cancel()
		<-c.done
		return nil, err
	}
	log.Debug().Msg("connected")

	if cfg.Heartbeat > 0 {
		go c.heartbeat(cfg.Heartbeat)
	}
	return c, nil
}

// Conn returns the protocol connection for sending.
func (c *Client) Conn() *protocol.Connection {
	return c.conn
}

// Close starts the closing handshake. Use Wait to block until the peer has
// acknowledged and the socket is gone.
func (c *Client) Close(code protocol.StatusCode, reason string) error {
	return c.conn.Close(code, reason)
}

// Abort drops the socket without a closing handshake.
func (c *Client) Abort() {
	c.cancel()
	<-c.done
}

// Done is closed once the socket is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the socket is closed or ctx ends. It returns the
// transport error, if any.
func (c *Client) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) heartbeat(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if c.conn.State() != api.StateOpen {
				return
			}
			if err := c.conn.Ping(nil); err != nil && !errors.Is(err, protocol.ErrNotOpen) {
				c.log.Debug().Err(err).Msg("heartbeat ping")
			}
		}
	}
}
