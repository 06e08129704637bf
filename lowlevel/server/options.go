// File: lowlevel/server/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-endpoint/control"
	"github.com/momentics/hioload-endpoint/protocol"
	"github.com/momentics/hioload-endpoint/transport"
)

// Config holds listener parameters.
type Config struct {
	MaxConnections  int           // 0 = unlimited
	ReadBufferSize  int           // pooled read buffer size per socket read
	ShutdownTimeout time.Duration // grace period for close handshakes
	Logger          zerolog.Logger
	Metrics         *control.MetricsRegistry
	Middleware      []Middleware
	ConnOptions     []protocol.Option
	TransportOpts   []transport.Option
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  protocol.DefaultReadBufferSize,
		ShutdownTimeout: 5 * time.Second,
		Logger:          zerolog.Nop(),
	}
}

// Option customizes a Listener.
type Option func(*Config)

// WithMaxConnections caps concurrently served connections. Sockets accepted
// beyond the cap are closed immediately.
func WithMaxConnections(n int) Option {
	return func(c *Config) {
		c.MaxConnections = n
	}
}

// WithReadBufferSize sets the socket read buffer size.
func WithReadBufferSize(n int) Option {
	return func(c *Config) {
		c.ReadBufferSize = n
	}
}

// WithShutdownTimeout bounds Shutdown's wait for close handshakes.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ShutdownTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics publishes connection and traffic counters into m.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithMiddleware wraps every connection handler.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *Config) {
		c.Middleware = append(c.Middleware, mw...)
	}
}

// WithConnOptions forwards options to each protocol.Connection.
func WithConnOptions(opts ...protocol.Option) Option {
	return func(c *Config) {
		c.ConnOptions = append(c.ConnOptions, opts...)
	}
}

// WithTransportOptions forwards options to each transport.NetConn.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(c *Config) {
		c.TransportOpts = append(c.TransportOpts, opts...)
	}
}
