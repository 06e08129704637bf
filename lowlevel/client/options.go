// Package client
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-endpoint/protocol"
	"github.com/momentics/hioload-endpoint/transport"
)

// Config holds client parameters.
type Config struct {
	DialTimeout   time.Duration // TCP connect plus opening handshake, 0 = ctx only
	Heartbeat     time.Duration // Ping interval, 0 = disabled
	Logger        zerolog.Logger
	ConnOptions   []protocol.Option
	TransportOpts []transport.Option
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout: 10 * time.Second,
		Logger:      zerolog.Nop(),
	}
}

// Option customizes Dial.
type Option func(*Config)

// WithDialTimeout bounds connecting and the opening handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = d
	}
}

// WithHeartbeat sends a Ping every d while the connection is open.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Config) {
		c.Heartbeat = d
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithConnOptions forwards options to the protocol.Connection.
func WithConnOptions(opts ...protocol.Option) Option {
	return func(c *Config) {
		c.ConnOptions = append(c.ConnOptions, opts...)
	}
}

// WithTransportOptions forwards options to the transport.NetConn.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(c *Config) {
		c.TransportOpts = append(c.TransportOpts, opts...)
	}
}
