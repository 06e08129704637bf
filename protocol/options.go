// File: protocol/options.go
// Package protocol defines functional options for Connection.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"net/http"

	"github.com/rs/zerolog"
)

// DefaultMaxFragmentSize bounds the payload of each frame emitted by an
// OutboundStream.
const DefaultMaxFragmentSize = 512 << 10 // 512 KiB

// DefaultReadBufferSize is the scratch size used to pull bytes from the
// transport.
const DefaultReadBufferSize = 32 << 10

// Config holds per-connection configuration parameters.
type Config struct {
	MaxFragmentSize  int   // outbound stream fragment size
	MaxFramePayload  int64 // largest accepted inbound frame payload
	MaxMessageSize   int64 // largest reassembled inbound message; MaxFramePayload when zero
	MaxHandshakeSize int   // largest accepted handshake header block
	ReadBufferSize   int   // transport read scratch size

	// Header is appended to the upgrade request (client) or to the 101
	// response (server).
	Header http.Header

	Logger zerolog.Logger
	ConnID string // generated when empty
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxFragmentSize:  DefaultMaxFragmentSize,
		MaxFramePayload:  DefaultMaxFramePayload,
		MaxHandshakeSize: DefaultMaxHandshakeSize,
		ReadBufferSize:   DefaultReadBufferSize,
		Logger:           zerolog.Nop(),
	}
}

// normalize replaces unusable values with defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.MaxFragmentSize <= 0 {
		c.MaxFragmentSize = def.MaxFragmentSize
	}
	if c.MaxFramePayload <= 0 {
		c.MaxFramePayload = def.MaxFramePayload
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = c.MaxFramePayload
	}
	if c.MaxHandshakeSize <= 0 {
		c.MaxHandshakeSize = def.MaxHandshakeSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
}

// Option customizes connection initialization.
type Option func(*Config)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithMaxFragmentSize overrides the outbound stream fragment size.
func WithMaxFragmentSize(n int) Option {
	return func(c *Config) {
		c.MaxFragmentSize = n
	}
}

// WithMaxFramePayload overrides the largest accepted inbound frame.
func WithMaxFramePayload(n int64) Option {
	return func(c *Config) {
		c.MaxFramePayload = n
	}
}

// WithMaxMessageSize bounds the total payload of a fragmented inbound
// message. Exceeding it closes the connection with StatusMessageTooBig.
func WithMaxMessageSize(n int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = n
	}
}

// WithMaxHandshakeSize overrides the handshake header block limit.
func WithMaxHandshakeSize(n int) Option {
	return func(c *Config) {
		c.MaxHandshakeSize = n
	}
}

// WithReadBufferSize overrides the transport read scratch size.
func WithReadBufferSize(n int) Option {
	return func(c *Config) {
		c.ReadBufferSize = n
	}
}

// WithHeader adds an extra handshake header.
func WithHeader(key, value string) Option {
	return func(c *Config) {
		if c.Header == nil {
			c.Header = make(http.Header)
		}
		c.Header.Add(key, value)
	}
}

// WithLogger sets the parent logger; the connection adds conn_id and role.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithConnID fixes the connection id used in logs.
func WithConnID(id string) Option {
	return func(c *Config) {
		c.ConnID = id
	}
}
