// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package transport

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-endpoint/pool"
)

// Config tunes a NetConn.
type Config struct {
	ReadBufferSize int           // size of pooled read buffers
	WriteTimeout   time.Duration // per-write deadline, zero disables
	NoDelay        bool          // TCP_NODELAY
	KeepAlive      bool          // SO_KEEPALIVE
	Pool           *pool.BytePool
	Logger         zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize: 32 << 10,
		WriteTimeout:   10 * time.Second,
		NoDelay:        true,
		KeepAlive:      true,
		Logger:         zerolog.Nop(),
	}
}

// Option customizes a NetConn.
type Option func(*Config)

// WithReadBufferSize sets the read buffer size. Ignored when WithPool is
// also given.
func WithReadBufferSize(n int) Option {
	return func(c *Config) {
		c.ReadBufferSize = n
	}
}

// WithWriteTimeout sets the per-write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WriteTimeout = d
	}
}

// WithNoDelay toggles TCP_NODELAY.
func WithNoDelay(on bool) Option {
	return func(c *Config) {
		c.NoDelay = on
	}
}

// WithKeepAlive toggles SO_KEEPALIVE.
func WithKeepAlive(on bool) Option {
	return func(c *Config) {
		c.KeepAlive = on
	}
}

// WithPool shares a read buffer pool between connections.
func WithPool(p *pool.BytePool) Option {
	return func(c *Config) {
		c.Pool = p
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
