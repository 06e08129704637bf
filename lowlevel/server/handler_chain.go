// File: lowlevel/server/handler_chain.go
// Package server implements middleware chain utilities.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-endpoint/api"
	"github.com/momentics/hioload-endpoint/protocol"
)

// Middleware augments a protocol.Handler.
type Middleware func(protocol.Handler) protocol.Handler

// NewHandlerChain applies middleware in order: first in slice is outermost.
func NewHandlerChain(base protocol.Handler, mw ...Middleware) protocol.Handler {
	h := base
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// LoggingMiddleware logs connection lifecycle events and handler errors.
func LoggingMiddleware(log zerolog.Logger) Middleware {
	return func(next protocol.Handler) protocol.Handler {
		return protocol.HandlerFuncs{
			Connected: func(c *protocol.Connection) {
				log.Info().Str("conn_id", c.ID()).Str("path", c.RequestPath()).Msg("connection open")
				next.OnConnected(c)
			},
			Text:   next.OnText,
			Binary: next.OnBinary,
			Closed: func(c *protocol.Connection, code protocol.StatusCode, reason string) {
				log.Info().Str("conn_id", c.ID()).Uint16("code", uint16(code)).Str("reason", reason).Msg("connection closed")
				next.OnClose(c, code, reason)
			},
			Error: func(c *protocol.Connection, err error) {
				log.Warn().Str("conn_id", c.ID()).Err(err).Msg("connection error")
				next.OnError(c, err)
			},
		}
	}
}

// RecoveryMiddleware recovers panics raised by handler callbacks. A panic
// while the connection is open closes it with StatusInternalError.
func RecoveryMiddleware(log zerolog.Logger) Middleware {
	return func(next protocol.Handler) protocol.Handler {
		recovered := func(c *protocol.Connection, event string) {
			r := recover()
			if r == nil {
				return
			}
			log.Error().Str("event", event).Interface("panic", r).Msg("handler panic recovered")
			if c != nil && c.State() == api.StateOpen {
				c.Close(protocol.StatusInternalError, "internal error")
			}
		}
		return protocol.HandlerFuncs{
			Connected: func(c *protocol.Connection) {
				defer recovered(c, "connected")
				next.OnConnected(c)
			},
			Text: func(c *protocol.Connection, msg string) {
				defer recovered(c, "text")
				next.OnText(c, msg)
			},
			Binary: func(c *protocol.Connection, s *protocol.InboundStream) {
				defer recovered(c, "binary")
				next.OnBinary(c, s)
			},
			Closed: func(c *protocol.Connection, code protocol.StatusCode, reason string) {
				defer recovered(nil, "closed")
				next.OnClose(c, code, reason)
			},
			Error: func(c *protocol.Connection, err error) {
				defer recovered(nil, "error")
				next.OnError(c, err)
			},
		}
	}
}
