// File: protocol/handler.go
// Package protocol defines the application-facing event contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

// Handler receives connection events. Calls are made synchronously from the
// goroutine driving the transport, in the order frames were decoded, and
// never while the connection's lock is held: handlers may issue commands on
// c directly.
type Handler interface {
	OnConnected(c *Connection)
	OnText(c *Connection, msg string)
	// OnBinary delivers a binary message as it arrives. Blocking on the
	// stream inside OnBinary stalls the connection; hand it to another
	// goroutine unless stream.Done() is already true.
	OnBinary(c *Connection, stream *InboundStream)
	OnClose(c *Connection, code StatusCode, reason string)
	OnError(c *Connection, err error)
}

// HandlerFuncs adapts optional functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Connected func(c *Connection)
	Text      func(c *Connection, msg string)
	Binary    func(c *Connection, stream *InboundStream)
	Closed    func(c *Connection, code StatusCode, reason string)
	Error     func(c *Connection, err error)
}

func (h HandlerFuncs) OnConnected(c *Connection) {
	if h.Connected != nil {
		h.Connected(c)
	}
}

func (h HandlerFuncs) OnText(c *Connection, msg string) {
	if h.Text != nil {
		h.Text(c, msg)
	}
}

func (h HandlerFuncs) OnBinary(c *Connection, stream *InboundStream) {
	if h.Binary != nil {
		h.Binary(c, stream)
	}
}

func (h HandlerFuncs) OnClose(c *Connection, code StatusCode, reason string) {
	if h.Closed != nil {
		h.Closed(c, code, reason)
	}
}

func (h HandlerFuncs) OnError(c *Connection, err error) {
	if h.Error != nil {
		h.Error(c, err)
	}
}
