// File: protocol/connection.go
// Package protocol implements the core WebSocket connection handling.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection is the per-socket state machine. The transport drives it via
// the api.TransportListener methods; the application drives it via the
// Send*/Close commands. All state lives behind one mutex which is released
// while application handlers run.

package protocol

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-endpoint/api"
)

type reassemblyKind int

const (
	reassemblyNone reassemblyKind = iota
	reassemblyText
	reassemblyBinary
)

// reassembly is the in-progress fragmented message, if any. The opcode of
// the first fragment decides which accumulator is live.
type reassembly struct {
	kind   reassemblyKind
	size   int64
	text   []byte
	stream *InboundStream
}

// Connection encapsulates one WebSocket endpoint in client or server role.
type Connection struct {
	mu      sync.Mutex
	tr      api.Transport
	handler Handler
	cfg     Config
	log     zerolog.Logger
	id      string
	role    api.Role
	state   api.State

	handshakeKey string          // client only
	handshakeBuf strings.Builder // pre-handshake text
	inbound      byteBuffer      // post-handshake frame bytes
	readBuf      []byte

	asm      reassembly
	outbound *OutboundStream

	halted        bool // protocol failure, ignore further bytes
	closeReported bool

	requestPath   string
	requestHeader http.Header

	framesReceived atomic.Int64
	framesSent     atomic.Int64
	bytesReceived  atomic.Int64
	bytesSent      atomic.Int64
}

func newConnection(tr api.Transport, role api.Role, h Handler, opts []Option) *Connection {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()
	if cfg.ConnID == "" {
		cfg.ConnID = uuid.NewString()
	}
	if h == nil {
		h = HandlerFuncs{}
	}
	return &Connection{
		tr:      tr,
		handler: h,
		cfg:     cfg,
		log:     cfg.Logger.With().Str("conn_id", cfg.ConnID).Str("role", role.String()).Logger(),
		id:      cfg.ConnID,
		role:    role,
		state:   api.StateConnecting,
		readBuf: make([]byte, cfg.ReadBufferSize),
	}
}

// NewServer creates a server-role connection over an accepted transport.
// It waits in Connecting for the client's upgrade request.
func NewServer(tr api.Transport, h Handler, opts ...Option) *Connection {
	return newConnection(tr, api.RoleServer, h, opts)
}

// NewClient creates a client-role connection and immediately sends the
// upgrade request for path on host. On failure the transport is closed.
func NewClient(tr api.Transport, host, path string, h Handler, opts ...Option) (*Connection, error) {
	c := newConnection(tr, api.RoleClient, h, opts)
	key, err := NewHandshakeKey()
	if err != nil {
		tr.Close()
		return nil, err
	}
	c.handshakeKey = key
	if err := tr.Write(BuildUpgradeRequest(host, path, key, c.cfg.Header), nil); err != nil {
		tr.Close()
		return nil, fmt.Errorf("handshake write request: %w", err)
	}
	c.log.Debug().Str("host", host).Str("path", path).Msg("upgrade request sent")
	return c, nil
}

// ID returns the connection id used in logs.
func (c *Connection) ID() string {
	return c.id
}

// Role returns the handshake role.
func (c *Connection) Role() api.Role {
	return c.role
}

// State returns the current lifecycle state.
func (c *Connection) State() api.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RequestPath returns the path of the upgrade request (server role).
func (c *Connection) RequestPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestPath
}

// RequestHeader returns the headers of the upgrade request on the server
// side, or of the 101 response on the client side.
func (c *Connection) RequestHeader() http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestHeader
}

// Stats returns a snapshot of the traffic counters.
func (c *Connection) Stats() api.Stats {
	return api.Stats{
		FramesReceived: c.framesReceived.Load(),
		FramesSent:     c.framesSent.Load(),
		BytesReceived:  c.bytesReceived.Load(),
		BytesSent:      c.bytesSent.Load(),
	}
}

// HandleReadable pulls every byte the transport has buffered and processes
// it. It implements api.TransportListener.
func (c *Connection) HandleReadable() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.state != api.StateClosed {
		n, err := c.tr.Read(c.readBuf)
		if n > 0 {
			c.ingestLocked(c.readBuf[:n])
		}
		switch {
		case err == nil && n > 0:
			continue
		case err == nil, errors.Is(err, api.ErrNoData):
			return
		case errors.Is(err, api.ErrTransportClosed):
			c.transportClosedLocked()
			return
		default:
			c.transportErrorLocked(err)
			return
		}
	}
}

// HandleTransportClosed implements api.TransportListener.
func (c *Connection) HandleTransportClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transportClosedLocked()
}

// HandleTransportError implements api.TransportListener.
func (c *Connection) HandleTransportError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transportErrorLocked(err)
}

func (c *Connection) transportClosedLocked() {
	switch c.state {
	case api.StateConnecting, api.StateOpen:
		c.log.Debug().Stringer("state", c.state).Msg("transport closed abruptly")
		c.setClosedLocked()
		c.emitClosedLocked(StatusAbnormalClosure, "")
	case api.StateClosing:
		c.setClosedLocked()
	}
}

func (c *Connection) transportErrorLocked(err error) {
	if c.state == api.StateClosed {
		return
	}
	c.log.Warn().Err(err).Msg("transport error")
	c.emitErrorLocked(api.WrapError(api.ErrCodeTransport, err))
}

func (c *Connection) ingestLocked(p []byte) {
	switch c.state {
	case api.StateConnecting:
		c.ingestHandshakeLocked(p)
	case api.StateOpen, api.StateClosing:
		if c.halted {
			return
		}
		c.inbound.Write(p)
		c.processFramesLocked()
	}
}

// ingestHandshakeLocked accumulates header text until the blank line that
// terminates it, then completes the handshake for the connection's role.
func (c *Connection) ingestHandshakeLocked(p []byte) {
	c.handshakeBuf.Write(p)
	text := c.handshakeBuf.String()
	idx := strings.Index(text, headerTerminator)
	if idx < 0 {
		if len(text) > c.cfg.MaxHandshakeSize {
			c.failHandshakeLocked(ErrHandshakeTooLarge)
		}
		return
	}
	block, rest := text[:idx+len(headerTerminator)], text[idx+len(headerTerminator):]
	if len(block) > c.cfg.MaxHandshakeSize {
		c.failHandshakeLocked(ErrHandshakeTooLarge)
		return
	}

	switch c.role {
	case api.RoleServer:
		req, err := ParseUpgradeRequest(block)
		if err != nil {
			c.failHandshakeLocked(err)
			return
		}
		if err := c.tr.Write(BuildAcceptResponse(req.Key, c.cfg.Header), nil); err != nil {
			c.failHandshakeLocked(fmt.Errorf("handshake write response: %w", err))
			return
		}
		c.requestPath = req.Path
		c.requestHeader = req.Header
	case api.RoleClient:
		hdr, err := ValidateUpgradeResponse(block, c.handshakeKey)
		if err != nil {
			c.failHandshakeLocked(err)
			return
		}
		c.requestHeader = hdr
		c.handshakeKey = ""
	}

	c.handshakeBuf.Reset()
	c.state = api.StateOpen
	c.log.Debug().Str("path", c.requestPath).Msg("handshake complete")
	if rest != "" {
		c.inbound.Write([]byte(rest))
	}
	c.emitLocked(func(h Handler) { h.OnConnected(c) })
	if c.inbound.Len() > 0 {
		c.processFramesLocked()
	}
}

func (c *Connection) failHandshakeLocked(err error) {
	c.log.Warn().Err(err).Msg("handshake failed")
	if c.role == api.RoleServer {
		if werr := c.tr.Write(BuildRejectResponse(), nil); werr != nil {
			c.log.Debug().Err(werr).Msg("write 400 response")
		}
	}
	c.handshakeBuf.Reset()
	c.setClosedLocked()
	c.tr.Close()
	c.emitErrorLocked(api.WrapError(api.ErrCodeHandshake, err))
	c.emitClosedLocked(StatusAbnormalClosure, "")
}

// processFramesLocked decodes and dispatches frames until the buffer runs
// dry, the connection leaves Open/Closing, or a violation halts it.
func (c *Connection) processFramesLocked() {
	for !c.halted && (c.state == api.StateOpen || c.state == api.StateClosing) {
		f, n, err := DecodeFrame(c.inbound.Bytes(), c.role == api.RoleServer, c.cfg.MaxFramePayload)
		if err != nil {
			c.protocolFailureLocked(err)
			return
		}
		if f == nil {
			return
		}
		c.inbound.Consume(n)
		c.framesReceived.Add(1)
		c.bytesReceived.Add(int64(len(f.Payload)))
		if err := c.dispatchLocked(f); err != nil {
			c.protocolFailureLocked(err)
			return
		}
	}
}

func (c *Connection) protocolFailureLocked(err error) {
	c.halted = true
	c.inbound.Reset()
	code := StatusProtocolError
	switch {
	case errors.Is(err, ErrFrameTooLarge):
		code = StatusMessageTooBig
	case errors.Is(err, ErrInvalidUTF8):
		code = StatusInvalidFramePayload
	}
	c.log.Warn().Err(err).Uint16("code", uint16(code)).Msg("protocol violation")
	c.emitErrorLocked(api.WrapError(api.ErrCodeProtocol, err))
	c.closeLocked(code, "")
}

func (c *Connection) dispatchLocked(f *Frame) error {
	switch f.Opcode {
	case OpcodeClose:
		return c.onCloseFrameLocked(f)
	case OpcodePing:
		if c.state == api.StateOpen {
			return c.writeFrameLocked(OpcodePong, f.Payload, true, nil)
		}
		return nil
	case OpcodePong:
		return nil
	case OpcodeContinuation, OpcodeText, OpcodeBinary:
		if c.state != api.StateOpen {
			return nil
		}
		return c.onDataFrameLocked(f)
	}
	return fmt.Errorf("%w: unexpected opcode %s", ErrProtocolViolation, f.Opcode)
}

func (c *Connection) onCloseFrameLocked(f *Frame) error {
	switch c.state {
	case api.StateClosing:
		// Peer acknowledged our close.
		c.log.Debug().Msg("close handshake complete")
		c.setClosedLocked()
		c.tr.Close()
	case api.StateOpen:
		code, reason, err := DecodeClosePayload(f.Payload)
		if err != nil {
			return err
		}
		c.log.Debug().Uint16("code", uint16(code)).Str("reason", reason).Msg("peer closed")
		echo := EncodeCloseFrame(code, reason, c.role == api.RoleClient)
		c.framesSent.Add(1)
		tr := c.tr
		if werr := tr.Write(echo, func(error) { tr.Close() }); werr != nil {
			tr.Close()
		}
		c.setClosedLocked()
		c.emitClosedLocked(code, reason)
	}
	return nil
}

func (c *Connection) onDataFrameLocked(f *Frame) error {
	announce := false
	switch f.Opcode {
	case OpcodeText, OpcodeBinary:
		if c.asm.kind != reassemblyNone {
			return fmt.Errorf("%w: %s frame while a fragmented message is open", ErrProtocolViolation, f.Opcode)
		}
		if f.Opcode == OpcodeText {
			c.asm = reassembly{kind: reassemblyText}
		} else {
			c.asm = reassembly{kind: reassemblyBinary, stream: newInboundStream()}
			announce = true
		}
	case OpcodeContinuation:
		if c.asm.kind == reassemblyNone {
			return fmt.Errorf("%w: continuation frame without a message in progress", ErrProtocolViolation)
		}
	}

	if c.asm.size+int64(len(f.Payload)) > c.cfg.MaxMessageSize {
		return fmt.Errorf("%w: %d bytes so far, limit %d", ErrMessageTooLarge, c.asm.size+int64(len(f.Payload)), c.cfg.MaxMessageSize)
	}
	c.asm.size += int64(len(f.Payload))

	switch c.asm.kind {
	case reassemblyText:
		c.asm.text = append(c.asm.text, f.Payload...)
		if !f.Fin {
			return nil
		}
		msg := c.asm.text
		c.asm = reassembly{}
		if !utf8.Valid(msg) {
			return ErrInvalidUTF8
		}
		text := string(msg)
		c.emitLocked(func(h Handler) { h.OnText(c, text) })
	case reassemblyBinary:
		stream := c.asm.stream
		stream.addData(f.Payload)
		if f.Fin {
			stream.end()
			c.asm = reassembly{}
		}
		if announce {
			c.emitLocked(func(h Handler) { h.OnBinary(c, stream) })
		}
	case reassemblyNone:
		return fmt.Errorf("%w: no reassembly state for %s frame", ErrProtocolViolation, f.Opcode)
	}
	return nil
}

// SendText sends s as one final Text frame.
func (c *Connection) SendText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked("send text"); err != nil {
		return err
	}
	if c.outbound != nil {
		return c.usageErrorLocked("send text", ErrStreamActive)
	}
	return c.writeFrameLocked(OpcodeText, []byte(s), true, nil)
}

// SendBinary sends p as one final Binary frame without fragmentation.
func (c *Connection) SendBinary(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked("send binary"); err != nil {
		return err
	}
	if c.outbound != nil {
		return c.usageErrorLocked("send binary", ErrStreamActive)
	}
	return c.writeFrameLocked(OpcodeBinary, p, true, nil)
}

// BeginBinaryStream starts an incrementally written binary message. Only
// one stream may be live at a time.
func (c *Connection) BeginBinaryStream() (*OutboundStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked("begin binary stream"); err != nil {
		return nil, err
	}
	if c.outbound != nil {
		return nil, c.usageErrorLocked("begin binary stream", ErrStreamActive)
	}
	c.outbound = newOutboundStream(c, c.cfg.MaxFragmentSize)
	return c.outbound, nil
}

// Ping sends a Ping control frame. The peer's Pong is not surfaced.
func (c *Connection) Ping(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked("ping"); err != nil {
		return err
	}
	if len(payload) > MaxControlPayload {
		return c.usageErrorLocked("ping", api.ErrInvalidArgument)
	}
	return c.writeFrameLocked(OpcodePing, payload, true, nil)
}

// Close starts the closing handshake from Open, or tears the transport
// down from any other live state. The closed event is raised right away
// with code and reason; a zero code is reported as StatusNoStatusRcvd and
// sent as an empty Close frame. Repeated calls are safe.
func (c *Connection) Close(code StatusCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked(code, reason)
}

func (c *Connection) closeLocked(code StatusCode, reason string) error {
	var err error
	switch c.state {
	case api.StateClosed:
		return nil
	case api.StateOpen:
		c.framesSent.Add(1)
		err = c.tr.Write(EncodeCloseFrame(code, truncateReason(reason), c.role == api.RoleClient), nil)
		c.state = api.StateClosing
		c.releaseStreamsLocked()
		c.log.Debug().Uint16("code", uint16(code)).Msg("closing")
	case api.StateConnecting, api.StateClosing:
		c.setClosedLocked()
		err = c.tr.Close()
	}
	if code == statusNone {
		code = StatusNoStatusRcvd
	}
	c.emitClosedLocked(code, reason)
	return err
}

func (c *Connection) setClosedLocked() {
	c.state = api.StateClosed
	c.inbound.Reset()
	c.releaseStreamsLocked()
}

// releaseStreamsLocked force-terminates any live stream. Called whenever the
// connection stops accepting application data.
func (c *Connection) releaseStreamsLocked() {
	if c.asm.kind == reassemblyBinary && c.asm.stream != nil {
		c.asm.stream.abort()
	}
	c.asm = reassembly{}
	if c.outbound != nil {
		c.outbound.abortLocked()
		c.outbound = nil
	}
}

func (c *Connection) writeFrameLocked(op Opcode, payload []byte, fin bool, done func(error)) error {
	data := EncodeFrame(op, payload, c.role == api.RoleClient, fin)
	if err := c.tr.Write(data, done); err != nil {
		return api.WrapError(api.ErrCodeTransport, err).WithContext("opcode", op.String())
	}
	c.framesSent.Add(1)
	c.bytesSent.Add(int64(len(payload)))
	return nil
}

func (c *Connection) checkOpenLocked(op string) error {
	if c.state != api.StateOpen {
		return c.usageErrorLocked(op, ErrNotOpen)
	}
	return nil
}

// usageErrorLocked reports a caller mistake both as an error event and as
// the returned error. The connection is left untouched.
func (c *Connection) usageErrorLocked(op string, err error) error {
	uerr := api.WrapError(api.ErrCodeUsage, err).
		WithContext("op", op).
		WithContext("state", c.state.String())
	c.emitErrorLocked(uerr)
	return uerr
}

// emitLocked runs fn against the handler with the lock released.
func (c *Connection) emitLocked(fn func(h Handler)) {
	h := c.handler
	c.mu.Unlock()
	defer c.mu.Lock()
	fn(h)
}

func (c *Connection) emitErrorLocked(err error) {
	c.emitLocked(func(h Handler) { h.OnError(c, err) })
}

func (c *Connection) emitClosedLocked(code StatusCode, reason string) {
	if c.closeReported {
		return
	}
	c.closeReported = true
	c.log.Info().Uint16("code", uint16(code)).Str("reason", reason).Msg("connection closed")
	c.emitLocked(func(h Handler) { h.OnClose(c, code, reason) })
}

// truncateReason keeps a close reason within a control frame, cutting on a
// rune boundary.
func truncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
