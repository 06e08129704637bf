// File: protocol/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
)

// Frame and handshake errors. Everything that makes the byte stream
// untrustworthy wraps ErrProtocolViolation.
var (
	ErrProtocolViolation = errors.New("websocket protocol violation")
	ErrFrameTooLarge     = fmt.Errorf("%w: frame payload exceeds maximum allowed size", ErrProtocolViolation)
	ErrMessageTooLarge   = fmt.Errorf("%w: reassembled message exceeds maximum allowed size", ErrFrameTooLarge)
	ErrInvalidUTF8       = fmt.Errorf("%w: text message is not valid UTF-8", ErrProtocolViolation)

	ErrHandshakeFailed       = errors.New("websocket handshake failed")
	ErrHandshakeTooLarge     = fmt.Errorf("%w: header block too large", ErrHandshakeFailed)
	ErrInvalidUpgradeHeaders = fmt.Errorf("%w: invalid upgrade headers", ErrHandshakeFailed)
	ErrMissingWebSocketKey   = fmt.Errorf("%w: missing Sec-WebSocket-Key header", ErrHandshakeFailed)
	ErrBadWebSocketVersion   = fmt.Errorf("%w: unsupported version; only '13' is supported", ErrHandshakeFailed)
	ErrBadAcceptKey          = fmt.Errorf("%w: Sec-WebSocket-Accept mismatch", ErrHandshakeFailed)
)

// Usage errors. They never close the connection.
var (
	ErrNotOpen       = errors.New("connection not open")
	ErrStreamActive  = errors.New("binary stream in progress")
	ErrStreamEnded   = errors.New("binary stream already ended")
	ErrStreamAborted = errors.New("binary stream aborted: connection closed")
)
