// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-endpoint.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrTransportClosed = errors.New("transport is closed")
	ErrNoData          = errors.New("no data available yet")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotSupported    = errors.New("operation not supported")
)

// ErrorCode classifies failures by how the connection reacts to them.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	// ErrCodeProtocol is a frame-level violation; fatal to the connection.
	ErrCodeProtocol
	// ErrCodeHandshake is an upgrade failure; fatal to the connection.
	ErrCodeHandshake
	// ErrCodeUsage is a caller mistake; the connection stays usable.
	ErrCodeUsage
	ErrCodeTransport
	ErrCodeNotSupported
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeProtocol:
		return "protocol"
	case ErrCodeHandshake:
		return "handshake"
	case ErrCodeUsage:
		return "usage"
	case ErrCodeTransport:
		return "transport"
	case ErrCodeNotSupported:
		return "not supported"
	default:
		return "internal"
	}
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the wrapped sentinel to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WrapError creates a structured error around err.
func WrapError(code ErrorCode, err error) *Error {
	return &Error{
		Code:    code,
		Context: make(map[string]any),
		Err:     err,
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the ErrorCode carried by err, or ErrCodeInternal when err
// is not a structured error. A nil err yields ErrCodeOK.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
