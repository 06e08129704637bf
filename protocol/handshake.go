// File: protocol/handshake.go
// Package protocol implements the core WebSocket handshake logic.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Provides both server-side and client-side handshake routines: building the
// HTTP/1.1 Upgrade request, validating it, computing Sec-WebSocket-Accept and
// checking the 101 Switching Protocols response. The Connection feeds these
// with a complete header block; nothing here touches the transport.

package protocol

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Constants used for handshake processing.
const (
	WebSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	HeaderConnection         = "Connection"
	HeaderUpgrade            = "Upgrade"
	HeaderSecWebSocketKey    = "Sec-WebSocket-Key"
	HeaderSecWebSocketVer    = "Sec-WebSocket-Version"
	HeaderSecWebSocketAccept = "Sec-WebSocket-Accept"
	RequiredWebSocketVersion = "13"
	DefaultMaxHandshakeSize  = 8192

	headerTerminator = "\r\n\r\n"

	// Minimum line counts of a header block, start line included.
	minResponseLines = 4
	minRequestLines  = 6
)

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the client's key.
func ComputeAcceptKey(clientKey string) string {
	hash := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// NewHandshakeKey returns a base64-encoded random 16-byte nonce.
func NewHandshakeKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("handshake nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// UpgradeRequest is a validated client handshake.
type UpgradeRequest struct {
	Path   string
	Host   string
	Key    string
	Header http.Header
}

// BuildUpgradeRequest serializes the client's GET Upgrade request.
// extra headers are appended verbatim after the mandatory ones.
func BuildUpgradeRequest(host, path, key string, extra http.Header) []byte {
	if path == "" {
		path = "/"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	fmt.Fprintf(&b, "%s: websocket\r\n", HeaderUpgrade)
	fmt.Fprintf(&b, "%s: Upgrade\r\n", HeaderConnection)
	fmt.Fprintf(&b, "%s: %s\r\n", HeaderSecWebSocketKey, key)
	fmt.Fprintf(&b, "%s: %s\r\n", HeaderSecWebSocketVer, RequiredWebSocketVersion)
	writeHeaders(&b, extra)
	b.WriteString("\r\n")
	return b.Bytes()
}

// BuildAcceptResponse serializes the 101 Switching Protocols response.
func BuildAcceptResponse(clientKey string, extra http.Header) []byte {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	fmt.Fprintf(&b, "%s: websocket\r\n", HeaderUpgrade)
	fmt.Fprintf(&b, "%s: Upgrade\r\n", HeaderConnection)
	fmt.Fprintf(&b, "%s: %s\r\n", HeaderSecWebSocketAccept, ComputeAcceptKey(clientKey))
	writeHeaders(&b, extra)
	b.WriteString("\r\n")
	return b.Bytes()
}

// BuildRejectResponse serializes the 400 reply sent on a failed upgrade.
func BuildRejectResponse() []byte {
	return []byte("HTTP/1.1 400 Bad Request\r\nConnection: close\r\nContent-Length: 0\r\n\r\n")
}

// ParseUpgradeRequest validates a complete request header block (including
// the terminating empty line) and returns the negotiated parameters.
func ParseUpgradeRequest(block string) (*UpgradeRequest, error) {
	if n := countLines(block); n < minRequestLines {
		return nil, fmt.Errorf("%w: %d header lines, need %d", ErrHandshakeFailed, n, minRequestLines)
	}
	req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(block)))
	if err != nil {
		return nil, fmt.Errorf("%w: read request: %v", ErrHandshakeFailed, err)
	}
	if req.Method != http.MethodGet || req.RequestURI == "" {
		return nil, fmt.Errorf("%w: request line %q %q", ErrHandshakeFailed, req.Method, req.RequestURI)
	}
	if req.Host == "" {
		return nil, fmt.Errorf("%w: missing Host header", ErrHandshakeFailed)
	}
	if !validUpgradeHeaders(req.Header) {
		return nil, ErrInvalidUpgradeHeaders
	}
	key := req.Header.Get(HeaderSecWebSocketKey)
	if key == "" {
		return nil, ErrMissingWebSocketKey
	}
	if req.Header.Get(HeaderSecWebSocketVer) != RequiredWebSocketVersion {
		return nil, ErrBadWebSocketVersion
	}
	return &UpgradeRequest{
		Path:   req.RequestURI,
		Host:   req.Host,
		Key:    key,
		Header: req.Header,
	}, nil
}

// ValidateUpgradeResponse checks a complete response header block against
// the key the client sent.
func ValidateUpgradeResponse(block, clientKey string) (http.Header, error) {
	if n := countLines(block); n < minResponseLines {
		return nil, fmt.Errorf("%w: %d header lines, need %d", ErrHandshakeFailed, n, minResponseLines)
	}
	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(block)), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHandshakeFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return nil, fmt.Errorf("%w: status %d", ErrHandshakeFailed, resp.StatusCode)
	}
	if !validUpgradeHeaders(resp.Header) {
		return nil, ErrInvalidUpgradeHeaders
	}
	accept := resp.Header.Get(HeaderSecWebSocketAccept)
	if accept == "" || accept != ComputeAcceptKey(clientKey) {
		return nil, ErrBadAcceptKey
	}
	return resp.Header, nil
}

// validUpgradeHeaders requires Upgrade: websocket and a Connection header
// listing the upgrade token, both case-insensitive.
func validUpgradeHeaders(h http.Header) bool {
	return strings.EqualFold(strings.TrimSpace(h.Get(HeaderUpgrade)), "websocket") &&
		headerContainsToken(h, HeaderConnection, "upgrade")
}

// headerContainsToken checks if headerName contains the given token (case-insensitive).
func headerContainsToken(h http.Header, headerName, token string) bool {
	vals := h[http.CanonicalHeaderKey(headerName)]
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// countLines counts the non-empty lines of a header block.
func countLines(block string) int {
	n := 0
	for _, line := range strings.Split(strings.TrimSuffix(block, headerTerminator), "\r\n") {
		if line != "" {
			n++
		}
	}
	return n
}

func writeHeaders(b *bytes.Buffer, h http.Header) {
	for k, vs := range h {
		for _, v := range vs {
			fmt.Fprintf(b, "%s: %s\r\n", k, v)
		}
	}
}
