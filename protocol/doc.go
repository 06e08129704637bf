// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the core WebSocket protocol logic (RFC 6455) for hioload-endpoint.
//
// The package is transport-agnostic: a Connection is driven by an
// api.Transport that reports readable bytes and teardown, and it turns those
// bytes into application events in the exact order frames are decoded.
//
// Includes:
//   - Frame encoding/decoding over partially filled buffers
//   - Client and server opening handshake (HTTP/1.1 Upgrade)
//   - Open/Closing/Closed state machine with the close handshake
//   - Reassembly of fragmented text and binary messages
//   - Outbound binary streams split into bounded fragments
//   - Masking per direction (clients mask, servers never do)
package protocol
