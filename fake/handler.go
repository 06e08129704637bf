// Package fake
// Author: momentics <momentics@gmail.com>
//
// Recording event handler for connection tests.

package fake

import (
	"fmt"
	"io"
	"sync"

	"github.com/momentics/hioload-endpoint/protocol"
)

// Event is one recorded handler call.
type Event struct {
	Kind   string // connected, text, binary, closed, error
	Text   string
	Data   []byte // binary payload, read after the stream ended
	Code   protocol.StatusCode
	Reason string
	Err    error
	Stream *protocol.InboundStream
}

func (e Event) String() string {
	switch e.Kind {
	case "text":
		return fmt.Sprintf("text(%q)", e.Text)
	case "closed":
		return fmt.Sprintf("closed(%d, %q)", e.Code, e.Reason)
	case "error":
		return fmt.Sprintf("error(%v)", e.Err)
	default:
		return e.Kind
	}
}

// Handler records every event in order. It implements protocol.Handler.
type Handler struct {
	mu     sync.Mutex
	events []Event

	// OnTextHook, if set, runs after a text event is recorded.
	OnTextHook func(c *protocol.Connection, msg string)
}

func (h *Handler) record(e Event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *Handler) OnConnected(*protocol.Connection) {
	h.record(Event{Kind: "connected"})
}

func (h *Handler) OnText(c *protocol.Connection, msg string) {
	h.record(Event{Kind: "text", Text: msg})
	if h.OnTextHook != nil {
		h.OnTextHook(c, msg)
	}
}

func (h *Handler) OnBinary(_ *protocol.Connection, s *protocol.InboundStream) {
	h.record(Event{Kind: "binary", Stream: s})
}

func (h *Handler) OnClose(_ *protocol.Connection, code protocol.StatusCode, reason string) {
	h.record(Event{Kind: "closed", Code: code, Reason: reason})
}

func (h *Handler) OnError(_ *protocol.Connection, err error) {
	h.record(Event{Kind: "error", Err: err})
}

// Events returns the recorded events.
func (h *Handler) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// Kinds returns the kinds of the recorded events.
func (h *Handler) Kinds() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.Kind
	}
	return out
}

// Count returns how many events of kind were recorded.
func (h *Handler) Count(kind string) int {
	n := 0
	for _, e := range h.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent event of kind.
func (h *Handler) Last(kind string) (Event, bool) {
	events := h.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == kind {
			return events[i], true
		}
	}
	return Event{}, false
}

// ReadAll drains a finished binary stream.
func ReadAll(s *protocol.InboundStream) ([]byte, error) {
	return io.ReadAll(s)
}
