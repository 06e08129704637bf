package protocol_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/momentics/hioload-endpoint/protocol"
)

func TestOutboundStreamFragments(t *testing.T) {
	c, tr, _ := openServer(t, protocol.WithMaxFragmentSize(4))
	s, err := c.BeginBinaryStream()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write([]byte("abcdefghij")); err != nil {
		t.Fatal(err)
	}
	fs := frames(t, tr, false)
	if len(fs) != 2 {
		t.Fatalf("wrote %d frames before End", len(fs))
	}
	if fs[0].Opcode != protocol.OpcodeBinary || fs[0].Fin || string(fs[0].Payload) != "abcd" {
		t.Errorf("first frame = %s fin=%v %q", fs[0].Opcode, fs[0].Fin, fs[0].Payload)
	}
	if fs[1].Opcode != protocol.OpcodeContinuation || fs[1].Fin || string(fs[1].Payload) != "efgh" {
		t.Errorf("second frame = %s fin=%v %q", fs[1].Opcode, fs[1].Fin, fs[1].Payload)
	}

	if err := s.End(); err != nil {
		t.Fatal(err)
	}
	fs = frames(t, tr, false)
	if len(fs) != 1 || fs[0].Opcode != protocol.OpcodeContinuation || !fs[0].Fin || string(fs[0].Payload) != "ij" {
		t.Fatalf("final frames = %v", fs)
	}
}

func TestOutboundStreamSmallWritesCoalesce(t *testing.T) {
	c, tr, _ := openServer(t, protocol.WithMaxFragmentSize(8))
	s, _ := c.BeginBinaryStream()
	for _, p := range []string{"a", "bc", "def"} {
		s.Write([]byte(p))
	}
	if len(tr.Written()) != 0 {
		t.Fatal("partial fragment flushed early")
	}
	s.End()
	fs := frames(t, tr, false)
	if len(fs) != 1 || fs[0].Opcode != protocol.OpcodeBinary || !fs[0].Fin || string(fs[0].Payload) != "abcdef" {
		t.Fatalf("frames = %v", fs)
	}
}

func TestOutboundStreamEmpty(t *testing.T) {
	c, tr, _ := openServer(t)
	s, _ := c.BeginBinaryStream()
	if err := s.End(); err != nil {
		t.Fatal(err)
	}
	fs := frames(t, tr, false)
	if len(fs) != 1 || fs[0].Opcode != protocol.OpcodeBinary || !fs[0].Fin || len(fs[0].Payload) != 0 {
		t.Fatalf("frames = %v", fs)
	}
}

func TestOutboundStreamExactMultiple(t *testing.T) {
	c, tr, _ := openServer(t, protocol.WithMaxFragmentSize(4))
	s, _ := c.BeginBinaryStream()
	s.Write([]byte("abcdefgh"))
	s.End()
	fs := frames(t, tr, false)
	if len(fs) != 3 {
		t.Fatalf("wrote %d frames", len(fs))
	}
	last := fs[2]
	if last.Opcode != protocol.OpcodeContinuation || !last.Fin || len(last.Payload) != 0 {
		t.Errorf("final frame = %s fin=%v %q", last.Opcode, last.Fin, last.Payload)
	}
}

func TestOutboundStreamIsWriteCloser(t *testing.T) {
	c, tr, h := openServer(t, protocol.WithMaxFragmentSize(16))
	s, _ := c.BeginBinaryStream()
	var w io.WriteCloser = s
	if _, err := io.Copy(w, strings.NewReader(strings.Repeat("q", 40))); err != nil {
		t.Fatal(err)
	}
	w.Close()
	fs := frames(t, tr, false)
	total := 0
	for _, f := range fs {
		total += len(f.Payload)
	}
	if len(fs) != 3 || total != 40 || !fs[2].Fin {
		t.Fatalf("frames = %d, total = %d", len(fs), total)
	}

	// The stream slot is free again and a second End is harmless.
	if err := s.End(); err != nil {
		t.Errorf("second End = %v", err)
	}
	if _, err := s.Write([]byte("x")); !errors.Is(err, protocol.ErrStreamEnded) {
		t.Errorf("write after End = %v", err)
	}
	if err := c.SendText("after"); err != nil {
		t.Errorf("SendText after End = %v", err)
	}
	if h.Count("error") != 0 {
		t.Errorf("events = %v", h.Events())
	}
}

func TestOnlyOneOutboundStream(t *testing.T) {
	c, _, h := openServer(t)
	if _, err := c.BeginBinaryStream(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.BeginBinaryStream(); !errors.Is(err, protocol.ErrStreamActive) {
		t.Errorf("second stream err = %v", err)
	}
	if err := c.SendText("x"); !errors.Is(err, protocol.ErrStreamActive) {
		t.Errorf("SendText err = %v", err)
	}
	if err := c.SendBinary([]byte("x")); !errors.Is(err, protocol.ErrStreamActive) {
		t.Errorf("SendBinary err = %v", err)
	}
	if n := h.Count("error"); n != 3 {
		t.Errorf("%d error events", n)
	}
}

func TestOutboundStreamAbortedOnClose(t *testing.T) {
	c, tr, _ := openServer(t, protocol.WithMaxFragmentSize(4))
	s, _ := c.BeginBinaryStream()
	s.Write([]byte("ab"))
	c.Close(protocol.StatusNormalClosure, "")
	tr.TakeWritten()

	if _, err := s.Write([]byte("cd")); !errors.Is(err, protocol.ErrStreamAborted) {
		t.Errorf("Write err = %v", err)
	}
	if err := s.End(); !errors.Is(err, protocol.ErrStreamAborted) {
		t.Errorf("End err = %v", err)
	}
	if len(tr.Written()) != 0 {
		t.Error("aborted stream wrote a frame")
	}
}

func TestOutboundStreamClientMasks(t *testing.T) {
	c, tr, _ := openClient(t, protocol.WithMaxFragmentSize(3))
	s, _ := c.BeginBinaryStream()
	s.Write([]byte("hello"))
	s.End()
	fs := frames(t, tr, true)
	if len(fs) != 2 || string(fs[0].Payload)+string(fs[1].Payload) != "hello" {
		t.Fatalf("frames = %v", fs)
	}
}
