package protocol_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/momentics/hioload-endpoint/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	opcodes := []protocol.Opcode{
		protocol.OpcodeContinuation, protocol.OpcodeText, protocol.OpcodeBinary,
		protocol.OpcodeClose, protocol.OpcodePing, protocol.OpcodePong,
	}
	sizes := []int{0, 1, 125, 126, 127, 65535, 65536, 70000}

	for _, op := range opcodes {
		for _, size := range sizes {
			if op.IsControl() && size > protocol.MaxControlPayload {
				continue
			}
			payload := bytes.Repeat([]byte{0xA5, 0x5A, 0x01}, size/3+1)[:size]
			for _, masked := range []bool{true, false} {
				for _, fin := range []bool{true, false} {
					if op.IsControl() && !fin {
						continue
					}
					data := protocol.EncodeFrame(op, payload, masked, fin)
					f, n, err := protocol.DecodeFrame(data, masked, 0)
					if err != nil {
						t.Fatalf("%s/%d/mask=%v/fin=%v: decode: %v", op, size, masked, fin, err)
					}
					if f == nil {
						t.Fatalf("%s/%d: decode reported incomplete", op, size)
					}
					if n != len(data) {
						t.Errorf("%s/%d: consumed %d, want %d", op, size, n, len(data))
					}
					if f.Opcode != op || f.Fin != fin || !bytes.Equal(f.Payload, payload) {
						t.Errorf("%s/%d: got (%s, fin=%v, %d bytes)", op, size, f.Opcode, f.Fin, len(f.Payload))
					}
				}
			}
		}
	}
}

func TestEncodeMaskBit(t *testing.T) {
	masked := protocol.EncodeFrame(protocol.OpcodeText, []byte("hi"), true, true)
	if masked[1]&0x80 == 0 {
		t.Error("client frame lacks mask bit")
	}
	if len(masked) != 2+4+2 {
		t.Errorf("masked frame length = %d, want 8", len(masked))
	}
	plain := protocol.EncodeFrame(protocol.OpcodeText, []byte("hi"), false, true)
	if plain[1]&0x80 != 0 {
		t.Error("server frame carries mask bit")
	}
	if !bytes.Equal(plain, []byte{0x81, 0x02, 'h', 'i'}) {
		t.Errorf("unmasked frame = %x", plain)
	}
}

func TestEncodeDoesNotMutatePayload(t *testing.T) {
	payload := []byte("keep me intact")
	want := append([]byte(nil), payload...)
	protocol.EncodeFrame(protocol.OpcodeBinary, payload, true, true)
	if !bytes.Equal(payload, want) {
		t.Errorf("payload mutated to %q", payload)
	}
}

func TestLengthEncoding(t *testing.T) {
	cases := []struct {
		size   int
		code   byte
		header int
	}{
		{125, 125, 2},
		{126, 126, 4},
		{65535, 126, 4},
		{65536, 127, 10},
		{70000, 127, 10},
	}
	for _, tc := range cases {
		data := protocol.EncodeFrame(protocol.OpcodeBinary, make([]byte, tc.size), false, true)
		if got := data[1] & 0x7F; got != tc.code {
			t.Errorf("size %d: length code %d, want %d", tc.size, got, tc.code)
		}
		if len(data) != tc.header+tc.size {
			t.Errorf("size %d: frame length %d, want %d", tc.size, len(data), tc.header+tc.size)
		}
		switch tc.code {
		case 126:
			if got := binary.BigEndian.Uint16(data[2:]); int(got) != tc.size {
				t.Errorf("size %d: 16-bit length %d", tc.size, got)
			}
		case 127:
			if got := binary.BigEndian.Uint64(data[2:]); int(got) != tc.size {
				t.Errorf("size %d: 64-bit length %d", tc.size, got)
			}
		}
	}
}

func TestDecodeIncomplete(t *testing.T) {
	for _, size := range []int{0, 10, 200, 70000} {
		data := protocol.EncodeFrame(protocol.OpcodeBinary, make([]byte, size), true, true)
		for _, cut := range []int{0, 1, 2, 3, 5, 9, 13, len(data) - 1} {
			if cut >= len(data) {
				continue
			}
			f, n, err := protocol.DecodeFrame(data[:cut], true, 0)
			if f != nil || n != 0 || err != nil {
				t.Fatalf("size %d cut %d: got (%v, %d, %v), want incomplete", size, cut, f, n, err)
			}
		}
	}
}

func TestDecodeInvalid(t *testing.T) {
	cases := []struct {
		name         string
		data         []byte
		expectMasked bool
	}{
		{"reserved bit", []byte{0x81 | 0x40, 0x00}, false},
		{"illegal opcode", []byte{0x83, 0x00}, false},
		{"fragmented ping", []byte{0x09, 0x00}, false},
		{"fragmented close", []byte{0x08, 0x80, 1, 2, 3, 4}, true},
		{"fragmented pong", []byte{0x0A, 0x00}, false},
		{"unmasked to server", []byte{0x81, 0x00}, true},
		{"masked to client", []byte{0x81, 0x80, 1, 2, 3, 4}, false},
		{"oversized ping", []byte{0x89, 126, 0x00, 0x7E}, false},
		{"64-bit msb", []byte{0x82, 127, 0x80, 0, 0, 0, 0, 0, 0, 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, _, err := protocol.DecodeFrame(tc.data, tc.expectMasked, 0)
			if err == nil {
				t.Fatalf("decoded %+v, want error", f)
			}
			if !errors.Is(err, protocol.ErrProtocolViolation) {
				t.Errorf("error %v does not wrap ErrProtocolViolation", err)
			}
		})
	}
}

func TestDecodeFrameTooLarge(t *testing.T) {
	data := protocol.EncodeFrame(protocol.OpcodeBinary, make([]byte, 11), false, true)
	_, _, err := protocol.DecodeFrame(data, false, 10)
	if !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
	// The limit applies to the declared length, before the payload arrives.
	_, _, err = protocol.DecodeFrame(data[:4], false, 10)
	if !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Fatalf("header-only err = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodeConsumesExactlyOneFrame(t *testing.T) {
	first := protocol.EncodeFrame(protocol.OpcodeText, []byte("one"), false, true)
	second := protocol.EncodeFrame(protocol.OpcodeText, []byte("two"), false, true)
	buf := append(append([]byte(nil), first...), second...)

	f, n, err := protocol.DecodeFrame(buf, false, 0)
	if err != nil || f == nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(first) || string(f.Payload) != "one" {
		t.Fatalf("first frame: n=%d payload=%q", n, f.Payload)
	}
	f, n, err = protocol.DecodeFrame(buf[n:], false, 0)
	if err != nil || f == nil || n != len(second) || string(f.Payload) != "two" {
		t.Fatalf("second frame: %v %d %v", f, n, err)
	}
}

func TestCloseFramePayload(t *testing.T) {
	data := protocol.EncodeCloseFrame(protocol.StatusNormalClosure, "bye", false)
	if !bytes.Equal(data, []byte{0x88, 0x05, 0x03, 0xE8, 'b', 'y', 'e'}) {
		t.Fatalf("close frame = %x", data)
	}
	f, _, err := protocol.DecodeFrame(data, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	code, reason, err := protocol.DecodeClosePayload(f.Payload)
	if err != nil || code != protocol.StatusNormalClosure || reason != "bye" {
		t.Errorf("DecodeClosePayload = (%d, %q, %v)", code, reason, err)
	}

	for _, code := range []protocol.StatusCode{0, protocol.StatusNoStatusRcvd, protocol.StatusAbnormalClosure} {
		if data := protocol.EncodeCloseFrame(code, "ignored", false); !bytes.Equal(data, []byte{0x88, 0x00}) {
			t.Errorf("code %d: close frame = %x, want empty payload", code, data)
		}
	}

	code, reason, err = protocol.DecodeClosePayload(nil)
	if err != nil || code != protocol.StatusNoStatusRcvd || reason != "" {
		t.Errorf("empty payload = (%d, %q, %v)", code, reason, err)
	}
	if _, _, err := protocol.DecodeClosePayload([]byte{0x03}); !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Errorf("1-byte payload err = %v", err)
	}
	if _, _, err := protocol.DecodeClosePayload([]byte{0x03, 0xED}); !errors.Is(err, protocol.ErrProtocolViolation) {
		t.Errorf("code 1005 on the wire err = %v", err)
	}
}

func TestStatusCodeString(t *testing.T) {
	if got := protocol.StatusProtocolError.String(); got != "protocol error" {
		t.Errorf("String() = %q", got)
	}
	if got := protocol.StatusCode(4000).String(); got != "unknown status code" {
		t.Errorf("String() = %q", got)
	}
}

func FuzzDecodeFrame(f *testing.F) {
	f.Add(protocol.EncodeFrame(protocol.OpcodeText, []byte("seed"), true, true), true)
	f.Add(protocol.EncodeFrame(protocol.OpcodeBinary, make([]byte, 300), false, false), false)
	f.Add([]byte{0x89, 0x80}, true)
	f.Fuzz(func(t *testing.T, data []byte, expectMasked bool) {
		fr, n, err := protocol.DecodeFrame(data, expectMasked, 1<<16)
		switch {
		case err != nil:
			if fr != nil || n != 0 {
				t.Fatalf("error with frame %v n=%d", fr, n)
			}
		case fr == nil:
			if n != 0 {
				t.Fatalf("incomplete with n=%d", n)
			}
		default:
			if n <= 0 || n > len(data) {
				t.Fatalf("consumed %d of %d", n, len(data))
			}
			again := protocol.EncodeFrame(fr.Opcode, fr.Payload, expectMasked, fr.Fin)
			back, _, err := protocol.DecodeFrame(again, expectMasked, 1<<16)
			if err != nil || !bytes.Equal(back.Payload, fr.Payload) {
				t.Fatalf("re-encode mismatch: %v", err)
			}
		}
	})
}
