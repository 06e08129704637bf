package client_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momentics/hioload-endpoint/api"
	"github.com/momentics/hioload-endpoint/lowlevel/client"
	"github.com/momentics/hioload-endpoint/protocol"
)

var upgrader = websocket.Upgrader{}

// gorillaEcho starts an echo server built on gorilla/websocket.
func gorillaEcho(t *testing.T, pings *atomic.Int32) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, http.Header{"X-Peer": []string{"gorilla"}})
		if err != nil {
			return
		}
		defer ws.Close()
		if pings != nil {
			ws.SetPingHandler(func(data string) error {
				pings.Add(1)
				return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
			})
		}
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage && string(data) == "path?" {
				data = []byte(r.URL.RequestURI())
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type recorder struct {
	connected chan struct{}
	texts     chan string
	binaries  chan []byte
	closed    chan protocol.StatusCode
}

func newRecorder() *recorder {
	return &recorder{
		connected: make(chan struct{}, 1),
		texts:     make(chan string, 8),
		binaries:  make(chan []byte, 8),
		closed:    make(chan protocol.StatusCode, 1),
	}
}

func (r *recorder) handler() protocol.Handler {
	return protocol.HandlerFuncs{
		Connected: func(*protocol.Connection) { r.connected <- struct{}{} },
		Text:      func(_ *protocol.Connection, msg string) { r.texts <- msg },
		Binary: func(_ *protocol.Connection, s *protocol.InboundStream) {
			go func() {
				data, _ := io.ReadAll(s)
				r.binaries <- data
			}()
		},
		Closed: func(_ *protocol.Connection, code protocol.StatusCode, _ string) { r.closed <- code },
	}
}

func recv[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

func TestDialEcho(t *testing.T) {
	url := gorillaEcho(t, nil)
	rec := newRecorder()
	c, err := client.Dial(context.Background(), url+"/echo?x=1", rec.handler())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Abort()
	recv(t, rec.connected)

	if got := c.Conn().RequestHeader().Get("X-Peer"); got != "gorilla" {
		t.Errorf("response header X-Peer = %q", got)
	}
	if err := c.Conn().SendText("hello"); err != nil {
		t.Fatal(err)
	}
	if got := recv(t, rec.texts); got != "hello" {
		t.Errorf("echo = %q", got)
	}
	c.Conn().SendText("path?")
	if got := recv(t, rec.texts); got != "/echo?x=1" {
		t.Errorf("server saw path %q", got)
	}
}

func TestDialStreamedBinary(t *testing.T) {
	url := gorillaEcho(t, nil)
	rec := newRecorder()
	c, err := client.Dial(context.Background(), url, rec.handler(),
		client.WithConnOptions(protocol.WithMaxFragmentSize(1000)))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Abort()

	payload := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7}, 3000)
	s, err := c.Conn().BeginBinaryStream()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.Copy(s, bytes.NewReader(payload)); err != nil {
		t.Fatal(err)
	}
	if err := s.End(); err != nil {
		t.Fatal(err)
	}
	if got := recv(t, rec.binaries); !bytes.Equal(got, payload) {
		t.Errorf("echo of %d bytes came back as %d bytes", len(payload), len(got))
	}
}

func TestDialCloseHandshake(t *testing.T) {
	url := gorillaEcho(t, nil)
	rec := newRecorder()
	c, err := client.Dial(context.Background(), url, rec.handler())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(protocol.StatusNormalClosure, "done"); err != nil {
		t.Fatal(err)
	}
	if code := recv(t, rec.closed); code != protocol.StatusNormalClosure {
		t.Errorf("closed with %d", code)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if c.Conn().State() != api.StateClosed {
		t.Errorf("state = %s", c.Conn().State())
	}
}

func TestDialHeartbeat(t *testing.T) {
	var pings atomic.Int32
	url := gorillaEcho(t, &pings)
	c, err := client.Dial(context.Background(), url, nil, client.WithHeartbeat(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Abort()
	deadline := time.Now().Add(5 * time.Second)
	for pings.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("server saw %d pings", pings.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDialRejectsWSS(t *testing.T) {
	_, err := client.Dial(context.Background(), "wss://example.com/", nil)
	if !errors.Is(err, api.ErrNotSupported) || !errors.Is(err, client.ErrUnsupportedScheme) {
		t.Fatalf("err = %v", err)
	}
}

func TestDialRejectsBadURLs(t *testing.T) {
	for _, u := range []string{"http://example.com/", "ws:///nohost", "://bad"} {
		if _, err := client.Dial(context.Background(), u, nil); !errors.Is(err, api.ErrInvalidArgument) {
			t.Errorf("%q: err = %v", u, err)
		}
	}
}

func TestDialHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	rec := newRecorder()
	_, err := client.Dial(context.Background(), url, rec.handler())
	if !errors.Is(err, protocol.ErrHandshakeFailed) {
		t.Fatalf("err = %v", err)
	}
	select {
	case <-rec.connected:
		t.Error("connected reported for a failed handshake")
	default:
	}
}

func TestDialTimeout(t *testing.T) {
	// The server accepts the upgrade request but never answers it.
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	start := time.Now()
	_, err := client.Dial(context.Background(), url, nil, client.WithDialTimeout(100*time.Millisecond))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout not honoured")
	}
}
