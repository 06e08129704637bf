package api_test

import (
	"errors"
	"testing"

	"github.com/momentics/hioload-endpoint/api"
)

func TestTransportInterfaceCompliance(t *testing.T) {
	var _ api.Transport = (*mockTransport)(nil)
	var _ api.TransportListener = (*mockListener)(nil)
}

type mockTransport struct{}

func (*mockTransport) Read([]byte) (int, error)         { return 0, api.ErrNoData }
func (*mockTransport) Write([]byte, func(error)) error { return nil }
func (*mockTransport) Close() error                    { return nil }

type mockListener struct{}

func (*mockListener) HandleReadable()            {}
func (*mockListener) HandleTransportClosed()     {}
func (*mockListener) HandleTransportError(error) {}

func TestErrorWrapping(t *testing.T) {
	err := api.WrapError(api.ErrCodeUsage, api.ErrInvalidArgument).WithContext("state", api.StateClosed)
	if !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("errors.Is failed for %v", err)
	}
	if got := api.CodeOf(err); got != api.ErrCodeUsage {
		t.Errorf("CodeOf = %v, want %v", got, api.ErrCodeUsage)
	}
	if got := api.CodeOf(errors.New("plain")); got != api.ErrCodeInternal {
		t.Errorf("CodeOf(plain) = %v, want %v", got, api.ErrCodeInternal)
	}
	if got := api.CodeOf(nil); got != api.ErrCodeOK {
		t.Errorf("CodeOf(nil) = %v, want %v", got, api.ErrCodeOK)
	}
}

func TestStateAndRoleStrings(t *testing.T) {
	cases := map[string]string{
		api.StateConnecting.String(): "connecting",
		api.StateOpen.String():       "open",
		api.StateClosing.String():    "closing",
		api.StateClosed.String():     "closed",
		api.RoleClient.String():      "client",
		api.RoleServer.String():      "server",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
