package rtcerr

import (
	"errors"
	"strings"
	"testing"
)

func TestCallErrorFormatting(t *testing.T) {
	plain := New("create offer", ErrNegotiationFailed)
	if got := plain.Error(); got != "create offer: negotiation failed" {
		t.Errorf("Error() = %q", got)
	}

	detailed := Wrap("connect", ErrTransportUnavailable, "dial tcp: refused")
	if got := detailed.Error(); !strings.Contains(got, "connect") ||
		!strings.Contains(got, "dial tcp: refused") {
		t.Errorf("Error() = %q", got)
	}
}

func TestCallErrorUnwrap(t *testing.T) {
	err := Wrap("acquire media", ErrDeviceUnavailable, "no camera")
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Error("errors.Is failed through CallError")
	}

	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatal("errors.As failed")
	}
	if callErr.Op != "acquire media" {
		t.Errorf("Op = %q", callErr.Op)
	}

	nested := New("place call", err)
	if !errors.Is(nested, ErrDeviceUnavailable) {
		t.Error("errors.Is failed through nested CallError")
	}
}

func TestActionable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"permission denied", Wrap("acquire media", ErrPermissionDenied, ""), true},
		{"device unavailable", New("acquire media", ErrDeviceUnavailable), true},
		{"transport unavailable", New("connect", ErrTransportUnavailable), true},
		{"negotiation failed", New("create offer", ErrNegotiationFailed), false},
		{"invite declined", ErrInviteDeclined, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Actionable(tt.err); got != tt.want {
				t.Errorf("Actionable = %v, want %v", got, tt.want)
			}
		})
	}
}
