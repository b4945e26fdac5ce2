package signaling

import (
	"testing"
	"time"
)

func expectMessage(t *testing.T, ch <-chan Message, want Kind) Message {
	t.Helper()
	select {
	case msg := <-ch:
		if msg.Type != want {
			t.Fatalf("got %q, want %q", msg.Type, want)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q", want)
		return Message{}
	}
}

func TestHandlerRoutesByKind(t *testing.T) {
	in := make(chan Message, 16)
	h := NewHandler()
	defer h.Close()
	go h.Run(in)

	in <- NewOffer("room-1", "ep-a", "v=0...")
	in <- NewAnswer("room-1", "ep-b", "v=0...")
	in <- Message{Type: KindCallRequest, RoomID: "room-1", Caller: "Dr. Haynes"}
	in <- Message{Type: KindCallAccepted, RoomID: "room-1", From: "ep-b"}
	in <- Message{Type: KindCallDeclined, RoomID: "room-1", From: "ep-b"}
	in <- Message{Type: KindHangup, RoomID: "room-1", From: "ep-b"}
	in <- Message{Type: KindError, Error: "boom"}

	expectMessage(t, h.Signals, KindOffer)
	expectMessage(t, h.Signals, KindAnswer)
	expectMessage(t, h.Invites, KindCallRequest)
	expectMessage(t, h.Accepts, KindCallAccepted)
	expectMessage(t, h.Declines, KindCallDeclined)
	expectMessage(t, h.Hangups, KindHangup)

	select {
	case errMsg := <-h.Errors:
		if errMsg != "boom" {
			t.Errorf("error = %q, want %q", errMsg, "boom")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestHandlerStopsWhenInputCloses(t *testing.T) {
	in := make(chan Message)
	h := NewHandler()
	defer h.Close()

	done := make(chan struct{})
	go func() {
		h.Run(in)
		close(done)
	}()

	close(in)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after input closed")
	}
}

func TestHandlerCloseIsIdempotent(t *testing.T) {
	h := NewHandler()
	h.Close()
	h.Close()
}
