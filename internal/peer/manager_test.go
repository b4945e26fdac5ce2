package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/medibridge/telecall/internal/media"
	"github.com/medibridge/telecall/internal/rtcerr"
	"github.com/medibridge/telecall/internal/signaling"
)

// recorder captures published messages so tests deliver them by hand and
// stay deterministic.
type recorder struct {
	mu   sync.Mutex
	msgs []signaling.Message
}

func (r *recorder) Publish(msg signaling.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// lastOf returns the most recent message of the given kind, if any.
func (r *recorder) lastOf(kind signaling.Kind) (signaling.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Type == kind {
			return r.msgs[i], true
		}
	}
	return signaling.Message{}, false
}

func (r *recorder) countOf(kind signaling.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, msg := range r.msgs {
		if msg.Type == kind {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, endpointID string, rec *recorder) *Manager {
	t.Helper()
	logger := zerolog.Nop()

	mgr := NewManager(Config{
		EndpointID: endpointID,
		Publisher:  rec,
		Media:      media.NewSynthetic(),
		Logger:     &logger,
	})
	t.Cleanup(mgr.Close)
	return mgr
}

func acquire(t *testing.T, mgr *Manager) {
	t.Helper()
	if err := mgr.AcquireMedia(media.Constraints{Audio: true, Video: true}); err != nil {
		t.Fatalf("AcquireMedia: %v", err)
	}
}

// hostCandidate builds a parseable host candidate, distinguishable by port.
func hostCandidate(port int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"candidate":"candidate:3604248003 1 udp 2113937151 192.0.2.10 %d typ host","sdpMid":"0","sdpMLineIndex":0}`,
		port))
}

func TestManagerStateProgression(t *testing.T) {
	rec := &recorder{}
	mgr := newTestManager(t, "ep-a", rec)

	if got := mgr.State(); got != StateNew {
		t.Fatalf("initial state = %q", got)
	}
	acquire(t, mgr)
	if got := mgr.State(); got != StateHaveLocalMedia {
		t.Fatalf("state after media = %q", got)
	}
	if err := mgr.CreateOffer("room-1"); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if got := mgr.State(); got != StateNegotiating {
		t.Fatalf("state after offer = %q", got)
	}

	offer, ok := rec.lastOf(signaling.KindOffer)
	if !ok {
		t.Fatal("no offer published")
	}
	if offer.RoomID != "room-1" || offer.From != "ep-a" || offer.SDP == "" {
		t.Errorf("offer = %+v", offer)
	}

	mgr.Close()
	if got := mgr.State(); got != StateClosed {
		t.Errorf("state after close = %q", got)
	}
}

func TestManagerOfferRequiresLocalMedia(t *testing.T) {
	rec := &recorder{}
	mgr := newTestManager(t, "ep-a", rec)

	if err := mgr.CreateOffer("room-1"); err == nil {
		t.Fatal("CreateOffer without media succeeded")
	}
}

func TestManagerAcquireMediaOnlyFromNew(t *testing.T) {
	rec := &recorder{}
	mgr := newTestManager(t, "ep-a", rec)
	acquire(t, mgr)

	if err := mgr.AcquireMedia(media.Constraints{Audio: true}); err == nil {
		t.Fatal("second AcquireMedia succeeded")
	}
}

func TestManagerAnswersIncomingOffer(t *testing.T) {
	callerRec, calleeRec := &recorder{}, &recorder{}
	caller := newTestManager(t, "ep-caller", callerRec)
	callee := newTestManager(t, "ep-callee", calleeRec)
	acquire(t, caller)
	acquire(t, callee)

	if err := caller.CreateOffer("room-1"); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	offer, _ := callerRec.lastOf(signaling.KindOffer)

	if err := callee.HandleSignal(offer); err != nil {
		t.Fatalf("HandleSignal(offer): %v", err)
	}
	if got := callee.State(); got != StateNegotiating {
		t.Fatalf("callee state = %q", got)
	}

	answer, ok := calleeRec.lastOf(signaling.KindAnswer)
	if !ok {
		t.Fatal("callee published no answer")
	}
	if answer.From != "ep-callee" || answer.RoomID != "room-1" || answer.SDP == "" {
		t.Errorf("answer = %+v", answer)
	}

	if err := caller.HandleSignal(answer); err != nil {
		t.Fatalf("HandleSignal(answer): %v", err)
	}
}

func TestManagerIgnoresOwnEcho(t *testing.T) {
	rec := &recorder{}
	mgr := newTestManager(t, "ep-a", rec)
	acquire(t, mgr)
	if err := mgr.CreateOffer("room-1"); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	echo, _ := rec.lastOf(signaling.KindOffer)
	if err := mgr.HandleSignal(echo); err != nil {
		t.Fatalf("HandleSignal(own echo) = %v", err)
	}
	// the echo must not have produced an answer
	if _, ok := rec.lastOf(signaling.KindAnswer); ok {
		t.Error("manager answered its own offer")
	}
}

func TestManagerRejectsWrongRoom(t *testing.T) {
	rec := &recorder{}
	mgr := newTestManager(t, "ep-a", rec)
	acquire(t, mgr)
	if err := mgr.CreateOffer("room-1"); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	err := mgr.HandleSignal(signaling.NewOffer("room-2", "ep-b", "v=0..."))
	if !errors.Is(err, rtcerr.ErrRoomMismatch) {
		t.Fatalf("HandleSignal wrong room = %v, want ErrRoomMismatch", err)
	}
}

func TestManagerRejectsNonNegotiationKinds(t *testing.T) {
	rec := &recorder{}
	mgr := newTestManager(t, "ep-a", rec)
	acquire(t, mgr)

	err := mgr.HandleSignal(signaling.Message{
		Type: signaling.KindCallRequest, RoomID: "room-1", From: "ep-b", Caller: "X",
	})
	if !errors.Is(err, rtcerr.ErrNegotiationFailed) {
		t.Fatalf("HandleSignal(call-request) = %v, want ErrNegotiationFailed", err)
	}
}

func TestManagerBuffersEarlyCandidates(t *testing.T) {
	callerRec, calleeRec := &recorder{}, &recorder{}
	caller := newTestManager(t, "ep-caller", callerRec)
	callee := newTestManager(t, "ep-callee", calleeRec)
	acquire(t, caller)
	acquire(t, callee)

	// candidates outrun the offer; they must be buffered, not dropped
	ports := []int{50001, 50002, 50003}
	for i, port := range ports {
		msg := signaling.NewCandidate("room-1", "ep-caller", hostCandidate(port))
		if err := callee.HandleSignal(msg); err != nil {
			t.Fatalf("HandleSignal(early candidate %d): %v", i, err)
		}
	}
	callee.mu.Lock()
	buffered := make([]string, len(callee.pending))
	for i, init := range callee.pending {
		buffered[i] = init.Candidate
	}
	callee.mu.Unlock()
	if len(buffered) != len(ports) {
		t.Fatalf("buffered = %d, want %d", len(buffered), len(ports))
	}
	// the buffer preserves arrival order
	for i, port := range ports {
		if !strings.Contains(buffered[i], fmt.Sprintf(" %d ", port)) {
			t.Errorf("pending[%d] = %q, want the candidate with port %d", i, buffered[i], port)
		}
	}

	if err := caller.CreateOffer("room-1"); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	offer, _ := callerRec.lastOf(signaling.KindOffer)
	if err := callee.HandleSignal(offer); err != nil {
		t.Fatalf("HandleSignal(offer): %v", err)
	}

	// buffer applied exactly once and emptied
	callee.mu.Lock()
	remaining := len(callee.pending)
	remoteSet := callee.remoteSet
	callee.mu.Unlock()
	if remaining != 0 {
		t.Errorf("pending after offer = %d, want 0", remaining)
	}
	if !remoteSet {
		t.Error("remote description not recorded")
	}

	// candidates arriving after the description apply directly
	late := signaling.NewCandidate("room-1", "ep-caller", hostCandidate(50004))
	if err := callee.HandleSignal(late); err != nil {
		t.Fatalf("HandleSignal(late candidate): %v", err)
	}
}

func TestManagerMalformedCandidate(t *testing.T) {
	rec := &recorder{}
	mgr := newTestManager(t, "ep-a", rec)
	acquire(t, mgr)

	msg := signaling.NewCandidate("room-1", "ep-b", json.RawMessage(`{not json`))
	if err := mgr.HandleSignal(msg); err == nil {
		t.Fatal("malformed candidate accepted")
	}
}

func TestManagerGlareLowerIDYields(t *testing.T) {
	lowRec, highRec := &recorder{}, &recorder{}
	low := newTestManager(t, "ep-aaa", lowRec)
	high := newTestManager(t, "ep-zzz", highRec)
	acquire(t, low)
	acquire(t, high)

	if err := low.CreateOffer("room-1"); err != nil {
		t.Fatalf("low CreateOffer: %v", err)
	}
	if err := high.CreateOffer("room-1"); err != nil {
		t.Fatalf("high CreateOffer: %v", err)
	}
	lowOffer, _ := lowRec.lastOf(signaling.KindOffer)
	highOffer, _ := highRec.lastOf(signaling.KindOffer)

	// the higher id holds its offer and ignores the rival
	if err := high.HandleSignal(lowOffer); err != nil {
		t.Fatalf("high HandleSignal(rival offer): %v", err)
	}
	if _, answered := highRec.lastOf(signaling.KindAnswer); answered {
		t.Fatal("higher endpoint answered during glare")
	}

	// the lower id yields: it drops its own offer and answers the rival's
	if err := low.HandleSignal(highOffer); err != nil {
		t.Fatalf("low HandleSignal(rival offer): %v", err)
	}
	answer, ok := lowRec.lastOf(signaling.KindAnswer)
	if !ok {
		t.Fatal("lower endpoint did not answer during glare")
	}

	// the surviving offer/answer pair completes
	if err := high.HandleSignal(answer); err != nil {
		t.Fatalf("high HandleSignal(answer): %v", err)
	}
}

func TestManagerRenegotiationLastOfferWins(t *testing.T) {
	callerRec, calleeRec := &recorder{}, &recorder{}
	caller := newTestManager(t, "ep-caller", callerRec)
	callee := newTestManager(t, "ep-callee", calleeRec)
	acquire(t, caller)
	acquire(t, callee)

	if err := caller.CreateOffer("room-1"); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	offer, _ := callerRec.lastOf(signaling.KindOffer)
	if err := callee.HandleSignal(offer); err != nil {
		t.Fatalf("first offer: %v", err)
	}

	// a repeated offer replaces the previous one and yields a fresh answer
	if err := callee.HandleSignal(offer); err != nil {
		t.Fatalf("renegotiation offer: %v", err)
	}
	if n := calleeRec.countOf(signaling.KindAnswer); n != 2 {
		t.Errorf("answers published = %d, want 2", n)
	}
}

func TestManagerIgnoresUnsolicitedAnswer(t *testing.T) {
	rec := &recorder{}
	mgr := newTestManager(t, "ep-a", rec)
	acquire(t, mgr)

	if err := mgr.HandleSignal(signaling.NewAnswer("room-1", "ep-b", "v=0...")); err != nil {
		t.Fatalf("unsolicited answer = %v, want ignored", err)
	}
	if got := mgr.State(); got != StateHaveLocalMedia {
		t.Errorf("state = %q, unsolicited answer must not advance it", got)
	}
}

func TestManagerMalformedOfferFails(t *testing.T) {
	rec := &recorder{}
	mgr := newTestManager(t, "ep-callee", rec)
	acquire(t, mgr)

	err := mgr.HandleSignal(signaling.NewOffer("room-1", "ep-caller", "not an sdp"))
	if !errors.Is(err, rtcerr.ErrNegotiationFailed) {
		t.Fatalf("HandleSignal(bad offer) = %v, want ErrNegotiationFailed", err)
	}
	if got := mgr.State(); got != StateError {
		t.Errorf("state = %q, want %q", got, StateError)
	}

	select {
	case <-mgr.Done():
	default:
		t.Error("Done not closed after negotiation failure")
	}

	// signals after failure are ignored, not errors
	if err := mgr.HandleSignal(signaling.NewOffer("room-1", "ep-caller", "v=0...")); err != nil {
		t.Errorf("HandleSignal after failure = %v, want nil", err)
	}
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	rec := &recorder{}
	mgr := newTestManager(t, "ep-a", rec)
	acquire(t, mgr)
	if err := mgr.CreateOffer("room-1"); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	mgr.Close()
	mgr.Close()
	if got := mgr.State(); got != StateClosed {
		t.Errorf("state = %q, want %q", got, StateClosed)
	}
	select {
	case <-mgr.Done():
	default:
		t.Error("Done not closed")
	}

	// late signals after close are discarded quietly
	if err := mgr.HandleSignal(signaling.NewOffer("room-1", "ep-b", "v=0...")); err != nil {
		t.Errorf("HandleSignal after close = %v, want nil", err)
	}
}

func TestManagerDeviceFailureSurfacesActionableError(t *testing.T) {
	rec := &recorder{}
	logger := zerolog.Nop()
	mgr := NewManager(Config{
		EndpointID: "ep-a",
		Publisher:  rec,
		Media:      failingProvider{},
		Logger:     &logger,
	})
	defer mgr.Close()

	err := mgr.AcquireMedia(media.Constraints{Video: true})
	if !errors.Is(err, rtcerr.ErrDeviceUnavailable) {
		t.Fatalf("AcquireMedia = %v, want ErrDeviceUnavailable", err)
	}
	if !rtcerr.Actionable(err) {
		t.Error("device failure should be actionable for the user")
	}
	if got := mgr.State(); got != StateError {
		t.Errorf("state = %q, want %q", got, StateError)
	}
}

type failingProvider struct{}

func (failingProvider) Acquire(media.Constraints) (*media.Acquisition, error) {
	return nil, rtcerr.Wrap("acquire media", rtcerr.ErrDeviceUnavailable, "no camera")
}
