// Package signaling carries call setup messages between the participants of a
// room. The server side is a websocket hub that routes by room topic; the
// client side is a reconnecting Channel scoped to one room at a time.
package signaling

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the signaling message union. Dispatch sites switch on it
// exhaustively; an unknown kind never reaches the negotiation layer.
type Kind string

const (
	// Negotiation messages (peer to peer, relayed by the hub).
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"

	// Invitation handshake messages.
	KindCallRequest  Kind = "call-request"
	KindCallAccepted Kind = "call-accepted"
	KindCallDeclined Kind = "call-declined"
	KindHangup       Kind = "hangup"

	// Channel control messages (client <-> hub).
	KindSubscribe  Kind = "subscribe"
	KindSubscribed Kind = "subscribed"
	KindError      Kind = "error"
)

// Message is the wire format for everything crossing the signaling channel.
// Exactly one payload field is meaningful for a given Kind.
type Message struct {
	Type   Kind   `json:"type"`
	RoomID string `json:"room_id,omitempty"`
	From   string `json:"from,omitempty"`

	// SDP carries the session description for offer/answer.
	SDP string `json:"sdp,omitempty"`

	// Candidate carries an ICE candidate (webrtc ICECandidateInit JSON).
	Candidate json.RawMessage `json:"candidate,omitempty"`

	// Caller is the human-readable caller name on call-request.
	Caller string `json:"caller,omitempty"`

	// Error is set on KindError messages from the hub.
	Error string `json:"error,omitempty"`
}

func NewOffer(roomID, from, sdp string) Message {
	return Message{Type: KindOffer, RoomID: roomID, From: from, SDP: sdp}
}

func NewAnswer(roomID, from, sdp string) Message {
	return Message{Type: KindAnswer, RoomID: roomID, From: from, SDP: sdp}
}

func NewCandidate(roomID, from string, candidate json.RawMessage) Message {
	return Message{Type: KindCandidate, RoomID: roomID, From: from, Candidate: candidate}
}

// Validate checks the kind-specific payload requirements.
func (m Message) Validate() error {
	switch m.Type {
	case KindOffer, KindAnswer:
		if m.SDP == "" {
			return fmt.Errorf("%s without sdp", m.Type)
		}
	case KindCandidate:
		if len(m.Candidate) == 0 {
			return fmt.Errorf("candidate without payload")
		}
	case KindCallRequest:
		if m.Caller == "" {
			return fmt.Errorf("call-request without caller")
		}
	case KindCallAccepted, KindCallDeclined, KindHangup, KindSubscribed, KindError:
		// no payload requirements
	case KindSubscribe:
		if m.RoomID == "" {
			return fmt.Errorf("subscribe without room_id")
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

// Topic returns the broker topic name for a room.
func Topic(roomID string) string {
	return "rtc." + roomID
}
