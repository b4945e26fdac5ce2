package signaling

import "sync"

// Handler fans one incoming message stream out to typed channels so the
// invitation coordinator and the peer manager each consume only their part
// of the room traffic.
type Handler struct {
	Signals  chan Message // offer / answer / candidate
	Invites  chan Message // call-request
	Accepts  chan Message // call-accepted
	Declines chan Message // call-declined
	Hangups  chan Message // hangup
	Errors   chan string

	closeOnce sync.Once
	done      chan struct{}
}

func NewHandler() *Handler {
	return &Handler{
		Signals:  make(chan Message, 32),
		Invites:  make(chan Message, 4),
		Accepts:  make(chan Message, 1),
		Declines: make(chan Message, 1),
		Hangups:  make(chan Message, 1),
		Errors:   make(chan string, 1),
		done:     make(chan struct{}),
	}
}

// Run routes messages from in until it is closed or the handler is closed.
// Self-originated echo is passed through: the negotiation layer discards it
// by from/state checks, not the transport.
func (h *Handler) Run(in <-chan Message) {
	for {
		select {
		case <-h.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			h.route(msg)
		}
	}
}

func (h *Handler) route(msg Message) {
	switch msg.Type {
	case KindOffer, KindAnswer, KindCandidate:
		h.forward(h.Signals, msg)
	case KindCallRequest:
		h.forward(h.Invites, msg)
	case KindCallAccepted:
		h.forward(h.Accepts, msg)
	case KindCallDeclined:
		h.forward(h.Declines, msg)
	case KindHangup:
		h.forward(h.Hangups, msg)
	case KindError:
		select {
		case h.Errors <- msg.Error:
		default:
		}
	case KindSubscribe, KindSubscribed:
		// control traffic, already handled by the channel
	}
}

// forward drops on a full buffer rather than stalling the router. Signals
// gets the deepest buffer since candidates must not be lost; its consumer
// drains continuously while a call is up.
func (h *Handler) forward(ch chan Message, msg Message) {
	select {
	case <-h.done:
	case ch <- msg:
	default:
	}
}

// Close stops routing. Idempotent.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
