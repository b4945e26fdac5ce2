package signaling

import (
	"github.com/rs/zerolog"
)

// Hub routes signaling messages between the subscribers of each room topic.
// All state is owned by the single goroutine running Run; subscribers talk to
// it via channels only.
type Hub struct {
	logger zerolog.Logger

	// topics maps topic names to the set of subscribed connections.
	topics map[string]map[*Conn]struct{}

	register   chan *Conn
	unregister chan *Conn
	inbound    chan inboundMessage

	done chan struct{}
}

type inboundMessage struct {
	msg  Message
	conn *Conn
}

func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		logger:     logger.With().Str("component", "hub").Logger(),
		topics:     make(map[string]map[*Conn]struct{}),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		inbound:    make(chan inboundMessage),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case conn := <-h.register:
			h.logger.Debug().Str("remote", conn.remoteAddr()).Msg("connection registered")

		case conn := <-h.unregister:
			h.drop(conn)

		case in := <-h.inbound:
			h.route(in)
		}
	}
}

// Stop terminates the event loop.
func (h *Hub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *Hub) drop(conn *Conn) {
	if conn.topic != "" {
		if subs, ok := h.topics[conn.topic]; ok {
			delete(subs, conn)
			if len(subs) == 0 {
				delete(h.topics, conn.topic)
				h.logger.Debug().Str("topic", conn.topic).Msg("topic removed")
			}
		}
	}
	close(conn.send)
	h.logger.Debug().Str("remote", conn.remoteAddr()).Msg("connection unregistered")
}

func (h *Hub) route(in inboundMessage) {
	msg, conn := in.msg, in.conn

	if err := msg.Validate(); err != nil {
		conn.trySend(Message{Type: KindError, Error: err.Error()})
		return
	}

	switch msg.Type {
	case KindSubscribe:
		h.subscribe(conn, msg.RoomID)

	case KindOffer, KindAnswer, KindCandidate,
		KindCallRequest, KindCallAccepted, KindCallDeclined, KindHangup:
		h.publish(conn, msg)

	case KindSubscribed, KindError:
		// server-originated kinds, ignore from clients

	default:
		conn.trySend(Message{Type: KindError, Error: "unsupported message type"})
	}
}

// subscribe moves conn onto the room's topic. A connection subscribes to one
// topic at a time; subscribing again replaces the previous subscription.
func (h *Hub) subscribe(conn *Conn, roomID string) {
	topic := Topic(roomID)
	if conn.topic == topic {
		// idempotent resubscribe
		conn.trySend(Message{Type: KindSubscribed, RoomID: roomID})
		return
	}

	if conn.topic != "" {
		if subs, ok := h.topics[conn.topic]; ok {
			delete(subs, conn)
			if len(subs) == 0 {
				delete(h.topics, conn.topic)
			}
		}
	}

	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Conn]struct{})
		h.topics[topic] = subs
	}
	subs[conn] = struct{}{}
	conn.topic = topic

	h.logger.Debug().
		Str("topic", topic).
		Str("remote", conn.remoteAddr()).
		Int("subscribers", len(subs)).
		Msg("subscribed")

	conn.trySend(Message{Type: KindSubscribed, RoomID: roomID})
}

// publish fans a message out to every subscriber of its room topic, the
// sender included. Endpoints ignore their own echo by the from field.
func (h *Hub) publish(conn *Conn, msg Message) {
	if msg.RoomID == "" {
		conn.trySend(Message{Type: KindError, Error: "message without room_id"})
		return
	}

	topic := Topic(msg.RoomID)
	if conn.topic != topic {
		// no cross-room publishing
		conn.trySend(Message{Type: KindError, Error: "not subscribed to this room"})
		return
	}

	subs := h.topics[topic]
	delivered := 0
	for sub := range subs {
		if sub.trySend(msg) {
			delivered++
		}
	}

	h.logger.Debug().
		Str("topic", topic).
		Str("type", string(msg.Type)).
		Str("from", msg.From).
		Int("delivered", delivered).
		Msg("published")
}
