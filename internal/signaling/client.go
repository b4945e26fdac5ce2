package signaling

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/medibridge/telecall/internal/dns"
	"github.com/medibridge/telecall/internal/rtcerr"
)

const (
	defaultDialTimeout  = 10 * time.Second
	subscribeAckTimeout = 5 * time.Second
)

// ChannelConfig carries the channel's injected configuration. There is no
// package-level connection state: every consumer owns its own Channel.
type ChannelConfig struct {
	BrokerURL   string
	EndpointID  string
	DialTimeout time.Duration
	Reconnect   ReconnectPolicy
	Logger      *zerolog.Logger
}

// ReconnectPolicy bounds the channel's automatic reconnect attempts. The
// reconnect machinery is deliberately separate from negotiation state:
// a transport hiccup never corrupts an in-flight offer/answer exchange.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultReconnectPolicy retries five times with capped exponential backoff.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// delay returns the backoff before the given 1-based attempt.
func (p ReconnectPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

// Channel is a room-scoped subscription to the signaling broker. It is
// connected to at most one room at a time; switching rooms is an explicit
// disconnect plus reconnect, never a silent resubscription. A disconnected
// channel can connect again later, the object is not retired.
type Channel struct {
	cfg    ChannelConfig
	logger zerolog.Logger

	mu        sync.Mutex
	ws        *websocket.Conn
	outgoing  chan Message
	roomID    string
	connected bool
	gen       int // connection generation, stale pump exits are ignored

	// incoming is replaced with a fresh stream when Connect follows a
	// Disconnect or an exhausted reconnect.
	incoming       chan Message
	incomingClosed bool
}

func NewChannel(cfg ChannelConfig) *Channel {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect = DefaultReconnectPolicy()
	}
	return &Channel{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "channel").Str("endpoint", cfg.EndpointID).Logger(),
		incoming: make(chan Message, 32),
	}
}

// Incoming returns the stream of messages for the current subscription. The
// stream is closed on Disconnect and when reconnect attempts are exhausted;
// a subsequent Connect arms a fresh stream, so consumers re-read Incoming
// after reconnecting.
func (ch *Channel) Incoming() <-chan Message {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.incoming
}

// Room returns the currently subscribed room id, or "".
func (ch *Channel) Room() string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.connected {
		return ""
	}
	return ch.roomID
}

// Connect establishes the broker connection and subscribes to the room's
// topic. Calling it again for the same room while connected is a no-op;
// calling it for a different room disconnects the previous subscription
// first. A failed dial within the bounded timeout surfaces as
// TransportUnavailable and is not retried.
func (ch *Channel) Connect(ctx context.Context, roomID string) error {
	ch.mu.Lock()
	if ch.connected {
		if ch.roomID == roomID {
			ch.mu.Unlock()
			return nil
		}
		ch.teardownLocked()
	}
	if ch.incomingClosed {
		ch.incoming = make(chan Message, 32)
		ch.incomingClosed = false
	}
	ch.roomID = roomID
	ch.mu.Unlock()

	ws, err := ch.dialAndSubscribe(ctx, roomID)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.roomID != roomID {
		// a concurrent Disconnect or Connect superseded this subscription
		ws.Close()
		return rtcerr.Wrap("connect", rtcerr.ErrTransportUnavailable, "subscription superseded")
	}
	if ch.connected {
		ws.Close()
		return nil
	}
	ch.attachLocked(ws)
	ch.logger.Info().Str("roomID", roomID).Msg("subscribed")
	return nil
}

// Publish sends msg to the room topic. Messages published while the channel
// is disconnected are dropped; protocol layers that need delivery (ICE
// candidates) queue and retry above this layer.
func (ch *Channel) Publish(msg Message) {
	ch.mu.Lock()
	if !ch.connected {
		ch.mu.Unlock()
		ch.logger.Debug().Str("type", string(msg.Type)).Msg("not connected, message dropped")
		return
	}
	out := ch.outgoing
	ch.mu.Unlock()

	select {
	case out <- msg:
	default:
		ch.logger.Warn().Str("type", string(msg.Type)).Msg("outgoing buffer full, message dropped")
	}
}

// Disconnect releases the subscription and the underlying connection, and
// closes the current incoming stream. Safe to call multiple times. The
// channel stays usable: a later Connect establishes a new subscription.
func (ch *Channel) Disconnect() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.connected && ch.incomingClosed {
		return
	}
	ch.teardownLocked()
	ch.roomID = ""
	if !ch.incomingClosed {
		close(ch.incoming)
		ch.incomingClosed = true
	}
	ch.logger.Info().Msg("disconnected")
}

// teardownLocked drops the current connection, invalidating running pumps.
func (ch *Channel) teardownLocked() {
	ch.gen++
	ch.connected = false
	if ch.ws != nil {
		ch.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
		ch.ws.Close()
		ch.ws = nil
	}
	ch.outgoing = nil
}

// attachLocked installs a fresh connection and starts its pumps.
func (ch *Channel) attachLocked(ws *websocket.Conn) {
	ch.gen++
	ch.ws = ws
	ch.outgoing = make(chan Message, 32)
	ch.connected = true
	go ch.readPump(ws, ch.gen)
	go ch.writePump(ws, ch.outgoing, ch.gen)
}

// dialAndSubscribe performs the websocket handshake and waits for the hub's
// subscription ack.
func (ch *Channel) dialAndSubscribe(ctx context.Context, roomID string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: ch.cfg.DialTimeout,
		NetDialContext: func(dctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			resolved, err := dns.Lookup(host)
			if err != nil {
				return nil, err
			}
			d := net.Dialer{}
			return d.DialContext(dctx, network, net.JoinHostPort(resolved, port))
		},
	}

	dialCtx, cancel := context.WithTimeout(ctx, ch.cfg.DialTimeout)
	defer cancel()

	ws, _, err := dialer.DialContext(dialCtx, ch.cfg.BrokerURL, nil)
	if err != nil {
		return nil, rtcerr.Wrap("connect", rtcerr.ErrTransportUnavailable, err.Error())
	}

	ws.SetReadLimit(maxMessageSize)
	if err := ws.WriteJSON(Message{Type: KindSubscribe, RoomID: roomID, From: ch.cfg.EndpointID}); err != nil {
		ws.Close()
		return nil, rtcerr.Wrap("subscribe", rtcerr.ErrTransportUnavailable, err.Error())
	}

	ws.SetReadDeadline(time.Now().Add(subscribeAckTimeout))
	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			ws.Close()
			return nil, rtcerr.Wrap("subscribe", rtcerr.ErrTransportUnavailable, err.Error())
		}
		switch msg.Type {
		case KindSubscribed:
			ws.SetReadDeadline(time.Now().Add(pongWait))
			return ws, nil
		case KindError:
			ws.Close()
			return nil, rtcerr.Wrap("subscribe", rtcerr.ErrTransportUnavailable, msg.Error)
		default:
			// room traffic racing the ack, deliver it
			ch.deliver(msg)
		}
	}
}

// deliver hands msg to the current incoming stream. The non-blocking send
// happens under the mutex so the stream cannot be closed mid-send.
func (ch *Channel) deliver(msg Message) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.incomingClosed {
		return
	}
	select {
	case ch.incoming <- msg:
	default:
		ch.logger.Warn().Str("type", string(msg.Type)).Msg("incoming buffer full, message dropped")
	}
}

func (ch *Channel) readPump(ws *websocket.Conn, gen int) {
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			ch.connLost(gen, err)
			return
		}
		ch.deliver(msg)
	}
}

func (ch *Channel) writePump(ws *websocket.Conn, outgoing <-chan Message, gen int) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-outgoing:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(msg); err != nil {
				ch.connLost(gen, err)
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				ch.connLost(gen, err)
				return
			}
		}
	}
}

// connLost reacts to a broken connection. Stale generations (already torn
// down or replaced) are ignored so a single failure triggers one reconnect.
func (ch *Channel) connLost(gen int, err error) {
	ch.mu.Lock()
	if gen != ch.gen {
		ch.mu.Unlock()
		return
	}
	ch.teardownLocked()
	roomID := ch.roomID
	ch.mu.Unlock()

	ch.logger.Warn().Err(err).Str("roomID", roomID).Msg("connection lost, reconnecting")
	go ch.reconnectLoop(roomID)
}

// reconnectLoop re-dials and resubscribes with bounded backoff. Exhausting
// the policy closes the incoming stream, which consumers treat as transport
// loss; an explicit Connect can still revive the channel afterwards.
func (ch *Channel) reconnectLoop(roomID string) {
	policy := ch.cfg.Reconnect
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		time.Sleep(policy.delay(attempt))

		ch.mu.Lock()
		if ch.connected || ch.roomID != roomID {
			ch.mu.Unlock()
			return
		}
		ch.mu.Unlock()

		ws, err := ch.dialAndSubscribe(context.Background(), roomID)
		if err != nil {
			ch.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}

		ch.mu.Lock()
		if ch.connected || ch.roomID != roomID {
			ch.mu.Unlock()
			ws.Close()
			return
		}
		ch.attachLocked(ws)
		ch.mu.Unlock()

		ch.logger.Info().Str("roomID", roomID).Int("attempt", attempt).Msg("resubscribed")
		return
	}

	ch.logger.Error().Str("roomID", roomID).Msg("reconnect attempts exhausted")
	ch.mu.Lock()
	if !ch.connected && ch.roomID == roomID && !ch.incomingClosed {
		close(ch.incoming)
		ch.incomingClosed = true
	}
	ch.mu.Unlock()
}
