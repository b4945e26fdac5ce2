package signaling

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 64 KB fits any SDP.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  maxMessageSize,
	WriteBufferSize: maxMessageSize,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering is the reverse proxy's job in this deployment.
		return true
	},
}

// Conn wraps one websocket connection on the hub side.
type Conn struct {
	hub    *Hub
	ws     *websocket.Conn
	logger zerolog.Logger

	// topic is the room topic this connection is subscribed to. Owned by the
	// hub goroutine.
	topic string

	send chan Message
}

func (c *Conn) remoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// trySend queues msg without blocking the hub loop. A full buffer means a
// dead or stalled subscriber; the message is dropped for it.
func (c *Conn) trySend(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn().Str("type", string(msg.Type)).Msg("subscriber buffer full, dropping")
		return false
	}
}

// ServeWs returns the websocket endpoint handler bound to hub.
func ServeWs(hub *Hub, logger *zerolog.Logger) http.HandlerFunc {
	lg := logger.With().Str("component", "ws-server").Logger()
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			lg.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		conn := &Conn{
			hub:    hub,
			ws:     ws,
			logger: lg.With().Str("remote", ws.RemoteAddr().String()).Logger(),
			send:   make(chan Message, 256),
		}
		hub.register <- conn

		go conn.writePump()
		go conn.readPump()
	}
}

// readPump pumps messages from the websocket to the hub. It is the only
// reader on the connection.
func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Msg("read error")
			}
			return
		}
		c.hub.inbound <- inboundMessage{msg: msg, conn: c}
	}
}

// writePump pumps messages from the hub to the websocket and sends periodic
// pings. It is the only writer on the connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
