package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// inbound frames are small control signals
const maxMessageSize = 4096

// Client is one WebSocket session of a user
type Client struct {
	ID       string // session id
	UserID   int64
	TenantID int64
	Username string
	Conn     *websocket.Conn
	Hub      *Hub
	Send     chan []byte

	// guarded by Hub.mu
	channels map[string]struct{}
	closed   bool

	typing *rate.Limiter
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *Hub, tenantID, userID int64, username string) *Client {
	buffer := hub.cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	burst := hub.cfg.TypingBurst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		TenantID: tenantID,
		Username: username,
		Conn:     conn,
		Hub:      hub,
		Send:     make(chan []byte, buffer),
		channels: make(map[string]struct{}),
		typing:   rate.NewLimiter(rate.Limit(hub.cfg.TypingRate), burst),
	}
}

// Serve runs the session until the connection drops. Presence hooks run on
// this goroutine so a session's open always precedes its close.
func (c *Client) Serve() {
	c.Hub.Register(c)
	c.Hub.sessionOpened(c)

	go c.WritePump()
	c.ReadPump()
}

// ReadPump handles incoming signals from the client
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
		c.Hub.sessionClosed(c)
	}()

	// a pong must arrive within PongWait of each ping
	deadline := c.Hub.cfg.PingInterval + c.Hub.cfg.PongWait

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(deadline))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("session", c.ID).Msg("WebSocket error")
			}
			break
		}

		c.handleIncomingMessage(message)
	}
}

// WritePump handles outgoing frames and the ping heartbeat
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Hub.cfg.PingInterval)
	writeWait := c.Hub.cfg.PongWait
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("session", c.ID).Msg("Write error")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleIncomingMessage processes the client signals. Malformed or
// unauthorized signals are ignored; there is no error channel back.
func (c *Client) handleIncomingMessage(raw []byte) {
	var msg IncomingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Err(err).Str("session", c.ID).Msg("Failed to parse message")
		return
	}

	switch msg.Type {
	case SignalJoinThread:
		var s ThreadSignal
		if err := json.Unmarshal(msg.Payload, &s); err != nil || s.ThreadID <= 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		c.Hub.JoinThread(ctx, c, s.ThreadID)

	case SignalLeaveThread:
		var s ThreadSignal
		if err := json.Unmarshal(msg.Payload, &s); err != nil || s.ThreadID <= 0 {
			return
		}
		c.Hub.LeaveThread(c, s.ThreadID)

	case SignalTyping:
		c.handleTyping(msg.Payload)

	default:
		log.Debug().Str("session", c.ID).Str("type", msg.Type).Msg("Unknown message type")
	}
}

// handleTyping rebroadcasts the indicator to the thread, minus the sender.
// Only sessions that joined the thread may signal it.
func (c *Client) handleTyping(payload json.RawMessage) {
	var s TypingSignal
	if err := json.Unmarshal(payload, &s); err != nil || s.ThreadID <= 0 {
		return
	}
	if !c.typing.Allow() {
		return
	}

	channel := ThreadChannel(s.ThreadID)
	if !c.Hub.InChannel(c, channel) {
		return
	}

	c.Hub.Publish([]string{channel}, TypingEvent{
		ThreadID: s.ThreadID,
		UserID:   c.UserID,
		Username: c.Username,
		IsTyping: s.IsTyping,
	}, c.UserID)
}
