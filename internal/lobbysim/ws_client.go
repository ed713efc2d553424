/*
Package lobbysim is a self-contained lobby backend used for local development
and integration tests.

This file defines the wsClient: one live websocket connection and its read and
write pumps. Inbound frames are throttled per connection; exceeding the budget
produces a rate_limit_warning to that client only, never a disconnect.
*/
package lobbysim

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"lobbyhub/internal/api"
	"lobbyhub/internal/pkg/logx"
	"lobbyhub/internal/transport"
)

const (
	// writeWait bounds a single write to the connection.
	writeWait = 10 * time.Second

	// pongWait is how long the server tolerates silence from the client.
	pongWait = 60 * time.Second

	// pingPeriod is the heartbeat interval, inside the pong window.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds one inbound frame.
	maxMessageSize = 8192

	// inboundRate and inboundBurst throttle frames per connection.
	inboundRate  = rate.Limit(5)
	inboundBurst = 10
)

// wsClient is one active realtime connection.
type wsClient struct {
	room  *Room
	store *Store
	conn  *websocket.Conn
	user  api.User

	send      chan []byte
	closeOnce sync.Once

	limiter *rate.Limiter
	logger  zerolog.Logger
}

func newWSClient(room *Room, store *Store, conn *websocket.Conn, user api.User) *wsClient {
	return &wsClient{
		room:    room,
		store:   store,
		conn:    conn,
		user:    user,
		send:    make(chan []byte, 64),
		limiter: rate.NewLimiter(inboundRate, inboundBurst),
		logger: logx.Logger().With().
			Int64("user_id", user.ID).
			Int64("lobby_id", room.lobbyID).
			Logger(),
	}
}

// readPump reads frames until the connection dies, then unregisters.
func (c *wsClient) readPump() {
	defer func() {
		c.room.unregisterClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection closed unexpectedly")
			}
			return
		}

		c.processInbound(data)
	}
}

// processInbound handles one raw frame from the client.
func (c *wsClient) processInbound(data []byte) {
	if !c.limiter.Allow() {
		c.logger.Warn().Msg("Inbound frame budget exceeded")
		c.sendEvent(transport.Event{Type: transport.EventRateLimitWarning})
		return
	}

	var ev transport.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Warn().Err(err).Bytes("frame", data).Msg("Client sent invalid JSON")
		return
	}

	switch ev.Type {
	case transport.EventSendMessage:
		c.handleSendMessage(ev.Content)

	case transport.EventUserTyping:
		c.room.enqueue(transport.Event{
			Type:   transport.EventUserTyping,
			User:   &c.user,
			Typing: ev.Typing,
		})

	default:
		c.logger.Warn().Str("event_type", string(ev.Type)).Msg("Client sent unsupported event type")
	}
}

// handleSendMessage persists a realtime-path message and broadcasts it.
// The REST path is the durable one; this exists so both paths land in the
// same log with the same ids.
func (c *wsClient) handleSendMessage(content string) {
	msg, customErr := c.store.AppendMessage(c.user.ID, c.room.lobbyID, content)
	if customErr != nil {
		c.logger.Warn().Int("code", customErr.Code).Msg("Rejected realtime message")
		return
	}

	c.room.enqueue(transport.Event{Type: transport.EventChatMessage, Message: &msg})
}

// writePump drains the send queue and keeps the heartbeat going.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn().Err(err).Msg("Error writing message")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}

// sendEvent queues one event to this client only.
func (c *wsClient) sendEvent(ev transport.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error().Err(err).Str("event_type", string(ev.Type)).Msg("Failed to marshal event")
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn().Msg("Client send queue full, dropping event")
	}
}

// closeSend shuts the send queue exactly once, ending the write pump.
func (c *wsClient) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// kick closes the connection with a normal-closure frame so the client does
// not try to reconnect.
func (c *wsClient) kick(reason string) {
	c.logger.Warn().Str("reason", reason).Msg("Closing connection")

	closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send close frame")
	}

	c.closeSend()
}
