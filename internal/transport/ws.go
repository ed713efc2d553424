/*
Package transport implements the realtime link between the client and one lobby.

This file defines the websocket Channel implementation. It dials
"{base}/ws/lobby/{id}/?token=..." and runs a single read pump per connection.
An abnormal close schedules a reconnect after baseDelay*attempt, bounded by
maxReconnectAttempts; a normal close or an explicit Disconnect is final.
*/
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lobbyhub/internal/pkg/errs"
	"lobbyhub/internal/pkg/logx"
)

const (
	// maxReconnectAttempts bounds the retries after an abnormal close.
	maxReconnectAttempts = 5

	// defaultBaseDelay is multiplied by the attempt number between retries.
	defaultBaseDelay = 1 * time.Second

	// writeWait bounds a single write to the connection.
	writeWait = 10 * time.Second

	// pongWait is how long the read side tolerates silence from the server.
	// The server pings well inside this window.
	pongWait = 60 * time.Second
)

// WSChannel is the gorilla/websocket implementation of Channel.
type WSChannel struct {
	baseURL   string
	dialer    *websocket.Dialer
	baseDelay time.Duration
	maxTries  int

	mu            sync.Mutex
	phase         Phase
	conn          *websocket.Conn
	lobbyID       int64
	token         string
	attempts      int
	timer         *time.Timer
	gen           int
	handler       Handler
	statusHandler StatusHandler

	logger zerolog.Logger
}

// WSOption configures a WSChannel.
type WSOption func(*WSChannel)

// WithBaseDelay overrides the reconnect base delay. Tests use millisecond delays.
func WithBaseDelay(d time.Duration) WSOption {
	return func(c *WSChannel) { c.baseDelay = d }
}

// WithDialTimeout bounds a single dial attempt so a hung network layer cannot
// pin the channel in connecting forever.
func WithDialTimeout(d time.Duration) WSOption {
	return func(c *WSChannel) { c.dialer.HandshakeTimeout = d }
}

// NewWSChannel constructs a websocket channel against the given base URL
// (e.g. "ws://localhost:8001").
func NewWSChannel(baseURL string, opts ...WSOption) *WSChannel {
	c := &WSChannel{
		baseURL:   baseURL,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		baseDelay: defaultBaseDelay,
		maxTries:  maxReconnectAttempts,
		phase:     PhaseIdle,
		logger:    logx.Logger().With().Str("component", "transport").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *WSChannel) OnEvent(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *WSChannel) OnStatus(h StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusHandler = h
}

// Connect dials the lobby's realtime endpoint. Idempotent while open to the
// same lobby; an open link to a different lobby is torn down first.
func (c *WSChannel) Connect(ctx context.Context, lobbyID int64, token string) error {
	c.mu.Lock()

	if c.phase == PhaseOpen && c.lobbyID == lobbyID {
		c.mu.Unlock()
		return nil
	}

	if c.conn != nil || c.timer != nil {
		c.teardownLocked()
	}

	c.gen++
	gen := c.gen
	c.lobbyID = lobbyID
	c.token = token
	c.attempts = 0
	c.setPhaseLocked(PhaseConnecting, nil)
	c.mu.Unlock()

	if err := c.dial(ctx, gen); err != nil {
		c.mu.Lock()
		if gen == c.gen {
			c.setPhaseLocked(PhaseIdle, nil)
		}
		c.mu.Unlock()

		c.logger.Warn().Err(err).Int64("lobby_id", lobbyID).Msg("Realtime connect failed")
		return errs.NewErrorWithMessage(errs.ErrTransportUnavailable, err.Error())
	}

	return nil
}

// dial performs one handshake and, on success, installs the connection and
// starts its read pump. A stale generation discards the result.
func (c *WSChannel) dial(ctx context.Context, gen int) error {
	c.mu.Lock()
	endpoint := fmt.Sprintf("%s/ws/lobby/%d/?token=%s", c.baseURL, c.lobbyID, url.QueryEscape(c.token))
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}

	c.conn = conn
	c.attempts = 0
	c.setPhaseLocked(PhaseOpen, nil)
	lobbyID := c.lobbyID
	c.mu.Unlock()

	c.logger.Info().Int64("lobby_id", lobbyID).Msg("Realtime channel open")

	go c.readPump(conn, gen)
	return nil
}

// readPump reads frames until the connection dies, delivering decoded events
// to the registered consumer in arrival order. Malformed frames are dropped.
func (c *WSChannel) readPump(conn *websocket.Conn, gen int) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}

		var ev Event
		if unmarshalErr := json.Unmarshal(data, &ev); unmarshalErr != nil || ev.Type == "" {
			c.logger.Warn().Err(unmarshalErr).Bytes("frame", data).Msg("Dropping malformed realtime frame")
			continue
		}

		c.mu.Lock()
		handler := c.handler
		stale := gen != c.gen
		c.mu.Unlock()

		if stale {
			return
		}
		if handler != nil {
			handler(ev)
		}
	}
}

// handleClose reacts to the end of a read pump: a normal closure is final,
// anything else enters the reconnect policy.
func (c *WSChannel) handleClose(gen int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		// A deliberate disconnect or lobby switch already superseded this
		// connection.
		return
	}

	c.conn = nil

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Info().Msg("Realtime channel closed normally")
		c.setPhaseLocked(PhaseClosed, nil)
		return
	}

	c.logger.Warn().Err(err).Int("attempts", c.attempts).Msg("Realtime channel lost")
	c.scheduleReconnectLocked(gen)
}

// scheduleReconnectLocked applies the bounded linear-backoff retry policy.
// Caller holds c.mu.
func (c *WSChannel) scheduleReconnectLocked(gen int) {
	if c.attempts >= c.maxTries {
		c.logger.Error().Int("attempts", c.attempts).Msg("Reconnect budget exhausted; closing channel")
		c.setPhaseLocked(PhaseClosed, errs.NewError(errs.ErrTransportClosed, c.attempts))
		return
	}

	c.attempts++
	delay := c.baseDelay * time.Duration(c.attempts)
	c.setPhaseLocked(PhaseReconnecting, nil)

	c.logger.Info().Int("attempt", c.attempts).Dur("delay", delay).Msg("Scheduling reconnect")

	c.timer = time.AfterFunc(delay, func() {
		c.redial(gen)
	})
}

// redial runs one reconnect attempt from the timer.
func (c *WSChannel) redial(gen int) {
	c.mu.Lock()
	if gen != c.gen || c.phase != PhaseReconnecting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.setPhaseLocked(PhaseConnecting, nil)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.dialer.HandshakeTimeout)
	defer cancel()

	if err := c.dial(ctx, gen); err != nil {
		c.mu.Lock()
		if gen == c.gen {
			c.logger.Warn().Err(err).Int("attempt", c.attempts).Msg("Reconnect attempt failed")
			c.scheduleReconnectLocked(gen)
		}
		c.mu.Unlock()
	}
}

// Disconnect closes the channel with a normal-closure code and cancels any
// pending reconnect timer. Safe to call repeatedly.
func (c *WSChannel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseClosed && c.conn == nil && c.timer == nil {
		return
	}

	c.teardownLocked()
	c.setPhaseLocked(PhaseClosed, nil)
}

// teardownLocked invalidates the current generation, stops timers, and closes
// any live connection with a normal-closure frame. Caller holds c.mu.
func (c *WSChannel) teardownLocked() {
	c.gen++

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if c.conn != nil {
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
			deadline,
		)
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Send transmits an outbound event. Valid only while open; otherwise the
// event is dropped with a warning since the realtime path is best-effort.
func (c *WSChannel) Send(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseOpen || c.conn == nil {
		c.logger.Warn().Str("event_type", string(ev.Type)).Msg("Dropping send: channel not open")
		return
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		c.logger.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("Realtime send failed")
	}
}

func (c *WSChannel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhaseOpen
}

func (c *WSChannel) CurrentLobby() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lobbyID, c.phase == PhaseOpen
}

// Phase returns the current connection phase.
func (c *WSChannel) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// setPhaseLocked records the transition and notifies the status observer.
// Caller holds c.mu. The observer runs under the lock so transitions arrive
// in order; it must not call back into the channel.
func (c *WSChannel) setPhaseLocked(phase Phase, err error) {
	c.phase = phase

	if c.statusHandler != nil {
		c.statusHandler(Status{Phase: phase, Attempt: c.attempts, Err: err})
	}
}
