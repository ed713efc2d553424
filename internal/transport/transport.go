/*
Package transport implements the realtime link between the client and one lobby.

This file defines the Channel interface and the event model. Exactly one
implementation is active at a time, selected by injection at construction:
the websocket channel for a real backend, or the simulated channel for tests
and offline development. Consumers never know which one they hold.
*/
package transport

import (
	"context"
	"encoding/json"

	"lobbyhub/internal/api"
)

// EventType discriminates the JSON frames on the realtime link.
type EventType string

// Inbound event types.
const (
	EventChatMessage      EventType = "chat_message"
	EventUserJoined       EventType = "user_joined"
	EventUserLeft         EventType = "user_left"
	EventRateLimitWarning EventType = "rate_limit_warning"
)

// Outbound event types. The realtime path is latency-only; anything needing a
// delivery guarantee goes through REST instead.
const (
	EventSendMessage EventType = "message.send"
	EventUserTyping  EventType = "user.typing"
)

// Event is one frame on the realtime link, inbound or outbound.
// Only the fields relevant to the Type are populated.
type Event struct {
	Type    EventType       `json:"type"`
	Message *api.Message    `json:"message,omitempty"`
	User    *api.User       `json:"user,omitempty"`
	Content string          `json:"content,omitempty"`
	Typing  bool            `json:"typing,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Phase is the connection state of the channel.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseOpen
	PhaseReconnecting
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status describes a phase transition as reported to the status handler.
// Err is non-nil only for terminal failures (reconnect budget exhausted).
type Status struct {
	Phase   Phase
	Attempt int
	Err     error
}

// Handler consumes decoded inbound events in arrival order.
type Handler func(Event)

// StatusHandler observes phase transitions.
type StatusHandler func(Status)

// Channel is the reconnecting realtime link to one lobby.
// At most one connection is open at any time.
type Channel interface {
	// Connect opens the link to lobbyID. Already open to the same lobby is a
	// no-op; open to a different lobby disconnects the old link first.
	Connect(ctx context.Context, lobbyID int64, token string) error

	// Disconnect closes the link with a normal-closure code and cancels any
	// pending reconnect. It is a no-op when already closed.
	Disconnect()

	// OnEvent registers the single event consumer. A later registration
	// replaces the earlier one.
	OnEvent(h Handler)

	// OnStatus registers the single status observer.
	OnStatus(h StatusHandler)

	// Send transmits an outbound event while open. Outside the open phase the
	// event is dropped with a warning; the caller must not assume delivery.
	Send(ev Event)

	// IsConnected reports whether the channel is currently open.
	IsConnected() bool

	// CurrentLobby returns the connected lobby id while open.
	CurrentLobby() (int64, bool)
}
