/*
Package chat maintains the ordered message log, typing indicators, and
connection-derived presence for the currently connected lobby.

This file defines the Machine. Like the lobby machine, mutation is
reducer-style: tagged actions applied atomically under one lock. The machine
consumes Transport Channel events and REST responses and reconciles both into
one consistent log; realtime delivery affects latency only, never correctness.
*/
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lobbyhub/internal/api"
	"lobbyhub/internal/pkg/errs"
	"lobbyhub/internal/pkg/logx"
	"lobbyhub/internal/transport"
)

// SessionSource is what the machine needs from the session manager: the
// identity (to mark own messages) and a token for the realtime attach.
type SessionSource interface {
	Identity() *api.User
	ValidAccessToken(ctx context.Context) (string, error)
}

// GuardFunc lets the membership machine veto chat mutation once the mirror
// knows the lobby is closed. Nil means no guard.
type GuardFunc func(lobbyID int64) error

// State is the published machine state.
type State struct {
	LobbyID     int64
	Messages    []api.Message
	OnlineUsers []api.User
	TypingUsers []api.User
	Connected   bool
	Loading     bool
	Err         string
}

// action is the sum type of state transitions.
type action interface{ isChatAction() }

type loadStarted struct{}
type historyLoaded struct{ messages []api.Message }
type messageAppended struct{ message api.Message }
type messageDeleted struct{ id int64 }
type loadFailed struct{ msg string }
type presenceJoined struct{ user api.User }
type presenceLeft struct{ userID int64 }
type typingSeen struct{ user api.User }
type typingExpired struct{ userID int64 }
type connectionChanged struct{ open bool }
type stateDiscarded struct{}
type errCleared struct{}

func (loadStarted) isChatAction()       {}
func (historyLoaded) isChatAction()     {}
func (messageAppended) isChatAction()   {}
func (messageDeleted) isChatAction()    {}
func (loadFailed) isChatAction()        {}
func (presenceJoined) isChatAction()    {}
func (presenceLeft) isChatAction()      {}
func (typingSeen) isChatAction()        {}
func (typingExpired) isChatAction()     {}
func (connectionChanged) isChatAction() {}
func (stateDiscarded) isChatAction()    {}
func (errCleared) isChatAction()        {}

const (
	// typingQuietWindow is the minimum gap between transmitted typing edges.
	typingQuietWindow = 2 * time.Second

	// typingExpiry clears a typing signal this long after the last keystroke,
	// with or without an explicit clear call.
	typingExpiry = 4 * time.Second
)

// Machine is the chat state machine for the current lobby.
type Machine struct {
	rest    *api.Client
	session SessionSource
	channel transport.Channel
	guard   GuardFunc

	mu    sync.RWMutex
	state State

	// epoch invalidates in-flight history fetches when the lobby changes.
	epoch int

	// Outbound typing debounce.
	typingActive bool
	typingEdgeAt time.Time
	typingClear  *time.Timer

	// Remote typing signals expire independently per identity.
	typingTimers map[int64]*time.Timer

	quietWindow time.Duration
	expiry      time.Duration

	logger zerolog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithTypingWindows overrides the debounce windows. Tests use millisecond values.
func WithTypingWindows(quiet, expiry time.Duration) Option {
	return func(m *Machine) {
		m.quietWindow = quiet
		m.expiry = expiry
	}
}

// WithGuard wires the membership machine's closed-lobby veto.
func WithGuard(guard GuardFunc) Option {
	return func(m *Machine) { m.guard = guard }
}

// NewMachine constructs the chat machine and registers itself as the
// channel's single event consumer.
func NewMachine(rest *api.Client, session SessionSource, channel transport.Channel, opts ...Option) *Machine {
	m := &Machine{
		rest:         rest,
		session:      session,
		channel:      channel,
		typingTimers: make(map[int64]*time.Timer),
		quietWindow:  typingQuietWindow,
		expiry:       typingExpiry,
		logger:       logx.Logger().With().Str("component", "chat").Logger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	channel.OnEvent(m.handleEvent)
	channel.OnStatus(m.handleStatus)

	return m
}

// State returns a snapshot of the published state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := m.state
	snapshot.Messages = append([]api.Message(nil), m.state.Messages...)
	snapshot.OnlineUsers = append([]api.User(nil), m.state.OnlineUsers...)
	snapshot.TypingUsers = append([]api.User(nil), m.state.TypingUsers...)
	return snapshot
}

// IsConnected reports the realtime link state; false means polled mode.
func (m *Machine) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Connected
}

// IsOwn reports whether the message was sent by the acting identity.
func (m *Machine) IsOwn(msg api.Message) bool {
	me := m.session.Identity()
	return me != nil && me.ID == msg.Sender.ID
}

func (m *Machine) dispatch(a action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = reduce(m.state, a)
}

// reduce is the pure transition function. Appends are deduplicated by message
// id: the same message may arrive once via REST response and once via
// realtime echo, and must land in the log exactly once.
func reduce(s State, a action) State {
	switch act := a.(type) {
	case loadStarted:
		s.Loading = true
		s.Err = ""
	case historyLoaded:
		s.Messages = act.messages
		s.Loading = false
		s.Err = ""
	case messageAppended:
		for i := range s.Messages {
			if s.Messages[i].ID == act.message.ID {
				return s
			}
		}
		s.Messages = append(append([]api.Message(nil), s.Messages...), act.message)
	case messageDeleted:
		messages := append([]api.Message(nil), s.Messages...)
		for i := range messages {
			if messages[i].ID == act.id {
				messages[i].IsDeleted = true
				messages[i].Content = ""
			}
		}
		s.Messages = messages
	case loadFailed:
		s.Loading = false
		s.Err = act.msg
	case presenceJoined:
		for _, u := range s.OnlineUsers {
			if u.ID == act.user.ID {
				return s
			}
		}
		s.OnlineUsers = append(append([]api.User(nil), s.OnlineUsers...), act.user)
	case presenceLeft:
		s.OnlineUsers = removeUser(s.OnlineUsers, act.userID)
		s.TypingUsers = removeUser(s.TypingUsers, act.userID)
	case typingSeen:
		for _, u := range s.TypingUsers {
			if u.ID == act.user.ID {
				return s
			}
		}
		s.TypingUsers = append(append([]api.User(nil), s.TypingUsers...), act.user)
	case typingExpired:
		s.TypingUsers = removeUser(s.TypingUsers, act.userID)
	case connectionChanged:
		s.Connected = act.open
	case stateDiscarded:
		return State{}
	case errCleared:
		s.Err = ""
	}
	return s
}

func removeUser(users []api.User, userID int64) []api.User {
	out := make([]api.User, 0, len(users))
	for _, u := range users {
		if u.ID != userID {
			out = append(out, u)
		}
	}
	return out
}

// Connect loads the message history for the lobby and attempts to attach the
// realtime channel. The history load succeeds or fails on its own: a failed
// realtime attach leaves the machine in polled mode with a correct log, and
// is not an error.
func (m *Machine) Connect(ctx context.Context, lobbyID int64) error {
	m.mu.Lock()
	if m.state.LobbyID != 0 && m.state.LobbyID != lobbyID {
		// Switching lobbies: previous per-lobby state is discarded, not reused.
		m.stopTypingTimersLocked()
		m.state = State{}
	}
	m.state.LobbyID = lobbyID
	m.epoch++
	epoch := m.epoch
	m.mu.Unlock()

	if err := m.loadHistory(ctx, lobbyID, epoch); err != nil {
		return err
	}

	m.mu.RLock()
	superseded := m.epoch != epoch
	m.mu.RUnlock()
	if superseded {
		// Another Connect or a Disconnect won the race; the channel belongs
		// to whoever moved the epoch.
		return nil
	}

	token, err := m.session.ValidAccessToken(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("No usable token for realtime attach; staying in polled mode")
		return nil
	}

	if err := m.channel.Connect(ctx, lobbyID, token); err != nil {
		m.logger.Warn().Err(err).Int64("lobby_id", lobbyID).Msg("Realtime attach failed; staying in polled mode")
	}

	return nil
}

// loadHistory fetches the authoritative message snapshot. A response landing
// after the lobby changed again is discarded.
func (m *Machine) loadHistory(ctx context.Context, lobbyID int64, epoch int) error {
	m.dispatch(loadStarted{})

	page, err := m.rest.Messages(ctx, lobbyID)
	if err != nil {
		m.dispatch(loadFailed{msg: failureMessage(err, "Failed to load messages")})
		return err
	}

	m.mu.Lock()
	stale := m.epoch != epoch || m.state.LobbyID != lobbyID
	m.mu.Unlock()
	if stale {
		m.logger.Debug().Int64("lobby_id", lobbyID).Msg("Discarding stale message history")
		return nil
	}

	m.dispatch(historyLoaded{messages: page.Results})
	return nil
}

// Send dispatches one message over REST for a durable, acknowledged write.
// Blank content is rejected before any network call. The acknowledged message
// is appended immediately, then the full history is re-fetched to reconcile
// anything the realtime path delivered concurrently; the dedupe in the
// reducer keeps the double path from producing duplicates. An acknowledgment
// landing after the lobby has changed is discarded, same as a stale history
// response: the message is durable server-side but belongs to a log this
// machine no longer holds.
func (m *Machine) Send(ctx context.Context, lobbyID int64, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errs.NewError(errs.ErrEmptyMessage)
	}

	if m.guard != nil {
		if err := m.guard(lobbyID); err != nil {
			return err
		}
	}

	m.mu.RLock()
	epoch := m.epoch
	m.mu.RUnlock()

	msg, err := m.rest.SendMessage(ctx, lobbyID, content)
	if err != nil {
		m.dispatch(loadFailed{msg: failureMessage(err, "Failed to send message")})
		return err
	}

	m.mu.RLock()
	stale := m.epoch != epoch || m.state.LobbyID != lobbyID
	m.mu.RUnlock()
	if stale {
		m.logger.Debug().Int64("lobby_id", lobbyID).Msg("Discarding stale send acknowledgment")
		return nil
	}

	m.dispatch(messageAppended{message: *msg})

	if reloadErr := m.loadHistory(ctx, lobbyID, epoch); reloadErr != nil {
		// The send itself succeeded; the reconcile failure is only a banner.
		m.logger.Warn().Err(reloadErr).Msg("Post-send history reconcile failed")
	}

	return nil
}

// Delete tombstones one message. The entry keeps its id and position so
// ordering references stay stable; only the content is hidden.
func (m *Machine) Delete(ctx context.Context, lobbyID, messageID int64) error {
	if m.guard != nil {
		if err := m.guard(lobbyID); err != nil {
			return err
		}
	}

	if err := m.rest.DeleteMessage(ctx, lobbyID, messageID); err != nil {
		m.dispatch(loadFailed{msg: failureMessage(err, "Failed to delete message")})
		return err
	}

	m.dispatch(messageDeleted{id: messageID})
	return nil
}

// ClearError resets the published error banner.
func (m *Machine) ClearError() {
	m.dispatch(errCleared{})
}

// Disconnect detaches the realtime channel and discards the message log,
// typing set, and presence. Re-entering the same lobby later re-fetches
// history fresh rather than reusing stale state.
func (m *Machine) Disconnect() {
	m.channel.Disconnect()

	m.mu.Lock()
	m.epoch++
	m.typingActive = false
	m.typingEdgeAt = time.Time{}
	m.stopTypingTimersLocked()
	m.mu.Unlock()

	m.dispatch(stateDiscarded{})
}

// stopTypingTimersLocked cancels the outbound auto-clear and every remote
// expiry timer. Caller holds m.mu.
func (m *Machine) stopTypingTimersLocked() {
	if m.typingClear != nil {
		m.typingClear.Stop()
		m.typingClear = nil
	}
	for id, timer := range m.typingTimers {
		timer.Stop()
		delete(m.typingTimers, id)
	}
}

// handleEvent consumes one decoded inbound frame, in arrival order.
func (m *Machine) handleEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventChatMessage:
		if ev.Message != nil {
			m.dispatch(messageAppended{message: *ev.Message})
		}

	case transport.EventUserJoined:
		if ev.User != nil {
			m.dispatch(presenceJoined{user: *ev.User})
		}

	case transport.EventUserLeft:
		if ev.User != nil {
			m.dispatch(presenceLeft{userID: ev.User.ID})
		}

	case transport.EventRateLimitWarning:
		// Transient banner, not a connection failure.
		m.dispatch(loadFailed{msg: errs.NewError(errs.ErrRateLimited).Message})

	case transport.EventUserTyping:
		// Backend support for typing broadcast is optional; honor it if present.
		if ev.User != nil {
			m.observeRemoteTyping(*ev.User, ev.Typing)
		}

	default:
		m.logger.Warn().Str("event_type", string(ev.Type)).Msg("Unknown realtime event type")
	}
}

// handleStatus mirrors the channel phase into the derived Connected flag.
// A terminal transport error surfaces as a visible but non-fatal banner;
// the REST fallback keeps the feature usable.
func (m *Machine) handleStatus(status transport.Status) {
	m.dispatch(connectionChanged{open: status.Phase == transport.PhaseOpen})

	if status.Err != nil {
		m.dispatch(loadFailed{msg: failureMessage(status.Err, "Realtime connection lost.")})
	}
}

// observeRemoteTyping records a remote typing signal with its own expiry;
// at most one outstanding signal per identity.
func (m *Machine) observeRemoteTyping(user api.User, active bool) {
	if !active {
		m.mu.Lock()
		if timer, ok := m.typingTimers[user.ID]; ok {
			timer.Stop()
			delete(m.typingTimers, user.ID)
		}
		m.mu.Unlock()

		m.dispatch(typingExpired{userID: user.ID})
		return
	}

	m.mu.Lock()
	if timer, ok := m.typingTimers[user.ID]; ok {
		timer.Stop()
	}
	userID := user.ID
	m.typingTimers[userID] = time.AfterFunc(m.expiry, func() {
		m.mu.Lock()
		delete(m.typingTimers, userID)
		m.mu.Unlock()
		m.dispatch(typingExpired{userID: userID})
	})
	m.mu.Unlock()

	m.dispatch(typingSeen{user: user})
}

// MarkTyping records the local operator's typing intent. Edges are debounced
// to at most one per quiet window per direction, and the active state clears
// itself a fixed timeout after the last keystroke even with no explicit
// MarkTyping(false). The signal is transmitted only while the channel is
// open; the local contract holds regardless of backend support.
func (m *Machine) MarkTyping(active bool) {
	m.mu.Lock()

	if active {
		// Every keystroke restarts the auto-clear countdown.
		if m.typingClear != nil {
			m.typingClear.Stop()
		}
		m.typingClear = time.AfterFunc(m.expiry, m.autoClearTyping)
	}

	if active == m.typingActive {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	if !m.typingEdgeAt.IsZero() && now.Sub(m.typingEdgeAt) < m.quietWindow {
		// Within the quiet window: suppress the edge. The auto-clear timer
		// still guarantees an eventual inactive signal.
		m.mu.Unlock()
		return
	}

	m.typingActive = active
	m.typingEdgeAt = now

	if !active && m.typingClear != nil {
		m.typingClear.Stop()
		m.typingClear = nil
	}
	m.mu.Unlock()

	m.channel.Send(transport.Event{Type: transport.EventUserTyping, Typing: active})
}

// autoClearTyping fires when the quiet timeout elapses with no keystroke.
func (m *Machine) autoClearTyping() {
	m.mu.Lock()
	if !m.typingActive {
		m.mu.Unlock()
		return
	}
	m.typingActive = false
	m.typingEdgeAt = time.Now()
	m.typingClear = nil
	m.mu.Unlock()

	m.channel.Send(transport.Event{Type: transport.EventUserTyping, Typing: false})
}

// failureMessage extracts the human-readable reason from err, falling back to
// a fixed per-operation string.
func failureMessage(err error, fallback string) string {
	if ce, ok := err.(*errs.CustomError); ok && ce.Message != "" {
		return ce.Message
	}
	return fallback
}
