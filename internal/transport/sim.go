/*
Package transport implements the realtime link between the client and one lobby.

This file defines the simulated Channel used by tests and offline development.
It honors the same contract as the websocket implementation (one open link,
idempotent connect, drop-outside-open sends) without any network underneath.
*/
package transport

import (
	"context"
	"sync"

	"lobbyhub/internal/pkg/errs"
)

// SimChannel is an in-memory Channel. Tests drive it directly: Deliver
// injects inbound events, Sent inspects outbound ones, Fail simulates the
// backend being unreachable.
type SimChannel struct {
	mu            sync.Mutex
	phase         Phase
	lobbyID       int64
	handler       Handler
	statusHandler StatusHandler
	unreachable   bool
	sent          []Event
}

// NewSimChannel constructs an idle simulated channel.
func NewSimChannel() *SimChannel {
	return &SimChannel{phase: PhaseIdle}
}

// Fail controls whether subsequent Connect calls are rejected.
func (s *SimChannel) Fail(unreachable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreachable = unreachable
}

func (s *SimChannel) Connect(ctx context.Context, lobbyID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unreachable {
		return errs.NewError(errs.ErrTransportUnavailable)
	}

	if s.phase == PhaseOpen && s.lobbyID == lobbyID {
		return nil
	}

	s.lobbyID = lobbyID
	s.setPhaseLocked(PhaseOpen)
	return nil
}

func (s *SimChannel) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseClosed {
		return
	}
	s.setPhaseLocked(PhaseClosed)
}

func (s *SimChannel) OnEvent(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *SimChannel) OnStatus(h StatusHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusHandler = h
}

func (s *SimChannel) Send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseOpen {
		return
	}
	s.sent = append(s.sent, ev)
}

func (s *SimChannel) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseOpen
}

func (s *SimChannel) CurrentLobby() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lobbyID, s.phase == PhaseOpen
}

// Deliver injects one inbound event as if it arrived on the wire.
func (s *SimChannel) Deliver(ev Event) {
	s.mu.Lock()
	handler := s.handler
	open := s.phase == PhaseOpen
	s.mu.Unlock()

	if open && handler != nil {
		handler(ev)
	}
}

// Sent returns a copy of every outbound event accepted so far.
func (s *SimChannel) Sent() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.sent))
	copy(out, s.sent)
	return out
}

// Drop simulates a terminal transport failure: the channel closes and the
// status observer sees the exhausted-reconnect error.
func (s *SimChannel) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseClosed
	if s.statusHandler != nil {
		s.statusHandler(Status{Phase: PhaseClosed, Err: errs.NewError(errs.ErrTransportClosed, maxReconnectAttempts)})
	}
}

func (s *SimChannel) setPhaseLocked(phase Phase) {
	s.phase = phase
	if s.statusHandler != nil {
		s.statusHandler(Status{Phase: phase})
	}
}
