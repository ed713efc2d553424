/*
Package lobby maintains the browsable lobby directory and, for the current
lobby, the authoritative membership roster.

This file defines the Machine. State mutation is reducer-style: every change
is a tagged action applied atomically under one lock, so user input, reload
results, and stale-response discards never race on the same state. Network
calls happen outside the lock and feed their results back in as actions.
*/
package lobby

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"lobbyhub/internal/api"
	"lobbyhub/internal/pkg/errs"
	"lobbyhub/internal/pkg/logx"
)

// IdentitySource exposes the authenticated identity. Implemented by the
// session manager.
type IdentitySource interface {
	Identity() *api.User
}

// TeardownFunc is invoked before the current lobby changes, so the chat
// machine can disconnect its transport and discard per-lobby state first.
type TeardownFunc func(lobbyID int64)

// State is the published machine state. Snapshots are value copies; callers
// never observe a partially applied action.
type State struct {
	Lobbies []api.Lobby
	Count   int
	Current *api.LobbyDetails
	Loading bool
	Err     string
}

// action is the sum type of state transitions.
type action interface{ isLobbyAction() }

type loadStarted struct{}
type lobbiesLoaded struct {
	lobbies []api.Lobby
	count   int
}
type lobbyCreated struct{ lobby api.Lobby }
type lobbyUpdated struct{ lobby api.Lobby }
type detailsLoaded struct{ details *api.LobbyDetails }
type loadFailed struct{ msg string }
type currentCleared struct{}
type errCleared struct{}

func (loadStarted) isLobbyAction()    {}
func (lobbiesLoaded) isLobbyAction()  {}
func (lobbyCreated) isLobbyAction()   {}
func (lobbyUpdated) isLobbyAction()   {}
func (detailsLoaded) isLobbyAction()  {}
func (loadFailed) isLobbyAction()     {}
func (currentCleared) isLobbyAction() {}
func (errCleared) isLobbyAction()     {}

// Machine is the lobby directory and membership state machine.
type Machine struct {
	rest     *api.Client
	identity IdentitySource
	teardown TeardownFunc

	mu    sync.RWMutex
	state State

	// filters are the parameters the next Reload sends to the backend.
	search   string
	isPublic *bool
	status   api.LobbyStatus

	// detailsTarget guards against a stale LoadDetails response landing after
	// the current lobby has changed.
	detailsTarget int64

	// reloads coalesces concurrent directory reloads into one upstream fetch.
	reloads singleflight.Group

	logger zerolog.Logger
}

// NewMachine constructs the machine. teardown may be nil when no chat machine
// is attached (directory-only use).
func NewMachine(rest *api.Client, identity IdentitySource, teardown TeardownFunc) *Machine {
	return &Machine{
		rest:     rest,
		identity: identity,
		teardown: teardown,
		logger:   logx.Logger().With().Str("component", "lobby").Logger(),
	}
}

// State returns a snapshot of the published state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := m.state
	snapshot.Lobbies = append([]api.Lobby(nil), m.state.Lobbies...)
	if m.state.Current != nil {
		current := *m.state.Current
		current.Participants = append([]api.Membership(nil), m.state.Current.Participants...)
		snapshot.Current = &current
	}
	return snapshot
}

// dispatch applies one action atomically.
func (m *Machine) dispatch(a action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = reduce(m.state, a)
}

// reduce is the pure transition function.
func reduce(s State, a action) State {
	switch act := a.(type) {
	case loadStarted:
		s.Loading = true
		s.Err = ""
	case lobbiesLoaded:
		s.Lobbies = act.lobbies
		s.Count = act.count
		s.Loading = false
		s.Err = ""
	case lobbyCreated:
		s.Lobbies = append([]api.Lobby{act.lobby}, s.Lobbies...)
		s.Count++
		s.Loading = false
		s.Err = ""
	case lobbyUpdated:
		for i := range s.Lobbies {
			if s.Lobbies[i].ID == act.lobby.ID {
				s.Lobbies[i] = act.lobby
			}
		}
		if s.Current != nil && s.Current.ID == act.lobby.ID {
			current := *s.Current
			current.Lobby = act.lobby
			s.Current = &current
		}
		s.Loading = false
		s.Err = ""
	case detailsLoaded:
		s.Current = act.details
		s.Loading = false
		s.Err = ""
	case loadFailed:
		s.Loading = false
		s.Err = act.msg
	case currentCleared:
		s.Current = nil
	case errCleared:
		s.Err = ""
	}
	return s
}

// SetFilters stores the parameters for the next Reload. It deliberately does
// not trigger a reload itself; callers re-trigger explicitly on filter change.
func (m *Machine) SetFilters(search string, isPublic *bool, status api.LobbyStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.search = search
	m.isPublic = isPublic
	m.status = status
}

// ListLobbies is a pure filtered, newest-first projection of the last
// authoritative load. No network call is made here.
func (m *Machine) ListLobbies(search string, isPublic *bool, status api.LobbyStatus) []api.Lobby {
	m.mu.RLock()
	cached := append([]api.Lobby(nil), m.state.Lobbies...)
	m.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(search))

	filtered := cached[:0]
	for _, lb := range cached {
		if needle != "" && !strings.Contains(strings.ToLower(lb.Name), needle) {
			continue
		}
		if isPublic != nil && lb.IsPublic != *isPublic {
			continue
		}
		if status != "" && lb.Status != status {
			continue
		}
		filtered = append(filtered, lb)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	return filtered
}

// Reload fetches the directory with the current filters and replaces the
// summary set wholesale. A reload already in flight is not duplicated;
// concurrent triggers share its single outcome.
func (m *Machine) Reload(ctx context.Context) error {
	_, err, _ := m.reloads.Do("reload", func() (any, error) {
		m.mu.RLock()
		filter := api.LobbyFilter{Search: m.search, IsPublic: m.isPublic, Status: m.status}
		m.mu.RUnlock()

		m.dispatch(loadStarted{})

		page, err := m.rest.Lobbies(ctx, filter)
		if err != nil {
			m.dispatch(loadFailed{msg: failureMessage(err, "Failed to load lobbies")})
			return nil, err
		}

		m.dispatch(lobbiesLoaded{lobbies: page.Results, count: page.Count})
		return nil, nil
	})
	return err
}

// Create creates a lobby owned by the acting identity. The premium
// entitlement is checked before any network call.
func (m *Machine) Create(ctx context.Context, input api.CreateLobbyInput) (*api.Lobby, error) {
	me := m.identity.Identity()
	if me == nil {
		return nil, errs.NewError(errs.ErrNotAuthenticated)
	}
	if !me.IsPremium {
		return nil, errs.NewError(errs.ErrPremiumRequired)
	}

	created, err := m.rest.CreateLobby(ctx, input)
	if err != nil {
		m.dispatch(loadFailed{msg: failureMessage(err, "Failed to create lobby")})
		return nil, err
	}

	m.dispatch(lobbyCreated{lobby: *created})
	m.logger.Info().Int64("lobby_id", created.ID).Msg("Lobby created")
	return created, nil
}

// LoadDetails fetches one lobby's roster and status and makes it current.
// Any previously current lobby's chat and transport state is torn down first.
// A response that arrives after the target has changed again is discarded.
func (m *Machine) LoadDetails(ctx context.Context, lobbyID int64) error {
	m.mu.Lock()
	prev := int64(0)
	if m.state.Current != nil {
		prev = m.state.Current.ID
	}
	m.detailsTarget = lobbyID
	m.mu.Unlock()

	if prev != 0 && prev != lobbyID && m.teardown != nil {
		m.teardown(prev)
	}

	m.dispatch(loadStarted{})

	details, err := m.rest.LobbyDetails(ctx, lobbyID)
	if err != nil {
		m.dispatch(loadFailed{msg: failureMessage(err, "Failed to load lobby details")})
		return err
	}

	m.mu.Lock()
	stale := m.detailsTarget != lobbyID
	m.mu.Unlock()
	if stale {
		m.logger.Debug().Int64("lobby_id", lobbyID).Msg("Discarding stale lobby details")
		return nil
	}

	m.dispatch(detailsLoaded{details: details})
	return nil
}

// ClearCurrent forgets the current lobby, tearing down its chat state.
func (m *Machine) ClearCurrent() {
	m.mu.Lock()
	prev := int64(0)
	if m.state.Current != nil {
		prev = m.state.Current.ID
	}
	m.detailsTarget = 0
	m.mu.Unlock()

	if prev != 0 && m.teardown != nil {
		m.teardown(prev)
	}
	m.dispatch(currentCleared{})
}

// Join adds the acting identity to the lobby and reloads the roster.
func (m *Machine) Join(ctx context.Context, lobbyID int64) error {
	if err := m.guardMirrorOpen(lobbyID); err != nil {
		return err
	}

	if err := m.rest.JoinLobby(ctx, lobbyID); err != nil {
		m.dispatch(loadFailed{msg: failureMessage(err, "Failed to join lobby")})
		return err
	}

	return m.LoadDetails(ctx, lobbyID)
}

// Leave removes the acting identity from the lobby. The acting owner cannot
// leave; ownership must be transferred first (mirrored client-side, enforced
// server-side).
func (m *Machine) Leave(ctx context.Context, lobbyID int64) error {
	if err := m.guardMirrorOpen(lobbyID); err != nil {
		return err
	}

	if my := m.myMembership(lobbyID); my != nil && my.Role == api.RoleOwner {
		return errs.NewError(errs.ErrPermissionDenied)
	}

	if err := m.rest.LeaveLobby(ctx, lobbyID); err != nil {
		m.dispatch(loadFailed{msg: failureMessage(err, "Failed to leave lobby")})
		return err
	}

	m.ClearCurrent()
	return nil
}

// Moderate performs one moderation action against a target member.
// The lattice is evaluated before any network call; kick and ban require a
// non-empty reason; an ownership transfer must arrive pre-confirmed. On
// success the roster is re-derived from the authoritative source via a full
// LoadDetails, never patched locally.
func (m *Machine) Moderate(ctx context.Context, lobbyID, targetUserID int64, modAction ModAction, reason string, confirmed bool) error {
	if err := m.guardMirrorOpen(lobbyID); err != nil {
		return err
	}

	my := m.myMembership(lobbyID)
	target := m.membershipOf(lobbyID, targetUserID)
	if my == nil || target == nil {
		return errs.NewError(errs.ErrPermissionDenied)
	}

	if !CapabilitiesFor(my.Role, *target).Allows(modAction) {
		return errs.NewError(errs.ErrPermissionDenied)
	}

	if modAction.RequiresReason() && strings.TrimSpace(reason) == "" {
		return errs.NewError(errs.ErrReasonRequired)
	}

	if modAction == ActionTransferOwnership && !confirmed {
		// Transfers are irreversible; dispatch requires the explicit second step.
		return errs.NewError(errs.ErrConfirmationRequired)
	}

	if !modAction.RequiresReason() {
		reason = ""
	}

	if err := m.rest.Moderate(ctx, lobbyID, modAction.endpoint(), targetUserID, reason); err != nil {
		m.dispatch(loadFailed{msg: failureMessage(err, "Moderation action failed")})
		return err
	}

	m.logger.Info().
		Int64("lobby_id", lobbyID).
		Int64("target_user_id", targetUserID).
		Str("action", string(modAction)).
		Msg("Moderation action applied")

	return m.LoadDetails(ctx, lobbyID)
}

// StartGame transitions the lobby from open to in_game. Owner only.
func (m *Machine) StartGame(ctx context.Context, lobbyID int64) error {
	return m.ownerLifecycle(ctx, lobbyID, m.rest.StartGame, "Failed to start game")
}

// CloseLobby transitions the lobby to closed. Owner only; closed is terminal.
func (m *Machine) CloseLobby(ctx context.Context, lobbyID int64) error {
	return m.ownerLifecycle(ctx, lobbyID, m.rest.CloseLobby, "Failed to close lobby")
}

func (m *Machine) ownerLifecycle(ctx context.Context, lobbyID int64, call func(context.Context, int64) error, fallback string) error {
	if err := m.guardMirrorOpen(lobbyID); err != nil {
		return err
	}

	if my := m.myMembership(lobbyID); my == nil || my.Role != api.RoleOwner {
		return errs.NewError(errs.ErrPermissionDenied)
	}

	if err := call(ctx, lobbyID); err != nil {
		m.dispatch(loadFailed{msg: failureMessage(err, fallback)})
		return err
	}

	return m.LoadDetails(ctx, lobbyID)
}

// UpdateSettings patches the lobby's settings. Owner only.
func (m *Machine) UpdateSettings(ctx context.Context, lobbyID int64, input api.CreateLobbyInput) error {
	if err := m.guardMirrorOpen(lobbyID); err != nil {
		return err
	}

	if my := m.myMembership(lobbyID); my == nil || my.Role != api.RoleOwner {
		return errs.NewError(errs.ErrPermissionDenied)
	}

	updated, err := m.rest.UpdateLobby(ctx, lobbyID, input)
	if err != nil {
		m.dispatch(loadFailed{msg: failureMessage(err, "Failed to update lobby")})
		return err
	}

	m.dispatch(lobbyUpdated{lobby: *updated})
	return nil
}

// Capabilities evaluates the lattice for the acting identity against target,
// for the UI to decide which controls to offer.
func (m *Machine) Capabilities(lobbyID int64, target api.Membership) Capabilities {
	my := m.myMembership(lobbyID)
	if my == nil {
		return Capabilities{}
	}
	return CapabilitiesFor(my.Role, target)
}

// ClearError resets the published error banner.
func (m *Machine) ClearError() {
	m.dispatch(errCleared{})
}

// GuardOpen exposes the closed-lobby veto to other machines, so chat
// mutation stops the moment the mirror knows the lobby is closed.
func (m *Machine) GuardOpen(lobbyID int64) error {
	return m.guardMirrorOpen(lobbyID)
}

// guardMirrorOpen vetoes mutations once the mirror knows the lobby is closed.
// The backend would reject them anyway; the mirror just refuses to offer them.
func (m *Machine) guardMirrorOpen(lobbyID int64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state.Current != nil && m.state.Current.ID == lobbyID && m.state.Current.Status == api.StatusClosed {
		return errs.NewError(errs.ErrLobbyClosed)
	}
	return nil
}

// myMembership returns the acting identity's membership in the current
// roster, or nil when the lobby is not current or the identity is absent.
func (m *Machine) myMembership(lobbyID int64) *api.Membership {
	me := m.identity.Identity()
	if me == nil {
		return nil
	}
	return m.membershipOf(lobbyID, me.ID)
}

func (m *Machine) membershipOf(lobbyID, userID int64) *api.Membership {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state.Current == nil || m.state.Current.ID != lobbyID {
		return nil
	}
	for i := range m.state.Current.Participants {
		if m.state.Current.Participants[i].User.ID == userID {
			membership := m.state.Current.Participants[i]
			return &membership
		}
	}
	return nil
}

// failureMessage extracts the human-readable reason from err, falling back to
// a fixed per-operation string.
func failureMessage(err error, fallback string) string {
	if ce, ok := err.(*errs.CustomError); ok && ce.Message != "" {
		return ce.Message
	}
	return fallback
}
