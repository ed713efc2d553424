/*
Package lobbysim is a self-contained lobby backend used for local development
and integration tests. It serves the same REST and websocket contract as the
production service against an in-memory store.

This file defines the Store: users, lobbies, memberships, and messages, all
guarded by one mutex. Every mutation enforces the same policy the production
backend does, so the client's permission mirror can be exercised against real
rejections.
*/
package lobbysim

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"lobbyhub/internal/api"
	"lobbyhub/internal/pkg/errs"
)

// account is a stored user plus its credential hash.
type account struct {
	user         api.User
	email        string
	passwordHash []byte
}

// lobbyRecord is a stored lobby plus its roster and message log.
type lobbyRecord struct {
	lobby    api.Lobby
	members  map[int64]*api.Membership
	messages []api.Message
}

// Store is the in-memory backing state. All methods are safe for concurrent use.
type Store struct {
	mu sync.Mutex

	accounts map[int64]*account
	byName   map[string]int64
	lobbies  map[int64]*lobbyRecord

	// refresh maps opaque refresh tokens onto user ids.
	refresh map[string]int64

	nextUserID       int64
	nextLobbyID      int64
	nextMembershipID int64
	nextMessageID    int64
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[int64]*account),
		byName:   make(map[string]int64),
		lobbies:  make(map[int64]*lobbyRecord),
		refresh:  make(map[string]int64),
	}
}

// --- Users ---

// CreateUser registers a new account. Usernames are unique.
func (s *Store) CreateUser(username, email, password string, premium bool) (api.User, *errs.CustomError) {
	if username == "" || password == "" {
		return api.User{}, errs.NewError(errs.ErrInvalidParams)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return api.User{}, errs.NewError(errs.ErrUnknown)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[username]; exists {
		return api.User{}, errs.NewError(errs.ErrUserAlreadyExists)
	}

	s.nextUserID++
	acct := &account{
		user: api.User{
			ID:        s.nextUserID,
			Username:  username,
			Email:     email,
			IsPremium: premium,
			CreatedAt: time.Now().UTC(),
		},
		email:        email,
		passwordHash: hash,
	}

	s.accounts[acct.user.ID] = acct
	s.byName[username] = acct.user.ID

	return acct.user, nil
}

// Authenticate verifies credentials and returns the identity.
func (s *Store) Authenticate(username, password string) (api.User, *errs.CustomError) {
	s.mu.Lock()
	userID, ok := s.byName[username]
	var hash []byte
	var user api.User
	if ok {
		acct := s.accounts[userID]
		hash = acct.passwordHash
		user = acct.user
	}
	s.mu.Unlock()

	if !ok {
		return api.User{}, errs.NewError(errs.ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return api.User{}, errs.NewError(errs.ErrInvalidCredentials)
	}

	return user, nil
}

// UserByID returns the stored identity.
func (s *Store) UserByID(userID int64) (api.User, *errs.CustomError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return api.User{}, errs.NewError(errs.ErrUnauthorized)
	}
	return acct.user, nil
}

// UpdateEmail patches the account's email address.
func (s *Store) UpdateEmail(userID int64, email string) (api.User, *errs.CustomError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return api.User{}, errs.NewError(errs.ErrUnauthorized)
	}

	acct.email = email
	acct.user.Email = email
	return acct.user, nil
}

// IssueRefreshToken mints an opaque refresh token bound to the user.
func (s *Store) IssueRefreshToken(userID int64) string {
	token := uuid.NewString()

	s.mu.Lock()
	s.refresh[token] = userID
	s.mu.Unlock()

	return token
}

// RedeemRefreshToken resolves a refresh token back to its user. The token
// stays valid; rotation is not part of the contract.
func (s *Store) RedeemRefreshToken(token string) (int64, *errs.CustomError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.refresh[token]
	if !ok {
		return 0, errs.NewError(errs.ErrUnauthorized)
	}
	return userID, nil
}

// --- Lobbies ---

// CreateLobby creates a lobby with the caller as its owner member.
func (s *Store) CreateLobby(ownerID int64, input api.CreateLobbyInput) (api.Lobby, *errs.CustomError) {
	if strings.TrimSpace(input.Name) == "" || input.MaxParticipants < 1 {
		return api.Lobby{}, errs.NewError(errs.ErrInvalidParams)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[ownerID]
	if !ok {
		return api.Lobby{}, errs.NewError(errs.ErrUnauthorized)
	}
	if !acct.user.IsPremium {
		return api.Lobby{}, errs.NewError(errs.ErrPremiumRequired)
	}

	now := time.Now().UTC()
	s.nextLobbyID++
	rec := &lobbyRecord{
		lobby: api.Lobby{
			ID:              s.nextLobbyID,
			Name:            strings.TrimSpace(input.Name),
			Owner:           acct.user,
			IsPublic:        input.IsPublic,
			Status:          api.StatusOpen,
			MaxParticipants: input.MaxParticipants,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		members: make(map[int64]*api.Membership),
	}

	s.nextMembershipID++
	rec.members[ownerID] = &api.Membership{
		ID:       s.nextMembershipID,
		User:     acct.user,
		Role:     api.RoleOwner,
		JoinedAt: now,
	}

	s.lobbies[rec.lobby.ID] = rec
	return s.lobbySummaryLocked(rec), nil
}

// Lobbies lists lobby summaries matching the filter, newest first.
func (s *Store) Lobbies(filter api.LobbyFilter) []api.Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]api.Lobby, 0, len(s.lobbies))
	search := strings.ToLower(filter.Search)

	for _, rec := range s.lobbies {
		if search != "" && !strings.Contains(strings.ToLower(rec.lobby.Name), search) {
			continue
		}
		if filter.IsPublic != nil && rec.lobby.IsPublic != *filter.IsPublic {
			continue
		}
		if filter.Status != "" && rec.lobby.Status != filter.Status {
			continue
		}
		out = append(out, s.lobbySummaryLocked(rec))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}

// LobbyDetails returns a summary plus the full roster, banned members included.
func (s *Store) LobbyDetails(lobbyID int64) (api.LobbyDetails, *errs.CustomError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lobbies[lobbyID]
	if !ok {
		return api.LobbyDetails{}, errs.NewError(errs.ErrLobbyNotFound)
	}

	return s.lobbyDetailsLocked(rec), nil
}

// UpdateLobby patches settings. Owner only.
func (s *Store) UpdateLobby(actorID, lobbyID int64, input api.CreateLobbyInput) (api.Lobby, *errs.CustomError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lobbies[lobbyID]
	if !ok {
		return api.Lobby{}, errs.NewError(errs.ErrLobbyNotFound)
	}
	if rec.lobby.Owner.ID != actorID {
		return api.Lobby{}, errs.NewError(errs.ErrPermissionDenied)
	}
	if rec.lobby.Status == api.StatusClosed {
		return api.Lobby{}, errs.NewError(errs.ErrLobbyClosed)
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		rec.lobby.Name = name
	}
	if input.MaxParticipants > 0 {
		rec.lobby.MaxParticipants = input.MaxParticipants
	}
	rec.lobby.IsPublic = input.IsPublic
	rec.lobby.UpdatedAt = time.Now().UTC()

	return s.lobbySummaryLocked(rec), nil
}

// Join adds the caller to the roster. Re-joining after a ban stays rejected
// until an unban.
func (s *Store) Join(userID, lobbyID int64) *errs.CustomError {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return errs.NewError(errs.ErrUnauthorized)
	}

	rec, ok := s.lobbies[lobbyID]
	if !ok {
		return errs.NewError(errs.ErrLobbyNotFound)
	}
	if rec.lobby.Status == api.StatusClosed {
		return errs.NewError(errs.ErrLobbyClosed)
	}

	if member, exists := rec.members[userID]; exists {
		if member.IsBanned {
			return errs.NewErrorWithMessage(errs.ErrPermissionDenied, "You are banned from this lobby.")
		}
		// Already a member; joining again is a no-op.
		return nil
	}

	if s.activeCountLocked(rec) >= rec.lobby.MaxParticipants {
		return errs.NewError(errs.ErrLobbyFull)
	}

	s.nextMembershipID++
	rec.members[userID] = &api.Membership{
		ID:       s.nextMembershipID,
		User:     acct.user,
		Role:     api.RoleMember,
		JoinedAt: time.Now().UTC(),
	}

	return nil
}

// Leave removes the caller from the roster. The owner cannot leave; ownership
// must be transferred or the lobby closed instead.
func (s *Store) Leave(userID, lobbyID int64) *errs.CustomError {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lobbies[lobbyID]
	if !ok {
		return errs.NewError(errs.ErrLobbyNotFound)
	}

	member, exists := rec.members[userID]
	if !exists {
		return errs.NewError(errs.ErrPermissionDenied)
	}
	if member.Role == api.RoleOwner {
		return errs.NewErrorWithMessage(errs.ErrPermissionDenied, "The owner cannot leave; transfer ownership or close the lobby.")
	}

	delete(rec.members, userID)
	return nil
}

// Start transitions open -> in_game. Owner only.
func (s *Store) Start(actorID, lobbyID int64) *errs.CustomError {
	return s.transition(actorID, lobbyID, api.StatusOpen, api.StatusInGame)
}

// Close transitions to the terminal closed status. Owner only.
func (s *Store) Close(actorID, lobbyID int64) *errs.CustomError {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lobbies[lobbyID]
	if !ok {
		return errs.NewError(errs.ErrLobbyNotFound)
	}
	if rec.lobby.Owner.ID != actorID {
		return errs.NewError(errs.ErrPermissionDenied)
	}
	if rec.lobby.Status == api.StatusClosed {
		return errs.NewError(errs.ErrLobbyClosed)
	}

	rec.lobby.Status = api.StatusClosed
	rec.lobby.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) transition(actorID, lobbyID int64, from, to api.LobbyStatus) *errs.CustomError {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lobbies[lobbyID]
	if !ok {
		return errs.NewError(errs.ErrLobbyNotFound)
	}
	if rec.lobby.Owner.ID != actorID {
		return errs.NewError(errs.ErrPermissionDenied)
	}
	if rec.lobby.Status != from {
		return errs.NewError(errs.ErrConflict)
	}

	rec.lobby.Status = to
	rec.lobby.UpdatedAt = time.Now().UTC()
	return nil
}

// Moderate applies one moderation action. The policy here is the authority the
// client's permission mirror approximates.
func (s *Store) Moderate(actorID, lobbyID int64, action string, targetUserID int64, reason string) *errs.CustomError {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lobbies[lobbyID]
	if !ok {
		return errs.NewError(errs.ErrLobbyNotFound)
	}
	if rec.lobby.Status == api.StatusClosed {
		return errs.NewError(errs.ErrLobbyClosed)
	}

	actor, ok := rec.members[actorID]
	if !ok || actor.IsBanned {
		return errs.NewError(errs.ErrPermissionDenied)
	}

	target, ok := rec.members[targetUserID]
	if !ok {
		return errs.NewErrorWithMessage(errs.ErrPermissionDenied, "Target is not a member of this lobby.")
	}

	isOwner := actor.Role == api.RoleOwner
	isModerator := actor.Role == api.RoleModerator

	switch action {
	case "kick":
		if !(isOwner || isModerator) || target.Role == api.RoleOwner {
			return errs.NewError(errs.ErrPermissionDenied)
		}
		if strings.TrimSpace(reason) == "" {
			return errs.NewError(errs.ErrReasonRequired)
		}
		delete(rec.members, targetUserID)

	case "ban":
		if !(isOwner || isModerator) || target.Role == api.RoleOwner {
			return errs.NewError(errs.ErrPermissionDenied)
		}
		if strings.TrimSpace(reason) == "" {
			return errs.NewError(errs.ErrReasonRequired)
		}
		target.IsBanned = true
		if target.Role == api.RoleModerator {
			target.Role = api.RoleMember
		}

	case "unban":
		if !(isOwner || isModerator) || !target.IsBanned {
			return errs.NewError(errs.ErrPermissionDenied)
		}
		target.IsBanned = false

	case "add_moderator":
		if !isOwner || target.Role != api.RoleMember || target.IsBanned {
			return errs.NewError(errs.ErrPermissionDenied)
		}
		target.Role = api.RoleModerator

	case "remove_moderator":
		if !isOwner || target.Role != api.RoleModerator {
			return errs.NewError(errs.ErrPermissionDenied)
		}
		target.Role = api.RoleMember

	case "transfer_ownership":
		if !isOwner || target.Role == api.RoleOwner || target.IsBanned {
			return errs.NewError(errs.ErrPermissionDenied)
		}
		actor.Role = api.RoleMember
		target.Role = api.RoleOwner
		rec.lobby.Owner = target.User

	default:
		return errs.NewError(errs.ErrInvalidParams)
	}

	rec.lobby.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Messages ---

// Messages returns the ordered log for a lobby. Members only.
func (s *Store) Messages(userID, lobbyID int64) ([]api.Message, *errs.CustomError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lobbies[lobbyID]
	if !ok {
		return nil, errs.NewError(errs.ErrLobbyNotFound)
	}
	if member, exists := rec.members[userID]; !exists || member.IsBanned {
		return nil, errs.NewError(errs.ErrPermissionDenied)
	}

	out := make([]api.Message, len(rec.messages))
	copy(out, rec.messages)
	return out, nil
}

// AppendMessage persists one message and returns the acknowledged record.
func (s *Store) AppendMessage(userID, lobbyID int64, content string) (api.Message, *errs.CustomError) {
	content = strings.TrimSpace(content)
	if content == "" {
		return api.Message{}, errs.NewError(errs.ErrEmptyMessage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lobbies[lobbyID]
	if !ok {
		return api.Message{}, errs.NewError(errs.ErrLobbyNotFound)
	}
	if rec.lobby.Status == api.StatusClosed {
		return api.Message{}, errs.NewError(errs.ErrLobbyClosed)
	}

	member, exists := rec.members[userID]
	if !exists || member.IsBanned {
		return api.Message{}, errs.NewError(errs.ErrPermissionDenied)
	}

	s.nextMessageID++
	msg := api.Message{
		ID:        s.nextMessageID,
		Sender:    member.User,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	rec.messages = append(rec.messages, msg)

	return msg, nil
}

// DeleteMessage tombstones one message. Allowed for the sender, moderators,
// and the owner. The entry keeps its id and position.
func (s *Store) DeleteMessage(actorID, lobbyID, messageID int64) *errs.CustomError {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lobbies[lobbyID]
	if !ok {
		return errs.NewError(errs.ErrLobbyNotFound)
	}

	actor, exists := rec.members[actorID]
	if !exists || actor.IsBanned {
		return errs.NewError(errs.ErrPermissionDenied)
	}

	for i := range rec.messages {
		if rec.messages[i].ID != messageID {
			continue
		}

		isPrivileged := actor.Role == api.RoleOwner || actor.Role == api.RoleModerator
		if rec.messages[i].Sender.ID != actorID && !isPrivileged {
			return errs.NewError(errs.ErrPermissionDenied)
		}

		rec.messages[i].IsDeleted = true
		rec.messages[i].Content = ""
		return nil
	}

	return errs.NewError(errs.ErrMessageNotFound)
}

// Membership returns the caller's membership in a lobby, if any.
func (s *Store) Membership(userID, lobbyID int64) (api.Membership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lobbies[lobbyID]
	if !ok {
		return api.Membership{}, false
	}
	member, exists := rec.members[userID]
	if !exists {
		return api.Membership{}, false
	}
	return *member, true
}

// activeCountLocked counts non-banned members. Caller holds s.mu.
func (s *Store) activeCountLocked(rec *lobbyRecord) int {
	count := 0
	for _, member := range rec.members {
		if !member.IsBanned {
			count++
		}
	}
	return count
}

func (s *Store) lobbySummaryLocked(rec *lobbyRecord) api.Lobby {
	summary := rec.lobby
	summary.CurrentParticipants = s.activeCountLocked(rec)
	return summary
}

func (s *Store) lobbyDetailsLocked(rec *lobbyRecord) api.LobbyDetails {
	details := api.LobbyDetails{Lobby: s.lobbySummaryLocked(rec)}

	details.Participants = make([]api.Membership, 0, len(rec.members))
	for _, member := range rec.members {
		details.Participants = append(details.Participants, *member)
	}
	sort.Slice(details.Participants, func(i, j int) bool {
		return details.Participants[i].ID < details.Participants[j].ID
	})

	return details
}
