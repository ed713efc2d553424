/*
Package api implements the typed REST client for the lobby backend.

This file defines the wire-level data model shared by the client machines and
the simulated backend. Field names and JSON tags follow the backend contract.
*/
package api

import "time"

// Role is a membership role inside one lobby.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// LobbyStatus is the lifecycle status of a lobby.
// Transitions are monotonic: open -> in_game -> closed; closed is terminal.
type LobbyStatus string

const (
	StatusOpen   LobbyStatus = "open"
	StatusInGame LobbyStatus = "in_game"
	StatusClosed LobbyStatus = "closed"
)

// User is the authenticated identity as the backend reports it.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	IsPremium bool      `json:"is_premium"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenPair is the proof of session: a short-lived access token plus the
// refresh token used to mint replacements.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// AuthResponse is the login response: a token pair plus the identity.
type AuthResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}

// Lobby is the summary of a joinable room as it appears in the directory.
type Lobby struct {
	ID                  int64       `json:"id"`
	Name                string      `json:"name"`
	Owner               User        `json:"owner"`
	IsPublic            bool        `json:"is_public"`
	Status              LobbyStatus `json:"status"`
	MaxParticipants     int         `json:"max_participants"`
	CurrentParticipants int         `json:"current_participants_count"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Membership is one identity's relation to one lobby.
type Membership struct {
	ID       int64     `json:"id"`
	User     User      `json:"user"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
	IsBanned bool      `json:"is_banned"`
}

// LobbyDetails is a lobby summary plus its full membership roster.
type LobbyDetails struct {
	Lobby
	Participants []Membership `json:"participants,omitempty"`
}

// Message is one chat utterance. Deleted messages stay in the log as
// tombstones: IsDeleted set, content blanked, id and position retained.
type Message struct {
	ID        int64     `json:"id"`
	Sender    User      `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	IsDeleted bool      `json:"is_deleted"`
}

// CreateLobbyInput is the body for lobby creation and settings updates.
type CreateLobbyInput struct {
	Name            string `json:"name"`
	IsPublic        bool   `json:"is_public"`
	MaxParticipants int    `json:"max_participants"`
}

// Page is the paginated list envelope the backend wraps collections in.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// LobbyFilter narrows directory listing server-side.
type LobbyFilter struct {
	// Search matches against lobby names; empty means no search.
	Search string

	// IsPublic filters by visibility; nil means both.
	IsPublic *bool

	// Status filters by lifecycle status; empty means all.
	Status LobbyStatus
}
