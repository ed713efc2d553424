/*
Package lobbysim is a self-contained lobby backend used for local development
and integration tests.

This file provides the lobby directory, lifecycle, and moderation handlers.
Moderation policy lives in the store; the handlers only bind, authorize the
caller's identity, and shape responses.
*/
package lobbysim

import (
	"net/http"
	"strconv"

	"lobbyhub/internal/api"
	"lobbyhub/internal/pkg/req"
	"lobbyhub/internal/pkg/resp"
)

// HandleListLobbies lists lobbies matching the query filters.
func HandleListLobbies(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if requireIdentity(w, r) == nil {
			return
		}

		filter := api.LobbyFilter{
			Search: r.URL.Query().Get("search"),
			Status: api.LobbyStatus(r.URL.Query().Get("status")),
		}
		if raw := r.URL.Query().Get("is_public"); raw != "" {
			isPublic, err := strconv.ParseBool(raw)
			if err == nil {
				filter.IsPublic = &isPublic
			}
		}

		lobbies := deps.Store.Lobbies(filter)

		resp.RespondSuccess(w, r, api.Page[api.Lobby]{
			Count:   len(lobbies),
			Results: lobbies,
		})
	}
}

// HandleCreateLobby creates a lobby owned by the caller. Premium accounts only.
func HandleCreateLobby(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := requireIdentity(w, r)
		if identity == nil {
			return
		}

		var input api.CreateLobbyInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		lobby, customErr := deps.Store.CreateLobby(identity.UserID, input)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondCreated(w, r, lobby)
	}
}

// HandleLobbyDetails returns a lobby summary plus its full roster.
func HandleLobbyDetails(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if requireIdentity(w, r) == nil {
			return
		}

		lobbyID, customErr := lobbyIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		details, customErr := deps.Store.LobbyDetails(lobbyID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, details)
	}
}

// HandleUpdateLobby patches a lobby's settings. Owner only.
func HandleUpdateLobby(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := requireIdentity(w, r)
		if identity == nil {
			return
		}

		lobbyID, customErr := lobbyIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input api.CreateLobbyInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		lobby, customErr := deps.Store.UpdateLobby(identity.UserID, lobbyID, input)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, lobby)
	}
}

// HandleJoinLobby adds the caller to the roster.
func HandleJoinLobby(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := requireIdentity(w, r)
		if identity == nil {
			return
		}

		lobbyID, customErr := lobbyIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := deps.Store.Join(identity.UserID, lobbyID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleLeaveLobby removes the caller from the roster.
func HandleLeaveLobby(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := requireIdentity(w, r)
		if identity == nil {
			return
		}

		lobbyID, customErr := lobbyIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := deps.Store.Leave(identity.UserID, lobbyID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleStartGame transitions the lobby from open to in_game. Owner only.
func HandleStartGame(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := requireIdentity(w, r)
		if identity == nil {
			return
		}

		lobbyID, customErr := lobbyIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := deps.Store.Start(identity.UserID, lobbyID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleCloseLobby transitions the lobby to its terminal closed status and
// shuts down its realtime hub room.
func HandleCloseLobby(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := requireIdentity(w, r)
		if identity == nil {
			return
		}

		lobbyID, customErr := lobbyIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := deps.Store.Close(identity.UserID, lobbyID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		deps.Hub.CloseRoom(lobbyID)

		resp.RespondSuccess(w, r, nil)
	}
}

type ModerateInput struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

// HandleModerate builds the handler for one moderation action endpoint
// (kick, ban, unban, add_moderator, remove_moderator, transfer_ownership).
func HandleModerate(deps *AppDeps, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := requireIdentity(w, r)
		if identity == nil {
			return
		}

		lobbyID, customErr := lobbyIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input ModerateInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := deps.Store.Moderate(identity.UserID, lobbyID, action, input.UserID, input.Reason); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		// Kicked and banned users lose their realtime connection immediately.
		if action == "kick" || action == "ban" {
			deps.Hub.DisconnectUser(lobbyID, input.UserID)
		}

		resp.RespondSuccess(w, r, nil)
	}
}
