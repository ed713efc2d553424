/*
Package lobbysim is a self-contained lobby backend used for local development
and integration tests.

This file provides the message handlers. A successful post is acknowledged
over REST and then broadcast to the lobby's realtime room, which is how the
client ends up receiving its own message on both paths.
*/
package lobbysim

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lobbyhub/internal/api"
	"lobbyhub/internal/pkg/errs"
	"lobbyhub/internal/pkg/req"
	"lobbyhub/internal/pkg/resp"
	"lobbyhub/internal/transport"
)

// HandleListMessages returns the ordered message log for a lobby.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
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

		messages, customErr := deps.Store.Messages(identity.UserID, lobbyID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, api.Page[api.Message]{
			Count:   len(messages),
			Results: messages,
		})
	}
}

type SendMessageInput struct {
	Content string `json:"content"`
}

// HandleSendMessage persists one message and broadcasts it to the lobby room.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
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

		var input SendMessageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, customErr := deps.Store.AppendMessage(identity.UserID, lobbyID, input.Content)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		deps.Hub.Broadcast(lobbyID, transport.Event{
			Type:    transport.EventChatMessage,
			Message: &msg,
		})

		resp.RespondCreated(w, r, msg)
	}
}

// HandleDeleteMessage tombstones one message.
func HandleDeleteMessage(deps *AppDeps) http.HandlerFunc {
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

		messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
		if err != nil || messageID <= 0 {
			resp.RespondError(w, r, errs.NewErrorWithMessage(errs.ErrInvalidParams, "Invalid message id."))
			return
		}

		if customErr := deps.Store.DeleteMessage(identity.UserID, lobbyID, messageID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}
