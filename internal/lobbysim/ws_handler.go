/*
Package lobbysim is a self-contained lobby backend used for local development
and integration tests.

This file provides the websocket upgrade handler. Realtime connections
authenticate with the access token passed as a query parameter, since browser
websocket clients cannot set an Authorization header.
*/
package lobbysim

import (
	"net/http"

	"github.com/gorilla/websocket"

	"lobbyhub/internal/pkg/auth/jwt"
	"lobbyhub/internal/pkg/errs"
	"lobbyhub/internal/pkg/logx"
	"lobbyhub/internal/pkg/resp"
)

// HandleWebSocket upgrades a lobby realtime connection. The caller must be an
// unbanned member of an unclosed lobby.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbyID, customErr := lobbyIDParam(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		token := r.URL.Query().Get("token")
		payload, err := jwt.ParseToken(token, deps.Config.JWTSecret)
		if err != nil {
			logx.Warn("Rejected websocket: invalid token", "error", err)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		member, ok := deps.Store.Membership(payload.UserID, lobbyID)
		if !ok || member.IsBanned {
			resp.RespondError(w, r, errs.NewError(errs.ErrPermissionDenied))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Warn("Websocket upgrade failed", "error", err)
			return
		}

		room := deps.Hub.Room(lobbyID)
		client := newWSClient(room, deps.Store, conn, member.User)

		room.registerClient(client)

		go client.writePump()
		go client.readPump()
	}
}
