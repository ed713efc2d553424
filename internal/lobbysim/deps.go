/*
Package lobbysim is a self-contained lobby backend used for local development
and integration tests.

This file defines the AppDeps struct, which aggregates the shared dependencies
(store, realtime hub, configuration) handlers need.
*/
package lobbysim

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lobbyhub/internal/configs"
	"lobbyhub/internal/pkg/auth/jwt"
	"lobbyhub/internal/pkg/errs"
	"lobbyhub/internal/pkg/resp"
)

// AppDeps bundles the application dependencies injected into every handler.
type AppDeps struct {
	Store  *Store
	Hub    *Hub
	Config *configs.SimConfig
}

// requireIdentity extracts the authenticated payload or writes a 401.
// A nil return means the response has already been sent.
func requireIdentity(w http.ResponseWriter, r *http.Request) *jwt.Payload {
	payload := jwt.GetPayloadFromContext(r)
	if payload == nil {
		resp.RespondError(w, r, errs.NewErrorWithMessage(errs.ErrUnauthorized, "Authentication credentials were not provided."))
		return nil
	}
	return payload
}

// lobbyIDParam parses the {lobbyID} route parameter.
func lobbyIDParam(r *http.Request) (int64, *errs.CustomError) {
	id, err := strconv.ParseInt(chi.URLParam(r, "lobbyID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.NewErrorWithMessage(errs.ErrInvalidParams, "Invalid lobby id.")
	}
	return id, nil
}
