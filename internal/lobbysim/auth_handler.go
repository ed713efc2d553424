/*
Package lobbysim is a self-contained lobby backend used for local development
and integration tests.

This file provides the authentication and profile handlers: register, login,
token refresh, and the current-user endpoint.
*/
package lobbysim

import (
	"net/http"

	"lobbyhub/internal/api"
	"lobbyhub/internal/pkg/auth/jwt"
	"lobbyhub/internal/pkg/errs"
	"lobbyhub/internal/pkg/logx"
	"lobbyhub/internal/pkg/req"
	"lobbyhub/internal/pkg/resp"
)

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`

	// IsPremium is honored only by this simulated backend so premium-gated
	// flows can be exercised without a billing system.
	IsPremium bool `json:"is_premium,omitempty"`
}

// HandleRegister creates a new account. It does not log the account in.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RegisterInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		user, customErr := deps.Store.CreateUser(input.Username, input.Email, input.Password, input.IsPremium)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		logx.Info("Account registered", "user_id", user.ID, "username", user.Username)

		resp.RespondCreated(w, r, map[string]any{"user": user})
	}
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin exchanges credentials for a token pair plus the identity.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		user, customErr := deps.Store.Authenticate(input.Username, input.Password)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		access, err := jwt.GenerateToken(user.ID, user.Username, deps.Config.JWTSecret)
		if err != nil {
			logx.Error(err, "Failed to sign access token", "user_id", user.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, api.AuthResponse{
			Access:  access,
			Refresh: deps.Store.IssueRefreshToken(user.ID),
			User:    user,
		})
	}
}

type RefreshInput struct {
	Refresh string `json:"refresh"`
}

// HandleRefresh mints a new access token from a refresh token.
func HandleRefresh(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RefreshInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		userID, customErr := deps.Store.RedeemRefreshToken(input.Refresh)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		user, customErr := deps.Store.UserByID(userID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		access, err := jwt.GenerateToken(user.ID, user.Username, deps.Config.JWTSecret)
		if err != nil {
			logx.Error(err, "Failed to sign access token", "user_id", user.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]string{"access": access})
	}
}

// HandleMe returns the identity behind the access token.
func HandleMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := requireIdentity(w, r)
		if identity == nil {
			return
		}

		user, customErr := deps.Store.UserByID(identity.UserID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, user)
	}
}

type UpdateMeInput struct {
	Email string `json:"email"`
}

// HandleUpdateMe patches the caller's profile.
func HandleUpdateMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := requireIdentity(w, r)
		if identity == nil {
			return
		}

		var input UpdateMeInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		user, customErr := deps.Store.UpdateEmail(identity.UserID, input.Email)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, user)
	}
}
