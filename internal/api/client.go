/*
Package api implements the typed REST client for the lobby backend.

This file defines the Client struct and one method per backend endpoint. Every
call attaches the current access token while one is present. A 401 triggers
exactly one token refresh followed by one retry of the original call; refresh
failure surfaces as a session error and is never retried here.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"lobbyhub/internal/pkg/errs"
	"lobbyhub/internal/pkg/logx"
)

// AuthSource supplies bearer tokens to outbound calls. It is implemented by
// the session manager; the client never stores tokens itself.
type AuthSource interface {
	// AccessToken returns the current access token, or "" when unauthenticated.
	AccessToken() string

	// RefreshAccessToken performs a single coalesced token refresh.
	// An error means the session is expired beyond recovery.
	RefreshAccessToken(ctx context.Context) error
}

// Client is the typed REST client. All methods are safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	auth    AuthSource
	logger  zerolog.Logger
}

// NewClient constructs a Client for the given REST base URL.
// A nil httpClient selects a default with a 15 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		logger:  logx.Logger().With().Str("component", "api").Logger(),
	}
}

// SetAuth wires the token source. Called once during assembly; the session
// manager needs the client to exist before it can be constructed itself.
func (c *Client) SetAuth(auth AuthSource) {
	c.auth = auth
}

// errorEnvelope is the failure body convention: either key may carry the
// human-readable reason, and both are treated as equivalent.
type errorEnvelope struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func (e errorEnvelope) reason() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Message
}

// statusToCode maps an HTTP failure status onto the client error taxonomy.
func statusToCode(status int) int {
	switch status {
	case http.StatusBadRequest:
		return errs.ErrInvalidParams
	case http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case http.StatusForbidden:
		return errs.ErrPermissionDenied
	case http.StatusNotFound:
		return errs.ErrLobbyNotFound
	case http.StatusConflict:
		return errs.ErrConflict
	case http.StatusTooManyRequests:
		return errs.ErrRateLimited
	default:
		return errs.ErrUnknown
	}
}

// do performs one JSON request against the backend.
// withAuth attaches the bearer token and enables the single refresh-and-retry
// pass on 401. The auth endpoints themselves always run without it.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any, withAuth bool) error {
	retried := false

	for {
		status, respBody, err := c.roundTrip(ctx, method, path, query, body, withAuth)
		if err != nil {
			return err
		}

		if status == http.StatusUnauthorized && withAuth && !retried && c.auth != nil {
			retried = true
			if refreshErr := c.auth.RefreshAccessToken(ctx); refreshErr != nil {
				return refreshErr
			}
			continue
		}

		if status >= 400 {
			var envelope errorEnvelope
			_ = json.Unmarshal(respBody, &envelope)

			code := statusToCode(status)
			customErr := errs.NewErrorWithMessage(code, envelope.reason())
			customErr.Status = status
			return customErr
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				c.logger.Warn().Err(err).Str("path", path).Msg("Failed to decode response body")
				return errs.NewError(errs.ErrInvalidResponse)
			}
		}

		return nil
	}
}

// roundTrip builds, sends, and drains one HTTP request.
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body any, withAuth bool) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, errs.NewError(errs.ErrInvalidParams)
		}
		reqBody = bytes.NewReader(encoded)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return 0, nil, errs.NewError(errs.ErrInvalidParams)
	}

	req.Header.Set("Content-Type", "application/json")
	if withAuth && c.auth != nil {
		if token := c.auth.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("Request failed")
		return 0, nil, errs.NewErrorWithMessage(errs.ErrRequestFailed, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errs.NewError(errs.ErrInvalidResponse)
	}

	return resp.StatusCode, respBody, nil
}

// --- Authentication ---

// Register creates a new account. It does not authenticate; callers chain Login.
func (c *Client) Register(ctx context.Context, username, email, password string) (*User, error) {
	input := map[string]string{"username": username, "email": email, "password": password}
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register/", nil, input, &out, false); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Login exchanges credentials for a token pair and the authenticated identity.
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	input := map[string]string{"username": username, "password": password}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login/", nil, input, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	input := map[string]string{"refresh": refreshToken}
	var out struct {
		Access string `json:"access"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh/", nil, input, &out, false); err != nil {
		return "", err
	}
	return out.Access, nil
}

// Me fetches the identity behind the current access token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/api/me/", nil, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMe patches the current user's profile.
func (c *Client) UpdateMe(ctx context.Context, email string) (*User, error) {
	input := map[string]string{"email": email}
	var out User
	if err := c.do(ctx, http.MethodPatch, "/api/me/", nil, input, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Lobby directory ---

// Lobbies lists lobbies matching the filter.
func (c *Client) Lobbies(ctx context.Context, filter LobbyFilter) (*Page[Lobby], error) {
	query := url.Values{}
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}
	if filter.IsPublic != nil {
		query.Set("is_public", strconv.FormatBool(*filter.IsPublic))
	}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}

	var out Page[Lobby]
	if err := c.do(ctx, http.MethodGet, "/api/lobbies/", query, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateLobby creates a new lobby owned by the caller.
func (c *Client) CreateLobby(ctx context.Context, input CreateLobbyInput) (*Lobby, error) {
	var out Lobby
	if err := c.do(ctx, http.MethodPost, "/api/lobbies/", nil, input, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// LobbyDetails fetches one lobby's summary plus its full roster.
func (c *Client) LobbyDetails(ctx context.Context, lobbyID int64) (*LobbyDetails, error) {
	var out LobbyDetails
	if err := c.do(ctx, http.MethodGet, lobbyPath(lobbyID, ""), nil, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateLobby patches a lobby's settings. Owner only, enforced server-side.
func (c *Client) UpdateLobby(ctx context.Context, lobbyID int64, input CreateLobbyInput) (*Lobby, error) {
	var out Lobby
	if err := c.do(ctx, http.MethodPatch, lobbyPath(lobbyID, ""), nil, input, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Lobby actions ---

// JoinLobby adds the caller to the lobby's roster.
func (c *Client) JoinLobby(ctx context.Context, lobbyID int64) error {
	return c.do(ctx, http.MethodPost, lobbyPath(lobbyID, "join"), nil, nil, nil, true)
}

// LeaveLobby removes the caller from the lobby's roster.
func (c *Client) LeaveLobby(ctx context.Context, lobbyID int64) error {
	return c.do(ctx, http.MethodPost, lobbyPath(lobbyID, "leave"), nil, nil, nil, true)
}

// StartGame transitions the lobby from open to in_game.
func (c *Client) StartGame(ctx context.Context, lobbyID int64) error {
	return c.do(ctx, http.MethodPost, lobbyPath(lobbyID, "start"), nil, nil, nil, true)
}

// CloseLobby transitions the lobby to its terminal closed status.
func (c *Client) CloseLobby(ctx context.Context, lobbyID int64) error {
	return c.do(ctx, http.MethodPost, lobbyPath(lobbyID, "close"), nil, nil, nil, true)
}

// Moderate issues one moderation action against a target user.
// endpoint is the backend action segment (kick, ban, unban, add_moderator,
// remove_moderator, transfer_ownership); reason accompanies kick and ban only.
func (c *Client) Moderate(ctx context.Context, lobbyID int64, endpoint string, targetUserID int64, reason string) error {
	input := map[string]any{"user_id": targetUserID}
	if reason != "" {
		input["reason"] = reason
	}
	return c.do(ctx, http.MethodPost, lobbyPath(lobbyID, endpoint), nil, input, nil, true)
}

// --- Messages ---

// Messages fetches the ordered message history for a lobby.
func (c *Client) Messages(ctx context.Context, lobbyID int64) (*Page[Message], error) {
	var out Page[Message]
	if err := c.do(ctx, http.MethodGet, lobbyPath(lobbyID, "messages"), nil, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage posts one message and returns the acknowledged record.
func (c *Client) SendMessage(ctx context.Context, lobbyID int64, content string) (*Message, error) {
	input := map[string]string{"content": content}
	var out Message
	if err := c.do(ctx, http.MethodPost, lobbyPath(lobbyID, "messages"), nil, input, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessage tombstones one message.
func (c *Client) DeleteMessage(ctx context.Context, lobbyID, messageID int64) error {
	path := fmt.Sprintf("/api/lobbies/%d/messages/%d/", lobbyID, messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil, true)
}

// lobbyPath builds "/api/lobbies/{id}/" or "/api/lobbies/{id}/{action}/".
func lobbyPath(lobbyID int64, action string) string {
	if action == "" {
		return fmt.Sprintf("/api/lobbies/%d/", lobbyID)
	}
	return fmt.Sprintf("/api/lobbies/%d/%s/", lobbyID, action)
}
