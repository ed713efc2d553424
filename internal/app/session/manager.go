/*
Package session owns the authentication lifecycle: credentials in, token pair
and identity out, transparent access-token refresh, forced logout on refresh
failure.

This file defines the Manager. Exactly one Manager exists per process; the
lobby and chat machines receive it by reference and read the identity from it.
*/
package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"lobbyhub/internal/api"
	"lobbyhub/internal/pkg/errs"
	"lobbyhub/internal/pkg/logx"
)

// refreshWindow is how close to expiry an access token may get before
// ValidAccessToken refreshes it proactively instead of waiting for a 401.
const refreshWindow = 2 * time.Minute

// Manager owns the Identity and TokenPair for the lifetime of the session.
// It implements api.AuthSource so every outbound call reads its token here.
type Manager struct {
	rest  *api.Client
	store TokenStore

	mu        sync.RWMutex
	tokens    api.TokenPair
	identity  *api.User
	lastError string

	// group coalesces concurrent refresh attempts: calls that arrive while a
	// refresh is in flight await its single outcome.
	group singleflight.Group

	logger zerolog.Logger
}

// NewManager constructs the session manager. The caller is expected to wire
// the manager back into the api.Client via SetAuth.
func NewManager(rest *api.Client, store TokenStore) *Manager {
	return &Manager{
		rest:   rest,
		store:  store,
		logger: logx.Logger().With().Str("component", "session").Logger(),
	}
}

// Login exchanges credentials for a token pair and identity. On failure the
// server reason is surfaced and any prior session state is left untouched.
func (m *Manager) Login(ctx context.Context, username, password string) (*api.User, error) {
	resp, err := m.rest.Login(ctx, username, password)
	if err != nil {
		loginErr := asAuthError(err, errs.ErrLoginFailed)
		m.setError(loginErr.Message)
		return nil, loginErr
	}

	pair := api.TokenPair{Access: resp.Access, Refresh: resp.Refresh}
	if saveErr := m.store.Save(pair); saveErr != nil {
		m.logger.Warn().Err(saveErr).Msg("Failed to persist token pair")
	}

	identity := resp.User

	m.mu.Lock()
	m.tokens = pair
	m.identity = &identity
	m.lastError = ""
	m.mu.Unlock()

	m.logger.Info().Int64("user_id", identity.ID).Msg("Logged in")
	return &identity, nil
}

// Register creates an account and then logs in with the same credentials.
// If the login step fails after a successful creation, the login failure is
// surfaced; the account still exists server-side and re-registration is the
// backend's problem to keep idempotent.
func (m *Manager) Register(ctx context.Context, username, email, password string) (*api.User, error) {
	if _, err := m.rest.Register(ctx, username, email, password); err != nil {
		registerErr := asAuthError(err, errs.ErrRegistrationFailed)
		m.setError(registerErr.Message)
		return nil, registerErr
	}

	return m.Login(ctx, username, password)
}

// RestoreSession attempts to resume a persisted session at process start.
// It returns (nil, nil) when no usable session exists; it never returns an
// error for an expired or invalid stored token, it just clears the store.
func (m *Manager) RestoreSession(ctx context.Context) (*api.User, error) {
	pair, err := m.store.Load()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Token store unreadable; starting unauthenticated")
		return nil, nil
	}
	if pair.Access == "" && pair.Refresh == "" {
		return nil, nil
	}

	m.mu.Lock()
	m.tokens = pair
	m.mu.Unlock()

	identity, err := m.rest.Me(ctx)
	if err != nil {
		m.logger.Info().Msg("Stored session no longer valid; clearing tokens")
		m.clearSession()
		return nil, nil
	}

	m.mu.Lock()
	m.identity = identity
	m.lastError = ""
	m.mu.Unlock()

	m.logger.Info().Int64("user_id", identity.ID).Msg("Session restored")
	return identity, nil
}

// RefreshAccessToken mints a new access token from the stored refresh token.
// Concurrent callers share one in-flight attempt. Failure is fatal to the
// session: all state is cleared and ErrSessionExpired is returned, forcing
// re-authentication rather than an unbounded retry loop.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	_, err, _ := m.group.Do("refresh", func() (any, error) {
		m.mu.RLock()
		refreshToken := m.tokens.Refresh
		m.mu.RUnlock()

		if refreshToken == "" {
			return nil, errs.NewError(errs.ErrSessionExpired)
		}

		access, err := m.rest.Refresh(ctx, refreshToken)
		if err != nil {
			m.logger.Warn().Err(err).Msg("Token refresh failed; forcing logout")
			m.clearSession()
			m.setError(errs.NewError(errs.ErrSessionExpired).Message)
			return nil, errs.NewError(errs.ErrSessionExpired)
		}

		m.mu.Lock()
		m.tokens.Access = access
		pair := m.tokens
		m.mu.Unlock()

		if saveErr := m.store.Save(pair); saveErr != nil {
			m.logger.Warn().Err(saveErr).Msg("Failed to persist refreshed token")
		}

		m.logger.Debug().Msg("Access token refreshed")
		return nil, nil
	})
	return err
}

// Logout clears the token pair and identity synchronously.
// No backend call is made; there is no server-side revocation.
func (m *Manager) Logout() {
	m.clearSession()
	m.logger.Info().Msg("Logged out")
}

// UpdateProfile patches the current user's profile and republishes the identity.
func (m *Manager) UpdateProfile(ctx context.Context, email string) (*api.User, error) {
	if !m.IsAuthenticated() {
		return nil, errs.NewError(errs.ErrNotAuthenticated)
	}

	identity, err := m.rest.UpdateMe(ctx, email)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.identity = identity
	m.mu.Unlock()

	return identity, nil
}

// AccessToken implements api.AuthSource.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens.Access
}

// ValidAccessToken returns an access token expected to outlive an imminent
// use (such as a websocket dial), refreshing first when the current one is
// inside the refresh window.
func (m *Manager) ValidAccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	access := m.tokens.Access
	m.mu.RUnlock()

	if access == "" {
		return "", errs.NewError(errs.ErrNotAuthenticated)
	}

	if expiry, ok := tokenExpiry(access); ok && time.Until(expiry) < refreshWindow {
		if err := m.RefreshAccessToken(ctx); err != nil {
			return "", err
		}
	}

	return m.AccessToken(), nil
}

// Identity returns the authenticated identity, or nil when unauthenticated.
func (m *Manager) Identity() *api.User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.identity == nil {
		return nil
	}
	identity := *m.identity
	return &identity
}

// IsAuthenticated reports whether an identity is currently published.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity != nil
}

// LastError returns the most recent auth failure reason, "" when none.
func (m *Manager) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// ClearError resets the published auth failure reason.
func (m *Manager) ClearError() {
	m.setError("")
}

func (m *Manager) setError(msg string) {
	m.mu.Lock()
	m.lastError = msg
	m.mu.Unlock()
}

func (m *Manager) clearSession() {
	m.mu.Lock()
	m.tokens = api.TokenPair{}
	m.identity = nil
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to clear token store")
	}
}

// asAuthError normalizes a failure from the auth endpoints: server-supplied
// reasons are kept verbatim, anything without one falls back to the template
// message for fallbackCode.
func asAuthError(err error, fallbackCode int) *errs.CustomError {
	if ce, ok := err.(*errs.CustomError); ok {
		if ce.Code == errs.ErrRequestFailed {
			// Network errors during login/register are surfaced verbatim.
			return ce
		}

		// A message differing from the code's template is a server reason.
		template := errs.NewError(ce.Code)
		if ce.Message != "" && ce.Message != template.Message {
			return errs.NewErrorWithMessage(fallbackCode, ce.Message)
		}
	}

	return errs.NewError(fallbackCode)
}

// tokenExpiry extracts the exp claim without verifying the signature.
// The backend is the authority on validity; the client only peeks at expiry
// to schedule proactive refreshes.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}, false
	}

	return expiry.Time, true
}
