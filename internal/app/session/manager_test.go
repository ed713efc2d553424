package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"lobbyhub/internal/api"
	"lobbyhub/internal/pkg/errs"
)

// authBackend is a scripted auth server covering login, refresh, and me.
type authBackend struct {
	mu        sync.Mutex
	loginFail string // non-empty makes login fail with this detail
	refreshes atomic.Int64
	meFails   bool
}

func (b *authBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		fail := b.loginFail
		b.mu.Unlock()

		if fail != "" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": fail})
			return
		}
		json.NewEncoder(w).Encode(api.AuthResponse{
			Access:  "access-1",
			Refresh: "refresh-1",
			User:    api.User{ID: 1, Username: "ada", IsPremium: true},
		})
	})

	mux.HandleFunc("/api/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		b.refreshes.Add(1)
		// Slow enough that concurrent callers overlap one in-flight refresh.
		time.Sleep(30 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"access": "access-2"})
	})

	mux.HandleFunc("/api/me/", func(w http.ResponseWriter, r *http.Request) {
		if b.meFails {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(api.User{ID: 1, Username: "ada"})
	})

	return mux
}

func newTestManager(t *testing.T, backend *authBackend) (*Manager, TokenStore) {
	t.Helper()

	server := httptest.NewServer(backend.handler(t))
	t.Cleanup(server.Close)

	store := NewMemoryTokenStore()
	rest := api.NewClient(server.URL, nil)
	manager := NewManager(rest, store)
	rest.SetAuth(manager)

	return manager, store
}

func TestLoginPublishesIdentityAndTokens(t *testing.T) {
	manager, store := newTestManager(t, &authBackend{})

	user, err := manager.Login(context.Background(), "ada", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.Username != "ada" {
		t.Errorf("Username = %q", user.Username)
	}
	if !manager.IsAuthenticated() {
		t.Error("IsAuthenticated() = false after login")
	}
	if manager.AccessToken() != "access-1" {
		t.Errorf("AccessToken() = %q", manager.AccessToken())
	}

	pair, _ := store.Load()
	if pair.Refresh != "refresh-1" {
		t.Errorf("persisted refresh = %q, want refresh-1", pair.Refresh)
	}
}

func TestLoginFailureLeavesPriorSessionUntouched(t *testing.T) {
	backend := &authBackend{}
	manager, _ := newTestManager(t, backend)

	if _, err := manager.Login(context.Background(), "ada", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	backend.mu.Lock()
	backend.loginFail = "No active account found with the given credentials"
	backend.mu.Unlock()

	_, err := manager.Login(context.Background(), "ada", "wrong")
	if !errs.Is(err, errs.ErrLoginFailed) {
		t.Fatalf("Login() error = %v, want code %d", err, errs.ErrLoginFailed)
	}

	// The server reason is surfaced verbatim, and the prior session survives.
	if got := manager.LastError(); got != "No active account found with the given credentials" {
		t.Errorf("LastError() = %q", got)
	}
	if !manager.IsAuthenticated() {
		t.Error("IsAuthenticated() = false, want prior session intact")
	}
	if manager.AccessToken() != "access-1" {
		t.Errorf("AccessToken() = %q, want prior token intact", manager.AccessToken())
	}
}

func TestLoginFailureWithoutReasonUsesFixedMessage(t *testing.T) {
	backend := &authBackend{loginFail: "Please sign in to continue."}
	manager, _ := newTestManager(t, backend)

	// The backend echoed the client's own unauthorized template; that is not a
	// server reason, so the fixed login failure message is used.
	backend.mu.Lock()
	backend.loginFail = "Please sign in to continue."
	backend.mu.Unlock()

	_, err := manager.Login(context.Background(), "ada", "wrong")
	ce, ok := err.(*errs.CustomError)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if ce.Message != "Login failed" {
		t.Errorf("Message = %q, want %q", ce.Message, "Login failed")
	}
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	backend := &authBackend{}
	manager, _ := newTestManager(t, backend)

	if _, err := manager.Login(context.Background(), "ada", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := manager.RefreshAccessToken(context.Background()); err != nil {
				t.Errorf("RefreshAccessToken() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := backend.refreshes.Load(); got != 1 {
		t.Errorf("upstream refresh calls = %d, want 1", got)
	}
	if manager.AccessToken() != "access-2" {
		t.Errorf("AccessToken() = %q, want access-2", manager.AccessToken())
	}
}

func TestRefreshFailureForcesLogout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Token is invalid or expired"})
	}))
	t.Cleanup(server.Close)

	store := NewMemoryTokenStore()
	store.Save(api.TokenPair{Access: "a", Refresh: "r"})

	rest := api.NewClient(server.URL, nil)
	manager := NewManager(rest, store)
	rest.SetAuth(manager)

	manager.mu.Lock()
	manager.tokens = api.TokenPair{Access: "a", Refresh: "r"}
	manager.identity = &api.User{ID: 1}
	manager.mu.Unlock()

	err := manager.RefreshAccessToken(context.Background())
	if !errs.Is(err, errs.ErrSessionExpired) {
		t.Fatalf("RefreshAccessToken() error = %v, want code %d", err, errs.ErrSessionExpired)
	}

	if manager.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after failed refresh")
	}
	if manager.AccessToken() != "" {
		t.Error("AccessToken() not cleared after failed refresh")
	}
	if pair, _ := store.Load(); pair.Refresh != "" {
		t.Error("token store not cleared after failed refresh")
	}
}

func TestRestoreSessionClearsInvalidTokens(t *testing.T) {
	backend := &authBackend{meFails: true}
	manager, store := newTestManager(t, backend)

	store.Save(api.TokenPair{Access: "stale", Refresh: ""})

	user, err := manager.RestoreSession(context.Background())
	if err != nil {
		t.Fatalf("RestoreSession() error = %v", err)
	}
	if user != nil {
		t.Errorf("user = %+v, want nil", user)
	}
	if pair, _ := store.Load(); pair.Access != "" {
		t.Error("stale tokens not cleared")
	}
}

func TestRestoreSessionWithEmptyStoreIsQuiet(t *testing.T) {
	manager, _ := newTestManager(t, &authBackend{})

	user, err := manager.RestoreSession(context.Background())
	if err != nil {
		t.Fatalf("RestoreSession() error = %v", err)
	}
	if user != nil {
		t.Errorf("user = %+v, want nil", user)
	}
}

func TestValidAccessTokenRefreshesNearExpiry(t *testing.T) {
	backend := &authBackend{}
	manager, _ := newTestManager(t, backend)

	// Install a token expiring inside the proactive refresh window.
	expiring, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"exp": time.Now().Add(30 * time.Second).Unix(),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}

	manager.mu.Lock()
	manager.tokens = api.TokenPair{Access: expiring, Refresh: "refresh-1"}
	manager.mu.Unlock()

	token, err := manager.ValidAccessToken(context.Background())
	if err != nil {
		t.Fatalf("ValidAccessToken() error = %v", err)
	}
	if token != "access-2" {
		t.Errorf("token = %q, want refreshed access-2", token)
	}
	if backend.refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", backend.refreshes.Load())
	}
}

func TestFileTokenStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	store, err := NewFileTokenStore(path)
	if err != nil {
		t.Fatalf("NewFileTokenStore() error = %v", err)
	}

	pair := api.TokenPair{Access: "a", Refresh: "r"}
	if err := store.Save(pair); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded != pair {
		t.Errorf("Load() = %+v, want %+v", loaded, pair)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if cleared, _ := store.Load(); cleared.Access != "" || cleared.Refresh != "" {
		t.Errorf("Load() after Clear = %+v, want empty", cleared)
	}
}
