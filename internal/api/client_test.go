package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"lobbyhub/internal/pkg/errs"
)

// fakeAuth is a scripted AuthSource.
type fakeAuth struct {
	token      atomic.Value
	refreshes  atomic.Int64
	refreshErr error
}

func newFakeAuth(token string) *fakeAuth {
	f := &fakeAuth{}
	f.token.Store(token)
	return f
}

func (f *fakeAuth) AccessToken() string {
	return f.token.Load().(string)
}

func (f *fakeAuth) RefreshAccessToken(ctx context.Context) error {
	f.refreshes.Add(1)
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.token.Store("fresh-token")
	return nil
}

func TestUnauthorizedTriggersSingleRefreshAndRetry(t *testing.T) {
	var calls atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Token expired"})
			return
		}
		json.NewEncoder(w).Encode(User{ID: 7, Username: "ada"})
	}))
	defer server.Close()

	auth := newFakeAuth("stale-token")
	client := NewClient(server.URL, nil)
	client.SetAuth(auth)

	user, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if user.ID != 7 {
		t.Errorf("user.ID = %d, want 7", user.ID)
	}
	if got := auth.refreshes.Load(); got != 1 {
		t.Errorf("refreshes = %d, want 1", got)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("backend calls = %d, want 2 (original plus one retry)", got)
	}
}

func TestUnauthorizedRetriesAtMostOnce(t *testing.T) {
	var calls atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "still no"})
	}))
	defer server.Close()

	auth := newFakeAuth("stale-token")
	client := NewClient(server.URL, nil)
	client.SetAuth(auth)

	_, err := client.Me(context.Background())
	if !errs.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("Me() error = %v, want code %d", err, errs.ErrUnauthorized)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("backend calls = %d, want exactly 2", got)
	}
}

func TestRefreshFailureSurfacesWithoutRetry(t *testing.T) {
	var calls atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	auth := newFakeAuth("stale-token")
	auth.refreshErr = errs.NewError(errs.ErrSessionExpired)
	client := NewClient(server.URL, nil)
	client.SetAuth(auth)

	_, err := client.Me(context.Background())
	if !errs.Is(err, errs.ErrSessionExpired) {
		t.Fatalf("Me() error = %v, want code %d", err, errs.ErrSessionExpired)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("backend calls = %d, want 1 (no retry after failed refresh)", got)
	}
}

func TestErrorEnvelopeReasonIsSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"detail": "You are banned from this lobby."})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	client.SetAuth(newFakeAuth("token"))

	err := client.JoinLobby(context.Background(), 3)
	ce, ok := err.(*errs.CustomError)
	if !ok {
		t.Fatalf("error type = %T, want *errs.CustomError", err)
	}
	if ce.Code != errs.ErrPermissionDenied {
		t.Errorf("Code = %d, want %d", ce.Code, errs.ErrPermissionDenied)
	}
	if ce.Message != "You are banned from this lobby." {
		t.Errorf("Message = %q, want server reason verbatim", ce.Message)
	}
}

func TestMessageKeyIsEquivalentToDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "This lobby is full."})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	client.SetAuth(newFakeAuth("token"))

	err := client.JoinLobby(context.Background(), 3)
	ce, ok := err.(*errs.CustomError)
	if !ok {
		t.Fatalf("error type = %T, want *errs.CustomError", err)
	}
	if ce.Message != "This lobby is full." {
		t.Errorf("Message = %q", ce.Message)
	}
}

func TestPathsCarryTrailingSlashes(t *testing.T) {
	var paths []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	client.SetAuth(newFakeAuth("token"))

	ctx := context.Background()
	client.JoinLobby(ctx, 12)
	client.Messages(ctx, 12)
	client.DeleteMessage(ctx, 12, 34)

	want := []string{"/api/lobbies/12/join/", "/api/lobbies/12/messages/", "/api/lobbies/12/messages/34/"}
	for i, path := range want {
		if paths[i] != path {
			t.Errorf("path[%d] = %q, want %q", i, paths[i], path)
		}
	}
}

func TestNetworkFailureMapsToRequestFailed(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", nil)
	client.SetAuth(newFakeAuth(""))

	_, err := client.Me(context.Background())
	if !errs.Is(err, errs.ErrRequestFailed) {
		t.Fatalf("Me() error = %v, want code %d", err, errs.ErrRequestFailed)
	}
}
