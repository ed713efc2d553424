package lobbysim

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"lobbyhub/internal/api"
	"lobbyhub/internal/app/session"
	"lobbyhub/internal/configs"
	"lobbyhub/internal/pkg/errs"
	"lobbyhub/internal/transport"

	"net/http/httptest"
)

func newTestServer(t *testing.T) (*AppDeps, *httptest.Server) {
	t.Helper()

	deps := NewDeps(&configs.SimConfig{
		Environment: "development",
		JWTSecret:   "test-secret",
	})
	server := httptest.NewServer(Router(deps))
	t.Cleanup(server.Close)

	return deps, server
}

// loginUser seeds an account directly in the store and authenticates a fresh
// client against the running server.
func loginUser(t *testing.T, deps *AppDeps, serverURL, username string, premium bool) (*api.Client, *session.Manager, api.User) {
	t.Helper()

	user, customErr := deps.Store.CreateUser(username, username+"@example.com", "pw", premium)
	if customErr != nil {
		t.Fatalf("CreateUser(%s) error = %v", username, customErr)
	}

	rest := api.NewClient(serverURL, nil)
	manager := session.NewManager(rest, session.NewMemoryTokenStore())
	rest.SetAuth(manager)

	if _, err := manager.Login(context.Background(), username, "pw"); err != nil {
		t.Fatalf("Login(%s) error = %v", username, err)
	}
	return rest, manager, user
}

// wsCollector records events and statuses from one channel.
type wsCollector struct {
	mu       sync.Mutex
	events   []transport.Event
	statuses []transport.Status
}

func (c *wsCollector) attach(ch transport.Channel) {
	ch.OnEvent(func(ev transport.Event) {
		c.mu.Lock()
		c.events = append(c.events, ev)
		c.mu.Unlock()
	})
	ch.OnStatus(func(st transport.Status) {
		c.mu.Lock()
		c.statuses = append(c.statuses, st)
		c.mu.Unlock()
	})
}

func (c *wsCollector) snapshot() []transport.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.Event(nil), c.events...)
}

func (c *wsCollector) waitForEvent(t *testing.T, match func(transport.Event) bool, what string) transport.Event {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range c.snapshot() {
			if match(ev) {
				return ev
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; saw %+v", what, c.snapshot())
	return transport.Event{}
}

func wsBaseURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http")
}

func openChannel(t *testing.T, serverURL string, lobbyID int64, token string) (*transport.WSChannel, *wsCollector) {
	t.Helper()

	channel := transport.NewWSChannel(wsBaseURL(serverURL), transport.WithBaseDelay(20*time.Millisecond))
	collector := &wsCollector{}
	collector.attach(channel)

	if err := channel.Connect(context.Background(), lobbyID, token); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(channel.Disconnect)

	return channel, collector
}

func TestRegisterLoginRefreshRoundTrip(t *testing.T) {
	_, server := newTestServer(t)
	ctx := context.Background()

	rest := api.NewClient(server.URL, nil)
	manager := session.NewManager(rest, session.NewMemoryTokenStore())
	rest.SetAuth(manager)

	registered, err := rest.Register(ctx, "ada", "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if registered.Username != "ada" {
		t.Errorf("Username = %q", registered.Username)
	}

	if _, err := manager.Login(ctx, "ada", "correct horse"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	me, err := rest.Me(ctx)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if me.ID != registered.ID {
		t.Errorf("Me().ID = %d, want %d", me.ID, registered.ID)
	}

	// A second username claim is refused.
	_, err = rest.Register(ctx, "ada", "other@example.com", "pw")
	if ce, ok := err.(*errs.CustomError); !ok || ce.Message != "Username is already taken." {
		t.Errorf("duplicate Register() error = %v, want the taken-username reason", err)
	}

	// Profile updates flow through and republish the identity.
	updated, err := manager.UpdateProfile(ctx, "ada@new.example.com")
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.Email != "ada@new.example.com" {
		t.Errorf("Email = %q", updated.Email)
	}
	if id := manager.Identity(); id == nil || id.Email != "ada@new.example.com" {
		t.Errorf("Identity() = %+v, want republished email", id)
	}

	// The refresh grant mints a new access token.
	before := manager.AccessToken()
	if err := manager.RefreshAccessToken(ctx); err != nil {
		t.Fatalf("RefreshAccessToken() error = %v", err)
	}
	if manager.AccessToken() == "" || manager.AccessToken() == before {
		t.Error("refresh did not replace the access token")
	}
}

func TestAnonymousRequestsAreRejected(t *testing.T) {
	_, server := newTestServer(t)

	rest := api.NewClient(server.URL, nil)

	_, err := rest.Me(context.Background())
	ce, ok := err.(*errs.CustomError)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if ce.Code != errs.ErrUnauthorized {
		t.Errorf("Code = %d, want %d", ce.Code, errs.ErrUnauthorized)
	}
	if ce.Message != "Authentication credentials were not provided." {
		t.Errorf("Message = %q", ce.Message)
	}
}

func TestAuthEndpointsAreRateLimited(t *testing.T) {
	deps, server := newTestServer(t)
	ctx := context.Background()

	if _, err := deps.Store.CreateUser("ada", "ada@example.com", "pw", false); err != nil {
		t.Fatal(err)
	}

	rest := api.NewClient(server.URL, nil)

	var limited bool
	for i := 0; i < AuthBurst+2; i++ {
		_, err := rest.Login(ctx, "ada", "pw")
		if errs.Is(err, errs.ErrRateLimited) {
			limited = true
			break
		}
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
	}
	if !limited {
		t.Errorf("no rate limit after %d rapid auth calls", AuthBurst+2)
	}
}

func TestLobbyLifecycleOverHTTP(t *testing.T) {
	deps, server := newTestServer(t)
	ctx := context.Background()

	owner, _, _ := loginUser(t, deps, server.URL, "owner", true)
	guest, _, _ := loginUser(t, deps, server.URL, "guest", false)

	created, err := owner.CreateLobby(ctx, api.CreateLobbyInput{Name: "Night Shift", IsPublic: true, MaxParticipants: 4})
	if err != nil {
		t.Fatalf("CreateLobby() error = %v", err)
	}

	// The guest lacks the premium entitlement.
	if _, err := guest.CreateLobby(ctx, api.CreateLobbyInput{Name: "Nope", MaxParticipants: 4}); !errs.Is(err, errs.ErrPermissionDenied) {
		t.Errorf("non-premium CreateLobby() error = %v, want permission denied", err)
	}

	page, err := guest.Lobbies(ctx, api.LobbyFilter{Search: "night"})
	if err != nil {
		t.Fatalf("Lobbies() error = %v", err)
	}
	if page.Count != 1 || len(page.Results) != 1 {
		t.Fatalf("directory = %+v, want the one matching lobby", page)
	}

	if err := guest.JoinLobby(ctx, created.ID); err != nil {
		t.Fatalf("JoinLobby() error = %v", err)
	}

	details, err := guest.LobbyDetails(ctx, created.ID)
	if err != nil {
		t.Fatalf("LobbyDetails() error = %v", err)
	}
	if len(details.Participants) != 2 {
		t.Fatalf("roster = %d, want 2", len(details.Participants))
	}
	if details.CurrentParticipants != 2 {
		t.Errorf("CurrentParticipants = %d, want 2", details.CurrentParticipants)
	}

	if err := guest.LeaveLobby(ctx, created.ID); err != nil {
		t.Fatalf("LeaveLobby() error = %v", err)
	}
	details, err = owner.LobbyDetails(ctx, created.ID)
	if err != nil {
		t.Fatalf("LobbyDetails() error = %v", err)
	}
	if len(details.Participants) != 1 {
		t.Errorf("roster after leave = %d, want 1", len(details.Participants))
	}
}

func TestRestMessageIsBroadcastToWebSocket(t *testing.T) {
	deps, server := newTestServer(t)
	ctx := context.Background()

	owner, _, _ := loginUser(t, deps, server.URL, "owner", true)
	guestRest, guestSession, guestUser := loginUser(t, deps, server.URL, "guest", false)

	created, err := owner.CreateLobby(ctx, api.CreateLobbyInput{Name: "Room", IsPublic: true, MaxParticipants: 4})
	if err != nil {
		t.Fatalf("CreateLobby() error = %v", err)
	}
	if err := guestRest.JoinLobby(ctx, created.ID); err != nil {
		t.Fatalf("JoinLobby() error = %v", err)
	}

	_, collector := openChannel(t, server.URL, created.ID, guestSession.AccessToken())

	// The new link first learns of its own arrival.
	collector.waitForEvent(t, func(ev transport.Event) bool {
		return ev.Type == transport.EventUserJoined && ev.User != nil && ev.User.ID == guestUser.ID
	}, "own user_joined")

	sent, err := owner.SendMessage(ctx, created.ID, "hello over REST")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	got := collector.waitForEvent(t, func(ev transport.Event) bool {
		return ev.Type == transport.EventChatMessage && ev.Message != nil && ev.Message.ID == sent.ID
	}, "broadcast chat_message")
	if got.Message.Content != "hello over REST" {
		t.Errorf("Content = %q", got.Message.Content)
	}
}

func TestWebSocketSendPersistsAndEchoes(t *testing.T) {
	deps, server := newTestServer(t)
	ctx := context.Background()

	owner, _, _ := loginUser(t, deps, server.URL, "owner", true)
	guestRest, guestSession, _ := loginUser(t, deps, server.URL, "guest", false)

	created, err := owner.CreateLobby(ctx, api.CreateLobbyInput{Name: "Room", IsPublic: true, MaxParticipants: 4})
	if err != nil {
		t.Fatalf("CreateLobby() error = %v", err)
	}
	if err := guestRest.JoinLobby(ctx, created.ID); err != nil {
		t.Fatalf("JoinLobby() error = %v", err)
	}

	channel, collector := openChannel(t, server.URL, created.ID, guestSession.AccessToken())

	channel.Send(transport.Event{Type: transport.EventSendMessage, Content: "hello over ws"})

	echo := collector.waitForEvent(t, func(ev transport.Event) bool {
		return ev.Type == transport.EventChatMessage && ev.Message != nil && ev.Message.Content == "hello over ws"
	}, "chat_message echo")
	if echo.Message.Sender.Username != "guest" {
		t.Errorf("Sender = %q, want guest", echo.Message.Sender.Username)
	}

	// The realtime write landed in the durable log too.
	page, err := owner.Messages(ctx, created.ID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(page.Results) != 1 || page.Results[0].Content != "hello over ws" {
		t.Errorf("durable log = %+v, want the ws message persisted", page.Results)
	}
}

func TestPresenceIsBroadcastOnConnectAndDisconnect(t *testing.T) {
	deps, server := newTestServer(t)
	ctx := context.Background()

	owner, ownerSession, _ := loginUser(t, deps, server.URL, "owner", true)
	guestRest, guestSession, guestUser := loginUser(t, deps, server.URL, "guest", false)

	created, err := owner.CreateLobby(ctx, api.CreateLobbyInput{Name: "Room", IsPublic: true, MaxParticipants: 4})
	if err != nil {
		t.Fatalf("CreateLobby() error = %v", err)
	}
	if err := guestRest.JoinLobby(ctx, created.ID); err != nil {
		t.Fatalf("JoinLobby() error = %v", err)
	}

	_, ownerCollector := openChannel(t, server.URL, created.ID, ownerSession.AccessToken())

	guestChannel, _ := openChannel(t, server.URL, created.ID, guestSession.AccessToken())

	ownerCollector.waitForEvent(t, func(ev transport.Event) bool {
		return ev.Type == transport.EventUserJoined && ev.User != nil && ev.User.ID == guestUser.ID
	}, "guest user_joined")

	guestChannel.Disconnect()

	ownerCollector.waitForEvent(t, func(ev transport.Event) bool {
		return ev.Type == transport.EventUserLeft && ev.User != nil && ev.User.ID == guestUser.ID
	}, "guest user_left")
}

func TestKickClosesTheTargetLink(t *testing.T) {
	deps, server := newTestServer(t)
	ctx := context.Background()

	owner, _, _ := loginUser(t, deps, server.URL, "owner", true)
	guestRest, guestSession, guestUser := loginUser(t, deps, server.URL, "guest", false)

	created, err := owner.CreateLobby(ctx, api.CreateLobbyInput{Name: "Room", IsPublic: true, MaxParticipants: 4})
	if err != nil {
		t.Fatalf("CreateLobby() error = %v", err)
	}
	if err := guestRest.JoinLobby(ctx, created.ID); err != nil {
		t.Fatalf("JoinLobby() error = %v", err)
	}

	channel, _ := openChannel(t, server.URL, created.ID, guestSession.AccessToken())

	if err := owner.Moderate(ctx, created.ID, "kick", guestUser.ID, "being kicked"); err != nil {
		t.Fatalf("Moderate(kick) error = %v", err)
	}

	// The server sends a normal closure, which the channel treats as final.
	deadline := time.Now().Add(3 * time.Second)
	for channel.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if channel.IsConnected() {
		t.Fatal("kicked link still connected")
	}
}

func TestBannedUserCannotAttach(t *testing.T) {
	deps, server := newTestServer(t)
	ctx := context.Background()

	owner, _, _ := loginUser(t, deps, server.URL, "owner", true)
	guestRest, guestSession, guestUser := loginUser(t, deps, server.URL, "guest", false)

	created, err := owner.CreateLobby(ctx, api.CreateLobbyInput{Name: "Room", IsPublic: true, MaxParticipants: 4})
	if err != nil {
		t.Fatalf("CreateLobby() error = %v", err)
	}
	if err := guestRest.JoinLobby(ctx, created.ID); err != nil {
		t.Fatalf("JoinLobby() error = %v", err)
	}

	if err := owner.Moderate(ctx, created.ID, "ban", guestUser.ID, "spamming"); err != nil {
		t.Fatalf("Moderate(ban) error = %v", err)
	}

	channel := transport.NewWSChannel(wsBaseURL(server.URL))
	err = channel.Connect(ctx, created.ID, guestSession.AccessToken())
	if !errs.Is(err, errs.ErrTransportUnavailable) {
		t.Fatalf("Connect() error = %v, want code %d", err, errs.ErrTransportUnavailable)
	}

	// REST access is refused too: banned members cannot rejoin.
	if err := guestRest.JoinLobby(ctx, created.ID); !errs.Is(err, errs.ErrPermissionDenied) {
		t.Errorf("JoinLobby() after ban error = %v, want permission denied", err)
	}
}

func TestMessageTombstoneOverHTTP(t *testing.T) {
	deps, server := newTestServer(t)
	ctx := context.Background()

	owner, _, _ := loginUser(t, deps, server.URL, "owner", true)

	created, err := owner.CreateLobby(ctx, api.CreateLobbyInput{Name: "Room", IsPublic: true, MaxParticipants: 4})
	if err != nil {
		t.Fatalf("CreateLobby() error = %v", err)
	}

	first, err := owner.SendMessage(ctx, created.ID, "keep me")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	second, err := owner.SendMessage(ctx, created.ID, "delete me")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if err := owner.DeleteMessage(ctx, created.ID, second.ID); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}

	page, err := owner.Messages(ctx, created.ID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(page.Results) != 2 {
		t.Fatalf("log = %d messages, want 2 with a tombstone", len(page.Results))
	}
	if page.Results[0].ID != first.ID || page.Results[0].IsDeleted {
		t.Errorf("first message = %+v, want untouched", page.Results[0])
	}
	if !page.Results[1].IsDeleted || page.Results[1].Content != "" {
		t.Errorf("second message = %+v, want tombstoned", page.Results[1])
	}

	// Blank sends are refused server-side as well.
	if _, err := owner.SendMessage(ctx, created.ID, "   "); !errs.Is(err, errs.ErrInvalidParams) {
		t.Errorf("blank SendMessage() error = %v, want invalid params", err)
	}
}
