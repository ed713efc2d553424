/*
Package lobbysim is a self-contained lobby backend used for local development
and integration tests.

This file defines the routing table: CORS, request logging, identity
extraction, per-IP throttling on the auth endpoints, and the REST plus
websocket routes the client contract names.
*/
package lobbysim

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"lobbyhub/internal/configs"
	"lobbyhub/internal/pkg/auth/jwt"
	"lobbyhub/internal/pkg/limiter"
	"lobbyhub/internal/pkg/logx"
	"lobbyhub/internal/pkg/resp"
)

const (
	AuthRate  = 1.0
	AuthBurst = 5
)

// NewDeps assembles the application dependencies for one server instance.
func NewDeps(cfg *configs.SimConfig) *AppDeps {
	return &AppDeps{
		Store:  NewStore(),
		Hub:    NewHub(),
		Config: cfg,
	}
}

// Router builds the HTTP routing table.
func Router(deps *AppDeps) http.Handler {
	authLimiter := limiter.NewIPRateLimiter(rate.Limit(AuthRate), AuthBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin header.
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]string{
			"status":  "ok",
			"service": "LobbyHub Sim",
		})
	})

	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		apiRouter.Route("/auth", func(auth chi.Router) {
			auth.Use(authLimiter.Middleware)
			auth.Post("/register/", HandleRegister(deps))
			auth.Post("/login/", HandleLogin(deps))
			auth.Post("/refresh/", HandleRefresh(deps))
		})

		apiRouter.Get("/me/", HandleMe(deps))
		apiRouter.Patch("/me/", HandleUpdateMe(deps))

		apiRouter.Route("/lobbies", func(lobbies chi.Router) {
			lobbies.Get("/", HandleListLobbies(deps))
			lobbies.Post("/", HandleCreateLobby(deps))

			lobbies.Route("/{lobbyID}", func(lobby chi.Router) {
				lobby.Get("/", HandleLobbyDetails(deps))
				lobby.Patch("/", HandleUpdateLobby(deps))

				lobby.Post("/join/", HandleJoinLobby(deps))
				lobby.Post("/leave/", HandleLeaveLobby(deps))
				lobby.Post("/start/", HandleStartGame(deps))
				lobby.Post("/close/", HandleCloseLobby(deps))

				lobby.Post("/kick/", HandleModerate(deps, "kick"))
				lobby.Post("/ban/", HandleModerate(deps, "ban"))
				lobby.Post("/unban/", HandleModerate(deps, "unban"))
				lobby.Post("/add_moderator/", HandleModerate(deps, "add_moderator"))
				lobby.Post("/remove_moderator/", HandleModerate(deps, "remove_moderator"))
				lobby.Post("/transfer_ownership/", HandleModerate(deps, "transfer_ownership"))

				lobby.Get("/messages/", HandleListMessages(deps))
				lobby.Post("/messages/", HandleSendMessage(deps))
				lobby.Delete("/messages/{messageID}/", HandleDeleteMessage(deps))
			})
		})
	})

	r.Get("/ws/lobby/{lobbyID}/", HandleWebSocket(wsUpgrader, deps))

	return r
}
