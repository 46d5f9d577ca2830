package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/poll_overlay/internal/config"
	"github.com/dgnsrekt/poll_overlay/internal/frontend"
	"github.com/dgnsrekt/poll_overlay/internal/relay"
	"github.com/dgnsrekt/poll_overlay/internal/twitch"
)

// AuthService is the OAuth surface of the credential client.
type AuthService interface {
	AuthURL() string
	ExchangeCode(ctx context.Context, code string) (*twitch.User, error)
	ClearTokens()
	IsAuthenticated() bool
}

// RelayService is the surface of the relay the HTTP layer drives.
type RelayService interface {
	AuthCompleted(ctx context.Context) (*twitch.AccountInfo, bool, error)
	AuthCleared()
	Status(ctx context.Context) relay.Status
	Settings() relay.OverlaySettings
	UpdateSettings(s relay.OverlaySettings) error
	SimulateBroadcast() relay.PollData
	HandleClient(conn *websocket.Conn, remoteAddr, userAgent string)
}

// Server bundles the dependencies behind the HTTP surface.
type Server struct {
	cfg   *config.Config
	auth  AuthService
	relay RelayService
	hub   *relay.Hub

	upgrader websocket.Upgrader
}

// NewServer builds the full HTTP handler: REST API, OAuth flow, the display
// websocket, and the embedded frontend pages.
func NewServer(cfg *config.Config, auth AuthService, rly RelayService, hub *relay.Hub) http.Handler {
	s := &Server{
		cfg:   cfg,
		auth:  auth,
		relay: rly,
		hub:   hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Overlay pages are loaded from OBS browser sources and local
			// files, so origin checks would reject legitimate clients.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	humaCfg := huma.DefaultConfig("Poll Overlay API", "1.0.0")
	humaCfg.DocsPath = ""
	api := humachi.New(router, humaCfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerAuthHandlers(api, s)
	registerOverlayHandlers(api, s)
	registerMiscHandlers(api, s)

	router.Get("/auth/twitch", s.handleAuthRedirect)
	router.Get("/auth/callback", s.handleAuthCallback)
	router.Get("/ws", s.handleWebSocket)

	router.Handle("/*", frontend.Handler())

	return router
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.relay.HandleClient(conn, r.RemoteAddr, r.UserAgent())
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, twitch.ErrNotAuthenticated) {
		return huma.Error401Unauthorized("not authenticated with Twitch")
	}
	return huma.Error500InternalServerError(err.Error())
}
