package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/poll_overlay/internal/relay"
)

// handleAuthRedirect sends the browser to the Twitch consent page.
func (s *Server) handleAuthRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.auth.AuthURL(), http.StatusFound)
}

// handleAuthCallback completes the authorization-code flow. Every outcome
// lands back on the config page with a query-string verdict so the page can
// tell the user what happened.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		slog.Warn("twitch authorization denied", "error", errCode, "description", q.Get("error_description"))
		redirectConfig(w, r, "error", errCode)
		return
	}

	code := q.Get("code")
	if code == "" {
		redirectConfig(w, r, "error", "missing_code")
		return
	}

	if _, err := s.auth.ExchangeCode(r.Context(), code); err != nil {
		slog.Error("code exchange failed", "error", err)
		redirectConfig(w, r, "error", "exchange_failed")
		return
	}

	_, hasPerms, err := s.relay.AuthCompleted(r.Context())
	if err != nil {
		slog.Error("post-auth account resolution failed", "error", err)
		redirectConfig(w, r, "error", "account_lookup_failed")
		return
	}
	if !hasPerms {
		redirectConfig(w, r, "error", "missing_poll_permissions")
		return
	}

	redirectConfig(w, r, "success", "")
}

func redirectConfig(w http.ResponseWriter, r *http.Request, outcome, reason string) {
	v := url.Values{"auth": {outcome}}
	if reason != "" {
		v.Set("reason", reason)
	}
	http.Redirect(w, r, "/config.html?"+v.Encode(), http.StatusFound)
}

func registerAuthHandlers(api huma.API, s *Server) {
	type authStatusOutput struct {
		Body relay.Status
	}
	huma.Register(api, huma.Operation{OperationID: "auth-status", Method: http.MethodGet, Path: "/api/v1/auth/status", Summary: "Current authentication and connection status", Tags: []string{"Auth"}},
		func(ctx context.Context, input *struct{}) (*authStatusOutput, error) {
			out := &authStatusOutput{}
			out.Body = s.relay.Status(ctx)
			return out, nil
		})

	type disconnectOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "auth-disconnect", Method: http.MethodPost, Path: "/api/v1/auth/disconnect", Summary: "Drop Twitch credentials", Tags: []string{"Auth"}},
		func(ctx context.Context, input *struct{}) (*disconnectOutput, error) {
			s.auth.ClearTokens()
			s.relay.AuthCleared()
			out := &disconnectOutput{}
			out.Body.Status = "disconnected"
			return out, nil
		})
}
