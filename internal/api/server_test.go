package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/poll_overlay/internal/config"
	"github.com/dgnsrekt/poll_overlay/internal/relay"
	"github.com/dgnsrekt/poll_overlay/internal/twitch"
)

type stubAuth struct {
	exchangeErr   error
	cleared       bool
	exchangedCode string
}

func (s *stubAuth) AuthURL() string { return "https://id.example.test/authorize?state=abc" }
func (s *stubAuth) ExchangeCode(_ context.Context, code string) (*twitch.User, error) {
	s.exchangedCode = code
	if s.exchangeErr != nil {
		return nil, s.exchangeErr
	}
	return &twitch.User{ID: "42", Login: "teststreamer"}, nil
}
func (s *stubAuth) ClearTokens()          { s.cleared = true }
func (s *stubAuth) IsAuthenticated() bool { return false }

type stubRelay struct {
	authErr     error
	hasPerms    bool
	authCalls   int
	authCleared bool
	settings    relay.OverlaySettings
	updateErr   error
	simulated   bool
	wsHandled   chan struct{}
}

func (s *stubRelay) AuthCompleted(context.Context) (*twitch.AccountInfo, bool, error) {
	s.authCalls++
	if s.authErr != nil {
		return nil, false, s.authErr
	}
	return &twitch.AccountInfo{BroadcasterID: "42"}, s.hasPerms, nil
}
func (s *stubRelay) AuthCleared() { s.authCleared = true }
func (s *stubRelay) Status(context.Context) relay.Status {
	return relay.Status{EventSubConnected: true, ServerTime: "2026-08-30T00:00:00Z"}
}
func (s *stubRelay) Settings() relay.OverlaySettings { return s.settings }
func (s *stubRelay) UpdateSettings(next relay.OverlaySettings) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.settings = next
	return nil
}
func (s *stubRelay) SimulateBroadcast() relay.PollData {
	s.simulated = true
	return relay.PollData{ID: "simulated-1"}
}
func (s *stubRelay) HandleClient(conn *websocket.Conn, remoteAddr, userAgent string) {
	close(s.wsHandled)
	conn.Close()
}

func newTestServer(t *testing.T, env string) (http.Handler, *stubAuth, *stubRelay) {
	t.Helper()
	auth := &stubAuth{}
	rly := &stubRelay{hasPerms: true, settings: relay.DefaultSettings(), wsHandled: make(chan struct{})}
	cfg := &config.Config{Env: env}
	return NewServer(cfg, auth, rly, relay.NewHub()), auth, rly
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestServer(t, "development")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s, missing ok status", w.Body.String())
	}
}

func TestDocsDarkMode(t *testing.T) {
	h, _, _ := newTestServer(t, "development")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatal("docs missing dark theme marker")
	}
}

func TestAuthStatus(t *testing.T) {
	h, _, _ := newTestServer(t, "development")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var st relay.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !st.EventSubConnected {
		t.Error("eventsub_connected = false, want true from stub")
	}
}

func TestAuthRedirect(t *testing.T) {
	h, _, _ := newTestServer(t, "development")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/twitch", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, "https://id.example.test/authorize") {
		t.Errorf("Location = %q, want authorize URL", loc)
	}
}

func TestAuthCallbackSuccess(t *testing.T) {
	h, auth, rly := newTestServer(t, "development")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?code=good-code", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if loc := w.Header().Get("Location"); loc != "/config.html?auth=success" {
		t.Errorf("Location = %q, want success redirect", loc)
	}
	if auth.exchangedCode != "good-code" {
		t.Errorf("exchanged code = %q", auth.exchangedCode)
	}
	if rly.authCalls != 1 {
		t.Errorf("AuthCompleted calls = %d, want 1", rly.authCalls)
	}
}

func TestAuthCallbackDenied(t *testing.T) {
	h, auth, _ := newTestServer(t, "development")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil))

	loc := w.Header().Get("Location")
	if !strings.Contains(loc, "auth=error") || !strings.Contains(loc, "access_denied") {
		t.Errorf("Location = %q, want error redirect", loc)
	}
	if auth.exchangedCode != "" {
		t.Error("code exchange attempted on a denied callback")
	}
}

func TestAuthCallbackMissingCode(t *testing.T) {
	h, _, _ := newTestServer(t, "development")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))

	if loc := w.Header().Get("Location"); !strings.Contains(loc, "missing_code") {
		t.Errorf("Location = %q, want missing_code redirect", loc)
	}
}

func TestAuthCallbackExchangeFailure(t *testing.T) {
	h, auth, _ := newTestServer(t, "development")
	auth.exchangeErr = errors.New("boom")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?code=bad", nil))

	if loc := w.Header().Get("Location"); !strings.Contains(loc, "exchange_failed") {
		t.Errorf("Location = %q, want exchange_failed redirect", loc)
	}
}

func TestAuthCallbackMissingPermissions(t *testing.T) {
	h, _, rly := newTestServer(t, "development")
	rly.hasPerms = false

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?code=good-code", nil))

	if loc := w.Header().Get("Location"); !strings.Contains(loc, "missing_poll_permissions") {
		t.Errorf("Location = %q, want missing_poll_permissions redirect", loc)
	}
}

func TestAuthDisconnect(t *testing.T) {
	h, auth, rly := newTestServer(t, "development")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/disconnect", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !auth.cleared {
		t.Error("tokens not cleared")
	}
	if !rly.authCleared {
		t.Error("relay not notified of disconnect")
	}
}

func TestGetOverlaySettings(t *testing.T) {
	h, _, _ := newTestServer(t, "development")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/overlay/settings", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var s relay.OverlaySettings
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if s.Position != "bottom-right" {
		t.Errorf("position = %q, want bottom-right", s.Position)
	}
}

func TestUpdateOverlaySettings(t *testing.T) {
	h, _, rly := newTestServer(t, "development")

	body := strings.NewReader(`{"position":"top-left","accent_color":"#00ff00","auto_hide_seconds":5,"result_hold_seconds":3,"show_vote_counts":false}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/overlay/settings", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if rly.settings.Position != "top-left" {
		t.Errorf("stored position = %q, want top-left", rly.settings.Position)
	}
}

func TestUpdateOverlaySettingsRejected(t *testing.T) {
	h, _, rly := newTestServer(t, "development")
	rly.updateErr = errors.New("settings: invalid position")

	body := strings.NewReader(`{"position":"middle","accent_color":"#00ff00","auto_hide_seconds":5,"result_hold_seconds":3,"show_vote_counts":false}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/overlay/settings", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSimulatePollDevelopmentOnly(t *testing.T) {
	h, _, rly := newTestServer(t, "development")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/simulate-poll", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !rly.simulated {
		t.Error("simulation not triggered")
	}

	hProd, _, rlyProd := newTestServer(t, "production")
	w = httptest.NewRecorder()
	hProd.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/simulate-poll", nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("production status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if rlyProd.simulated {
		t.Error("simulation triggered in production")
	}
}

func TestListClients(t *testing.T) {
	h, _, _ := newTestServer(t, "development")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"count":0`) {
		t.Errorf("body = %s, want empty client list", w.Body.String())
	}
}

func TestWebSocketRouteHandsOffToRelay(t *testing.T) {
	handler, _, rly := newTestServer(t, "development")

	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	select {
	case <-rly.wsHandled:
	case <-time.After(2 * time.Second):
		t.Error("relay never received the websocket connection")
	}
}

func TestMapErr(t *testing.T) {
	if mapErr(nil) != nil {
		t.Error("mapErr(nil) != nil")
	}
	if err := mapErr(twitch.ErrNotAuthenticated); err == nil || !strings.Contains(err.Error(), "not authenticated") {
		t.Errorf("mapErr(ErrNotAuthenticated) = %v", err)
	}
}
