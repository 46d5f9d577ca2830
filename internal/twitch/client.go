package twitch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/poll_overlay/internal/config"
)

// ErrNotAuthenticated is returned when an operation needs a live access token
// and none is held.
var ErrNotAuthenticated = errors.New("twitch: not authenticated")

// Client performs the OAuth authorization-code flow against Twitch and
// resolves the broadcaster identity for the authenticated account. All methods
// are safe for concurrent use from HTTP handlers.
type Client struct {
	cfg  *config.Config
	http *http.Client

	mu            sync.Mutex
	accessToken   string
	refreshToken  string
	tokenExpires  time.Time
	user          *User
	broadcasterID string
}

// NewClient creates a credential client using the given configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// AuthURL builds the Twitch authorization URL with a fresh random state.
func (c *Client) AuthURL() string {
	params := url.Values{
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {c.cfg.RedirectURI},
		"response_type": {"code"},
		"scope":         {strings.Join(config.Scopes, " ")},
		"state":         {randomState()},
	}
	return c.cfg.AuthBaseURL + "/authorize?" + params.Encode()
}

func randomState() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback-state"
	}
	return hex.EncodeToString(buf)
}

// ExchangeCode trades an authorization code for tokens and resolves the
// authenticated user. On success the broadcaster id becomes available.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*User, error) {
	if code == "" {
		return nil, errors.New("twitch: empty authorization code")
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {c.cfg.RedirectURI},
	}

	var tok tokenResponse
	if err := c.postForm(ctx, c.cfg.AuthBaseURL+"/token", form, &tok); err != nil {
		return nil, fmt.Errorf("twitch: code exchange: %w", err)
	}

	c.mu.Lock()
	c.accessToken = tok.AccessToken
	c.refreshToken = tok.RefreshToken
	c.tokenExpires = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.mu.Unlock()

	user, err := c.fetchUserInfo(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("twitch authentication complete", "user", user.DisplayName, "broadcaster_id", user.ID)
	return user, nil
}

// fetchUserInfo resolves the authenticated user via /users and records the
// broadcaster id.
func (c *Client) fetchUserInfo(ctx context.Context) (*User, error) {
	var resp usersResponse
	if err := c.getAPI(ctx, "/users", nil, &resp); err != nil {
		return nil, fmt.Errorf("twitch: user lookup: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("twitch: user lookup returned no data")
	}

	user := resp.Data[0]
	c.mu.Lock()
	c.user = &user
	c.broadcasterID = user.ID
	c.mu.Unlock()
	return &user, nil
}

// ChannelInfo fetches channel metadata for the resolved broadcaster.
func (c *Client) ChannelInfo(ctx context.Context) (*Channel, error) {
	id := c.BroadcasterID()
	if id == "" {
		return nil, ErrNotAuthenticated
	}

	var resp channelsResponse
	if err := c.getAPI(ctx, "/channels", url.Values{"broadcaster_id": {id}}, &resp); err != nil {
		return nil, fmt.Errorf("twitch: channel lookup: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("twitch: channel lookup returned no data")
	}
	ch := resp.Data[0]
	return &ch, nil
}

// AccountInfo returns the user, channel and broadcaster id in one call. A
// channel lookup failure is tolerated; the user portion is still returned.
func (c *Client) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	c.mu.Lock()
	user := c.user
	id := c.broadcasterID
	c.mu.Unlock()
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	info := &AccountInfo{User: user, BroadcasterID: id}
	ch, err := c.ChannelInfo(ctx)
	if err != nil {
		slog.Warn("channel info unavailable", "error", err)
		return info, nil
	}
	info.Channel = ch
	return info, nil
}

// RefreshAccessToken exchanges the refresh token for a new access token.
// On failure all tokens are cleared.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return ErrNotAuthenticated
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {refresh},
		"grant_type":    {"refresh_token"},
	}

	var tok tokenResponse
	if err := c.postForm(ctx, c.cfg.AuthBaseURL+"/token", form, &tok); err != nil {
		c.ClearTokens()
		return fmt.Errorf("twitch: token refresh: %w", err)
	}

	c.mu.Lock()
	c.accessToken = tok.AccessToken
	c.refreshToken = tok.RefreshToken
	c.tokenExpires = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.mu.Unlock()

	slog.Info("twitch token refreshed")
	return nil
}

// ValidateToken reports whether the current access token is usable, refreshing
// it when expired or rejected by the validation endpoint.
func (c *Client) ValidateToken(ctx context.Context) bool {
	c.mu.Lock()
	token := c.accessToken
	expires := c.tokenExpires
	c.mu.Unlock()
	if token == "" {
		return false
	}

	if !expires.IsZero() && time.Now().After(expires) {
		slog.Info("twitch token expired, refreshing")
		return c.RefreshAccessToken(ctx) == nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AuthBaseURL+"/validate", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "OAuth "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("twitch token validation failed", "error", err)
		return c.RefreshAccessToken(ctx) == nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		slog.Info("twitch token invalid, refreshing", "status", resp.StatusCode)
		return c.RefreshAccessToken(ctx) == nil
	}

	var v validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err == nil && v.ExpiresIn > 0 {
		c.mu.Lock()
		c.tokenExpires = time.Now().Add(time.Duration(v.ExpiresIn) * time.Second)
		c.mu.Unlock()
	}
	return true
}

// CheckPollPermissions probes the Helix polls endpoint to verify the account
// can manage polls.
func (c *Client) CheckPollPermissions(ctx context.Context) bool {
	if !c.ValidateToken(ctx) {
		return false
	}
	id := c.BroadcasterID()
	if id == "" {
		return false
	}

	var probe json.RawMessage
	err := c.getAPI(ctx, "/polls", url.Values{"broadcaster_id": {id}, "first": {"1"}}, &probe)
	if err != nil {
		slog.Warn("poll permission probe failed", "error", err)
		return false
	}
	return true
}

// ClearTokens drops all credentials and the resolved identity.
func (c *Client) ClearTokens() {
	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = ""
	c.tokenExpires = time.Time{}
	c.user = nil
	c.broadcasterID = ""
	c.mu.Unlock()
	slog.Info("twitch tokens cleared")
}

// IsAuthenticated reports whether a token and resolved user are held.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken != "" && c.user != nil
}

// BroadcasterID returns the resolved broadcaster id, or "" before identity
// lookup has completed.
func (c *Client) BroadcasterID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broadcasterID
}

// User returns the resolved user, or nil.
func (c *Client) User() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, truncateBody(body))
	}
	return json.Unmarshal(body, out)
}

func (c *Client) getAPI(ctx context.Context, path string, params url.Values, out any) error {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	if token == "" {
		return ErrNotAuthenticated
	}

	endpoint := c.cfg.APIBaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", c.cfg.ClientID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, truncateBody(body))
	}
	return json.Unmarshal(body, out)
}

func truncateBody(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
