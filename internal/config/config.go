package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the poll overlay server.
type Config struct {
	// Twitch application credentials
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Twitch endpoints
	AuthBaseURL   string
	APIBaseURL    string
	EventSubWSURL string

	// HTTP server settings
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Runtime environment: "development" enables the simulation endpoints.
	Env string

	// Logging
	LogLevel string
	LogFile  string

	// Overlay display settings file (YAML)
	SettingsFile string
}

// Scopes are the OAuth scopes required to read and manage channel polls.
var Scopes = []string{"channel:read:polls", "channel:manage:polls"}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		ClientID:         os.Getenv("TWITCH_CLIENT_ID"),
		ClientSecret:     os.Getenv("TWITCH_CLIENT_SECRET"),
		RedirectURI:      os.Getenv("TWITCH_REDIRECT_URI"),
		AuthBaseURL:      getEnvOrDefault("TWITCH_AUTH_BASE_URL", "https://id.twitch.tv/oauth2"),
		APIBaseURL:       getEnvOrDefault("TWITCH_API_BASE_URL", "https://api.twitch.tv/helix"),
		EventSubWSURL:    getEnvOrDefault("TWITCH_EVENTSUB_WS_URL", "wss://eventsub.wss.twitch.tv/ws"),
		BindAddr:         getEnvOrDefault("OVERLAY_BIND_ADDR", "0.0.0.0:3000"),
		PortCandidates:   splitList(os.Getenv("OVERLAY_PORT_CANDIDATES")),
		PortAutoFallback: getEnvBoolOrDefault("OVERLAY_PORT_AUTO_FALLBACK", false),
		Env:              strings.ToLower(getEnvOrDefault("OVERLAY_ENV", "development")),
		LogLevel:         strings.ToLower(getEnvOrDefault("OVERLAY_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("OVERLAY_LOG_FILE", "logs/poll_overlay.log"),
		SettingsFile:     getEnvOrDefault("OVERLAY_SETTINGS_FILE", "overlay.yaml"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "TWITCH_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "TWITCH_CLIENT_SECRET")
	}
	if c.RedirectURI == "" {
		missing = append(missing, "TWITCH_REDIRECT_URI")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsDevelopment reports whether development-only simulation endpoints are enabled.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
