package relay

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// OverlaySettings controls how the browser overlay presents polls. The server
// holds the canonical copy; clients receive it on change as overlay_settings.
type OverlaySettings struct {
	Position          string `yaml:"position" json:"position"`
	AccentColor       string `yaml:"accent_color" json:"accent_color"`
	AutoHideSeconds   int    `yaml:"auto_hide_seconds" json:"auto_hide_seconds"`
	ResultHoldSeconds int    `yaml:"result_hold_seconds" json:"result_hold_seconds"`
	ShowVoteCounts    bool   `yaml:"show_vote_counts" json:"show_vote_counts"`
}

var validPositions = map[string]bool{
	"top-left": true, "top-right": true, "bottom-left": true,
	"bottom-right": true, "center": true,
}

// DefaultSettings returns the out-of-the-box overlay appearance.
func DefaultSettings() OverlaySettings {
	return OverlaySettings{
		Position:          "bottom-right",
		AccentColor:       "#ec4899",
		AutoHideSeconds:   10,
		ResultHoldSeconds: 8,
		ShowVoteCounts:    true,
	}
}

// Validate checks an incoming settings update.
func (s OverlaySettings) Validate() error {
	if !validPositions[s.Position] {
		return fmt.Errorf("settings: invalid position %q", s.Position)
	}
	if s.AutoHideSeconds < 0 {
		return fmt.Errorf("settings: auto_hide_seconds must be >= 0")
	}
	if s.ResultHoldSeconds < 0 {
		return fmt.Errorf("settings: result_hold_seconds must be >= 0")
	}
	return nil
}

// SettingsStore is the YAML-file-backed holder of overlay settings.
type SettingsStore struct {
	mu      sync.RWMutex
	path    string
	current OverlaySettings
}

// LoadSettings reads settings from path. A missing file yields defaults; a
// malformed file is an error.
func LoadSettings(path string) (*SettingsStore, error) {
	store := &SettingsStore{path: path, current: DefaultSettings()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("settings: %w", err)
	}

	var s OverlaySettings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	store.current = s
	return store, nil
}

// Get returns the current settings.
func (st *SettingsStore) Get() OverlaySettings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Update validates, persists, and applies new settings.
func (st *SettingsStore) Update(s OverlaySettings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if err := os.WriteFile(st.path, data, 0o644); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	st.current = s
	return nil
}
