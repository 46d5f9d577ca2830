package relay

import "github.com/dgnsrekt/poll_overlay/internal/twitch"

// Poll event kinds broadcast to display clients.
const (
	KindBegin    = "poll_begin"
	KindProgress = "poll_progress"
	KindEnd      = "poll_end"
)

// Poll statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Message types on the display-client channel.
const (
	msgPollEvent        = "poll_event"
	msgServerStatus     = "server_status"
	msgOverlaySettings  = "overlay_settings"
	msgAuthSuccess      = "auth_success"
	msgAuthDisconnected = "auth_disconnected"
	msgPong             = "pong"
)

// Choice is one poll option with its running vote count.
type Choice struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Votes int    `json:"votes"`
}

// PollData is the normalized payload of a poll event.
type PollData struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Choices   []Choice `json:"choices"`
	StartedAt string   `json:"started_at"`
	EndsAt    string   `json:"ends_at"`
	Status    string   `json:"status"`
}

// PollEvent is the normalized unit broadcast to display clients.
type PollEvent struct {
	Type string   `json:"type"`
	Data PollData `json:"data"`
}

// Status is the server-status snapshot pushed to display clients.
type Status struct {
	Authenticated      bool            `json:"authenticated"`
	User               *twitch.User    `json:"user,omitempty"`
	Channel            *twitch.Channel `json:"channel,omitempty"`
	BroadcasterID      string          `json:"broadcaster_id,omitempty"`
	EventSubConnected  bool            `json:"eventsub_connected"`
	HasPollPermissions bool            `json:"has_poll_permissions"`
	TokenExpired       bool            `json:"token_expired"`
	ConnectedClients   int             `json:"connected_clients"`
	ServerTime         string          `json:"server_time"`
}

// serverMessage is the envelope for every server→client frame.
type serverMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// clientMessage is the envelope for client→server frames.
type clientMessage struct {
	Type string `json:"type"`
}

// AuthSuccess is the payload of the auth_success broadcast.
type AuthSuccess struct {
	User               *twitch.User    `json:"user"`
	Channel            *twitch.Channel `json:"channel,omitempty"`
	BroadcasterID      string          `json:"broadcaster_id"`
	HasPollPermissions bool            `json:"has_poll_permissions"`
}
