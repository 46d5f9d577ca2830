package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/poll_overlay/internal/eventsub"
	"github.com/dgnsrekt/poll_overlay/internal/twitch"
)

// EventSource is the upstream subscription client the relay steers.
type EventSource interface {
	UpdateBroadcasterID(id string)
	IsConnected() bool
}

// Credentials supplies the identity and token state reflected in status
// snapshots.
type Credentials interface {
	IsAuthenticated() bool
	ValidateToken(ctx context.Context) bool
	CheckPollPermissions(ctx context.Context) bool
	AccountInfo(ctx context.Context) (*twitch.AccountInfo, error)
	User() *twitch.User
}

// Relay sits between the upstream event stream and the display clients. It
// normalizes poll notifications, answers client requests, and pushes status
// updates whenever the server's situation changes.
type Relay struct {
	hub      *Hub
	events   EventSource
	creds    Credentials
	settings *SettingsStore

	simProgressDelay time.Duration
	simEndDelay      time.Duration
}

// New creates a relay over the given hub, upstream source, and credential
// provider.
func New(hub *Hub, events EventSource, creds Credentials, settings *SettingsStore) *Relay {
	return &Relay{
		hub:              hub,
		events:           events,
		creds:            creds,
		settings:         settings,
		simProgressDelay: 2 * time.Second,
		simEndDelay:      5 * time.Second,
	}
}

// HandleNotification normalizes an upstream poll notification and broadcasts
// it to every display client. Unrecognized event types are dropped.
func (r *Relay) HandleNotification(eventType string, event json.RawMessage) {
	pe, ok := normalize(eventType, event)
	if !ok {
		return
	}
	slog.Info("relaying poll event", "kind", pe.Type, "poll_id", pe.Data.ID, "clients", r.hub.ClientCount())
	r.hub.Broadcast(msgPollEvent, pe)
}

// normalize maps an upstream event type onto the display-client shape. The
// choices pass through untouched.
func normalize(eventType string, raw json.RawMessage) (PollEvent, bool) {
	var kind, status string
	switch eventType {
	case eventsub.EventPollBegin:
		kind, status = KindBegin, StatusActive
	case eventsub.EventPollProgress:
		kind, status = KindProgress, StatusActive
	case eventsub.EventPollEnd:
		kind, status = KindEnd, StatusCompleted
	default:
		slog.Debug("ignoring unrecognized event type", "event_type", eventType)
		return PollEvent{}, false
	}

	var payload struct {
		ID        string   `json:"id"`
		Title     string   `json:"title"`
		Choices   []Choice `json:"choices"`
		StartedAt string   `json:"started_at"`
		EndsAt    string   `json:"ends_at"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		slog.Error("malformed poll payload", "event_type", eventType, "error", err)
		return PollEvent{}, false
	}

	return PollEvent{
		Type: kind,
		Data: PollData{
			ID:        payload.ID,
			Title:     payload.Title,
			Choices:   payload.Choices,
			StartedAt: payload.StartedAt,
			EndsAt:    payload.EndsAt,
			Status:    status,
		},
	}, true
}

// AuthCompleted finishes an OAuth login: it resolves the account, verifies
// poll access, points the upstream subscription at the broadcaster, and
// announces the login to connected clients. When the account lacks poll
// access nothing is subscribed and hasPerms is false.
func (r *Relay) AuthCompleted(ctx context.Context) (*twitch.AccountInfo, bool, error) {
	info, err := r.creds.AccountInfo(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("resolve account: %w", err)
	}
	if info.BroadcasterID == "" {
		return nil, false, fmt.Errorf("account %q has no broadcaster id", info.User.Login)
	}

	hasPerms := r.creds.CheckPollPermissions(ctx)
	if !hasPerms {
		slog.Warn("authenticated account lacks poll access", "login", info.User.Login)
		return info, false, nil
	}

	r.events.UpdateBroadcasterID(info.BroadcasterID)
	slog.Info("authentication complete", "login", info.User.Login, "broadcaster_id", info.BroadcasterID)

	r.hub.Broadcast(msgAuthSuccess, AuthSuccess{
		User:               info.User,
		Channel:            info.Channel,
		BroadcasterID:      info.BroadcasterID,
		HasPollPermissions: true,
	})
	r.BroadcastStatus(ctx)
	return info, true, nil
}

// AuthCleared announces a disconnect to display clients.
func (r *Relay) AuthCleared() {
	r.hub.Broadcast(msgAuthDisconnected, nil)
	r.BroadcastStatus(context.Background())
}

// Status assembles the current server-status snapshot.
func (r *Relay) Status(ctx context.Context) Status {
	st := Status{
		EventSubConnected: r.events.IsConnected(),
		ConnectedClients:  r.hub.ClientCount(),
		ServerTime:        time.Now().UTC().Format(time.RFC3339),
	}

	if !r.creds.IsAuthenticated() {
		return st
	}
	if !r.creds.ValidateToken(ctx) {
		st.TokenExpired = true
		return st
	}

	st.Authenticated = true
	st.HasPollPermissions = r.creds.CheckPollPermissions(ctx)
	if info, err := r.creds.AccountInfo(ctx); err == nil {
		st.User = info.User
		st.Channel = info.Channel
		st.BroadcasterID = info.BroadcasterID
	} else {
		st.User = r.creds.User()
		slog.Warn("account lookup failed for status snapshot", "error", err)
	}
	return st
}

// SendStatus pushes a status snapshot to a single client.
func (r *Relay) SendStatus(ctx context.Context, c *Client) {
	r.hub.Send(c, msgServerStatus, r.Status(ctx))
}

// BroadcastStatus pushes a status snapshot to every client.
func (r *Relay) BroadcastStatus(ctx context.Context) {
	r.hub.Broadcast(msgServerStatus, r.Status(ctx))
}

// UpstreamChange reacts to the upstream connection going live or dropping.
func (r *Relay) UpstreamChange(connected bool) {
	slog.Info("upstream connection changed", "connected", connected)
	r.BroadcastStatus(context.Background())
}

// Settings returns the current overlay settings.
func (r *Relay) Settings() OverlaySettings {
	return r.settings.Get()
}

// UpdateSettings persists new overlay settings and pushes them to every
// connected client.
func (r *Relay) UpdateSettings(s OverlaySettings) error {
	if err := r.settings.Update(s); err != nil {
		return err
	}
	r.hub.Broadcast(msgOverlaySettings, s)
	return nil
}

// HandleClient owns a display-client connection for its lifetime. The new
// client immediately receives a status snapshot and the current overlay
// settings, then the loop serves its requests until the socket drops.
func (r *Relay) HandleClient(conn *websocket.Conn, remoteAddr, userAgent string) {
	c := r.hub.Add(conn, remoteAddr, userAgent)
	defer r.hub.Remove(c.ID)

	r.SendStatus(context.Background(), c)
	r.hub.Send(c, msgOverlaySettings, r.settings.Get())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("malformed client frame", "client_id", c.ID, "error", err)
			continue
		}
		switch msg.Type {
		case "get_status":
			r.SendStatus(context.Background(), c)
		case "ping":
			r.hub.Send(c, msgPong, map[string]int64{"timestamp": time.Now().UnixMilli()})
		case "request_poll_simulation":
			r.SimulateFor(c)
		default:
			slog.Debug("unhandled client frame", "client_id", c.ID, "type", msg.Type)
		}
	}
}

func simulatedPoll(now time.Time) PollData {
	return PollData{
		ID:    fmt.Sprintf("simulated-%d", now.UnixMilli()),
		Title: "What should we play next?",
		Choices: []Choice{
			{ID: "choice-1", Title: "Roguelike", Votes: 0},
			{ID: "choice-2", Title: "Speedrun", Votes: 0},
			{ID: "choice-3", Title: "Chat plays", Votes: 0},
		},
		StartedAt: now.UTC().Format(time.RFC3339),
		EndsAt:    now.Add(30 * time.Second).UTC().Format(time.RFC3339),
		Status:    StatusActive,
	}
}

func advanceVotes(p PollData, votes []int) PollData {
	choices := make([]Choice, len(p.Choices))
	copy(choices, p.Choices)
	for i := range choices {
		if i < len(votes) {
			choices[i].Votes = votes[i]
		}
	}
	p.Choices = choices
	return p
}

// SimulateFor plays a staged fake poll to a single client: begin now, a
// progress update shortly after, then the final result.
func (r *Relay) SimulateFor(c *Client) {
	base := simulatedPoll(time.Now())
	slog.Info("starting poll simulation", "client_id", c.ID, "poll_id", base.ID)

	r.hub.Send(c, msgPollEvent, PollEvent{Type: KindBegin, Data: base})

	time.AfterFunc(r.simProgressDelay, func() {
		r.hub.Send(c, msgPollEvent, PollEvent{Type: KindProgress, Data: advanceVotes(base, []int{12, 7, 4})})
	})
	time.AfterFunc(r.simEndDelay, func() {
		done := advanceVotes(base, []int{31, 18, 9})
		done.Status = StatusCompleted
		r.hub.Send(c, msgPollEvent, PollEvent{Type: KindEnd, Data: done})
	})
}

// SimulateBroadcast plays a staged fake poll to every connected client.
func (r *Relay) SimulateBroadcast() PollData {
	base := simulatedPoll(time.Now())
	slog.Info("broadcasting poll simulation", "poll_id", base.ID, "clients", r.hub.ClientCount())

	r.hub.Broadcast(msgPollEvent, PollEvent{Type: KindBegin, Data: base})

	time.AfterFunc(r.simProgressDelay, func() {
		r.hub.Broadcast(msgPollEvent, PollEvent{Type: KindProgress, Data: advanceVotes(base, []int{12, 7, 4})})
	})
	time.AfterFunc(r.simEndDelay, func() {
		done := advanceVotes(base, []int{31, 18, 9})
		done.Status = StatusCompleted
		r.hub.Broadcast(msgPollEvent, PollEvent{Type: KindEnd, Data: done})
	})
	return base
}
