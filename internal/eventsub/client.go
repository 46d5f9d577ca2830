package eventsub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// State is the connection lifecycle state of the Client.
type State int

const (
	// StateDisconnected covers both the initial state and the terminal state
	// after reconnect attempts are exhausted.
	StateDisconnected State = iota
	StateConnecting
	StateLive
	StateBackoff
	// StateClosed is entered by a deliberate Close and never left.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

const defaultMaxAttempts = 5

// Client maintains the outbound WebSocket connection to the EventSub endpoint.
// It owns session lifecycle, subscription state, and reconnection with bounded
// exponential backoff. Incoming messages are processed in receipt order on a
// single read loop goroutine.
type Client struct {
	endpoint string

	notify func(eventType string, event json.RawMessage)
	onLive func(connected bool)

	mu           sync.Mutex
	state        State
	conn         net.Conn
	sessionID    string
	pendingID    string
	subscribedID string
	attempts     int
	gen          int
	timer        *time.Timer

	writeMu sync.Mutex

	baseDelay   time.Duration
	maxAttempts int
}

// NewClient creates an EventSub client for the given endpoint URL.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:    endpoint,
		baseDelay:   time.Second,
		maxAttempts: defaultMaxAttempts,
	}
}

// OnNotification registers the handler invoked for each notification message,
// in receipt order. Must be called before Connect.
func (c *Client) OnNotification(fn func(eventType string, event json.RawMessage)) {
	c.notify = fn
}

// OnConnectionChange registers the handler invoked when upstream liveness
// changes. Must be called before Connect.
func (c *Client) OnConnectionChange(fn func(connected bool)) {
	c.onLive = fn
}

// Connect opens the connection to the configured endpoint. A dial failure
// triggers the reconnection procedure; errors are contained and surfaced only
// through IsConnected.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	endpoint := c.endpoint
	c.mu.Unlock()

	c.dial(ctx, endpoint)
}

func (c *Client) dial(ctx context.Context, url string) {
	slog.Info("connecting to eventsub", "url", url)

	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		slog.Error("eventsub dial failed", "url", url, "error", err)
		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			return
		}
		c.state = StateDisconnected
		c.mu.Unlock()
		c.scheduleReconnect("")
		return
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateLive
	c.attempts = 0
	c.gen++
	gen := c.gen
	// Subscriptions do not survive the previous session; re-arm the last
	// subscribed broadcaster so the next welcome re-subscribes it.
	if c.pendingID == "" && c.subscribedID != "" {
		c.pendingID = c.subscribedID
	}
	c.sessionID = ""
	c.subscribedID = ""
	c.mu.Unlock()

	slog.Info("connected to eventsub")
	c.notifyLiveness(true)
	go c.readLoop(conn, gen)
}

func (c *Client) readLoop(conn net.Conn, gen int) {
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			c.handleConnLost(gen, err)
			return
		}
		c.handleIncoming(data)
	}
}

func (c *Client) handleConnLost(gen int, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.conn = nil
	c.sessionID = ""
	c.mu.Unlock()

	slog.Warn("eventsub connection lost", "error", err)
	c.notifyLiveness(false)
	c.scheduleReconnect("")
}

// handleIncoming dispatches one inbound message by its type tag. Malformed
// payloads are logged and dropped; they never affect connection liveness.
func (c *Client) handleIncoming(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Error("malformed eventsub message", "error", err)
		return
	}

	switch env.Metadata.MessageType {
	case "session_welcome":
		c.handleWelcome(env.Payload)
	case "session_keepalive":
		// Connection is alive; nothing to do.
	case "notification":
		c.handleNotification(env.Payload)
	case "session_reconnect":
		c.handleSessionReconnect(env.Payload)
	default:
		slog.Debug("unhandled eventsub message", "type", env.Metadata.MessageType)
	}
}

func (c *Client) handleWelcome(payload json.RawMessage) {
	var p sessionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Error("malformed session welcome", "error", err)
		return
	}

	c.mu.Lock()
	c.sessionID = p.Session.ID
	pending := c.pendingID
	c.pendingID = ""
	c.mu.Unlock()

	slog.Info("eventsub session established", "session_id", p.Session.ID)

	if pending != "" {
		slog.Info("subscribing with pending broadcaster id", "broadcaster_id", pending)
		c.Subscribe(pending)
	}
}

func (c *Client) handleNotification(payload json.RawMessage) {
	var p notificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Error("malformed notification", "error", err)
		return
	}

	slog.Info("eventsub notification received", "event_type", p.Subscription.Type)
	if c.notify != nil {
		c.notify(p.Subscription.Type, p.Event)
	}
}

func (c *Client) handleSessionReconnect(payload json.RawMessage) {
	var p sessionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Error("malformed session reconnect", "error", err)
		return
	}

	slog.Info("eventsub reconnect requested", "reconnect_url", p.Session.ReconnectURL)

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.sessionID = ""
	c.state = StateDisconnected
	c.gen++ // invalidate the current read loop before closing its conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.notifyLiveness(false)
	c.scheduleReconnect(p.Session.ReconnectURL)
}

// Subscribe sends one subscription request per poll event type for the given
// broadcaster, each bound to the current session id. Without a live session it
// is a no-op; the caller is responsible for holding the id as pending. Each
// request is independent: a send failure is logged and does not block the rest.
func (c *Client) Subscribe(broadcasterID string) {
	if broadcasterID == "" {
		return
	}

	c.mu.Lock()
	sessionID := c.sessionID
	conn := c.conn
	c.mu.Unlock()
	if sessionID == "" || conn == nil {
		return
	}

	slog.Info("subscribing to poll events", "broadcaster_id", broadcasterID, "session_id", sessionID)

	for _, eventType := range pollEventTypes {
		req := newSubscriptionRequest(eventType, broadcasterID, sessionID)
		data, err := json.Marshal(req)
		if err != nil {
			slog.Error("subscription marshal failed", "event_type", eventType, "error", err)
			continue
		}
		if err := c.write(conn, data); err != nil {
			slog.Error("subscription send failed", "event_type", eventType, "error", err)
			continue
		}
		slog.Debug("subscription sent", "event_type", eventType)
	}

	c.mu.Lock()
	c.subscribedID = broadcasterID
	c.mu.Unlock()
}

func (c *Client) write(conn net.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientText(conn, data)
}

// UpdateBroadcasterID is the single entry point for a newly-resolved or
// changed broadcaster id. With a live session it subscribes immediately;
// otherwise the id is held pending, overwriting any previous pending value,
// and consumed on the next session welcome.
func (c *Client) UpdateBroadcasterID(id string) {
	if id == "" {
		slog.Error("broadcaster id update with empty id")
		return
	}

	c.mu.Lock()
	// Held unconditionally: if the connection drops between this check and
	// the subscribe below, the subscribe no-ops and the next session welcome
	// consumes the held id instead.
	c.pendingID = id
	live := c.state == StateLive && c.sessionID != ""
	c.mu.Unlock()

	if live {
		c.Subscribe(id)
	} else {
		slog.Info("broadcaster id held until session welcome", "broadcaster_id", id)
	}
}

// retryDelay is the backoff before the given 1-based attempt: the base delay
// doubled once per prior failure.
func (c *Client) retryDelay(attempt int) time.Duration {
	return c.baseDelay << (attempt - 1)
}

// scheduleReconnect arms a backoff timer for the next attempt. After
// maxAttempts failures the client stays disconnected with no automatic
// recovery. The timer callback re-checks state and generation so a retry
// never fires after a deliberate Close.
func (c *Client) scheduleReconnect(reconnectURL string) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxAttempts {
		c.state = StateDisconnected
		c.mu.Unlock()
		slog.Error("eventsub reconnect attempts exhausted", "max_attempts", c.maxAttempts)
		return
	}
	c.attempts++
	attempt := c.attempts
	delay := c.retryDelay(attempt)
	c.state = StateBackoff
	gen := c.gen

	target := c.endpoint
	if reconnectURL != "" {
		target = reconnectURL
	}

	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.state != StateBackoff || c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()
		c.dial(context.Background(), target)
	})
	c.mu.Unlock()

	slog.Info("eventsub reconnect scheduled",
		"attempt", attempt, "max_attempts", c.maxAttempts, "delay", delay)
}

// Close terminates the connection deliberately. It cancels any armed backoff
// timer and never triggers reconnection.
func (c *Client) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.sessionID = ""
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	slog.Info("eventsub client closed")
	c.notifyLiveness(false)
}

// IsConnected reports whether a live connection is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateLive && c.conn != nil
}

// SessionID returns the current session id, or "" before welcome.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) notifyLiveness(connected bool) {
	if c.onLive != nil {
		c.onLive(connected)
	}
}
