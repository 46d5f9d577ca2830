package eventsub

import "encoding/json"

// Poll event types delivered over the EventSub session.
const (
	EventPollBegin    = "channel.poll.begin"
	EventPollProgress = "channel.poll.progress"
	EventPollEnd      = "channel.poll.end"
)

// pollEventTypes is the set subscribed together, atomically from the caller's
// perspective, whenever a broadcaster id becomes available on a live session.
var pollEventTypes = []string{EventPollBegin, EventPollProgress, EventPollEnd}

// envelope is the outer frame of every inbound EventSub message.
type envelope struct {
	Metadata struct {
		MessageType string `json:"message_type"`
	} `json:"metadata"`
	Payload json.RawMessage `json:"payload"`
}

// sessionPayload carries the session block of welcome and reconnect messages.
type sessionPayload struct {
	Session struct {
		ID           string `json:"id"`
		ReconnectURL string `json:"reconnect_url"`
	} `json:"session"`
}

// notificationPayload carries one application event.
type notificationPayload struct {
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

// subscriptionRequest is sent once per event type when subscribing.
type subscriptionRequest struct {
	Type string           `json:"type"`
	Data subscriptionData `json:"data"`
}

type subscriptionData struct {
	Type      string                `json:"type"`
	Version   string                `json:"version"`
	Condition subscriptionCondition `json:"condition"`
	Transport subscriptionTransport `json:"transport"`
}

type subscriptionCondition struct {
	BroadcasterUserID string `json:"broadcaster_user_id"`
}

type subscriptionTransport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id"`
}

func newSubscriptionRequest(eventType, broadcasterID, sessionID string) subscriptionRequest {
	return subscriptionRequest{
		Type: "session.subscribe",
		Data: subscriptionData{
			Type:      eventType,
			Version:   "1",
			Condition: subscriptionCondition{BroadcasterUserID: broadcasterID},
			Transport: subscriptionTransport{Method: "websocket", SessionID: sessionID},
		},
	}
}
