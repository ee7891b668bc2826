package bus

import "time"

// Event kinds published by the chat engine. Subscribers filter by
// namespace prefix, e.g. "message." matches every message event.
const (
	KindMessageNew       = "message.new"
	KindMessageUpdated   = "message.updated"
	KindConversationRead = "conversation.read"
	KindNetworkOnline    = "network.online"
	KindNetworkOffline   = "network.offline"
	KindOutboxQueued     = "outbox.queued"
	KindOutboxSent       = "outbox.sent"
	KindOutboxFailed     = "outbox.failed"
	KindOutboxStatus     = "outbox.status"
	KindSyncCompleted    = "sync.completed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Now wraps a payload into an Event stamped with the current time.
func Now(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
