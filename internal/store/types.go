package store

// Delivery statuses a message moves through locally. Only "read" and the
// message body itself are ever reflected server-side; the rest describe
// transit state for UI indicators.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Message types understood by the app.
const (
	TypeText   = "text"
	TypeImage  = "image"
	TypeVoice  = "voice"
	TypeSystem = "system"
)

// User is the denormalized snapshot of a conversation counterpart.
type User struct {
	ID       string
	Name     string
	Avatar   string
	Role     string
	LastSeen int64
}

// Message represents a chat message. IDs are client-generated UUIDs while
// a message is pending and server-issued once confirmed.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	MessageType    string
	Status         string
	Read           bool
	ReplyTo        string
	Offline        bool
	CreatedAt      int64
}

// Conversation represents a thread with one counterpart. ReadAt and
// OpenedAt are local-only bookkeeping: ReadAt records the last local
// mark-as-read (authoritative over stale server counts until the next
// successful sync), OpenedAt biases cache retention.
type Conversation struct {
	ID          string
	User        User
	LastMessage *Message
	UnreadCount int
	Pinned      bool
	Archived    bool
	OpenedAt    int64
	ReadAt      int64
	UpdatedAt   int64
}

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID             int64
	ClientMsgID    string
	ConversationID string
	ReceiverID     string
	Content        string
	MessageType    string
	Status         string // queued, sending, sent, failed
	Retries        int
	ErrorMessage   string
	ServerMsgID    string
	CreatedAt      int64
}

// PendingMessage pairs an unconfirmed offline message with its conversation.
type PendingMessage struct {
	ConversationID string
	Message        Message
}

// Stats holds aggregate store counts for diagnostics.
type Stats struct {
	Conversations   int
	Messages        int
	PendingMessages int
	TotalSizeKB     int64
}

// PairConversationID derives the stable conversation id for two users.
// The result is independent of argument order.
func PairConversationID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
