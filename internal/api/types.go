package api

import (
	"time"

	"github.com/fadeline/chat/internal/store"
)

// User is the wire representation of a platform user.
type User struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Avatar   string     `json:"avatar"`
	Role     string     `json:"role"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Message is the wire representation of a chat message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	Read           bool      `json:"read"`
	ReplyTo        string    `json:"reply_to,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation is the wire representation of a conversation summary.
type Conversation struct {
	ID          string    `json:"id"`
	User        User      `json:"user"`
	LastMessage *Message  `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SendMessageRequest is the POST /messages body.
type SendMessageRequest struct {
	ReceiverID  string `json:"receiver_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

// ToStore converts a wire message into its store form. Server-confirmed
// messages are never offline and at least "sent".
func (m *Message) ToStore() store.Message {
	status := store.StatusSent
	if m.Read {
		status = store.StatusRead
	}
	return store.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		MessageType:    m.MessageType,
		Status:         status,
		Read:           m.Read,
		ReplyTo:        m.ReplyTo,
		Offline:        false,
		CreatedAt:      m.CreatedAt.UnixMilli(),
	}
}

// ToStore converts a wire conversation into its store form. Local-only
// flags are zero; the merge step fills them from the stored copy.
func (c *Conversation) ToStore() store.Conversation {
	sc := store.Conversation{
		ID: c.ID,
		User: store.User{
			ID:     c.User.ID,
			Name:   c.User.Name,
			Avatar: c.User.Avatar,
			Role:   c.User.Role,
		},
		UnreadCount: c.UnreadCount,
		UpdatedAt:   c.UpdatedAt.UnixMilli(),
	}
	if c.User.LastSeen != nil {
		sc.User.LastSeen = c.User.LastSeen.UnixMilli()
	}
	if c.LastMessage != nil {
		m := c.LastMessage.ToStore()
		m.ConversationID = c.ID
		sc.LastMessage = &m
	}
	return sc
}
