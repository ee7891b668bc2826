package store

import (
	"database/sql"
	"fmt"
	"time"
)

const messageColumns = `id, conversation_id, sender_id, receiver_id, content, message_type, status, read, reply_to, offline, created_at`

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content,
		&m.MessageType, &m.Status, &m.Read, &m.ReplyTo, &m.Offline, &m.CreatedAt)
	return m, err
}

// GetMessages returns all messages of a conversation ascending by creation
// time. A conversation with no stored messages yields an empty slice.
func (db *DB) GetMessages(conversationID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SaveMessages replaces the stored message list of a conversation in one
// transaction and repairs the conversation's last-message pointer.
func (db *DB) SaveMessages(conversationID string, msgs []Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO messages (`+messageColumns+`, stored_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, conversationID, m.SenderID, m.ReceiverID, m.Content,
			m.MessageType, m.Status, m.Read, m.ReplyTo, m.Offline, m.CreatedAt, now); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := repairLastMessage(tx, conversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// AddMessage upserts a single message by id, then bumps the owning
// conversation's last-message pointer. The conversation row is created
// lazily if this is the first message exchanged with the counterpart.
func (db *DB) AddMessage(conversationID string, m *Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`
		INSERT INTO messages (`+messageColumns+`, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, id) DO UPDATE SET
			content = excluded.content,
			status = excluded.status,
			read = excluded.read,
			offline = excluded.offline`,
		m.ID, conversationID, m.SenderID, m.ReceiverID, m.Content,
		m.MessageType, m.Status, m.Read, m.ReplyTo, m.Offline, m.CreatedAt, now); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	// Placeholder counterpart; the next conversation sync overwrites the
	// user snapshot with server data. Offline messages are locally
	// authored, so there the counterpart is the receiver, not the sender.
	counterpart := m.SenderID
	if m.Offline {
		counterpart = m.ReceiverID
	}
	if _, err := tx.Exec(`
		INSERT INTO conversations (id, user_id, last_message_id, last_message_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message_id = CASE WHEN excluded.last_message_at >= conversations.last_message_at THEN excluded.last_message_id ELSE conversations.last_message_id END,
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		conversationID, counterpart, m.ID, m.CreatedAt, now); err != nil {
		return fmt.Errorf("bump conversation: %w", err)
	}

	return tx.Commit()
}

// UpdateMessageStatus sets a message's delivery status. No-op if the
// message is not stored.
func (db *DB) UpdateMessageStatus(conversationID, messageID, status string) error {
	_, err := db.Exec(`
		UPDATE messages SET status = ?
		WHERE conversation_id = ? AND id = ?`, status, conversationID, messageID)
	return err
}

// ReplacePending swaps an unconfirmed offline message for its
// server-confirmed copy in one transaction, so exactly one copy survives.
func (db *DB) ReplacePending(conversationID, clientMsgID string, confirmed *Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		DELETE FROM messages WHERE conversation_id = ? AND id = ?`,
		conversationID, clientMsgID); err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}

	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`
		INSERT INTO messages (`+messageColumns+`, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, id) DO UPDATE SET
			content = excluded.content,
			status = excluded.status,
			offline = excluded.offline,
			created_at = excluded.created_at`,
		confirmed.ID, conversationID, confirmed.SenderID, confirmed.ReceiverID, confirmed.Content,
		confirmed.MessageType, confirmed.Status, confirmed.Read, confirmed.ReplyTo, confirmed.Offline,
		confirmed.CreatedAt, now); err != nil {
		return fmt.Errorf("insert confirmed: %w", err)
	}

	if err := repairLastMessage(tx, conversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetPendingMessages scans all conversations for offline messages the
// given user composed that the server has not confirmed yet.
func (db *DB) GetPendingMessages(userID string) ([]PendingMessage, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE offline = 1 AND sender_id = ? AND status = ?
		ORDER BY created_at ASC`, userID, StatusSending)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var pending []PendingMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, PendingMessage{ConversationID: m.ConversationID, Message: m})
	}
	return pending, rows.Err()
}

// CleanOldData purges messages older than maxAge across all conversations.
// Conversations stay even when their list becomes empty; conversations the
// user opened within the retention window keep their history untouched.
func (db *DB) CleanOldData(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		DELETE FROM messages
		WHERE created_at < ?
		  AND conversation_id NOT IN (SELECT id FROM conversations WHERE opened_at >= ?)`,
		cutoff, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	purged, _ := res.RowsAffected()

	// Repair last-message pointers that now dangle.
	if _, err := tx.Exec(`
		UPDATE conversations SET
			last_message_id = (SELECT m.id FROM messages m
				WHERE m.conversation_id = conversations.id
				ORDER BY m.created_at DESC LIMIT 1),
			last_message_at = COALESCE((SELECT m.created_at FROM messages m
				WHERE m.conversation_id = conversations.id
				ORDER BY m.created_at DESC LIMIT 1), 0)
		WHERE last_message_id IS NOT NULL
		  AND last_message_id NOT IN (SELECT id FROM messages WHERE conversation_id = conversations.id)`); err != nil {
		return 0, fmt.Errorf("repair last message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return purged, nil
}

func repairLastMessage(tx *sql.Tx, conversationID string) error {
	if _, err := tx.Exec(`
		UPDATE conversations SET
			last_message_id = (SELECT m.id FROM messages m
				WHERE m.conversation_id = ? ORDER BY m.created_at DESC LIMIT 1),
			last_message_at = COALESCE((SELECT m.created_at FROM messages m
				WHERE m.conversation_id = ? ORDER BY m.created_at DESC LIMIT 1), 0)
		WHERE id = ?`, conversationID, conversationID, conversationID); err != nil {
		return fmt.Errorf("repair last message: %w", err)
	}
	return nil
}
