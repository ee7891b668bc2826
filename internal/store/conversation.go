package store

import (
	"database/sql"
	"fmt"
	"time"
)

const conversationColumns = `c.id, c.user_id, c.user_name, c.user_avatar, c.user_role, c.user_last_seen,
	c.last_message_id, c.unread_count, c.pinned, c.archived, c.opened_at, c.read_at, c.updated_at`

func scanConversation(row interface{ Scan(...any) error }) (Conversation, error) {
	var c Conversation
	var lastMsgID sql.NullString
	err := row.Scan(&c.ID, &c.User.ID, &c.User.Name, &c.User.Avatar, &c.User.Role, &c.User.LastSeen,
		&lastMsgID, &c.UnreadCount, &c.Pinned, &c.Archived, &c.OpenedAt, &c.ReadAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	if lastMsgID.Valid {
		c.LastMessage = &Message{ID: lastMsgID.String}
	}
	return c, nil
}

// GetConversations returns all conversations ordered for display:
// pinned first, then most recent message first.
func (db *DB) GetConversations() ([]Conversation, error) {
	rows, err := db.Query(`
		SELECT ` + conversationColumns + `
		FROM conversations c
		ORDER BY c.pinned DESC, c.last_message_at DESC, c.id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	convs := []Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range convs {
		if err := db.loadLastMessage(&convs[i]); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

// GetConversation returns a single conversation by id, or nil if unknown.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	row := db.QueryRow(`
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := db.loadLastMessage(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveConversations replaces the conversation set in one transaction.
// Denormalized last messages ride along into the messages table so the
// store never holds two divergent copies of the same message.
func (db *DB) SaveConversations(convs []Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, c := range convs {
		var lastMsgID any
		var lastMsgAt int64
		if c.LastMessage != nil {
			lastMsgID = c.LastMessage.ID
			lastMsgAt = c.LastMessage.CreatedAt

			if _, err := tx.Exec(`
				INSERT INTO messages (`+messageColumns+`, stored_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(conversation_id, id) DO UPDATE SET
					content = excluded.content,
					status = excluded.status,
					read = excluded.read`,
				c.LastMessage.ID, c.ID, c.LastMessage.SenderID, c.LastMessage.ReceiverID,
				c.LastMessage.Content, c.LastMessage.MessageType, c.LastMessage.Status,
				c.LastMessage.Read, c.LastMessage.ReplyTo, c.LastMessage.Offline,
				c.LastMessage.CreatedAt, now); err != nil {
				return fmt.Errorf("upsert last message: %w", err)
			}
		}

		updatedAt := c.UpdatedAt
		if updatedAt == 0 {
			updatedAt = now
		}
		if _, err := tx.Exec(`
			INSERT INTO conversations (id, user_id, user_name, user_avatar, user_role, user_last_seen,
				last_message_id, last_message_at, unread_count, pinned, archived, opened_at, read_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.User.ID, c.User.Name, c.User.Avatar, c.User.Role, c.User.LastSeen,
			lastMsgID, lastMsgAt, c.UnreadCount, c.Pinned, c.Archived, c.OpenedAt, c.ReadAt, updatedAt); err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
	}

	return tx.Commit()
}

// UpsertConversation inserts or updates a single conversation record.
// Local-only flags (pinned, archived, opened/read marks) survive updates.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	var lastMsgID any
	var lastMsgAt int64
	if c.LastMessage != nil {
		lastMsgID = c.LastMessage.ID
		lastMsgAt = c.LastMessage.CreatedAt
	}
	_, err := db.Exec(`
		INSERT INTO conversations (id, user_id, user_name, user_avatar, user_role, user_last_seen,
			last_message_id, last_message_at, unread_count, pinned, archived, opened_at, read_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			user_name = excluded.user_name,
			user_avatar = excluded.user_avatar,
			user_role = excluded.user_role,
			user_last_seen = excluded.user_last_seen,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.ID, c.User.ID, c.User.Name, c.User.Avatar, c.User.Role, c.User.LastSeen,
		lastMsgID, lastMsgAt, c.UnreadCount, c.Pinned, c.Archived, c.OpenedAt, c.ReadAt, now)
	return err
}

// DeleteConversation removes a conversation and its messages. Idempotent.
func (db *DB) DeleteConversation(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return tx.Commit()
}

// MarkConversationOpened records that the conversation was actively
// viewed. Safe to call for ids that do not exist locally yet.
func (db *DB) MarkConversationOpened(id string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, user_id, opened_at, updated_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT(id) DO UPDATE SET opened_at = excluded.opened_at`,
		id, now, now)
	return err
}

// MarkConversationRead zeroes the unread count, stamps the local read
// mark, and flips inbound messages to read.
func (db *DB) MarkConversationRead(id, localUserID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`
		UPDATE conversations SET unread_count = 0, read_at = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE messages SET read = 1
		WHERE conversation_id = ? AND receiver_id = ? AND read = 0`,
		id, localUserID); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return tx.Commit()
}

// UnreadTotal sums unread counts across all conversations.
func (db *DB) UnreadTotal() (int, error) {
	var total int
	err := db.QueryRow(`SELECT COALESCE(SUM(unread_count), 0) FROM conversations`).Scan(&total)
	return total, err
}

func (db *DB) loadLastMessage(c *Conversation) error {
	if c.LastMessage == nil {
		return nil
	}
	row := db.QueryRow(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ? AND id = ?`, c.ID, c.LastMessage.ID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		c.LastMessage = nil
		return nil
	}
	if err != nil {
		return err
	}
	c.LastMessage = &m
	return nil
}
