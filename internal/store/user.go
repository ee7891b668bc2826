package store

import (
	"database/sql"
	"fmt"
	"time"
)

const userColumns = `id, name, avatar, role, last_seen`

// UpsertUser inserts or refreshes one directory entry. Empty snapshot
// fields never overwrite known values.
func (db *DB) UpsertUser(u *User) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO users (`+userColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE users.name END,
			avatar = CASE WHEN excluded.avatar != '' THEN excluded.avatar ELSE users.avatar END,
			role = CASE WHEN excluded.role != '' THEN excluded.role ELSE users.role END,
			last_seen = CASE WHEN excluded.last_seen != 0 THEN excluded.last_seen ELSE users.last_seen END,
			updated_at = excluded.updated_at`,
		u.ID, u.Name, u.Avatar, u.Role, u.LastSeen, now)
	return err
}

// BulkUpsertUsers refreshes multiple directory entries in one transaction.
func (db *DB) BulkUpsertUsers(users []User) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, u := range users {
		if _, err := tx.Exec(`
			INSERT INTO users (`+userColumns+`, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = CASE WHEN excluded.name != '' THEN excluded.name ELSE users.name END,
				avatar = CASE WHEN excluded.avatar != '' THEN excluded.avatar ELSE users.avatar END,
				role = CASE WHEN excluded.role != '' THEN excluded.role ELSE users.role END,
				last_seen = CASE WHEN excluded.last_seen != 0 THEN excluded.last_seen ELSE users.last_seen END,
				updated_at = excluded.updated_at`,
			u.ID, u.Name, u.Avatar, u.Role, u.LastSeen, now); err != nil {
			return fmt.Errorf("upsert user %q: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// GetUser returns a directory entry, or nil when the user was never seen.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Avatar, &u.Role, &u.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SearchUsers matches directory entries by name or id substring.
func (db *DB) SearchUsers(query string, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	rows, err := db.Query(`
		SELECT `+userColumns+`
		FROM users
		WHERE name LIKE ? OR id LIKE ?
		ORDER BY name ASC, id ASC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Avatar, &u.Role, &u.LastSeen); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
