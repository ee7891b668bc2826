package store

import "fmt"

// Stats scans the store and returns aggregate counts plus the database
// footprint. Computed on demand, nothing is tracked incrementally.
func (db *DB) Stats() (*Stats, error) {
	s := &Stats{}
	if err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&s.Conversations); err != nil {
		return nil, fmt.Errorf("count conversations: %w", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&s.Messages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM outbox WHERE status IN ('queued', 'sending')`).Scan(&s.PendingMessages); err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}

	var pageCount, pageSize int64
	if err := db.QueryRow(`PRAGMA page_count`).Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	if err := db.QueryRow(`PRAGMA page_size`).Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("page size: %w", err)
	}
	s.TotalSizeKB = pageCount * pageSize / 1024
	return s, nil
}

// ClearAll wipes every chat-related table for the current user. Irreversible.
func (db *DB) ClearAll() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"messages", "conversations", "outbox", "sync_state", "users"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
