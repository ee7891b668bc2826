package sync

import (
	"strconv"

	"github.com/fadeline/chat/internal/store"
)

const (
	keyLastSyncAt  = "last_sync_at"
	keyCurrentUser = "current_user"
)

// Checkpoints persists sync bookmarks in the store's sync_state table.
type Checkpoints struct {
	db *store.DB
}

// NewCheckpoints creates a checkpoint accessor over the store.
func NewCheckpoints(db *store.DB) *Checkpoints {
	return &Checkpoints{db: db}
}

// LastSyncAt returns the unix-ms timestamp of the last successful
// conversation sync, or 0 if none completed yet.
func (c *Checkpoints) LastSyncAt() (int64, error) {
	v, err := c.db.GetState(keyLastSyncAt)
	if err != nil || v == "" {
		return 0, err
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, nil
	}
	return ts, nil
}

// SetLastSyncAt records a successful sync completion time.
func (c *Checkpoints) SetLastSyncAt(unixMs int64) error {
	return c.db.SetState(keyLastSyncAt, strconv.FormatInt(unixMs, 10))
}

// CurrentUser returns the user id this store was last bound to.
func (c *Checkpoints) CurrentUser() (string, error) {
	return c.db.GetState(keyCurrentUser)
}

// SetCurrentUser records the user id the store belongs to.
func (c *Checkpoints) SetCurrentUser(userID string) error {
	return c.db.SetState(keyCurrentUser, userID)
}
