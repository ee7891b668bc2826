// Package cache decides, per read, whether chat data comes from the
// local store or a fresh remote fetch, and keeps the store reconciled
// with server results.
package cache

import (
	"context"
	"time"

	"github.com/fadeline/chat/internal/api"
	"github.com/fadeline/chat/internal/store"
	chatsync "github.com/fadeline/chat/internal/sync"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ConversationLister is the remote call behind a conversation sync.
type ConversationLister interface {
	ListConversations(ctx context.Context) ([]api.Conversation, error)
}

// SyncResult is a conversation list plus its provenance: FromCache is
// set when the remote fetch failed and the local list was served as-is.
type SyncResult struct {
	Conversations []store.Conversation
	FromCache     bool
}

// Cache is the read-through/write-through layer over the store.
type Cache struct {
	db          *store.DB
	client      ConversationLister
	checkpoints *chatsync.Checkpoints
	logger      *zap.Logger
	group       singleflight.Group
}

// New creates a cache over the given store and remote client.
func New(db *store.DB, client ConversationLister, logger *zap.Logger) *Cache {
	return &Cache{
		db:          db,
		client:      client,
		checkpoints: chatsync.NewCheckpoints(db),
		logger:      logger,
	}
}

// ConversationsWithSync performs one remote round trip, merges the server
// list into the store, and returns the merged result. Concurrent calls
// coalesce into a single network request. On remote failure the local
// list is returned unchanged, flagged FromCache.
func (c *Cache) ConversationsWithSync(ctx context.Context) (*SyncResult, error) {
	v, err, _ := c.group.Do("conversations", func() (any, error) {
		return c.syncConversations(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SyncResult), nil
}

func (c *Cache) syncConversations(ctx context.Context) (*SyncResult, error) {
	local, err := c.db.GetConversations()
	if err != nil {
		return nil, err
	}

	remote, err := c.client.ListConversations(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("conversation sync failed, serving cache", zap.Error(err))
		}
		return &SyncResult{Conversations: local, FromCache: true}, nil
	}

	remoteConvs := make([]store.Conversation, 0, len(remote))
	snapshots := make([]store.User, 0, len(remote))
	for i := range remote {
		sc := remote[i].ToStore()
		remoteConvs = append(remoteConvs, sc)
		snapshots = append(snapshots, sc.User)
	}
	// Refresh the offline user directory from the snapshots we already
	// paid for.
	if err := c.db.BulkUpsertUsers(snapshots); err != nil {
		return nil, err
	}

	lastSync, err := c.checkpoints.LastSyncAt()
	if err != nil {
		return nil, err
	}
	merged := chatsync.MergeConversations(local, remoteConvs, lastSync)

	if err := c.db.SaveConversations(merged); err != nil {
		return nil, err
	}
	if err := c.checkpoints.SetLastSyncAt(time.Now().UnixMilli()); err != nil {
		return nil, err
	}
	return &SyncResult{Conversations: merged}, nil
}

// MarkConversationOpened records active viewing for retention bias.
// Idempotent, and safe for ids not stored locally yet.
func (c *Cache) MarkConversationOpened(conversationID string) error {
	return c.db.MarkConversationOpened(conversationID)
}

// Stats scans the store for diagnostic counts.
func (c *Cache) Stats() (*store.Stats, error) {
	return c.db.Stats()
}

// ClearAll irreversibly wipes all chat data for the current user.
func (c *Cache) ClearAll() error {
	return c.db.ClearAll()
}

// CleanOldData purges messages beyond the retention window.
func (c *Cache) CleanOldData(maxAge time.Duration) (int64, error) {
	return c.db.CleanOldData(maxAge)
}
