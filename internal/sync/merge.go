package sync

import (
	"sort"

	"github.com/fadeline/chat/internal/store"
)

// MergeConversations reconciles the stored conversation list with the
// server's. Conflict rules:
//   - server wins for unread counts, user snapshots, and last messages;
//   - client wins for the local-only flags (pinned, archived, opened/read
//     marks);
//   - a conversation marked read locally after the last successful sync
//     keeps unreadCount 0 until the server catches up;
//   - conversations the server does not know about yet (created while
//     offline) are kept as-is.
//
// The result is sorted per the display ordering invariant.
func MergeConversations(local, remote []store.Conversation, lastSyncAt int64) []store.Conversation {
	byID := make(map[string]store.Conversation, len(local))
	for _, l := range local {
		byID[l.ID] = l
	}

	merged := make([]store.Conversation, 0, len(remote))
	seen := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		c := r
		if l, ok := byID[r.ID]; ok {
			c.Pinned = l.Pinned
			c.Archived = l.Archived
			c.OpenedAt = l.OpenedAt
			c.ReadAt = l.ReadAt
			if l.ReadAt > lastSyncAt {
				c.UnreadCount = 0
			}
			if c.LastMessage == nil {
				c.LastMessage = l.LastMessage
			}
		}
		merged = append(merged, c)
		seen[r.ID] = struct{}{}
	}

	for _, l := range local {
		if _, ok := seen[l.ID]; !ok {
			merged = append(merged, l)
		}
	}

	SortConversations(merged)
	return merged
}

// SortConversations orders for display: pinned first, then most recent
// last message first.
func SortConversations(convs []store.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		if convs[i].Pinned != convs[j].Pinned {
			return convs[i].Pinned
		}
		return lastMessageAt(&convs[i]) > lastMessageAt(&convs[j])
	})
}

func lastMessageAt(c *store.Conversation) int64 {
	if c.LastMessage == nil {
		return 0
	}
	return c.LastMessage.CreatedAt
}
