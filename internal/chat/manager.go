// Package chat is the facade the rest of the application talks to. It
// binds the per-user store, cache, and outbox together and exposes
// chat operations that stay usable with no connectivity at all.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fadeline/chat/internal/api"
	"github.com/fadeline/chat/internal/bus"
	"github.com/fadeline/chat/internal/cache"
	"github.com/fadeline/chat/internal/outbox"
	"github.com/fadeline/chat/internal/store"
	chatsync "github.com/fadeline/chat/internal/sync"
	"go.uber.org/zap"
)

// RemoteClient is the slice of the REST client the manager needs. The
// concrete *api.Client satisfies it.
type RemoteClient interface {
	ListConversations(ctx context.Context) ([]api.Conversation, error)
	ListMessages(ctx context.Context, otherUserID string) ([]api.Message, error)
	SendMessage(ctx context.Context, req api.SendMessageRequest) (*api.Message, error)
	MarkRead(ctx context.Context, otherUserID string) error
	GetUser(ctx context.Context, id string) (*api.User, error)
	SearchUsers(ctx context.Context, query string) ([]api.User, error)
}

// Deps are the user-independent collaborators a Manager is built from.
// DBPath maps a user id to that user's database file.
type Deps struct {
	Bus    *bus.Bus
	Client RemoteClient
	Online func() bool
	Outbox outbox.Config
	DBPath func(userID string) (string, error)
	Logger *zap.Logger
}

// Manager is the chat facade for one signed-in user at a time.
type Manager struct {
	deps Deps

	mu     sync.Mutex
	userID string
	db     *store.DB
	cache  *cache.Cache
	syncer *outbox.Syncer
	engine *chatsync.Engine
	marks  *chatsync.Checkpoints
	cancel context.CancelFunc
}

// NewManager creates an uninitialized manager. Initialize must be
// called before any chat operation.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps}
}

// Initialize binds the manager to a user: opens that user's database,
// runs migrations, and starts the background sender. Calling it again
// with the same user is a no-op; a different user tears down the old
// binding first so data never crosses accounts.
func (m *Manager) Initialize(userID string) error {
	if userID == "" {
		return fmt.Errorf("initialize: empty user id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userID == userID && m.db != nil {
		return nil
	}
	m.teardownLocked()

	path, err := m.deps.DBPath(userID)
	if err != nil {
		return fmt.Errorf("resolve db path: %w", err)
	}
	db, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate store: %w", err)
	}

	m.userID = userID
	m.db = db
	m.cache = cache.New(db, m.deps.Client, m.deps.Logger)
	m.engine = chatsync.NewEngine(db, m.deps.Bus, m.deps.Logger)
	m.marks = chatsync.NewCheckpoints(db)
	m.syncer = outbox.NewSyncer(userID, db, m.deps.Client, m.deps.Bus, m.deps.Online, m.deps.Outbox, m.deps.Logger)

	if err := m.marks.SetCurrentUser(userID); err != nil {
		m.teardownLocked()
		return fmt.Errorf("record current user: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.syncer.Start(ctx)

	if m.deps.Logger != nil {
		m.deps.Logger.Info("chat manager initialized", zap.String("user", userID))
	}
	return nil
}

func (m *Manager) teardownLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.syncer != nil {
		m.syncer.Stop()
		m.syncer = nil
	}
	if m.db != nil {
		m.db.Close()
		m.db = nil
	}
	m.cache = nil
	m.engine = nil
	m.marks = nil
	m.userID = ""
}

// Close releases the current binding. The manager can be re-initialized
// afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

// UserID returns the currently bound user, or "".
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

func (m *Manager) bound() (*store.DB, *cache.Cache, *outbox.Syncer, *chatsync.Engine, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil, nil, nil, nil, "", fmt.Errorf("chat manager not initialized")
	}
	return m.db, m.cache, m.syncer, m.engine, m.userID, nil
}

// SendMessage accepts a message for delivery and returns the optimistic
// local copy immediately. It never waits for the network.
func (m *Manager) SendMessage(receiverID, content string) (*store.Message, error) {
	_, _, syncer, _, _, err := m.bound()
	if err != nil {
		return nil, err
	}
	return syncer.Queue(receiverID, content)
}

// RetryMessage re-arms a terminally failed message for another delivery
// attempt.
func (m *Manager) RetryMessage(clientMsgID string) error {
	_, _, syncer, _, _, err := m.bound()
	if err != nil {
		return err
	}
	return syncer.Retry(clientMsgID)
}

// Conversations returns the conversation list, synced against the
// server when possible. Remote failures never surface here; the local
// list is served instead.
func (m *Manager) Conversations(ctx context.Context) ([]store.Conversation, error) {
	_, c, _, _, _, err := m.bound()
	if err != nil {
		return nil, err
	}
	res, err := c.ConversationsWithSync(ctx)
	if err != nil {
		return nil, err
	}
	return res.Conversations, nil
}

// GetConversation returns the stored conversation, or nil when unknown.
func (m *Manager) GetConversation(id string) (*store.Conversation, error) {
	db, _, _, _, _, err := m.bound()
	if err != nil {
		return nil, err
	}
	return db.GetConversation(id)
}

// GetOrCreateConversationWithUser resolves the conversation with the
// given user, creating a local placeholder when none exists yet. The
// user snapshot comes from the server when reachable; offline, the
// provided display name stands in until the next sync.
func (m *Manager) GetOrCreateConversationWithUser(ctx context.Context, otherUserID, displayName string) (*store.Conversation, error) {
	db, _, _, _, local, err := m.bound()
	if err != nil {
		return nil, err
	}

	id := store.PairConversationID(local, otherUserID)
	conv, err := db.GetConversation(id)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	user := store.User{ID: otherUserID, Name: displayName}
	if known, err := db.GetUser(otherUserID); err != nil {
		return nil, err
	} else if known != nil {
		user = *known
	}
	if m.deps.Online == nil || m.deps.Online() {
		if remote, err := m.deps.Client.GetUser(ctx, otherUserID); err == nil {
			user.Name = remote.Name
			user.Avatar = remote.Avatar
			user.Role = remote.Role
			if remote.LastSeen != nil {
				user.LastSeen = remote.LastSeen.UnixMilli()
			}
			if err := db.UpsertUser(&user); err != nil {
				return nil, err
			}
		}
	}

	conv = &store.Conversation{
		ID:        id,
		User:      user,
		UpdatedAt: time.Now().UnixMilli(),
	}
	if err := db.UpsertConversation(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Messages returns the thread with the given user, oldest first. When
// online, the server copy is ingested into the store first; offline or
// on failure, the local thread is served as-is.
func (m *Manager) Messages(ctx context.Context, otherUserID string) ([]store.Message, error) {
	db, _, _, engine, local, err := m.bound()
	if err != nil {
		return nil, err
	}

	id := store.PairConversationID(local, otherUserID)
	if m.deps.Online == nil || m.deps.Online() {
		remote, err := m.deps.Client.ListMessages(ctx, otherUserID)
		if err == nil {
			msgs := make([]store.Message, 0, len(remote))
			for i := range remote {
				sm := remote[i].ToStore()
				sm.ConversationID = id
				msgs = append(msgs, sm)
			}
			if err := engine.IngestBatch(id, msgs); err != nil {
				return nil, err
			}
		} else if m.deps.Logger != nil {
			m.deps.Logger.Warn("message sync failed, serving local thread",
				zap.String("conversation", id), zap.Error(err))
		}
	}
	return db.GetMessages(id)
}

// SearchUsers finds platform users by name. Online it asks the server
// and refreshes the local directory from the answer; offline it falls
// back to users seen before.
func (m *Manager) SearchUsers(ctx context.Context, query string) ([]store.User, error) {
	db, _, _, _, _, err := m.bound()
	if err != nil {
		return nil, err
	}

	if m.deps.Online == nil || m.deps.Online() {
		remote, err := m.deps.Client.SearchUsers(ctx, query)
		if err == nil {
			users := make([]store.User, 0, len(remote))
			for _, u := range remote {
				su := store.User{ID: u.ID, Name: u.Name, Avatar: u.Avatar, Role: u.Role}
				if u.LastSeen != nil {
					su.LastSeen = u.LastSeen.UnixMilli()
				}
				users = append(users, su)
			}
			if err := db.BulkUpsertUsers(users); err != nil {
				return nil, err
			}
			return users, nil
		}
		if m.deps.Logger != nil {
			m.deps.Logger.Warn("remote user search failed, serving directory", zap.Error(err))
		}
	}
	return db.SearchUsers(query, 0)
}

// SearchMessages runs a full-text search over locally stored messages.
// An empty conversationID searches every thread.
func (m *Manager) SearchMessages(query, conversationID string, limit int) ([]store.SearchResult, error) {
	db, _, _, _, _, err := m.bound()
	if err != nil {
		return nil, err
	}
	return db.SearchMessages(query, conversationID, limit)
}

// MarkConversationRead clears the unread state locally and records the
// read time. The server is told best-effort; a failure there does not
// undo the local read.
func (m *Manager) MarkConversationRead(ctx context.Context, conversationID string) error {
	db, _, _, _, local, err := m.bound()
	if err != nil {
		return err
	}

	if err := db.MarkConversationRead(conversationID, local); err != nil {
		return err
	}
	m.deps.Bus.Publish(bus.Now(bus.KindConversationRead, conversationID))

	if m.deps.Online == nil || m.deps.Online() {
		if conv, err := db.GetConversation(conversationID); err == nil && conv != nil {
			if err := m.deps.Client.MarkRead(ctx, conv.User.ID); err != nil && m.deps.Logger != nil {
				m.deps.Logger.Warn("remote read receipt failed",
					zap.String("conversation", conversationID), zap.Error(err))
			}
		}
	}
	return nil
}

// MarkConversationOpened records that the conversation is being viewed.
func (m *Manager) MarkConversationOpened(conversationID string) error {
	_, c, _, _, _, err := m.bound()
	if err != nil {
		return err
	}
	return c.MarkConversationOpened(conversationID)
}

// UnreadCount is the total unread messages across conversations,
// answered from the store so it works offline.
func (m *Manager) UnreadCount() (int, error) {
	db, _, _, _, _, err := m.bound()
	if err != nil {
		return 0, err
	}
	return db.UnreadTotal()
}

// SyncStatus reports the outbox state for status surfaces.
func (m *Manager) SyncStatus() (outbox.Status, error) {
	_, _, syncer, _, _, err := m.bound()
	if err != nil {
		return outbox.Status{}, err
	}
	return syncer.Status(), nil
}

// ForceSync drains the outbox now regardless of the reported network
// state.
func (m *Manager) ForceSync(ctx context.Context) error {
	_, _, syncer, _, _, err := m.bound()
	if err != nil {
		return err
	}
	return syncer.ForceSync(ctx)
}

// CleanOldData purges messages beyond the retention window and returns
// how many were removed.
func (m *Manager) CleanOldData(maxAge time.Duration) (int64, error) {
	_, c, _, _, _, err := m.bound()
	if err != nil {
		return 0, err
	}
	return c.CleanOldData(maxAge)
}

// ClearAll wipes every conversation, message, and queued send for the
// bound user.
func (m *Manager) ClearAll() error {
	_, c, _, _, _, err := m.bound()
	if err != nil {
		return err
	}
	return c.ClearAll()
}

// Stats reports store counts for diagnostics.
func (m *Manager) Stats() (*store.Stats, error) {
	_, c, _, _, _, err := m.bound()
	if err != nil {
		return nil, err
	}
	return c.Stats()
}

// Events the UI can observe through On.
const (
	EventMessageNew       = "message:new"
	EventMessageUpdated   = "message:updated"
	EventConversationRead = "conversation:read"
)

var eventKinds = map[string]string{
	EventMessageNew:       bus.KindMessageNew,
	EventMessageUpdated:   bus.KindMessageUpdated,
	EventConversationRead: bus.KindConversationRead,
}

// On registers a handler for a chat event and returns an unsubscribe
// function. Unknown event names return a no-op unsubscribe.
func (m *Manager) On(event string, fn func(payload any)) func() {
	kind, ok := eventKinds[event]
	if !ok {
		return func() {}
	}
	ch, unsub := m.deps.Bus.Subscribe(kind, 16)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				fn(evt.Payload)
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}
}
