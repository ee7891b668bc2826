// Package outbox guarantees that messages composed while offline are
// eventually delivered: it queues them with an optimistic local copy,
// drains the queue when connectivity allows, and reports sync status.
package outbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fadeline/chat/internal/api"
	"github.com/fadeline/chat/internal/bus"
	"github.com/fadeline/chat/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Validation failures surfaced synchronously before anything is queued.
var (
	ErrEmptyContent = errors.New("message content is empty")
	ErrNoReceiver   = errors.New("receiver id is required")
)

// Sender is the remote call used to deliver one message.
type Sender interface {
	SendMessage(ctx context.Context, req api.SendMessageRequest) (*api.Message, error)
}

// Status is a snapshot of the sync manager.
type Status struct {
	Online     bool
	Syncing    bool
	Pending    int
	LastSync   time.Time
	RetryQueue []store.OutboxEntry
}

// Config tunes the syncer.
type Config struct {
	MaxRetries int
	Interval   time.Duration
}

// Syncer owns the pending-message queue for one user.
type Syncer struct {
	userID string
	db     *store.DB
	sender Sender
	bus    *bus.Bus
	online func() bool
	logger *zap.Logger
	cfg    Config

	syncing  atomic.Bool
	lastSync atomic.Int64
	kick     chan struct{}

	mu        sync.Mutex
	listeners map[int]func(Status)
	nextID    int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSyncer creates a syncer for the given user. online reports the
// current connectivity snapshot; network transitions arrive via the bus.
func NewSyncer(userID string, db *store.DB, sender Sender, b *bus.Bus, online func() bool, cfg Config, logger *zap.Logger) *Syncer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Syncer{
		userID:    userID,
		db:        db,
		sender:    sender,
		bus:       b,
		online:    online,
		logger:    logger,
		cfg:       cfg,
		kick:      make(chan struct{}, 1),
		listeners: make(map[int]func(Status)),
	}
}

// Queue validates and accepts a message for eventual delivery. The
// optimistic copy lands in the store immediately so the UI can render it;
// the call never waits for the network. The returned message carries the
// temporary client id.
func (s *Syncer) Queue(receiverID, content string) (*store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if receiverID == "" {
		return nil, ErrNoReceiver
	}

	conversationID := store.PairConversationID(s.userID, receiverID)
	m := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       s.userID,
		ReceiverID:     receiverID,
		Content:        content,
		MessageType:    store.TypeText,
		Status:         store.StatusSending,
		Offline:        true,
		CreatedAt:      time.Now().UnixMilli(),
	}

	// Storage failure is the only error a send ever surfaces.
	if err := s.db.AddMessage(conversationID, m); err != nil {
		return nil, err
	}
	if err := s.db.QueueOutbox(&store.OutboxEntry{
		ClientMsgID:    m.ID,
		ConversationID: conversationID,
		ReceiverID:     receiverID,
		Content:        content,
		MessageType:    m.MessageType,
		CreatedAt:      m.CreatedAt,
	}); err != nil {
		return nil, err
	}

	if s.bus != nil {
		s.bus.Publish(bus.Now(bus.KindMessageNew, *m))
		s.bus.Publish(bus.Now(bus.KindOutboxQueued, map[string]string{
			"client_msg_id": m.ID,
			"conversation":  conversationID,
		}))
	}
	s.publishStatus()

	// Nudge the loop so online sends go out without waiting for the tick.
	select {
	case s.kick <- struct{}{}:
	default:
	}

	return m, nil
}

// SyncAll drains the queue if connectivity allows. Overlapping calls
// no-op while a cycle is in progress.
func (s *Syncer) SyncAll(ctx context.Context) error {
	if s.online != nil && !s.online() {
		return nil
	}
	return s.drain(ctx)
}

// ForceSync drains the queue regardless of the connectivity snapshot.
func (s *Syncer) ForceSync(ctx context.Context) error {
	return s.drain(ctx)
}

func (s *Syncer) drain(ctx context.Context) error {
	if !s.syncing.CompareAndSwap(false, true) {
		return nil
	}
	s.publishStatus()
	defer func() {
		s.syncing.Store(false)
		s.lastSync.Store(time.Now().UnixMilli())
		s.publishStatus()
	}()

	entries, err := s.db.PendingOutbox()
	if err != nil {
		return err
	}

	// A failure blocks later messages in the same conversation only, so
	// replies never appear before the message they answer.
	blocked := make(map[string]bool)
	for _, entry := range entries {
		if blocked[entry.ConversationID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sendOne(ctx, entry); err != nil {
			blocked[entry.ConversationID] = true
		}
	}
	return nil
}

func (s *Syncer) sendOne(ctx context.Context, entry store.OutboxEntry) error {
	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		s.logError("mark sending", entry.ClientMsgID, err)
		return err
	}

	resp, err := s.sender.SendMessage(ctx, api.SendMessageRequest{
		ReceiverID:  entry.ReceiverID,
		Content:     entry.Content,
		MessageType: entry.MessageType,
	})
	if err != nil {
		s.logError("send", entry.ClientMsgID, err)
		if entry.Retries+1 >= s.cfg.MaxRetries {
			// Budget exhausted: terminal failure, manual retry only.
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			_ = s.db.UpdateMessageStatus(entry.ConversationID, entry.ClientMsgID, store.StatusFailed)
			if s.bus != nil {
				s.bus.Publish(bus.Now(bus.KindOutboxFailed, map[string]string{
					"client_msg_id": entry.ClientMsgID,
					"error":         err.Error(),
				}))
			}
		} else {
			_ = s.db.RequeueOutbox(entry.ClientMsgID, err.Error())
		}
		return err
	}

	confirmed := resp.ToStore()
	confirmed.ConversationID = entry.ConversationID
	confirmed.Status = store.StatusSent
	if err := s.db.ReplacePending(entry.ConversationID, entry.ClientMsgID, &confirmed); err != nil {
		s.logError("replace pending", entry.ClientMsgID, err)
		return err
	}
	if err := s.db.MarkOutboxSent(entry.ClientMsgID, confirmed.ID); err != nil {
		s.logError("mark sent", entry.ClientMsgID, err)
	}

	if s.logger != nil {
		s.logger.Info("message delivered",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.String("server_msg_id", confirmed.ID))
	}
	if s.bus != nil {
		s.bus.Publish(bus.Now(bus.KindOutboxSent, map[string]string{
			"client_msg_id": entry.ClientMsgID,
			"server_msg_id": confirmed.ID,
		}))
		s.bus.Publish(bus.Now(bus.KindMessageUpdated, confirmed))
	}
	return nil
}

// Retry revives one terminally failed message with a fresh budget.
func (s *Syncer) Retry(clientMsgID string) error {
	failed, err := s.db.FailedOutbox()
	if err != nil {
		return err
	}
	for _, entry := range failed {
		if entry.ClientMsgID != clientMsgID {
			continue
		}
		if err := s.db.ResetOutboxEntry(clientMsgID); err != nil {
			return err
		}
		if err := s.db.UpdateMessageStatus(entry.ConversationID, clientMsgID, store.StatusSending); err != nil {
			return err
		}
		s.publishStatus()
		select {
		case s.kick <- struct{}{}:
		default:
		}
		return nil
	}
	return errors.New("no failed message with id " + clientMsgID)
}

// Status assembles a snapshot of the sync manager.
func (s *Syncer) Status() Status {
	st := Status{
		Syncing: s.syncing.Load(),
	}
	if s.online != nil {
		st.Online = s.online()
	}
	if ms := s.lastSync.Load(); ms > 0 {
		st.LastSync = time.UnixMilli(ms)
	}
	if pending, err := s.db.PendingOutbox(); err == nil {
		st.Pending = len(pending)
	}
	if failed, err := s.db.FailedOutbox(); err == nil {
		st.RetryQueue = failed
	}
	return st
}

// OnStatusChange registers a listener pushed on every status change.
// Returns an unsubscribe function.
func (s *Syncer) OnStatusChange(fn func(Status)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Syncer) publishStatus() {
	st := s.Status()
	s.mu.Lock()
	listeners := make([]func(Status), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
	if s.bus != nil {
		s.bus.Publish(bus.Now(bus.KindOutboxStatus, st))
	}
}

// Start runs the background loop: sync on offline-to-online transitions,
// on a periodic tick while online, and on queue nudges.
func (s *Syncer) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	netCh, unsub := s.bus.Subscribe("network.", 16)

	go func() {
		defer close(s.done)
		defer unsub()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case evt := <-netCh:
				s.publishStatus()
				if evt.Kind == bus.KindNetworkOnline {
					_ = s.SyncAll(ctx)
				}
			case <-ticker.C:
				_ = s.SyncAll(ctx)
			case <-s.kick:
				_ = s.SyncAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and waits for it to exit.
func (s *Syncer) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Syncer) logError(op, clientMsgID string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Error("outbox "+op+" failed",
		zap.Error(err),
		zap.String("client_msg_id", clientMsgID))
}
