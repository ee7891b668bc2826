// Package sync reconciles remote API state with the local chat store:
// a pure merge function for conversation lists, an idempotent message
// ingestion engine, and sync checkpoints.
package sync

import (
	"fmt"
	"time"

	"github.com/fadeline/chat/internal/bus"
	"github.com/fadeline/chat/internal/store"
	"go.uber.org/zap"
)

// Engine handles idempotent ingestion of server messages into the store
// and announces newly seen messages on the bus.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewEngine creates a new ingestion engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{db: db, bus: b, logger: logger}
}

// IngestMessage processes a single server message (idempotent). The
// message.new event fires only the first time an id is seen.
func (e *Engine) IngestMessage(m *store.Message) error {
	existing, err := e.knownIDs(m.ConversationID)
	if err != nil {
		return err
	}
	_, seen := existing[m.ID]

	if err := e.db.AddMessage(m.ConversationID, m); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	if !seen {
		e.publishNew(m)
	}
	return nil
}

// IngestBatch processes a batch of server messages for one conversation.
// The stored list is replaced wholesale, except that unconfirmed local
// messages the server has not seen yet survive the replace; events fire
// per newly seen id.
func (e *Engine) IngestBatch(conversationID string, msgs []store.Message) error {
	stored, err := e.db.GetMessages(conversationID)
	if err != nil {
		return fmt.Errorf("load existing: %w", err)
	}
	existing := make(map[string]struct{}, len(stored))
	for _, m := range stored {
		existing[m.ID] = struct{}{}
	}

	batch := make(map[string]struct{}, len(msgs))
	for i := range msgs {
		batch[msgs[i].ID] = struct{}{}
	}
	for _, m := range stored {
		if _, inBatch := batch[m.ID]; inBatch {
			continue
		}
		// Unconfirmed local messages survive the replace whether they
		// are still sending or terminally failed awaiting manual retry.
		if m.Offline {
			msgs = append(msgs, m)
		}
	}

	if err := e.db.SaveMessages(conversationID, msgs); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}

	fresh := 0
	for i := range msgs {
		if _, seen := existing[msgs[i].ID]; seen {
			continue
		}
		e.publishNew(&msgs[i])
		fresh++
	}

	if e.logger != nil && fresh > 0 {
		e.logger.Info("messages ingested",
			zap.String("conversation", conversationID),
			zap.Int("total", len(msgs)),
			zap.Int("new", fresh))
	}
	if e.bus != nil {
		e.bus.Publish(bus.Now(bus.KindSyncCompleted, map[string]int{
			"messages": len(msgs),
			"new":      fresh,
		}))
	}
	return nil
}

func (e *Engine) knownIDs(conversationID string) (map[string]struct{}, error) {
	msgs, err := e.db.GetMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load existing: %w", err)
	}
	ids := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		ids[m.ID] = struct{}{}
	}
	return ids, nil
}

func (e *Engine) publishNew(m *store.Message) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageNew,
		Timestamp: time.Now(),
		Payload:   *m,
	})
}
