package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fadeline/chat/internal/bus"
	"github.com/fadeline/chat/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func srvMsg(id string, at int64) store.Message {
	return store.Message{
		ID: id, ConversationID: "a:b", SenderID: "b", ReceiverID: "a",
		Content: "body-" + id, MessageType: store.TypeText,
		Status: store.StatusSent, CreatedAt: at,
	}
}

func TestEngineIngestMessagePublishesNew(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)

	ch, unsub := b.Subscribe(bus.KindMessageNew, 10)
	defer unsub()

	m := srvMsg("m1", 1000)
	if err := e.IngestMessage(&m); err != nil {
		t.Fatal(err)
	}

	// Conversation auto-created, message stored.
	c, err := db.GetConversation("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("conversation not created")
	}

	select {
	case evt := <-ch:
		got, ok := evt.Payload.(store.Message)
		if !ok || got.ID != "m1" {
			t.Errorf("payload = %+v, want message m1", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message.new event")
	}
}

func TestEngineIngestMessageIdempotent(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)

	ch, unsub := b.Subscribe(bus.KindMessageNew, 10)
	defer unsub()

	m := srvMsg("m1", 1000)
	if err := e.IngestMessage(&m); err != nil {
		t.Fatal(err)
	}
	<-ch

	// Same id again: stored once, no second event.
	if err := e.IngestMessage(&m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.GetMessages("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	select {
	case evt := <-ch:
		t.Errorf("duplicate message.new for known id: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngineIngestBatchFiresOnlyForUnseen(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)

	m1 := srvMsg("m1", 1000)
	if err := e.IngestMessage(&m1); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe(bus.KindMessageNew, 10)
	defer unsub()

	if err := e.IngestBatch("a:b", []store.Message{srvMsg("m1", 1000), srvMsg("m2", 2000)}); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		got := evt.Payload.(store.Message)
		if got.ID != "m2" {
			t.Errorf("event for %q, want m2", got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message.new")
	}
	select {
	case evt := <-ch:
		t.Errorf("extra event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngineIngestBatchKeepsLocalPending(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil, nil)

	pending := store.Message{
		ID: "tmp-1", ConversationID: "a:b", SenderID: "a", ReceiverID: "b",
		Content: "still in the outbox", MessageType: store.TypeText,
		Status: store.StatusSending, Offline: true, CreatedAt: 3000,
	}
	if err := db.AddMessage("a:b", &pending); err != nil {
		t.Fatal(err)
	}

	// Server thread does not know the pending message yet.
	if err := e.IngestBatch("a:b", []store.Message{srvMsg("m1", 1000), srvMsg("m2", 2000)}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.GetMessages("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("thread = %d messages, want server pair plus pending", len(msgs))
	}
	if msgs[2].ID != "tmp-1" || !msgs[2].Offline {
		t.Errorf("pending message lost in replace: %+v", msgs)
	}
}

func TestEngineIngestBatchKeepsLocalFailed(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, nil, nil)

	failed := store.Message{
		ID: "tmp-1", ConversationID: "a:b", SenderID: "a", ReceiverID: "b",
		Content: "out of retries", MessageType: store.TypeText,
		Status: store.StatusFailed, Offline: true, CreatedAt: 3000,
	}
	if err := db.AddMessage("a:b", &failed); err != nil {
		t.Fatal(err)
	}

	if err := e.IngestBatch("a:b", []store.Message{srvMsg("m1", 1000)}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.GetMessages("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("thread = %+v, want server message plus failed local copy", msgs)
	}
	if msgs[1].ID != "tmp-1" || msgs[1].Status != store.StatusFailed {
		t.Errorf("failed message lost in replace: %+v", msgs[1])
	}
}

func TestCheckpoints(t *testing.T) {
	db := testDB(t)
	cp := NewCheckpoints(db)

	ts, err := cp.LastSyncAt()
	if err != nil {
		t.Fatal(err)
	}
	if ts != 0 {
		t.Errorf("initial LastSyncAt = %d, want 0", ts)
	}

	if err := cp.SetLastSyncAt(12345); err != nil {
		t.Fatal(err)
	}
	ts, err = cp.LastSyncAt()
	if err != nil {
		t.Fatal(err)
	}
	if ts != 12345 {
		t.Errorf("LastSyncAt = %d, want 12345", ts)
	}

	if err := cp.SetCurrentUser("u1"); err != nil {
		t.Fatal(err)
	}
	u, err := cp.CurrentUser()
	if err != nil || u != "u1" {
		t.Errorf("CurrentUser = %q/%v, want u1", u, err)
	}
}
