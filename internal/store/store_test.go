package store

import (
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func msg(id, conv, sender string, createdAt int64) *Message {
	return &Message{
		ID: id, ConversationID: conv, SenderID: sender,
		Content: "body-" + id, MessageType: TypeText,
		Status: StatusSent, CreatedAt: createdAt,
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, run again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2", result.Version)
	}
}

func TestAddMessageSortsByCreatedAt(t *testing.T) {
	db := testDB(t)

	// Insert out of order; GetMessages must come back ascending.
	for _, m := range []*Message{
		msg("m3", "a:b", "a", 3000),
		msg("m1", "a:b", "a", 1000),
		msg("m2", "a:b", "b", 2000),
	} {
		if err := db.AddMessage("a:b", m); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.GetMessages("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].ID != want {
			t.Errorf("msgs[%d].ID = %q, want %q", i, msgs[i].ID, want)
		}
	}
}

func TestAddMessageUpsert(t *testing.T) {
	db := testDB(t)

	m := msg("m1", "a:b", "a", 1000)
	if err := db.AddMessage("a:b", m); err != nil {
		t.Fatal(err)
	}
	m.Content = "edited"
	m.Status = StatusDelivered
	if err := db.AddMessage("a:b", m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.GetMessages("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (upsert)", len(msgs))
	}
	if msgs[0].Content != "edited" || msgs[0].Status != StatusDelivered {
		t.Errorf("message = %+v, want edited/delivered", msgs[0])
	}
}

func TestAddMessageCreatesConversationLazily(t *testing.T) {
	db := testDB(t)

	if err := db.AddMessage("a:b", msg("m1", "a:b", "b", 1000)); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetConversation("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("conversation not created")
	}
	if c.LastMessage == nil || c.LastMessage.ID != "m1" {
		t.Errorf("lastMessage = %+v, want m1", c.LastMessage)
	}
}

func TestLazyConversationCounterpart(t *testing.T) {
	db := testDB(t)

	// Incoming message: the sender is the counterpart.
	if err := db.AddMessage("a:b", msg("in", "a:b", "b", 1000)); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetConversation("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if c.User.ID != "b" {
		t.Errorf("incoming counterpart = %q, want %q", c.User.ID, "b")
	}

	// Outgoing offline message: we authored it, so the counterpart is
	// the receiver.
	out := msg("out", "a:c", "a", 2000)
	out.ReceiverID = "c"
	out.Offline = true
	out.Status = StatusSending
	if err := db.AddMessage("a:c", out); err != nil {
		t.Fatal(err)
	}
	c, err = db.GetConversation("a:c")
	if err != nil {
		t.Fatal(err)
	}
	if c.User.ID != "c" {
		t.Errorf("outgoing counterpart = %q, want %q", c.User.ID, "c")
	}
}

func TestAddMessageBumpsLastMessage(t *testing.T) {
	db := testDB(t)

	if err := db.AddMessage("a:b", msg("m2", "a:b", "a", 2000)); err != nil {
		t.Fatal(err)
	}
	// Older message must not steal the pointer.
	if err := db.AddMessage("a:b", msg("m1", "a:b", "b", 1000)); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetConversation("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if c.LastMessage == nil || c.LastMessage.ID != "m2" {
		t.Errorf("lastMessage = %+v, want m2", c.LastMessage)
	}
}

func TestSaveMessagesReplaces(t *testing.T) {
	db := testDB(t)

	if err := db.AddMessage("a:b", msg("old", "a:b", "a", 500)); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMessages("a:b", []Message{*msg("m1", "a:b", "a", 1000), *msg("m2", "a:b", "b", 2000)}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.GetMessages("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("messages = %+v, want [m1 m2]", msgs)
	}
}

func TestUpdateMessageStatusMissingIsNoop(t *testing.T) {
	db := testDB(t)
	if err := db.UpdateMessageStatus("a:b", "nope", StatusRead); err != nil {
		t.Errorf("UpdateMessageStatus on missing message: %v", err)
	}
}

func TestGetMessagesEmpty(t *testing.T) {
	db := testDB(t)
	msgs, err := db.GetMessages("unknown")
	if err != nil {
		t.Fatal(err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("got %v, want empty non-nil slice", msgs)
	}
}

func TestGetPendingMessages(t *testing.T) {
	db := testDB(t)

	pendingMsg := msg("tmp1", "a:b", "a", 1000)
	pendingMsg.Offline = true
	pendingMsg.Status = StatusSending
	if err := db.AddMessage("a:b", pendingMsg); err != nil {
		t.Fatal(err)
	}
	// Confirmed message from the same sender must not show up.
	if err := db.AddMessage("a:b", msg("m2", "a:b", "a", 2000)); err != nil {
		t.Fatal(err)
	}
	// Pending message from someone else must not show up either.
	other := msg("tmp2", "a:c", "c", 1500)
	other.Offline = true
	other.Status = StatusSending
	if err := db.AddMessage("a:c", other); err != nil {
		t.Fatal(err)
	}

	pending, err := db.GetPendingMessages("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].Message.ID != "tmp1" || pending[0].ConversationID != "a:b" {
		t.Errorf("pending = %+v, want tmp1 in a:b", pending[0])
	}
}

func TestReplacePending(t *testing.T) {
	db := testDB(t)

	tmp := msg("tmp1", "a:b", "a", 1000)
	tmp.Offline = true
	tmp.Status = StatusSending
	if err := db.AddMessage("a:b", tmp); err != nil {
		t.Fatal(err)
	}

	confirmed := msg("srv1", "a:b", "a", 1200)
	if err := db.ReplacePending("a:b", "tmp1", confirmed); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.GetMessages("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (no duplicate)", len(msgs))
	}
	if msgs[0].ID != "srv1" || msgs[0].Offline || msgs[0].Status != StatusSent {
		t.Errorf("message = %+v, want confirmed srv1", msgs[0])
	}

	c, err := db.GetConversation("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if c.LastMessage == nil || c.LastMessage.ID != "srv1" {
		t.Errorf("lastMessage = %+v, want srv1", c.LastMessage)
	}
}

func TestSaveConversationsRoundTripOrdering(t *testing.T) {
	db := testDB(t)

	convs := []Conversation{
		{ID: "a:b", User: User{ID: "b", Name: "Barber Bob"}, LastMessage: msg("m1", "a:b", "b", 1000)},
		{ID: "a:c", User: User{ID: "c", Name: "Carla"}, LastMessage: msg("m2", "a:c", "c", 3000)},
		{ID: "a:d", User: User{ID: "d", Name: "Dee"}, LastMessage: msg("m3", "a:d", "d", 2000), Pinned: true},
	}
	if err := db.SaveConversations(convs); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d conversations, want 3", len(got))
	}
	// Pinned first, then recency.
	for i, want := range []string{"a:d", "a:c", "a:b"} {
		if got[i].ID != want {
			t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, want)
		}
	}
	if got[0].LastMessage == nil || got[0].LastMessage.Content != "body-m3" {
		t.Errorf("lastMessage not round-tripped: %+v", got[0].LastMessage)
	}
}

func TestDeleteConversationIdempotent(t *testing.T) {
	db := testDB(t)

	if err := db.AddMessage("a:b", msg("m1", "a:b", "a", 1000)); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteConversation("a:b"); err != nil {
		t.Fatal(err)
	}
	// Second delete of the same id must succeed.
	if err := db.DeleteConversation("a:b"); err != nil {
		t.Errorf("second delete: %v", err)
	}

	msgs, err := db.GetMessages("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages survived delete: %v", msgs)
	}
	c, err := db.GetConversation("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("conversation survived delete: %+v", c)
	}
}

func TestMarkConversationOpenedUnknownID(t *testing.T) {
	db := testDB(t)

	if err := db.MarkConversationOpened("a:b"); err != nil {
		t.Fatal(err)
	}
	// Second call has the same observable effect.
	if err := db.MarkConversationOpened("a:b"); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetConversation("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.OpenedAt == 0 {
		t.Errorf("conversation = %+v, want opened_at set", c)
	}
}

func TestMarkConversationRead(t *testing.T) {
	db := testDB(t)

	inbound := msg("m1", "a:b", "b", 1000)
	inbound.ReceiverID = "a"
	if err := db.AddMessage("a:b", inbound); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertConversation(&Conversation{ID: "a:b", User: User{ID: "b"}, UnreadCount: 2}); err != nil {
		t.Fatal(err)
	}

	if err := db.MarkConversationRead("a:b", "a"); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetConversation("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if c.UnreadCount != 0 || c.ReadAt == 0 {
		t.Errorf("conversation = %+v, want unread=0 and read_at set", c)
	}
	msgs, _ := db.GetMessages("a:b")
	if !msgs[0].Read {
		t.Error("inbound message not marked read")
	}
}

func TestUnreadTotal(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConversation(&Conversation{ID: "a:b", User: User{ID: "b"}, UnreadCount: 2}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertConversation(&Conversation{ID: "a:c", User: User{ID: "c"}, UnreadCount: 3}); err != nil {
		t.Fatal(err)
	}

	total, err := db.UnreadTotal()
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("UnreadTotal = %d, want 5", total)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox(&OutboxEntry{
		ClientMsgID: "c1", ConversationID: "a:b", ReceiverID: "b",
		Content: "hello", MessageType: TypeText,
	}); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ClientMsgID != "c1" {
		t.Fatalf("pending = %+v, want [c1]", pending)
	}

	if err := db.MarkOutboxSending("c1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent("c1", "srv1"); err != nil {
		t.Fatal(err)
	}

	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending after sent, want 0", len(pending))
	}
}

func TestOutboxRequeueAndFail(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox(&OutboxEntry{ClientMsgID: "c1", ConversationID: "a:b", ReceiverID: "b", Content: "x", MessageType: TypeText}); err != nil {
		t.Fatal(err)
	}
	if err := db.RequeueOutbox("c1", "network error"); err != nil {
		t.Fatal(err)
	}

	pending, _ := db.PendingOutbox()
	if len(pending) != 1 || pending[0].Retries != 1 {
		t.Fatalf("pending = %+v, want retries=1", pending)
	}

	if err := db.MarkOutboxFailed("c1", "gave up"); err != nil {
		t.Fatal(err)
	}
	pending, _ = db.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("failed entry still pending: %+v", pending)
	}
	failed, _ := db.FailedOutbox()
	if len(failed) != 1 || failed[0].ErrorMessage != "gave up" {
		t.Fatalf("failed = %+v, want [c1 gave up]", failed)
	}

	// Manual retry resets the budget.
	if err := db.ResetOutboxEntry("c1"); err != nil {
		t.Fatal(err)
	}
	pending, _ = db.PendingOutbox()
	if len(pending) != 1 || pending[0].Retries != 0 {
		t.Errorf("pending after reset = %+v, want retries=0", pending)
	}
}

func TestCleanOldData(t *testing.T) {
	db := testDB(t)

	now := time.Now().UnixMilli()
	old := msg("old", "a:b", "b", now-40*24*int64(time.Hour/time.Millisecond))
	fresh := msg("fresh", "a:b", "b", now-5*24*int64(time.Hour/time.Millisecond))
	if err := db.AddMessage("a:b", old); err != nil {
		t.Fatal(err)
	}
	if err := db.AddMessage("a:b", fresh); err != nil {
		t.Fatal(err)
	}

	purged, err := db.CleanOldData(30 * 24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	msgs, err := db.GetMessages("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != "fresh" {
		t.Errorf("messages = %+v, want [fresh]", msgs)
	}

	// Conversation survives with its pointer on the retained message.
	c, err := db.GetConversation("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("conversation removed by clean")
	}
	if c.LastMessage == nil || c.LastMessage.ID != "fresh" {
		t.Errorf("lastMessage = %+v, want fresh", c.LastMessage)
	}
}

func TestCleanOldDataKeepsEmptyConversation(t *testing.T) {
	db := testDB(t)

	now := time.Now().UnixMilli()
	if err := db.AddMessage("a:b", msg("old", "a:b", "b", now-40*24*int64(time.Hour/time.Millisecond))); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CleanOldData(30 * 24 * time.Hour); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetConversation("a:b")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("conversation row must survive an empty message list")
	}
	if c.LastMessage != nil {
		t.Errorf("lastMessage = %+v, want nil after full purge", c.LastMessage)
	}
}

func TestCleanOldDataSkipsRecentlyOpened(t *testing.T) {
	db := testDB(t)

	now := time.Now().UnixMilli()
	if err := db.AddMessage("a:b", msg("old", "a:b", "b", now-40*24*int64(time.Hour/time.Millisecond))); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkConversationOpened("a:b"); err != nil {
		t.Fatal(err)
	}

	purged, err := db.CleanOldData(30 * 24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 0 {
		t.Errorf("purged = %d, want 0 for recently opened conversation", purged)
	}
}

func TestStats(t *testing.T) {
	db := testDB(t)

	if err := db.AddMessage("a:b", msg("m1", "a:b", "a", 1000)); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox(&OutboxEntry{ClientMsgID: "c1", ConversationID: "a:b", ReceiverID: "b", Content: "x", MessageType: TypeText}); err != nil {
		t.Fatal(err)
	}

	s, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if s.Conversations != 1 || s.Messages != 1 || s.PendingMessages != 1 {
		t.Errorf("stats = %+v, want 1/1/1", s)
	}
	if s.TotalSizeKB <= 0 {
		t.Errorf("TotalSizeKB = %d, want > 0", s.TotalSizeKB)
	}
}

func TestClearAll(t *testing.T) {
	db := testDB(t)

	if err := db.AddMessage("a:b", msg("m1", "a:b", "a", 1000)); err != nil {
		t.Fatal(err)
	}
	if err := db.SetState("last_sync_at", "123"); err != nil {
		t.Fatal(err)
	}
	if err := db.ClearAll(); err != nil {
		t.Fatal(err)
	}

	s, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if s.Conversations != 0 || s.Messages != 0 || s.PendingMessages != 0 {
		t.Errorf("stats after clear = %+v, want zeros", s)
	}
	v, err := db.GetState("last_sync_at")
	if err != nil || v != "" {
		t.Errorf("GetState = %q/%v, want empty", v, err)
	}
}

func TestPairConversationID(t *testing.T) {
	if PairConversationID("a", "b") != PairConversationID("b", "a") {
		t.Error("pair id must be order-independent")
	}
	if PairConversationID("a", "b") != "a:b" {
		t.Errorf("pair id = %q, want a:b", PairConversationID("a", "b"))
	}
}
