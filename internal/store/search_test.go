package store

import "testing"

func addSearchMsg(t *testing.T, db *DB, id, conv, content string, createdAt int64) {
	t.Helper()
	if err := db.AddMessage(conv, &Message{
		ID: id, ConversationID: conv, SenderID: "bob",
		Content: content, MessageType: TypeText,
		Status: StatusSent, CreatedAt: createdAt,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)
	addSearchMsg(t, db, "m1", "a:b", "booking a haircut for friday", 1000)
	addSearchMsg(t, db, "m2", "a:b", "running late, sorry", 2000)
	addSearchMsg(t, db, "m3", "a:c", "haircut looked great", 3000)

	hits, err := db.SearchMessages("haircut", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	// Newest first.
	if hits[0].Message.ID != "m3" || hits[1].Message.ID != "m1" {
		t.Errorf("order = %s, %s", hits[0].Message.ID, hits[1].Message.ID)
	}
	if hits[0].Snippet == "" {
		t.Error("empty snippet")
	}
}

func TestSearchMessagesScopedToConversation(t *testing.T) {
	db := testDB(t)
	addSearchMsg(t, db, "m1", "a:b", "haircut at noon", 1000)
	addSearchMsg(t, db, "m2", "a:c", "haircut at five", 2000)

	hits, err := db.SearchMessages("haircut", "a:c", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Message.ID != "m2" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestSearchIndexFollowsDeletes(t *testing.T) {
	db := testDB(t)
	addSearchMsg(t, db, "m1", "a:b", "delete me please", 1000)

	if err := db.SaveMessages("a:b", []Message{}); err != nil {
		t.Fatal(err)
	}
	hits, err := db.SearchMessages("delete", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("hits after delete = %+v, want none", hits)
	}
}
