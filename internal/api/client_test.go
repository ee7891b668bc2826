package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, func() (string, error) { return "tok-123", nil })
}

func TestListConversationsAttachesBearer(t *testing.T) {
	var gotAuth string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/messages/conversations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"conversations": []Conversation{{ID: "a:b", UnreadCount: 2}},
		})
	})

	convs, err := c.ListConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", gotAuth)
	}
	if len(convs) != 1 || convs[0].ID != "a:b" {
		t.Errorf("conversations = %+v", convs)
	}
}

func TestSendMessage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.ReceiverID != "b" || req.Content != "hello" || req.MessageType != "text" {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(Message{
			ID: "srv-1", SenderID: "a", ReceiverID: "b",
			Content: "hello", MessageType: "text", CreatedAt: time.Now(),
		})
	})

	msg, err := c.SendMessage(context.Background(), SendMessageRequest{
		ReceiverID: "b", Content: "hello", MessageType: "text",
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "srv-1" {
		t.Errorf("id = %q, want srv-1", msg.ID)
	}
}

func TestNon2xxMapsToAPIError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad token"})
	})

	_, err := c.ListConversations(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T %v, want *APIError", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "bad token" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestMarkRead(t *testing.T) {
	var gotPath, gotMethod string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.MarkRead(context.Background(), "user-b"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/messages/user-b/read" {
		t.Errorf("%s %s, want PATCH /messages/user-b/read", gotMethod, gotPath)
	}
}

func TestUnreadCount(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{"count": 7})
	})
	n, err := c.UnreadCount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 {
		t.Errorf("count = %d, want 7", n)
	}
}

func TestMessageToStore(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := Message{ID: "srv-1", SenderID: "a", Content: "hi", MessageType: "text", Read: true, CreatedAt: at}
	sm := m.ToStore()
	if sm.Offline {
		t.Error("server message must not be offline")
	}
	if sm.Status != "read" {
		t.Errorf("status = %q, want read", sm.Status)
	}
	if sm.CreatedAt != at.UnixMilli() {
		t.Errorf("createdAt = %d, want %d", sm.CreatedAt, at.UnixMilli())
	}
}
