package snapshot_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumichat/agent-queue/internal/model"
	"github.com/lumichat/agent-queue/internal/snapshot"
)

func TestFetchConversations(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode([]model.Conversation{
			{ID: "c1", ChatType: model.ChatTypeQueue, UnreadCount: 2},
		})
	}))
	defer server.Close()

	client := snapshot.New(server.URL, "svc-token")
	conversations, err := client.FetchConversations(context.Background())
	if err != nil {
		t.Fatalf("fetch conversations: %v", err)
	}

	if gotPath != "/api/agent/chats" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer svc-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if len(conversations) != 1 || conversations[0].ID != "c1" {
		t.Fatalf("unexpected payload: %+v", conversations)
	}
}

func TestFetchLikes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/agent/likes" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]model.Like{{ID: "l1", CustomerName: "Ana"}})
	}))
	defer server.Close()

	client := snapshot.New(server.URL, "")
	likes, err := client.FetchLikes(context.Background())
	if err != nil {
		t.Fatalf("fetch likes: %v", err)
	}
	if len(likes) != 1 || likes[0].ID != "l1" {
		t.Fatalf("unexpected likes: %+v", likes)
	}
}

func TestActionCallPostsBody(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := snapshot.New(server.URL, "")
	if err := client.SetPanicRoom(context.Background(), "c1", true); err != nil {
		t.Fatalf("set panic room: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/api/agent/chats/c1/panic-room" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotBody["enabled"] != true {
		t.Fatalf("unexpected body: %v", gotBody)
	}
}

func TestErrorResponseParsed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "already assigned"})
	}))
	defer server.Close()

	client := snapshot.New(server.URL, "")
	err := client.AssignAgent(context.Background(), "c1", "a1")
	if err == nil {
		t.Fatalf("expected error")
	}

	var apiErr *snapshot.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Message != "already assigned" {
		t.Fatalf("unexpected APIError: %+v", apiErr)
	}
}

func TestErrorResponseWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := snapshot.New(server.URL, "")
	err := client.MarkRead(context.Background(), "c1")

	var apiErr *snapshot.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("expected status text fallback, got %q", apiErr.Message)
	}
}
