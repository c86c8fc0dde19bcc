package chat

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mwatt/replystream/model"
	"github.com/mwatt/replystream/store"
	"github.com/mwatt/replystream/stream"
)

// End-to-end: real HTTP transport, real frame parsing, sqlite transcript.
func TestSessionOverHTTPPersistsTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"t\":\"Hi\"}\n")
		io.WriteString(w, ": keep-alive\n")
		io.WriteString(w, "data: {\"t\":\" there\"}\n")
	}))
	defer srv.Close()

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	client := stream.NewClient(srv.URL, "", nil, 0)
	s := NewSession("", ModeDirect, client, db.Messages)
	record := &model.Session{ID: s.ID(), Mode: string(ModeDirect)}
	if err := db.Sessions.Create(record); err != nil {
		t.Fatalf("create session record: %v", err)
	}
	events, unsub := s.Events().Subscribe()
	defer unsub()

	if err := s.Send(context.Background(), "Hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	fin := waitFinalized(t, events)
	if fin.Content != "Hi there" {
		t.Fatalf("unexpected final content: %q", fin.Content)
	}

	msgs, err := db.Messages.ListBySession(s.ID(), 100, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "Hello" {
		t.Fatalf("unexpected persisted user message: %#v", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "Hi there" {
		t.Fatalf("unexpected persisted assistant message: %#v", msgs[1])
	}
}

func TestAssistSessionOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"t\":\"{\\\"reply\\\":\\\"Sure, \"}\n")
		io.WriteString(w, "data: {\"t\":\"creating topic X\\\"}\"}\n")
		io.WriteString(w, "data: {\"done\":true,\"reply\":\"Sure, creating topic X\",\"suggestion\":{\"type\":\"create_topic\",\"name\":\"X\"}}\n")
	}))
	defer srv.Close()

	client := stream.NewClient(srv.URL, "", nil, 0)
	s := NewSession("", ModeAssist, client, nil)
	events, unsub := s.Events().Subscribe()
	defer unsub()

	if err := s.Send(context.Background(), "add topic X"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	fin := waitFinalized(t, events)
	if fin.Content != "Sure, creating topic X" {
		t.Fatalf("unexpected final content: %q", fin.Content)
	}
	if string(fin.Suggestion) != `{"type":"create_topic","name":"X"}` {
		t.Fatalf("unexpected suggestion: %s", fin.Suggestion)
	}
}
