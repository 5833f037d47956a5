package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ideaboard/internal/pipeline"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	completed := time.Now()
	report := RunReport{
		RunID:       "run-1",
		Stage:       pipeline.StageComplete,
		StartedAt:   completed.Add(-time.Minute),
		CompletedAt: &completed,
		Authors:     3,
		Ideas:       12,
	}

	if err := notifier.Notify(context.Background(), report); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id wrong: %#v", received)
	}
	if !strings.Contains(received["text"], "complete") {
		t.Fatalf("text should mention completion: %q", received["text"])
	}
}

func TestTelegramNotifierRejectsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), RunReport{Stage: pipeline.StageFailed}); err == nil {
		t.Fatal("ok=false should be an error")
	}
}

func TestRenderMessageFailureListsErrors(t *testing.T) {
	report := RunReport{
		RunID:     "run-2",
		Stage:     pipeline.StageFailed,
		StartedAt: time.Now(),
		Errors:    []string{"backfill deepvalue: timeout"},
	}

	text := renderMessage(report)
	if !strings.Contains(text, "FAILED") {
		t.Fatalf("failure report should say FAILED: %q", text)
	}
	if !strings.Contains(text, "backfill deepvalue") {
		t.Fatalf("failure report should carry the error: %q", text)
	}
}
