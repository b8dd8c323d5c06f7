package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/spectraflex/omnichat/internal/model/chat"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a session id")
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("expected %s, got %s", created.ID, got.ID)
	}
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	store := NewMemoryStore()

	if _, err := store.Get(context.Background(), "missing"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStoreAppendAndHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := chat.Message{SessionID: sess.ID, Sender: "user", Content: "hello"}
	if err := store.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := store.History(ctx, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 message, got %d", len(history))
	}
	if history[0].Content != "hello" || history[0].ID == "" || history[0].CreatedAt.IsZero() {
		t.Fatalf("message not fully populated: %+v", history[0])
	}
}

func TestMemoryStoreAppendUnknownSession(t *testing.T) {
	store := NewMemoryStore()

	err := store.AppendMessage(context.Background(), chat.Message{SessionID: "missing", Content: "x"})
	if err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStoreHistoryCap(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess, _ := store.Create(ctx)
	for i := 0; i < historyCap+10; i++ {
		msg := chat.Message{SessionID: sess.ID, Sender: "user", Content: fmt.Sprintf("m%d", i)}
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	history, err := store.History(ctx, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != historyCap {
		t.Fatalf("expected %d messages, got %d", historyCap, len(history))
	}
	// Oldest entries were dropped.
	if history[0].Content != "m10" {
		t.Fatalf("expected m10 first, got %s", history[0].Content)
	}
}

func TestMemoryStoreTouch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess, _ := store.Create(ctx)
	if err := store.Touch(ctx, sess.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Touch(ctx, "missing"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
