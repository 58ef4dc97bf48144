package mailbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/foreman/internal/task"
)

func TestStore_PutCreatesIndex(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	msg := Message{ID: "m1", From: CoordinatorID, To: "w-1", Kind: KindTaskAssignment, Content: "t-1"}
	if err := store.Put(context.Background(), msg); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	indexPath := filepath.Join(dir, mailboxDir, "w-1", indexFile)
	if _, err := os.Stat(indexPath); err != nil {
		t.Fatalf("index file not created: %v", err)
	}
}

func TestStore_PutRequiresRecipient(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Put(context.Background(), Message{From: "a", Kind: KindStatus}); err == nil {
		t.Error("expected error for empty To")
	}
}

func TestStore_FetchRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	sent := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	msg := Message{
		ID:        "m1",
		From:      CoordinatorID,
		To:        "w-1",
		Kind:      KindAlert,
		Priority:  task.PriorityHigh,
		Content:   "overloaded",
		SentAt:    sent,
		ExpiresAt: sent.Add(time.Hour),
		Metadata:  map[string]string{"alert_id": "a-1"},
	}
	if err := store.Put(context.Background(), msg); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Fetch(context.Background(), "w-1")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	m := got[0]
	if m.ID != "m1" || m.Kind != KindAlert || m.Priority != task.PriorityHigh {
		t.Errorf("unexpected message: %+v", m)
	}
	if !m.SentAt.Equal(sent) || !m.ExpiresAt.Equal(sent.Add(time.Hour)) {
		t.Errorf("timestamps not preserved: %+v", m)
	}
	if m.Metadata["alert_id"] != "a-1" {
		t.Errorf("metadata not preserved: %v", m.Metadata)
	}
}

func TestStore_FetchMissingRecipient(t *testing.T) {
	store := NewStore(t.TempDir())
	got, err := store.Fetch(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if _, err := store.Fetch(context.Background(), ""); err == nil {
		t.Error("expected error for empty recipient")
	}
}

func TestStore_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	ctx := context.Background()

	if err := store.Put(ctx, Message{ID: "a", From: "x", To: "w", Kind: KindStatus}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, mailboxDir, "w", indexFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{not json\n\n")
	_ = f.Close()
	if err := store.Put(ctx, Message{ID: "b", From: "x", To: "w", Kind: KindStatus}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Fetch(ctx, "w")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 valid messages, got %d", len(got))
	}
}

func TestStore_ConcurrentPut(t *testing.T) {
	store := NewStore(t.TempDir())
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			msg := Message{ID: fmt.Sprintf("m-%d", i), From: "x", To: "w", Kind: KindHeartbeat}
			if err := store.Put(ctx, msg); err != nil {
				t.Errorf("Put() error = %v", err)
			}
		})
	}
	wg.Wait()

	got, err := store.Fetch(ctx, "w")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != n {
		t.Errorf("expected %d messages, got %d", n, len(got))
	}
}
