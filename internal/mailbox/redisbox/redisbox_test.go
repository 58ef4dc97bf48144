package redisbox

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Iron-Ham/foreman/internal/mailbox"
	"github.com/Iron-Ham/foreman/internal/task"
)

// newTestBackend connects to the server named by FOREMAN_TEST_REDIS_ADDR and
// isolates keys under a per-test prefix.
func newTestBackend(t *testing.T, opts ...Option) *Backend {
	t.Helper()
	addr := os.Getenv("FOREMAN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FOREMAN_TEST_REDIS_ADDR not set")
	}
	prefix := fmt.Sprintf("foreman-test:%s:%d", t.Name(), time.Now().UnixNano())
	opts = append([]Option{WithPrefix(prefix)}, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := Dial(ctx, addr, os.Getenv("FOREMAN_TEST_REDIS_PASSWORD"), opts...)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() {
		keys, _ := b.client.Keys(context.Background(), prefix+":*").Result()
		if len(keys) > 0 {
			b.client.Del(context.Background(), keys...)
		}
		_ = b.Close()
	})
	return b
}

func TestScore_Ordering(t *testing.T) {
	early := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	if score(task.PriorityCritical, late) >= score(task.PriorityLow, early) {
		t.Error("critical messages should sort before low ones regardless of time")
	}
	if score(task.PriorityMedium, early) >= score(task.PriorityMedium, late) {
		t.Error("within a priority, earlier messages should sort first")
	}
}

func TestBackend_PutFetch(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	msgs := []mailbox.Message{
		{ID: "a", From: "coordinator", To: "w-1", Kind: mailbox.KindStatus, Priority: task.PriorityLow, SentAt: now},
		{ID: "b", From: "coordinator", To: "w-1", Kind: mailbox.KindUrgent, Priority: task.PriorityCritical, SentAt: now.Add(time.Second)},
	}
	for _, m := range msgs {
		if err := b.Put(ctx, m); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	got, err := b.Fetch(ctx, "w-1")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Errorf("order = [%s %s], want [b a]", got[0].ID, got[1].ID)
	}
}

func TestBackend_PrunesExpired(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	b := newTestBackend(t, WithClock(clock))
	ctx := context.Background()

	expired := mailbox.Message{ID: "old", From: "c", To: "w", Kind: mailbox.KindStatus, SentAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)}
	live := mailbox.Message{ID: "new", From: "c", To: "w", Kind: mailbox.KindStatus, SentAt: now, ExpiresAt: now.Add(time.Hour)}
	for _, m := range []mailbox.Message{expired, live} {
		if err := b.Put(ctx, m); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	got, err := b.Fetch(ctx, "w")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("expected only live message, got %+v", got)
	}
	n, err := b.client.HLen(ctx, b.key("w", "messages")).Result()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected expired body to be deleted, hash has %d entries", n)
	}
}

func TestBackend_WithMailbox(t *testing.T) {
	b := newTestBackend(t)
	mb := mailbox.New(b)
	ctx := context.Background()

	if !mb.Send(ctx, "w-1", "t-1", task.PriorityHigh, mailbox.KindTaskAssignment) {
		t.Fatal("Send() = false")
	}
	if err := mb.Post(ctx, mailbox.Message{From: "w-1", To: mailbox.CoordinatorID, Kind: mailbox.KindHeartbeat}); err != nil {
		t.Fatal(err)
	}

	got, err := mb.Receive(ctx, "w-1")
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "t-1" {
		t.Errorf("unexpected messages: %+v", got)
	}
	last, err := mb.LastContact(ctx, "w-1")
	if err != nil {
		t.Fatal(err)
	}
	if last.IsZero() {
		t.Error("expected a last contact time")
	}
}
