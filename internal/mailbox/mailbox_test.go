package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/task"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time            { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMailbox(t *testing.T, opts ...Option) (*Mailbox, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewFileMailbox(t.TempDir(), opts...), clock
}

type failingBackend struct{}

func (failingBackend) Put(context.Context, Message) error { return errors.New("disk full") }
func (failingBackend) Fetch(context.Context, string) ([]Message, error) {
	return nil, errors.New("disk full")
}

func TestMailbox_SendPopulatesFields(t *testing.T) {
	mb, clock := newTestMailbox(t, WithTTL(time.Hour))
	ctx := context.Background()

	if !mb.Send(ctx, "w-1", "task t-1", task.PriorityHigh, KindTaskAssignment) {
		t.Fatal("Send() = false, want true")
	}

	msgs, err := mb.Receive(ctx, "w-1")
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.ID == "" {
		t.Error("expected generated ID")
	}
	if m.From != CoordinatorID {
		t.Errorf("From = %q, want %q", m.From, CoordinatorID)
	}
	if !m.SentAt.Equal(clock.Now()) {
		t.Errorf("SentAt = %v, want %v", m.SentAt, clock.Now())
	}
	if !m.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", m.ExpiresAt)
	}
}

func TestMailbox_SendFailureReturnsFalse(t *testing.T) {
	mb := New(failingBackend{})
	if mb.Send(context.Background(), "w-1", "x", task.PriorityLow, KindStatus) {
		t.Error("Send() = true on failing backend")
	}
	if mb.Send(context.Background(), "w-1", "x", task.PriorityLow, Kind("bogus")) {
		t.Error("Send() = true for unknown kind")
	}
}

func TestMailbox_ReceiveOrdering(t *testing.T) {
	mb, clock := newTestMailbox(t)
	ctx := context.Background()

	mb.Send(ctx, "w-1", "low-early", task.PriorityLow, KindStatus)
	clock.Advance(time.Second)
	mb.Send(ctx, "w-1", "critical", task.PriorityCritical, KindUrgent)
	clock.Advance(time.Second)
	mb.Send(ctx, BroadcastRecipient, "medium-broadcast", task.PriorityMedium, KindStatus)
	clock.Advance(time.Second)
	mb.Send(ctx, "w-1", "low-late", task.PriorityLow, KindStatus)
	mb.Send(ctx, "w-2", "other worker", task.PriorityCritical, KindUrgent)

	msgs, err := mb.Receive(ctx, "w-1")
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	want := []string{"critical", "medium-broadcast", "low-early", "low-late"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].Content != w {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].Content, w)
		}
	}
}

func TestMailbox_ReceiveExcludesExpired(t *testing.T) {
	mb, clock := newTestMailbox(t, WithTTL(time.Minute))
	ctx := context.Background()

	mb.Send(ctx, "w-1", "old", task.PriorityMedium, KindStatus)
	clock.Advance(2 * time.Minute)
	mb.Send(ctx, "w-1", "fresh", task.PriorityMedium, KindStatus)

	msgs, err := mb.Receive(ctx, "w-1")
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "fresh" {
		t.Fatalf("expected only fresh message, got %+v", msgs)
	}
}

func TestMailbox_LastContact(t *testing.T) {
	mb, clock := newTestMailbox(t)
	ctx := context.Background()

	last, err := mb.LastContact(ctx, "w-1")
	if err != nil {
		t.Fatalf("LastContact() error = %v", err)
	}
	if !last.IsZero() {
		t.Errorf("expected zero time for unknown worker, got %v", last)
	}

	first := clock.Now()
	if err := mb.Post(ctx, Message{From: "w-1", To: CoordinatorID, Kind: KindHeartbeat}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	if err := mb.Post(ctx, Message{From: "w-2", To: CoordinatorID, Kind: KindStatus}); err != nil {
		t.Fatal(err)
	}

	last, err = mb.LastContact(ctx, "w-1")
	if err != nil {
		t.Fatalf("LastContact() error = %v", err)
	}
	if !last.Equal(first) {
		t.Errorf("LastContact = %v, want %v", last, first)
	}

	if _, err := New(failingBackend{}).LastContact(ctx, "w-1"); err == nil {
		t.Error("expected error from failing backend")
	}
}

func TestMailbox_PostValidation(t *testing.T) {
	mb, _ := newTestMailbox(t)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  Message
	}{
		{"missing from", Message{To: "w", Kind: KindStatus}},
		{"missing to", Message{From: "w", Kind: KindStatus}},
		{"unknown kind", Message{From: "w", To: "x", Kind: "gossip"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := mb.Post(ctx, tt.msg); err == nil {
				t.Error("expected error")
			}
		})
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := mb.Post(cancelled, Message{From: "w", To: "x", Kind: KindStatus}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestMailbox_PublishesEvents(t *testing.T) {
	bus := event.NewBus()
	var got []event.MessageSentEvent
	bus.Subscribe("mailbox.message_sent", func(e event.Event) {
		got = append(got, e.(event.MessageSentEvent))
	})

	mb, _ := newTestMailbox(t, WithBus(bus))
	mb.Send(context.Background(), "w-1", "hi", task.PriorityCritical, KindUrgent)

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].To != "w-1" || got[0].Kind != "urgent" || got[0].Priority != "critical" {
		t.Errorf("unexpected event: %+v", got[0])
	}
}

func TestMessage_Expired(t *testing.T) {
	now := time.Now()
	if (Message{}).Expired(now) {
		t.Error("message without expiry should never expire")
	}
	if !(Message{ExpiresAt: now}).Expired(now) {
		t.Error("message should be expired at its expiry instant")
	}
	if (Message{ExpiresAt: now.Add(time.Second)}).Expired(now) {
		t.Error("message should not be expired before its expiry")
	}
}
