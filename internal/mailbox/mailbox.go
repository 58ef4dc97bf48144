package mailbox

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/task"
)

// Sender delivers messages to workers. The distributor, monitor and
// coordinator depend only on this interface.
type Sender interface {
	Send(ctx context.Context, to, content string, priority task.Priority, kind Kind) bool
}

// Mailbox provides the messaging facade used by the coordinator. It wraps a
// Backend and adds ID and timestamp assignment, expiry, ordering, and
// event publication.
type Mailbox struct {
	backend  Backend
	bus      *event.Bus
	logger   *logging.Logger
	senderID string
	ttl      time.Duration
	now      func() time.Time
}

var _ Sender = (*Mailbox)(nil)

// New creates a Mailbox over the given backend.
func New(backend Backend, opts ...Option) *Mailbox {
	m := &Mailbox{
		backend:  backend,
		logger:   logging.NopLogger(),
		senderID: CoordinatorID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewFileMailbox creates a Mailbox backed by a file store in dir.
func NewFileMailbox(dir string, opts ...Option) *Mailbox {
	return New(NewStore(dir), opts...)
}

// Send delivers a message from this mailbox's sender. It reports whether the
// backend accepted the message; failures are logged and never returned as
// errors so callers can treat delivery as best-effort.
func (m *Mailbox) Send(ctx context.Context, to, content string, priority task.Priority, kind Kind) bool {
	msg := Message{
		From:     m.senderID,
		To:       to,
		Kind:     kind,
		Priority: priority,
		Content:  content,
	}
	if err := m.Post(ctx, msg); err != nil {
		m.logger.Warn("mailbox send failed",
			"to", to,
			"kind", string(kind),
			"error", err.Error(),
		)
		return false
	}
	return true
}

// Post stores a message as given, filling in ID, SentAt and ExpiresAt when
// they are empty. Workers and tests use Post to report status under their own
// address.
func (m *Mailbox) Post(ctx context.Context, msg Message) error {
	if msg.From == "" {
		return fmt.Errorf("mailbox: message From field is required")
	}
	if msg.To == "" {
		return fmt.Errorf("mailbox: message To field is required")
	}
	if !ValidKind(msg.Kind) {
		return fmt.Errorf("mailbox: unknown message kind %q", msg.Kind)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := m.now()
	if msg.ID == "" {
		msg.ID = generateID(now)
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = now
	}
	if msg.ExpiresAt.IsZero() && m.ttl > 0 {
		msg.ExpiresAt = msg.SentAt.Add(m.ttl)
	}

	if err := m.backend.Put(ctx, msg); err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Publish(NewMessageSentEvent(msg))
	}
	return nil
}

// Receive returns the unexpired messages for a worker, including
// broadcasts, ordered by priority descending and then by send time.
func (m *Mailbox) Receive(ctx context.Context, workerID string) ([]Message, error) {
	if workerID == "" {
		return nil, fmt.Errorf("mailbox: workerID is required")
	}
	broadcast, err := m.backend.Fetch(ctx, BroadcastRecipient)
	if err != nil {
		return nil, err
	}
	var targeted []Message
	if workerID != BroadcastRecipient {
		targeted, err = m.backend.Fetch(ctx, workerID)
		if err != nil {
			return nil, err
		}
	}

	now := m.now()
	all := make([]Message, 0, len(broadcast)+len(targeted))
	for _, msg := range slices.Concat(broadcast, targeted) {
		if !msg.Expired(now) {
			all = append(all, msg)
		}
	}
	sortMessages(all)
	return all, nil
}

// LastContact returns the send time of the newest message the worker has
// posted to the coordinator's inbox. A zero time with a nil error means the
// worker has never been heard from. It satisfies the monitor's prober contract.
func (m *Mailbox) LastContact(ctx context.Context, workerID string) (time.Time, error) {
	inbox, err := m.backend.Fetch(ctx, CoordinatorID)
	if err != nil {
		return time.Time{}, err
	}
	var last time.Time
	for _, msg := range inbox {
		if msg.From == workerID && msg.SentAt.After(last) {
			last = msg.SentAt
		}
	}
	return last, nil
}

// sortMessages orders messages by priority descending, then chronologically.
func sortMessages(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return a.SentAt.Compare(b.SentAt)
	})
}
