package mailbox

import (
	"time"

	"github.com/Iron-Ham/foreman/internal/task"
)

// Kind identifies the purpose of a message.
type Kind string

const (
	// KindTaskAssignment carries a newly distributed task to its worker.
	KindTaskAssignment Kind = "task_assignment"

	// KindStatus is a progress update from a worker to the coordinator.
	KindStatus Kind = "status"

	// KindAlert relays a monitor alert to the affected worker.
	KindAlert Kind = "alert"

	// KindUrgent flags a task whose deadline is about to pass.
	KindUrgent Kind = "urgent"

	// KindHeartbeat is a liveness signal from a worker.
	KindHeartbeat Kind = "heartbeat"
)

// BroadcastRecipient is the special "to" value for messages intended for all workers.
const BroadcastRecipient = "broadcast"

// CoordinatorID is the mailbox address of the coordinator. Workers report
// status and heartbeats here.
const CoordinatorID = "coordinator"

// Message is a single unit of communication between the coordinator and a worker.
type Message struct {
	ID        string            `json:"id"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Kind      Kind              `json:"kind"`
	Priority  task.Priority     `json:"priority"`
	Content   string            `json:"content"`
	SentAt    time.Time         `json:"sent_at"`
	ExpiresAt time.Time         `json:"expires_at,omitzero"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// IsBroadcast returns true if the message is addressed to all workers.
func (m Message) IsBroadcast() bool {
	return m.To == BroadcastRecipient
}

// Expired reports whether the message's time-to-live has elapsed at now.
// Messages without an expiry never expire.
func (m Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

var validKinds = map[Kind]bool{
	KindTaskAssignment: true,
	KindStatus:         true,
	KindAlert:          true,
	KindUrgent:         true,
	KindHeartbeat:      true,
}

// ValidKind returns true if the given kind is known.
func ValidKind(k Kind) bool {
	return validKinds[k]
}
