package mailbox

import (
	"time"

	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/logging"
)

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithBus attaches an event bus to the Mailbox. When set, a
// MessageSentEvent is published after every successful Send.
func WithBus(bus *event.Bus) Option {
	return func(m *Mailbox) {
		m.bus = bus
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *logging.Logger) Option {
	return func(m *Mailbox) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTTL sets the time-to-live applied to messages sent through Send.
// Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(m *Mailbox) {
		if ttl >= 0 {
			m.ttl = ttl
		}
	}
}

// WithSenderID sets the From address stamped on outgoing messages.
// Defaults to CoordinatorID.
func WithSenderID(id string) Option {
	return func(m *Mailbox) {
		if id != "" {
			m.senderID = id
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Mailbox) {
		if now != nil {
			m.now = now
		}
	}
}
