package distributor

import (
	"time"

	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/mailbox"
	"github.com/Iron-Ham/foreman/internal/task"
)

// Defaults are applied to CreateRequest fields left unset.
type Defaults struct {
	Priority       task.Priority
	EstimatedHours float64
	DeadlineOffset time.Duration
}

// DefaultDefaults returns medium priority, four hours of effort, and a
// deadline one day out.
func DefaultDefaults() Defaults {
	return Defaults{
		Priority:       task.PriorityMedium,
		EstimatedHours: 4,
		DeadlineOffset: 24 * time.Hour,
	}
}

// Option configures a Distributor.
type Option func(*Distributor)

// WithSender sets the mailbox used for task assignments. Without one,
// Distribute activates tasks without sending anything.
func WithSender(s mailbox.Sender) Option {
	return func(d *Distributor) {
		d.sender = s
	}
}

// WithBus attaches an event bus. Every mutation publishes an event.
func WithBus(bus *event.Bus) Option {
	return func(d *Distributor) {
		d.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Distributor) {
		if l != nil {
			d.logger = l.WithComponent("distributor")
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Distributor) {
		if now != nil {
			d.now = now
		}
	}
}

// WithDefaults overrides DefaultDefaults. Non-positive hours or offset keep
// the built-in value.
func WithDefaults(def Defaults) Option {
	return func(d *Distributor) {
		if def.Priority.IsValid() {
			d.defaults.Priority = def.Priority
		}
		if def.EstimatedHours > 0 {
			d.defaults.EstimatedHours = def.EstimatedHours
		}
		if def.DeadlineOffset > 0 {
			d.defaults.DeadlineOffset = def.DeadlineOffset
		}
	}
}
