package monitor

import (
	"time"

	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/mailbox"
)

// Default thresholds.
const (
	DefaultCapacityHours      = 8.0
	DefaultOverloadThreshold  = 0.8
	DefaultUnavailableTimeout = 300 * time.Second
	DefaultDeadlineWarning    = 2 * time.Hour
	DefaultStuckFactor        = 2.0
	DefaultPollConcurrency    = 8
	DefaultProbeTimeout       = 10 * time.Second
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithCapacity sets the hours of active work that make a worker fully loaded.
func WithCapacity(hours float64) Option {
	return func(m *Monitor) {
		if hours > 0 {
			m.capacity = hours
		}
	}
}

// WithOverloadThreshold sets the workload ratio above which a worker is
// Overloaded.
func WithOverloadThreshold(ratio float64) Option {
	return func(m *Monitor) {
		if ratio > 0 && ratio <= 1 {
			m.overloadThreshold = ratio
		}
	}
}

// WithUnavailableTimeout sets how long a worker may go without contact
// before it is Unavailable.
func WithUnavailableTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.unavailableTimeout = d
		}
	}
}

// WithDeadlineWarning sets how far ahead of a deadline a warning fires.
func WithDeadlineWarning(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.deadlineWarning = d
		}
	}
}

// WithStuckFactor sets the multiple of a task's estimate after which an
// active task counts as stuck.
func WithStuckFactor(f float64) Option {
	return func(m *Monitor) {
		if f > 0 {
			m.stuckFactor = f
		}
	}
}

// WithPollConcurrency bounds how many workers are probed at once.
func WithPollConcurrency(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.pollConcurrency = n
		}
	}
}

// WithProbeTimeout bounds a single reachability probe. A probe that runs
// out of time counts as no response.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// WithSender relays warning and critical alerts to the affected worker.
func WithSender(s mailbox.Sender) Option {
	return func(m *Monitor) {
		m.sender = s
	}
}

// WithBus attaches an event bus for state and alert events.
func WithBus(bus *event.Bus) Option {
	return func(m *Monitor) {
		m.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l.WithComponent("monitor")
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}
