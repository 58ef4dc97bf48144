package coordinator

import (
	"time"

	"github.com/Iron-Ham/foreman/internal/balance"
	"github.com/Iron-Ham/foreman/internal/clock"
	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/mailbox"
)

// Loop and policy defaults.
const (
	DefaultInterval           = 60 * time.Second
	DefaultBackoff            = 5 * time.Second
	DefaultDeadlineWindow     = 2 * time.Hour
	DefaultUrgentWindow       = 2 * time.Hour
	DefaultOverloadHours      = 8.0
	DefaultUnderloadHours     = 4.0
	DefaultMaxConcurrent      = 3
	DefaultMaxRedistributions = 3
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval sets the time between cycles.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithBackoff sets the pause after a failed cycle.
func WithBackoff(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// WithClock overrides the time source used for timestamps and sleeps.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithStrategy sets the initial balancing strategy.
func WithStrategy(s balance.Strategy) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.strategy = s
		}
	}
}

// WithRegistry sets the capability registry. Workers registered there are
// candidates for rebalancing even before they hold any task.
func WithRegistry(r *balance.Registry) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithHistory persists every report.
func WithHistory(h History) Option {
	return func(c *Coordinator) {
		c.history = h
	}
}

// WithIntake drains worker status reports at the start of every cycle.
func WithIntake(in Intake) Option {
	return func(c *Coordinator) {
		c.intake = in
	}
}

// WithSender sends urgent notifications in emergency mode.
func WithSender(s mailbox.Sender) Option {
	return func(c *Coordinator) {
		c.sender = s
	}
}

// WithBus attaches an event bus for mode and cycle events.
func WithBus(bus *event.Bus) Option {
	return func(c *Coordinator) {
		c.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l.WithComponent("coordinator")
		}
	}
}

// WithStateDir checkpoints task state, the alert log and the capability
// registry to dir after every cycle.
func WithStateDir(dir string) Option {
	return func(c *Coordinator) {
		c.stateDir = dir
	}
}

// WithDeadlineWindow sets how close a deadline must be before Normal mode
// bumps a Low task to Medium.
func WithDeadlineWindow(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.deadlineWindow = d
		}
	}
}

// WithUrgentWindow sets how close a deadline must be before Emergency mode
// escalates the task to Critical.
func WithUrgentWindow(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.urgentWindow = d
		}
	}
}

// WithEmergencyHours sets the loads in hours above which a worker is
// shed in emergency mode and below which it may receive the shed work.
func WithEmergencyHours(overload, underload float64) Option {
	return func(c *Coordinator) {
		if overload > 0 && underload > 0 && underload < overload {
			c.overloadHours = overload
			c.underloadHours = underload
		}
	}
}

// WithMaxConcurrent sets the Active task limit used when distributing.
func WithMaxConcurrent(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// WithAutoDistribute controls whether reports schedule distribution of
// worker backlogs.
func WithAutoDistribute(enabled bool) Option {
	return func(c *Coordinator) {
		c.autoDistribute = enabled
	}
}

// WithMaxRedistributions caps how often a failed task is scheduled for
// redistribution.
func WithMaxRedistributions(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.maxRedistributions = n
		}
	}
}

// WithAlertRetention prunes alerts resolved longer ago than d after each
// cycle. Zero keeps everything.
func WithAlertRetention(d time.Duration) Option {
	return func(c *Coordinator) {
		c.alertRetention = d
	}
}
