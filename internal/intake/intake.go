// Package intake applies worker status reports to the task distributor.
//
// Workers never touch task records. When a worker finishes a task it posts a
// status message to the coordinator inbox; the coordinator drains the inbox
// through an Intake at the start of every cycle and the distributor decides
// whether the report still applies.
package intake

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/foreman/internal/distributor"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/mailbox"
)

// Inbox reads messages addressed to a recipient.
type Inbox interface {
	Receive(ctx context.Context, recipient string) ([]mailbox.Message, error)
}

// Reporter accepts decoded status reports.
type Reporter interface {
	ApplyReport(workerID string, sentAt time.Time, r distributor.StatusReport) bool
}

// Result summarizes one drain of the inbox.
type Result struct {
	Applied   int // Reports that changed a task
	Ignored   int // Stale or mismatched reports
	Malformed int // Status messages that could not be decoded
}

// Intake drains status messages from the coordinator inbox. Messages stay in
// the mailbox until they expire, so Intake remembers which IDs it has seen.
type Intake struct {
	inbox     Inbox
	reporter  Reporter
	recipient string
	logger    *logging.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// Option configures an Intake.
type Option func(*Intake)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(i *Intake) {
		if l != nil {
			i.logger = l.WithComponent("intake")
		}
	}
}

// WithRecipient reads a different inbox than the coordinator's.
func WithRecipient(id string) Option {
	return func(i *Intake) {
		if id != "" {
			i.recipient = id
		}
	}
}

// New creates an Intake reading inbox and applying reports to reporter.
func New(inbox Inbox, reporter Reporter, opts ...Option) *Intake {
	i := &Intake{
		inbox:     inbox,
		reporter:  reporter,
		recipient: mailbox.CoordinatorID,
		logger:    logging.NopLogger(),
		seen:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Drain applies every unseen status message. A mailbox error is returned
// without marking anything as seen, so the next drain retries.
func (i *Intake) Drain(ctx context.Context) (Result, error) {
	msgs, err := i.inbox.Receive(ctx, i.recipient)
	if err != nil {
		return Result{}, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	var res Result
	present := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		present[msg.ID] = struct{}{}
		if msg.Kind != mailbox.KindStatus || msg.IsBroadcast() {
			continue
		}
		if _, ok := i.seen[msg.ID]; ok {
			continue
		}
		i.seen[msg.ID] = struct{}{}

		report, err := distributor.DecodeStatusReport(msg.Content)
		if err != nil {
			res.Malformed++
			i.logger.WithWorker(msg.From).Warn("malformed status report", "message_id", msg.ID, "error", err.Error())
			continue
		}
		if i.reporter.ApplyReport(msg.From, msg.SentAt, report) {
			res.Applied++
		} else {
			res.Ignored++
			i.logger.WithWorker(msg.From).WithTask(report.TaskID).Debug("status report ignored", "status", string(report.Status))
		}
	}

	// Forget messages the mailbox has expired.
	for id := range i.seen {
		if _, ok := present[id]; !ok {
			delete(i.seen, id)
		}
	}
	return res, nil
}
