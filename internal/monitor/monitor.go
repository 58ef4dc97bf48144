package monitor

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/foreman/internal/distributor"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/mailbox"
	"github.com/Iron-Ham/foreman/internal/task"
)

// TaskSource is the read side of the task registry the monitor observes.
// *distributor.Distributor satisfies it.
type TaskSource interface {
	Workers() []string
	List(f distributor.Filter) []*task.Task
	ActiveLoad(workerID string) float64
}

// Monitor derives worker health from the task registry and probe results,
// and keeps the alert log.
type Monitor struct {
	source TaskSource
	prober Prober
	sender mailbox.Sender
	bus    *event.Bus
	logger *logging.Logger
	now    func() time.Time

	capacity           float64
	overloadThreshold  float64
	unavailableTimeout time.Duration
	deadlineWarning    time.Duration
	stuckFactor        float64
	pollConcurrency    int
	probeTimeout       time.Duration

	mu          sync.Mutex
	statuses    map[string]*WorkerStatus
	workerLocks map[string]*sync.Mutex
	alerts      []*Alert
	byID        map[string]*Alert
	open        map[alertKey]*Alert

	// Task alerts remember the task status they were raised under. Once
	// resolved, the condition stays quiet until that status changes.
	raisedUnder map[string]task.Status
	handled     map[alertKey]task.Status
}

// New creates a Monitor over source. Probe results come from prober.
func New(source TaskSource, prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		source:             source,
		prober:             prober,
		logger:             logging.NopLogger(),
		now:                time.Now,
		capacity:           DefaultCapacityHours,
		overloadThreshold:  DefaultOverloadThreshold,
		unavailableTimeout: DefaultUnavailableTimeout,
		deadlineWarning:    DefaultDeadlineWarning,
		stuckFactor:        DefaultStuckFactor,
		pollConcurrency:    DefaultPollConcurrency,
		probeTimeout:       DefaultProbeTimeout,
		statuses:           make(map[string]*WorkerStatus),
		workerLocks:        make(map[string]*sync.Mutex),
		byID:               make(map[string]*Alert),
		open:               make(map[alertKey]*Alert),
		raisedUnder:        make(map[string]task.Status),
		handled:            make(map[alertKey]task.Status),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Capacity returns the configured full-load hours.
func (m *Monitor) Capacity() float64 {
	return m.capacity
}

// DeadlineWarning returns the configured warning window.
func (m *Monitor) DeadlineWarning() time.Duration {
	return m.deadlineWarning
}

// Workload returns the worker's active hours as a fraction of capacity,
// clamped to [0, 1].
func (m *Monitor) Workload(workerID string) float64 {
	ratio := m.source.ActiveLoad(workerID) / m.capacity
	return min(max(ratio, 0), 1)
}

// Cycle polls every known worker and then checks every task. Workers are
// probed concurrently; updates to one worker never overlap.
func (m *Monitor) Cycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(errors.ErrCanceled, err)
	}

	workers := m.source.Workers()
	p := pool.New().WithMaxGoroutines(m.pollConcurrency)
	for _, workerID := range workers {
		p.Go(func() {
			m.pollWorker(ctx, workerID)
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return errors.Join(errors.ErrCanceled, err)
	}
	m.checkTasks(ctx)
	return nil
}

func (m *Monitor) workerLock(workerID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.workerLocks[workerID]
	if !ok {
		l = &sync.Mutex{}
		m.workerLocks[workerID] = l
	}
	return l
}

// pollWorker probes one worker and folds the result into its status.
func (m *Monitor) pollWorker(ctx context.Context, workerID string) {
	lock := m.workerLock(workerID)
	lock.Lock()
	defer lock.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	contact, probeErr := m.prober.LastContact(probeCtx, workerID)
	cancel()
	if ctx.Err() != nil {
		return
	}
	if errors.Is(probeErr, context.DeadlineExceeded) {
		// A slow probe is the same as silence.
		terr := errors.NewTimeoutError("contacting worker "+workerID, m.probeTimeout).WithCause(probeErr)
		m.logger.WithWorker(workerID).Debug("worker contact timed out", "error", terr.Error())
		contact, probeErr = time.Time{}, nil
	}

	ratio := m.Workload(workerID)
	active := m.source.List(distributor.Filter{WorkerID: workerID, Statuses: []task.Status{task.StatusActive}})
	completed := m.source.List(distributor.Filter{WorkerID: workerID, Statuses: []task.Status{task.StatusCompleted}})
	now := m.now()

	m.mu.Lock()
	st, ok := m.statuses[workerID]
	if !ok {
		st = &WorkerStatus{WorkerID: workerID, State: StateIdle, FirstSeen: now}
		m.statuses[workerID] = st
	}
	prev := st.State
	if !ok {
		prev = ""
	}

	st.WorkloadRatio = ratio
	st.ActiveTaskIDs = taskIDs(active)
	st.CompletedCount, st.AvgCompletion = completionStats(completed)
	if contact.After(st.LastSeen) {
		st.LastSeen = contact
	}

	var raised []*Alert
	switch {
	case probeErr != nil:
		st.State = StateError
		st.ErrorCount++
		st.LastError = probeErr.Error()
		st.ErrorAt = now
		raised = m.raiseLocked(AlertWorkerError, SeverityWarning, workerID, "",
			fmt.Sprintf("worker %s probe failed: %v", workerID, probeErr), now)
	case prev == StateError && !st.LastSeen.After(st.ErrorAt):
		// Stays in error until the worker reports after the failure.
	default:
		since := st.LastSeen
		if since.IsZero() {
			since = st.FirstSeen
		}
		silent := now.Sub(since)
		switch {
		case silent > m.unavailableTimeout:
			st.State = StateUnavailable
			raised = m.raiseLocked(AlertWorkerTimeout, SeverityCritical, workerID, "",
				fmt.Sprintf("worker %s silent for %s", workerID, silent.Round(time.Second)), now)
		case ratio == 0:
			st.State = StateIdle
		case ratio <= m.overloadThreshold:
			st.State = StateWorking
		default:
			st.State = StateOverloaded
			raised = m.raiseLocked(AlertWorkerOverloaded, SeverityWarning, workerID, "",
				fmt.Sprintf("worker %s at %.0f%% of capacity", workerID, ratio*100), now)
		}
	}
	next := st.State
	m.mu.Unlock()

	if next != prev {
		m.logger.WithWorker(workerID).Info("worker state changed",
			"from", string(prev), "to", string(next), "workload", ratio)
		m.bus.Publish(event.NewWorkerStateChangedEvent(workerID, string(prev), string(next), ratio))
	}
	m.emit(ctx, raised)
}

// checkTasks raises stuck and deadline alerts.
func (m *Monitor) checkTasks(ctx context.Context) {
	open := m.source.List(distributor.Filter{
		Statuses: []task.Status{task.StatusPending, task.StatusActive, task.StatusFailed},
	})
	now := m.now()

	var raised []*Alert
	present := make(map[alertKey]struct{})
	m.mu.Lock()
	for _, t := range open {
		if t.Status == task.StatusActive && t.EstimatedHours > 0 {
			limit := time.Duration(m.stuckFactor * float64(t.Estimated()))
			if elapsed := t.Elapsed(now); elapsed > limit {
				raised = append(raised, m.raiseTaskLocked(present, t, AlertStuckTask, SeverityWarning,
					fmt.Sprintf("task %q active for %s, estimated %s", t.Title, elapsed.Round(time.Minute), t.Estimated()), now)...)
			}
		}
		if t.Deadline.IsZero() {
			continue
		}
		left := t.TimeToDeadline(now)
		switch {
		case left < 0:
			raised = append(raised, m.raiseTaskLocked(present, t, AlertDeadlineExceeded, SeverityCritical,
				fmt.Sprintf("task %q missed its deadline by %s", t.Title, (-left).Round(time.Minute)), now)...)
		case left <= m.deadlineWarning:
			raised = append(raised, m.raiseTaskLocked(present, t, AlertDeadlineWarning, SeverityInfo,
				fmt.Sprintf("task %q due in %s", t.Title, left.Round(time.Minute)), now)...)
		}
	}
	// A handled condition that has cleared may be reported again later.
	for key := range m.handled {
		if _, ok := present[key]; !ok {
			delete(m.handled, key)
		}
	}
	m.mu.Unlock()

	m.emit(ctx, raised)
}

// raiseTaskLocked raises a task alert unless the same condition was already
// handled while the task had its current status. m.mu must be held.
func (m *Monitor) raiseTaskLocked(present map[alertKey]struct{}, t *task.Task, typ AlertType, sev Severity, msg string, now time.Time) []*Alert {
	key := alertKey{typ: typ, worker: t.AssignedTo, task: t.ID}
	present[key] = struct{}{}
	if status, ok := m.handled[key]; ok {
		if status == t.Status {
			return nil
		}
		delete(m.handled, key)
	}
	raised := m.raiseLocked(typ, sev, t.AssignedTo, t.ID, msg, now)
	for _, a := range raised {
		m.raisedUnder[a.ID] = t.Status
	}
	return raised
}

// raiseLocked records a new alert unless an unresolved alert already
// describes the same condition. m.mu must be held.
func (m *Monitor) raiseLocked(typ AlertType, sev Severity, workerID, taskID, msg string, now time.Time) []*Alert {
	key := alertKey{typ: typ, worker: workerID, task: taskID}
	if _, exists := m.open[key]; exists {
		return nil
	}
	a := &Alert{
		ID:         uuid.NewString(),
		WorkerID:   workerID,
		TaskID:     taskID,
		Type:       typ,
		Severity:   sev,
		Message:    msg,
		DetectedAt: now,
	}
	m.alerts = append(m.alerts, a)
	m.byID[a.ID] = a
	m.open[key] = a
	cp := *a
	return []*Alert{&cp}
}

// emit logs, publishes, and relays newly raised alerts. Called without m.mu.
func (m *Monitor) emit(ctx context.Context, raised []*Alert) {
	for _, a := range raised {
		log := m.logger.WithWorker(a.WorkerID)
		if a.TaskID != "" {
			log = log.WithTask(a.TaskID)
		}
		attrs := []any{"alert_id", a.ID, "type", string(a.Type), "severity", string(a.Severity)}
		switch a.Severity {
		case SeverityCritical:
			log.Error(a.Message, attrs...)
		case SeverityWarning:
			log.Warn(a.Message, attrs...)
		default:
			log.Info(a.Message, attrs...)
		}
		m.bus.Publish(event.NewAlertRaisedEvent(a.ID, a.WorkerID, a.TaskID, string(a.Type), string(a.Severity), a.Message))

		if m.sender == nil || a.Severity.Rank() < SeverityWarning.Rank() || a.WorkerID == "" {
			continue
		}
		prio := task.PriorityHigh
		if a.Severity == SeverityCritical {
			prio = task.PriorityCritical
		}
		if !m.sender.Send(ctx, a.WorkerID, a.Message, prio, mailbox.KindAlert) {
			log.Warn("alert relay failed", "alert_id", a.ID)
		}
	}
}

// Resolve marks an alert resolved. It returns false for unknown or already
// resolved alerts.
func (m *Monitor) Resolve(alertID string) bool {
	m.mu.Lock()
	a, ok := m.byID[alertID]
	if !ok || a.Resolved {
		m.mu.Unlock()
		return false
	}
	a.Resolved = true
	a.ResolvedAt = m.now()
	delete(m.open, a.key())
	if status, ok := m.raisedUnder[alertID]; ok {
		m.handled[a.key()] = status
		delete(m.raisedUnder, alertID)
	}
	typ := a.Type
	m.mu.Unlock()

	m.bus.Publish(event.NewAlertResolvedEvent(alertID, string(typ)))
	return true
}

// Alerts returns copies of the matching alerts, oldest first.
func (m *Monitor) Alerts(f AlertFilter) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Alert
	for _, a := range m.alerts {
		if f.matches(a) {
			out = append(out, *a)
		}
	}
	slices.SortStableFunc(out, func(a, b Alert) int {
		return a.DetectedAt.Compare(b.DetectedAt)
	})
	return out
}

// Unresolved returns every unresolved alert, oldest first.
func (m *Monitor) Unresolved() []Alert {
	return m.Alerts(AlertFilter{})
}

// PruneResolved drops alerts resolved more than olderThan ago and returns
// how many were removed. Unresolved alerts are never pruned.
func (m *Monitor) PruneResolved(olderThan time.Duration) int {
	cutoff := m.now().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.alerts[:0]
	removed := 0
	for _, a := range m.alerts {
		if a.Resolved && a.ResolvedAt.Before(cutoff) {
			delete(m.byID, a.ID)
			removed++
			continue
		}
		kept = append(kept, a)
	}
	clear(m.alerts[len(kept):])
	m.alerts = kept
	return removed
}

// Status returns the latest status of a worker.
func (m *Monitor) Status(workerID string) (WorkerStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.statuses[workerID]
	if !ok {
		return WorkerStatus{}, false
	}
	return st.clone(), true
}

// Statuses returns every known worker status ordered by worker ID.
func (m *Monitor) Statuses() []WorkerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WorkerStatus, 0, len(m.statuses))
	for _, st := range m.statuses {
		out = append(out, st.clone())
	}
	slices.SortFunc(out, func(a, b WorkerStatus) int {
		return cmp.Compare(a.WorkerID, b.WorkerID)
	})
	return out
}

func taskIDs(tasks []*task.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}

// completionStats counts completed tasks and averages their active time.
func completionStats(completed []*task.Task) (int, time.Duration) {
	var total time.Duration
	timed := 0
	for _, t := range completed {
		if t.StartedAt == nil || t.CompletedAt == nil {
			continue
		}
		total += t.CompletedAt.Sub(*t.StartedAt)
		timed++
	}
	if timed == 0 {
		return len(completed), 0
	}
	return len(completed), total / time.Duration(timed)
}
