package coordinator

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/monitor"
)

// Run executes cycles until ctx is canceled. Failed cycles are followed by
// the backoff instead of the interval. Run returns nil on cancellation.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("coordinator started",
		"interval", c.interval.String(),
		"strategy", c.Strategy().Name(),
	)
	defer c.logger.Info("coordinator stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		wait := c.interval
		if _, err := c.safeCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.IsRetryable(err) {
				wait = c.backoff
			}
			c.logger.Debug("next cycle scheduled", "wait", wait.String(), "retryable", errors.IsRetryable(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(wait):
		}
	}
}

// safeCycle runs one cycle and turns a panic into a CycleError.
func (c *Coordinator) safeCycle(ctx context.Context) (report *Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.mu.Lock()
			n, mode := c.cycle, c.mode
			c.mu.Unlock()
			// A panic is likely to repeat, so it waits a full interval.
			err = c.fail(n, mode, "panic", fmt.Errorf("%v", r), errors.SeverityCritical).WithRetryable(false)
			c.logger.WithCycle(n).Error("cycle panic stack", "stack", string(debug.Stack()))
			report = nil
		}
	}()
	return c.RunCycle(ctx)
}

// RunCycle executes one full cycle: queued actions, assessment, mode
// decision, corrective actions, then the report. A report is returned
// whenever the cycle got as far as building one, even if persisting it
// failed.
func (c *Coordinator) RunCycle(ctx context.Context) (*Report, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	start := c.clock.Now()
	c.mu.Lock()
	c.cycle++
	n := c.cycle
	override := c.override
	queued := c.queued
	prevMode := c.mode
	c.mu.Unlock()
	log := c.logger.WithCycle(n)

	if c.intake != nil {
		res, err := c.intake.Drain(ctx)
		switch {
		case err != nil:
			log.Warn("status intake failed", "error", err.Error())
		case res.Applied+res.Ignored+res.Malformed > 0:
			log.Info("status reports processed", "applied", res.Applied, "ignored", res.Ignored, "malformed", res.Malformed)
		}
	}

	moved := 0
	if override != ModeMaintenance && len(queued) > 0 {
		moved += c.execute(ctx, queued, log)
		c.mu.Lock()
		c.queued = nil
		c.mu.Unlock()
	}

	if err := c.health.Cycle(ctx); err != nil {
		return nil, c.fail(n, prevMode, "assess", err, errors.SeverityError)
	}
	snap := c.Snapshot()

	mode, manual := Classify(snap), false
	if override != "" {
		mode, manual = override, true
	}
	c.mu.Lock()
	from := c.mode
	c.mode = mode
	c.mu.Unlock()
	if from != mode {
		log.Info("mode changed", "from", string(from), "to", string(mode), "manual", manual)
		c.bus.Publish(event.NewModeChangedEvent(string(from), string(mode), manual))
	}

	p := c.newPlacement()
	switch mode {
	case ModeNormal:
		moved += c.runNormal(snap, p, log)
	case ModeOptimizing:
		moved += c.runOptimizing(p, log)
	case ModeEmergency:
		moved += c.runEmergency(ctx, p, log)
	case ModeMaintenance:
		log.Debug("maintenance mode, no corrective action")
	}

	report := c.buildReport(n, start, mode, manual, moved, snap, p)
	c.mu.Lock()
	c.last = report
	c.queued = report.NextActions
	c.mu.Unlock()

	var cycleErr error
	if c.history != nil {
		if err := c.history.Append(ctx, report); err != nil {
			cycleErr = c.fail(n, mode, "report", err, errors.SeverityError)
		}
	}
	if err := c.checkpoint(); err != nil {
		cycleErr = errors.Join(cycleErr, c.fail(n, mode, "checkpoint", err, errors.SeverityWarning))
	}

	counts := map[string]int{
		"pending":   report.Totals.Pending,
		"active":    report.Totals.Active,
		"completed": report.Totals.Completed,
		"failed":    report.Totals.Failed,
		"cancelled": report.Totals.Cancelled,
	}
	c.bus.Publish(event.NewCycleCompletedEvent(n, string(mode), report.Duration,
		report.AvgWorkload, report.CompletionRate, len(report.Bottlenecks), moved, counts))
	log.Info("cycle completed",
		"mode", string(mode),
		"avg_workload", report.AvgWorkload,
		"unresolved", len(report.Bottlenecks),
		"moved", moved,
		"next_actions", len(report.NextActions),
	)
	return report, cycleErr
}

// fail wraps err as a CycleError, logs it and publishes a failure event.
func (c *Coordinator) fail(n uint64, mode Mode, phase string, err error, sev errors.Severity) *errors.CycleError {
	cerr := errors.NewCycleError("cycle failed", err).
		WithCycle(n).
		WithMode(string(mode)).
		WithPhase(phase).
		WithSeverity(sev)
	log := c.logger.WithCycle(n)
	if errors.GetSeverity(cerr) >= errors.SeverityError {
		log.Error("cycle failed", "phase", phase, "error", cerr.Error())
	} else {
		log.Warn("cycle step failed", "phase", phase, "error", cerr.Error())
	}
	c.bus.Publish(event.NewCycleFailedEvent(n, cerr.Error()))
	return cerr
}

// execute runs actions queued by the previous report and returns how many
// tasks changed worker.
func (c *Coordinator) execute(ctx context.Context, actions []Action, log *logging.Logger) int {
	moved := 0
	for _, a := range actions {
		switch a.Kind {
		case ActionDistribute:
			sent := c.tasks.BatchDistribute(ctx, a.WorkerID, c.maxConcurrent)
			if len(sent) > 0 {
				log.WithWorker(a.WorkerID).Info("backlog distributed", "count", len(sent))
			}
		case ActionRedistribute:
			if c.tasks.RedistributeFailed(a.TaskID, a.WorkerID) {
				moved++
				log.WithTask(a.TaskID).Info("failed task redistributed", "worker_id", a.WorkerID)
			} else {
				log.WithTask(a.TaskID).Debug("redistribution no longer applicable")
			}
		default:
			log.Warn("unknown queued action", "kind", string(a.Kind))
		}
	}
	return moved
}

// checkpoint saves resumable state when a state directory is configured.
func (c *Coordinator) checkpoint() error {
	if c.alertRetention > 0 {
		if n := c.health.PruneResolved(c.alertRetention); n > 0 {
			c.logger.Debug("pruned resolved alerts", "count", n)
		}
	}
	if c.stateDir == "" {
		return nil
	}
	return errors.Join(
		c.tasks.SaveState(c.stateDir),
		c.health.SaveAlerts(c.stateDir),
		c.registry.Save(c.stateDir),
	)
}

// Snapshot combines distributor and monitor output for classification.
func (c *Coordinator) Snapshot() Snapshot {
	states := make(map[string]monitor.WorkerState)
	for _, st := range c.health.Statuses() {
		states[st.WorkerID] = st.State
	}

	workers := c.tasks.Workers()
	snap := Snapshot{
		Taken:                 c.clock.Now(),
		UnresolvedBottlenecks: len(c.health.Unresolved()),
		Totals:                TotalsFromCounts(c.tasks.Counts()),
		Workers:               make([]WorkerLoad, 0, len(workers)),
	}
	snap.CompletionRate = snap.Totals.CompletionRate()

	var sum float64
	for _, w := range workers {
		state, ok := states[w]
		if !ok {
			state = monitor.StateIdle
		}
		wl := WorkerLoad{
			WorkerID: w,
			State:    state,
			Workload: c.health.Workload(w),
			Hours:    c.tasks.Load(w),
		}
		sum += wl.Workload
		snap.Workers = append(snap.Workers, wl)
	}
	if len(workers) > 0 {
		snap.AvgWorkload = sum / float64(len(workers))
	}
	return snap
}
