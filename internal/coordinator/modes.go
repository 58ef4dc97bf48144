package coordinator

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/foreman/internal/distributor"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/mailbox"
	"github.com/Iron-Ham/foreman/internal/monitor"
	"github.com/Iron-Ham/foreman/internal/task"
)

var openStatuses = []task.Status{task.StatusPending, task.StatusActive, task.StatusFailed}

// runNormal balances preventively and bumps Low tasks close to their
// deadline to Medium.
func (c *Coordinator) runNormal(snap Snapshot, p *placement, log *logging.Logger) int {
	moved := 0
	if snap.AvgWorkload > PreventiveWorkload {
		moved += c.rebalancePending(p, "", "preventive balance", log)
	}

	now := c.clock.Now()
	for _, t := range c.tasks.List(distributor.Filter{Statuses: openStatuses}) {
		if t.Priority != task.PriorityLow || t.Deadline.IsZero() {
			continue
		}
		if t.TimeToDeadline(now) <= c.deadlineWindow && c.tasks.SetPriority(t.ID, task.PriorityMedium) {
			log.WithTask(t.ID).Info("deadline risk, priority raised", "to", task.PriorityMedium.String())
		}
	}
	return moved
}

// runOptimizing rebalances every Pending task and acts on each alert.
func (c *Coordinator) runOptimizing(p *placement, log *logging.Logger) int {
	moved := c.rebalancePending(p, "", "optimize", log)
	return moved + c.resolveAlerts(p, log)
}

// runEmergency sheds Active work from saturated workers, escalates tasks
// about to miss their deadline, then acts on the remaining alerts. No task
// is ever cancelled here.
func (c *Coordinator) runEmergency(ctx context.Context, p *placement, log *logging.Logger) int {
	moved := 0
	for _, w := range p.workers {
		if p.loads[w] < c.overloadHours {
			continue
		}
		if c.shed(p, w, log) {
			moved++
		}
	}

	now := c.clock.Now()
	for _, t := range c.tasks.List(distributor.Filter{Statuses: openStatuses}) {
		if t.Deadline.IsZero() || t.TimeToDeadline(now) > c.urgentWindow {
			continue
		}
		tlog := log.WithTask(t.ID).WithWorker(t.AssignedTo)
		if c.tasks.SetPriority(t.ID, task.PriorityCritical) {
			tlog.Warn("deadline imminent, escalated to critical", "deadline", t.Deadline)
		}
		c.notifyUrgent(ctx, t, tlog)
	}

	return moved + c.resolveAlerts(p, log)
}

// notifyUrgent sends the assignee of t one urgent notice. A notice that
// fails to send is retried next cycle.
func (c *Coordinator) notifyUrgent(ctx context.Context, t *task.Task, log *logging.Logger) {
	if c.sender == nil || t.Metadata[distributor.MetaUrgentNotified] == t.AssignedTo {
		return
	}
	msg := fmt.Sprintf("URGENT: task %q (%s) is due at %s", t.Title, t.ID, t.Deadline.Format("15:04 MST"))
	if !c.sender.Send(ctx, t.AssignedTo, msg, task.PriorityCritical, mailbox.KindUrgent) {
		log.Warn("urgent notification not delivered")
		return
	}
	c.tasks.MarkUrgentNotified(t.ID, t.AssignedTo)
}

// shed moves the first Active Low or Medium task of worker w to an
// underloaded worker. One task per worker per cycle.
func (c *Coordinator) shed(p *placement, w string, log *logging.Logger) bool {
	underloaded := func(load float64) bool { return load < c.underloadHours }
	for _, t := range c.tasks.List(distributor.Filter{WorkerID: w, Statuses: []task.Status{task.StatusActive}}) {
		if t.Priority > task.PriorityMedium {
			continue
		}
		to, ok := p.choose(t, w, underloaded)
		if !ok {
			log.WithWorker(w).Warn("no underloaded worker to take work", "load_hours", p.loads[w])
			return false
		}
		return c.move(p, t, to, "emergency", log)
	}
	return false
}

// rebalancePending runs every Pending task of workerID (all workers when
// empty) through the strategy.
func (c *Coordinator) rebalancePending(p *placement, workerID, reason string, log *logging.Logger) int {
	moved := 0
	for _, t := range c.tasks.List(distributor.Filter{WorkerID: workerID, Statuses: []task.Status{task.StatusPending}}) {
		if c.rebalance(p, t, "", reason, log) {
			moved++
		}
	}
	return moved
}

// evacuate moves every Pending task off workerID.
func (c *Coordinator) evacuate(p *placement, workerID string, log *logging.Logger) int {
	moved := 0
	for _, t := range c.tasks.List(distributor.Filter{WorkerID: workerID, Statuses: []task.Status{task.StatusPending}}) {
		if c.rebalance(p, t, workerID, "worker unreachable", log) {
			moved++
		}
	}
	return moved
}

// resolveAlerts acts on each unresolved alert by category and resolves it.
func (c *Coordinator) resolveAlerts(p *placement, log *logging.Logger) int {
	moved := 0
	for _, a := range c.health.Unresolved() {
		alog := log.With("alert_id", a.ID, "alert_type", string(a.Type))
		switch {
		case a.Type == monitor.AlertWorkerOverloaded:
			moved += c.rebalancePending(p, a.WorkerID, "overload", alog)
		case a.Type.IsDeadline():
			if t, ok := c.tasks.Get(a.TaskID); ok && !t.Status.IsTerminal() {
				if next := t.Priority.Escalate(); c.tasks.SetPriority(t.ID, next) {
					alog.WithTask(t.ID).Info("priority escalated", "to", next.String())
				}
			}
		case a.Type == monitor.AlertStuckTask:
			if c.tasks.FlagForRedistribution(a.TaskID, "stuck") {
				alog.WithTask(a.TaskID).Info("task flagged for redistribution")
			}
		case a.Type.IsWorkerHealth():
			moved += c.evacuate(p, a.WorkerID, alog)
		default:
			continue
		}
		c.health.Resolve(a.ID)
	}
	return moved
}
