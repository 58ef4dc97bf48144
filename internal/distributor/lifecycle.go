package distributor

import (
	"context"
	"strings"

	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/mailbox"
	"github.com/Iron-Ham/foreman/internal/task"
)

// Distribute sends a Pending task to its worker and marks it Active.
// It returns false, changing nothing, when the task is unknown, not
// Pending, or has a dependency that is not Completed.
func (d *Distributor) Distribute(ctx context.Context, taskID string) bool {
	d.mu.Lock()
	t, ok := d.tasks[taskID]
	if !ok || !d.isDistributableLocked(t) {
		d.mu.Unlock()
		return false
	}
	evt := d.distributeLocked(ctx, t)
	d.mu.Unlock()

	d.bus.Publish(evt)
	return true
}

// distributeLocked sends the assignment and activates t. The lock is held
// across the send so two callers cannot activate the same task.
func (d *Distributor) distributeLocked(ctx context.Context, t *task.Task) event.TaskDistributedEvent {
	delivered := true
	if d.sender != nil {
		delivered = d.sender.Send(ctx, t.AssignedTo, newAssignment(t).Encode(), t.Priority, mailbox.KindTaskAssignment)
	}
	log := d.logger.WithTask(t.ID).WithWorker(t.AssignedTo)
	if !delivered {
		log.Warn("assignment not delivered, activating anyway")
	}

	now := d.now()
	t.Status = task.StatusActive
	t.StartedAt = &now
	log.Info("task distributed", "priority", t.Priority.String())
	return event.NewTaskDistributedEvent(t.ID, t.AssignedTo, delivered)
}

// BatchDistribute distributes tasks from the worker's Pending backlog until
// the worker has maxConcurrent Active tasks. The backlog is taken in
// priority order (highest first), then earliest deadline. Tasks blocked by
// dependencies are skipped without using a slot. A non-positive
// maxConcurrent means DefaultMaxConcurrent.
func (d *Distributor) BatchDistribute(ctx context.Context, workerID string, maxConcurrent int) []*task.Task {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	d.mu.Lock()
	slots := maxConcurrent - d.activeCountLocked(workerID)
	var (
		distributed []*task.Task
		events      []event.Event
	)
	for _, t := range d.backlogLocked(workerID) {
		if slots <= 0 {
			break
		}
		if !d.dependenciesMetLocked(t) {
			continue
		}
		events = append(events, d.distributeLocked(ctx, t))
		distributed = append(distributed, t.Clone())
		slots--
	}
	d.mu.Unlock()

	for _, e := range events {
		d.bus.Publish(e)
	}
	return distributed
}

// UpdateStatus moves a task along the lifecycle. It returns false for an
// unknown task or a transition the lifecycle does not allow. Activation
// through UpdateStatus is subject to the same dependency gate as Distribute
// but sends no assignment.
func (d *Distributor) UpdateStatus(taskID string, status task.Status) bool {
	d.mu.Lock()
	t, ok := d.tasks[taskID]
	if !ok || !d.canMoveLocked(t, status) {
		d.mu.Unlock()
		return false
	}
	d.finishUpdateLocked(t, status)
	return true
}

func (d *Distributor) canMoveLocked(t *task.Task, status task.Status) bool {
	if !task.CanTransition(t.Status, status) {
		return false
	}
	return status != task.StatusActive || d.dependenciesMetLocked(t)
}

// finishUpdateLocked applies a validated transition, releases d.mu, and
// publishes the change.
func (d *Distributor) finishUpdateLocked(t *task.Task, status task.Status) {
	from := t.Status
	now := d.now()
	t.Status = status
	switch status {
	case task.StatusActive:
		t.StartedAt = &now
	case task.StatusCompleted, task.StatusFailed, task.StatusCancelled:
		t.CompletedAt = &now
	}
	var unblocked []string
	if status == task.StatusCompleted {
		unblocked = d.unblockedByLocked(t.ID)
	}
	evt := event.NewTaskStatusChangedEvent(t.ID, t.AssignedTo, string(from), string(status), t.Title, t.ExpectedOutputs)
	taskID, worker := t.ID, t.AssignedTo
	d.mu.Unlock()

	log := d.logger.WithTask(taskID).WithWorker(worker)
	log.Info("task status changed", "from", string(from), "to", string(status))
	if len(unblocked) > 0 {
		log.Debug("tasks unblocked", "task_ids", strings.Join(unblocked, ","))
	}
	d.bus.Publish(evt)
}

// RedistributeFailed gives a Failed task to newWorkerID and returns it to
// Pending. It is the only way out of Failed.
func (d *Distributor) RedistributeFailed(taskID, newWorkerID string) bool {
	if newWorkerID == "" {
		return false
	}
	d.mu.Lock()
	t, ok := d.tasks[taskID]
	if !ok || t.Status != task.StatusFailed {
		d.mu.Unlock()
		return false
	}
	from := t.AssignedTo
	t.AssignedTo = newWorkerID
	t.Status = task.StatusPending
	t.StartedAt = nil
	t.CompletedAt = nil
	t.RedistributionCount++
	delete(t.Metadata, MetaRedistribute)
	evt := event.NewTaskRedistributedEvent(taskID, from, newWorkerID, t.RedistributionCount)
	d.mu.Unlock()

	d.logger.WithTask(taskID).Info("failed task redistributed",
		"from", from,
		"to", newWorkerID,
		"attempt", evt.Attempt,
	)
	d.bus.Publish(evt)
	return true
}

// Reassign moves a Pending or Active task to another worker. An Active task
// returns to Pending so the new worker receives a fresh assignment when it
// is next distributed.
func (d *Distributor) Reassign(taskID, newWorkerID, reason string) bool {
	if newWorkerID == "" {
		return false
	}
	d.mu.Lock()
	t, ok := d.tasks[taskID]
	if !ok || t.AssignedTo == newWorkerID {
		d.mu.Unlock()
		return false
	}
	if t.Status != task.StatusPending && t.Status != task.StatusActive {
		d.mu.Unlock()
		return false
	}
	from := t.AssignedTo
	t.AssignedTo = newWorkerID
	if t.Status == task.StatusActive {
		t.Status = task.StatusPending
		t.StartedAt = nil
	}
	delete(t.Metadata, MetaRedistribute)
	evt := event.NewTaskReassignedEvent(taskID, from, newWorkerID, reason)
	d.mu.Unlock()

	d.logger.WithTask(taskID).Info("task reassigned", "from", from, "to", newWorkerID, "reason", reason)
	d.bus.Publish(evt)
	return true
}

// SetPriority changes the priority of a task that is not Completed or
// Cancelled. It returns false when nothing changed.
func (d *Distributor) SetPriority(taskID string, p task.Priority) bool {
	if !p.IsValid() {
		return false
	}
	d.mu.Lock()
	t, ok := d.tasks[taskID]
	if !ok || t.Status.IsTerminal() || t.Priority == p {
		d.mu.Unlock()
		return false
	}
	from := t.Priority
	t.Priority = p
	d.mu.Unlock()

	d.logger.WithTask(taskID).Info("task priority changed", "from", from.String(), "to", p.String())
	d.bus.Publish(event.NewTaskPriorityChangedEvent(taskID, from.String(), p.String()))
	return true
}

// FlagForRedistribution marks an Active task as a candidate for moving,
// recording the reason in its metadata. Returns false if the task is not
// Active or already carries the same flag.
func (d *Distributor) FlagForRedistribution(taskID, reason string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tasks[taskID]
	if !ok || t.Status != task.StatusActive {
		return false
	}
	if t.Metadata[MetaRedistribute] == reason {
		return false
	}
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	t.Metadata[MetaRedistribute] = reason
	d.logger.WithTask(taskID).Info("task flagged for redistribution", "reason", reason)
	return true
}

// MarkUrgentNotified records that workerID has been sent an urgent notice
// for a task that is not Completed or Cancelled. It returns false when that
// worker was already marked, so a notice goes out once per assignee.
func (d *Distributor) MarkUrgentNotified(taskID, workerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tasks[taskID]
	if !ok || workerID == "" || t.Status == task.StatusCompleted || t.Status == task.StatusCancelled {
		return false
	}
	if t.Metadata[MetaUrgentNotified] == workerID {
		return false
	}
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	t.Metadata[MetaUrgentNotified] = workerID
	return true
}
