package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Task Lifecycle Events
// -----------------------------------------------------------------------------

// TaskCreatedEvent is emitted when the distributor registers a new task.
type TaskCreatedEvent struct {
	baseEvent
	TaskID     string
	AssignedTo string
	Priority   string
}

// NewTaskCreatedEvent creates a TaskCreatedEvent.
func NewTaskCreatedEvent(taskID, assignedTo, priority string) TaskCreatedEvent {
	return TaskCreatedEvent{
		baseEvent:  newBaseEvent("task.created"),
		TaskID:     taskID,
		AssignedTo: assignedTo,
		Priority:   priority,
	}
}

// TaskDistributedEvent is emitted when a pending task is sent to its worker.
type TaskDistributedEvent struct {
	baseEvent
	TaskID    string
	WorkerID  string
	Delivered bool // Whether the mailbox accepted the assignment
}

// NewTaskDistributedEvent creates a TaskDistributedEvent.
func NewTaskDistributedEvent(taskID, workerID string, delivered bool) TaskDistributedEvent {
	return TaskDistributedEvent{
		baseEvent: newBaseEvent("task.distributed"),
		TaskID:    taskID,
		WorkerID:  workerID,
		Delivered: delivered,
	}
}

// TaskStatusChangedEvent is emitted on every status transition. Completed
// tasks carry their title and expected outputs so downstream consumers can
// locate the artifacts.
type TaskStatusChangedEvent struct {
	baseEvent
	TaskID          string
	WorkerID        string
	From            string
	To              string
	Title           string
	ExpectedOutputs []string
}

// NewTaskStatusChangedEvent creates a TaskStatusChangedEvent.
func NewTaskStatusChangedEvent(taskID, workerID, from, to, title string, outputs []string) TaskStatusChangedEvent {
	return TaskStatusChangedEvent{
		baseEvent:       newBaseEvent("task.status_changed"),
		TaskID:          taskID,
		WorkerID:        workerID,
		From:            from,
		To:              to,
		Title:           title,
		ExpectedOutputs: outputs,
	}
}

// TaskReassignedEvent is emitted when a task moves between workers.
type TaskReassignedEvent struct {
	baseEvent
	TaskID     string
	FromWorker string
	ToWorker   string
	Reason     string
}

// NewTaskReassignedEvent creates a TaskReassignedEvent.
func NewTaskReassignedEvent(taskID, from, to, reason string) TaskReassignedEvent {
	return TaskReassignedEvent{
		baseEvent:  newBaseEvent("task.reassigned"),
		TaskID:     taskID,
		FromWorker: from,
		ToWorker:   to,
		Reason:     reason,
	}
}

// TaskRedistributedEvent is emitted when a failed task is handed to a new
// worker and returned to pending.
type TaskRedistributedEvent struct {
	baseEvent
	TaskID     string
	FromWorker string
	ToWorker   string
	Attempt    int
}

// NewTaskRedistributedEvent creates a TaskRedistributedEvent.
func NewTaskRedistributedEvent(taskID, from, to string, attempt int) TaskRedistributedEvent {
	return TaskRedistributedEvent{
		baseEvent:  newBaseEvent("task.redistributed"),
		TaskID:     taskID,
		FromWorker: from,
		ToWorker:   to,
		Attempt:    attempt,
	}
}

// TaskPriorityChangedEvent is emitted when a task's priority is escalated.
type TaskPriorityChangedEvent struct {
	baseEvent
	TaskID string
	From   string
	To     string
}

// NewTaskPriorityChangedEvent creates a TaskPriorityChangedEvent.
func NewTaskPriorityChangedEvent(taskID, from, to string) TaskPriorityChangedEvent {
	return TaskPriorityChangedEvent{
		baseEvent: newBaseEvent("task.priority_changed"),
		TaskID:    taskID,
		From:      from,
		To:        to,
	}
}

// -----------------------------------------------------------------------------
// Monitoring Events
// -----------------------------------------------------------------------------

// WorkerStateChangedEvent is emitted when the monitor derives a new state
// for a worker.
type WorkerStateChangedEvent struct {
	baseEvent
	WorkerID      string
	From          string
	To            string
	WorkloadRatio float64
}

// NewWorkerStateChangedEvent creates a WorkerStateChangedEvent.
func NewWorkerStateChangedEvent(workerID, from, to string, ratio float64) WorkerStateChangedEvent {
	return WorkerStateChangedEvent{
		baseEvent:     newBaseEvent("worker.state_changed"),
		WorkerID:      workerID,
		From:          from,
		To:            to,
		WorkloadRatio: ratio,
	}
}

// AlertRaisedEvent is emitted when the monitor records a new alert.
type AlertRaisedEvent struct {
	baseEvent
	AlertID   string
	WorkerID  string
	TaskID    string
	AlertType string
	Severity  string
	Message   string
}

// NewAlertRaisedEvent creates an AlertRaisedEvent.
func NewAlertRaisedEvent(alertID, workerID, taskID, alertType, severity, message string) AlertRaisedEvent {
	return AlertRaisedEvent{
		baseEvent: newBaseEvent("alert.raised"),
		AlertID:   alertID,
		WorkerID:  workerID,
		TaskID:    taskID,
		AlertType: alertType,
		Severity:  severity,
		Message:   message,
	}
}

// AlertResolvedEvent is emitted when an alert is explicitly resolved.
type AlertResolvedEvent struct {
	baseEvent
	AlertID   string
	AlertType string
}

// NewAlertResolvedEvent creates an AlertResolvedEvent.
func NewAlertResolvedEvent(alertID, alertType string) AlertResolvedEvent {
	return AlertResolvedEvent{
		baseEvent: newBaseEvent("alert.resolved"),
		AlertID:   alertID,
		AlertType: alertType,
	}
}

// -----------------------------------------------------------------------------
// Coordination Events
// -----------------------------------------------------------------------------

// ModeChangedEvent is emitted when the coordinator switches mode.
type ModeChangedEvent struct {
	baseEvent
	From   string
	To     string
	Manual bool // True when caused by an operator override
}

// NewModeChangedEvent creates a ModeChangedEvent.
func NewModeChangedEvent(from, to string, manual bool) ModeChangedEvent {
	return ModeChangedEvent{
		baseEvent: newBaseEvent("coordinator.mode_changed"),
		From:      from,
		To:        to,
		Manual:    manual,
	}
}

// CycleCompletedEvent is emitted after each successful control cycle.
type CycleCompletedEvent struct {
	baseEvent
	Cycle          uint64
	Mode           string
	Duration       time.Duration
	AvgWorkload    float64
	CompletionRate float64
	Unresolved     int
	TasksMoved     int
	TaskCounts     map[string]int // status -> count
}

// NewCycleCompletedEvent creates a CycleCompletedEvent.
func NewCycleCompletedEvent(cycle uint64, mode string, d time.Duration, avgWorkload, completionRate float64, unresolved, moved int, counts map[string]int) CycleCompletedEvent {
	return CycleCompletedEvent{
		baseEvent:      newBaseEvent("coordinator.cycle_completed"),
		Cycle:          cycle,
		Mode:           mode,
		Duration:       d,
		AvgWorkload:    avgWorkload,
		CompletionRate: completionRate,
		Unresolved:     unresolved,
		TasksMoved:     moved,
		TaskCounts:     counts,
	}
}

// CycleFailedEvent is emitted when a control cycle returns an error or
// panics. The loop keeps running.
type CycleFailedEvent struct {
	baseEvent
	Cycle uint64
	Error string
}

// NewCycleFailedEvent creates a CycleFailedEvent.
func NewCycleFailedEvent(cycle uint64, errMsg string) CycleFailedEvent {
	return CycleFailedEvent{
		baseEvent: newBaseEvent("coordinator.cycle_failed"),
		Cycle:     cycle,
		Error:     errMsg,
	}
}

// -----------------------------------------------------------------------------
// Messaging Events
// -----------------------------------------------------------------------------

// MessageSentEvent is emitted after the mailbox accepts a message.
type MessageSentEvent struct {
	baseEvent
	MessageID string
	From      string
	To        string
	Kind      string
	Priority  string
}

// NewMessageSentEvent creates a MessageSentEvent.
func NewMessageSentEvent(messageID, from, to, kind, priority string) MessageSentEvent {
	return MessageSentEvent{
		baseEvent: newBaseEvent("mailbox.message_sent"),
		MessageID: messageID,
		From:      from,
		To:        to,
		Kind:      kind,
		Priority:  priority,
	}
}
