package task

import (
	"maps"
	"slices"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	// StatusPending means the task is waiting to be distributed.
	StatusPending Status = "pending"

	// StatusActive means the task has been sent to its worker.
	StatusActive Status = "active"

	// StatusCompleted means the worker reported success.
	StatusCompleted Status = "completed"

	// StatusFailed means the worker reported failure. Only redistribution
	// brings a failed task back to pending.
	StatusFailed Status = "failed"

	// StatusCancelled means the task was withdrawn.
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for statuses no worker will act on again.
// Failed is not terminal because it can be redistributed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusActive, StatusCompleted, StatusFailed, StatusCancelled}
}

// transitions lists the moves UpdateStatus may perform. Failed -> Pending
// is absent: only redistribution performs it.
var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether a direct status update from -> to is allowed.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Task is a discrete unit of work assigned to a single worker.
type Task struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	AssignedTo      string            `json:"assigned_to"`
	CreatedBy       string            `json:"created_by,omitempty"`
	Priority        Priority          `json:"priority"`
	Status          Status            `json:"status"`
	Dependencies    []string          `json:"dependencies"`
	ExpectedOutputs []string          `json:"expected_outputs"`
	EstimatedHours  float64           `json:"estimated_hours"`
	CreatedAt       time.Time         `json:"created_at"`
	Deadline        time.Time         `json:"deadline"`
	Tags            []string          `json:"tags"`
	Metadata        map[string]string `json:"metadata"`

	// StartedAt is set when the task becomes active.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is set when the task completes, fails, or is cancelled.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// RedistributionCount counts moves out of the failed state.
	RedistributionCount int `json:"redistribution_count"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Dependencies = slices.Clone(t.Dependencies)
	cp.ExpectedOutputs = slices.Clone(t.ExpectedOutputs)
	cp.Tags = slices.Clone(t.Tags)
	cp.Metadata = maps.Clone(t.Metadata)
	if t.StartedAt != nil {
		s := *t.StartedAt
		cp.StartedAt = &s
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		cp.CompletedAt = &c
	}
	return &cp
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// Elapsed returns how long the task has been active at now. Zero when the
// task never started.
func (t *Task) Elapsed(now time.Time) time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return now.Sub(*t.StartedAt)
}

// Estimated returns EstimatedHours as a duration.
func (t *Task) Estimated() time.Duration {
	return time.Duration(t.EstimatedHours * float64(time.Hour))
}

// TimeToDeadline returns the time left before the deadline at now. The
// result is negative once the deadline has passed.
func (t *Task) TimeToDeadline(now time.Time) time.Duration {
	return t.Deadline.Sub(now)
}

// Workload summarizes one worker's share of the task registry.
type Workload struct {
	WorkerID          string           `json:"worker_id"`
	ActiveCount       int              `json:"active_count"`
	PendingCount      int              `json:"pending_count"`
	TotalHours        float64          `json:"total_hours"`
	PriorityBreakdown map[Priority]int `json:"priority_breakdown"`

	// MeanSecondsToDeadline averages seconds-until-deadline over active and
	// pending tasks. One far-future deadline skews it, so it is only
	// reported, never used for scheduling.
	MeanSecondsToDeadline float64 `json:"mean_seconds_to_deadline"`
}
