package monitor

import (
	"slices"
	"time"
)

// WorkerState is the derived health of a worker.
type WorkerState string

const (
	StateIdle        WorkerState = "idle"
	StateWorking     WorkerState = "working"
	StateOverloaded  WorkerState = "overloaded"
	StateUnavailable WorkerState = "unavailable"
	StateError       WorkerState = "error"
)

// IsReachable reports whether the worker can take new work.
func (s WorkerState) IsReachable() bool {
	return s != StateUnavailable && s != StateError
}

// WorkerStatus is the latest derived view of one worker. Only the most
// recent snapshot is kept.
type WorkerStatus struct {
	WorkerID       string        `json:"worker_id"`
	State          WorkerState   `json:"state"`
	ActiveTaskIDs  []string      `json:"active_task_ids"`
	LastSeen       time.Time     `json:"last_seen,omitzero"`
	FirstSeen      time.Time     `json:"first_seen"`
	CompletedCount int           `json:"completed_count"`
	AvgCompletion  time.Duration `json:"avg_completion"`
	WorkloadRatio  float64       `json:"workload_ratio"`
	ErrorCount     int           `json:"error_count"`
	LastError      string        `json:"last_error,omitempty"`
	ErrorAt        time.Time     `json:"error_at,omitzero"`
}

func (s WorkerStatus) clone() WorkerStatus {
	s.ActiveTaskIDs = slices.Clone(s.ActiveTaskIDs)
	return s
}

// AlertType categorizes an alert.
type AlertType string

const (
	AlertWorkerTimeout    AlertType = "worker_timeout"
	AlertWorkerError      AlertType = "worker_error"
	AlertWorkerOverloaded AlertType = "worker_overloaded"
	AlertStuckTask        AlertType = "stuck_task"
	AlertDeadlineWarning  AlertType = "deadline_warning"
	AlertDeadlineExceeded AlertType = "deadline_exceeded"
)

// IsDeadline reports whether the alert concerns a task deadline.
func (t AlertType) IsDeadline() bool {
	return t == AlertDeadlineWarning || t == AlertDeadlineExceeded
}

// IsWorkerHealth reports whether the alert concerns worker reachability.
func (t AlertType) IsWorkerHealth() bool {
	return t == AlertWorkerTimeout || t == AlertWorkerError
}

// Severity ranks alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from info (0) to critical (2).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Alert records a detected bottleneck or risk.
type Alert struct {
	ID         string    `json:"id"`
	WorkerID   string    `json:"worker_id"`
	TaskID     string    `json:"task_id,omitempty"`
	Type       AlertType `json:"type"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	DetectedAt time.Time `json:"detected_at"`
	Resolved   bool      `json:"resolved"`
	ResolvedAt time.Time `json:"resolved_at,omitzero"`
}

// alertKey identifies the condition an alert describes.
type alertKey struct {
	typ    AlertType
	worker string
	task   string
}

func (a *Alert) key() alertKey {
	return alertKey{typ: a.Type, worker: a.WorkerID, task: a.TaskID}
}

// AlertFilter selects alerts. Zero fields match everything except resolved
// alerts, which need IncludeResolved.
type AlertFilter struct {
	WorkerID        string
	TaskID          string
	Types           []AlertType
	MinSeverity     Severity
	Since           time.Time
	IncludeResolved bool
}

func (f AlertFilter) matches(a *Alert) bool {
	if a.Resolved && !f.IncludeResolved {
		return false
	}
	if f.WorkerID != "" && a.WorkerID != f.WorkerID {
		return false
	}
	if f.TaskID != "" && a.TaskID != f.TaskID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, a.Type) {
		return false
	}
	if f.MinSeverity != "" && a.Severity.Rank() < f.MinSeverity.Rank() {
		return false
	}
	if !f.Since.IsZero() && a.DetectedAt.Before(f.Since) {
		return false
	}
	return true
}
