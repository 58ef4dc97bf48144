package coordinator

import (
	"time"

	"github.com/Iron-Ham/foreman/internal/monitor"
	"github.com/Iron-Ham/foreman/internal/task"
)

// Mode is the coordinator's current operating policy.
type Mode string

const (
	ModeNormal      Mode = "normal"
	ModeOptimizing  Mode = "optimizing"
	ModeEmergency   Mode = "emergency"
	ModeMaintenance Mode = "maintenance"
)

// String returns the mode name.
func (m Mode) String() string {
	return string(m)
}

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeNormal, ModeOptimizing, ModeEmergency, ModeMaintenance:
		return true
	default:
		return false
	}
}

// Modes returns every mode.
func Modes() []Mode {
	return []Mode{ModeNormal, ModeOptimizing, ModeEmergency, ModeMaintenance}
}

// Totals counts tasks by status.
type Totals struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// TotalsFromCounts converts a per-status count map.
func TotalsFromCounts(counts map[task.Status]int) Totals {
	t := Totals{
		Pending:   counts[task.StatusPending],
		Active:    counts[task.StatusActive],
		Completed: counts[task.StatusCompleted],
		Failed:    counts[task.StatusFailed],
		Cancelled: counts[task.StatusCancelled],
	}
	t.Total = t.Pending + t.Active + t.Completed + t.Failed + t.Cancelled
	return t
}

// CompletionRate is completed / (completed + failed). With nothing finished
// yet the rate is 1.
func (t Totals) CompletionRate() float64 {
	finished := t.Completed + t.Failed
	if finished == 0 {
		return 1
	}
	return float64(t.Completed) / float64(finished)
}

// WorkerLoad is one worker's entry in a Snapshot.
type WorkerLoad struct {
	WorkerID string              `json:"worker_id"`
	State    monitor.WorkerState `json:"state"`
	Workload float64             `json:"workload"`
	Hours    float64             `json:"hours"`
}

// Snapshot is the combined view of distributor and monitor output that a
// mode decision is made from.
type Snapshot struct {
	Taken                 time.Time    `json:"taken"`
	AvgWorkload           float64      `json:"avg_workload"`
	UnresolvedBottlenecks int          `json:"unresolved_bottlenecks"`
	CompletionRate        float64      `json:"completion_rate"`
	Totals                Totals       `json:"totals"`
	Workers               []WorkerLoad `json:"workers"`
}

// ActionKind identifies a deferred action.
type ActionKind string

const (
	// ActionDistribute fills a worker's free slots from its backlog.
	ActionDistribute ActionKind = "distribute"

	// ActionRedistribute returns a failed task to Pending on another worker.
	ActionRedistribute ActionKind = "redistribute"
)

// Action is work a report schedules for the following cycle.
type Action struct {
	Kind     ActionKind `json:"kind"`
	TaskID   string     `json:"task_id,omitempty"`
	WorkerID string     `json:"worker_id"`
	Reason   string     `json:"reason"`
}

// Report is the immutable outcome of one cycle. Callers must not modify a
// Report they receive.
type Report struct {
	Cycle           uint64          `json:"cycle"`
	Timestamp       time.Time       `json:"timestamp"`
	Mode            Mode            `json:"mode"`
	Manual          bool            `json:"manual"`
	Totals          Totals          `json:"totals"`
	ActiveWorkers   int             `json:"active_workers"`
	AvgWorkload     float64         `json:"avg_workload"`
	CompletionRate  float64         `json:"completion_rate"`
	Moved           int             `json:"moved"`
	Duration        time.Duration   `json:"duration"`
	Bottlenecks     []monitor.Alert `json:"bottlenecks"`
	Workers         []WorkerLoad    `json:"workers,omitempty"` // As assessed, before actions
	Recommendations []string        `json:"recommendations"`
	NextActions     []Action        `json:"next_actions"`
}
