package tui

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/foreman/internal/coordinator"
	"github.com/Iron-Ham/foreman/internal/monitor"
	"github.com/Iron-Ham/foreman/internal/task"
)

// Snapshot is everything the dashboard shows for one refresh.
type Snapshot struct {
	Taken time.Time

	// Report is the latest coordination report, nil before the first cycle.
	Report *coordinator.Report

	Tasks   []*task.Task
	Alerts  []monitor.Alert // Unresolved only
	Workers []task.Workload

	// CapacityHours converts worker hours into a ratio.
	CapacityHours float64
}

// Source loads a fresh Snapshot. The watch command reads the state
// directory that a running coordinator checkpoints into.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Snapshot, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context) (*Snapshot, error) { return f(ctx) }

// stateOf returns the monitor state the last report recorded for a worker.
func (s *Snapshot) stateOf(workerID string) string {
	if s.Report == nil {
		return ""
	}
	for _, w := range s.Report.Workers {
		if w.WorkerID == workerID {
			return string(w.State)
		}
	}
	return ""
}

func workerColumns() []string {
	return []string{"", "WORKER", "STATE", "ACTIVE", "PENDING", "HOURS", "LOAD"}
}

func workerRows(s *Snapshot) [][]string {
	workers := slices.Clone(s.Workers)
	slices.SortFunc(workers, func(a, b task.Workload) int {
		return strings.Compare(a.WorkerID, b.WorkerID)
	})
	rows := make([][]string, 0, len(workers))
	for _, w := range workers {
		state := s.stateOf(w.WorkerID)
		ratio := 0.0
		if s.CapacityHours > 0 {
			ratio = min(w.TotalHours/s.CapacityHours, 1)
		}
		rows = append(rows, []string{
			iconFor(state),
			w.WorkerID,
			orDash(state),
			fmt.Sprint(w.ActiveCount),
			fmt.Sprint(w.PendingCount),
			fmt.Sprintf("%.1f", w.TotalHours),
			fmt.Sprintf("%3.0f%%", ratio*100),
		})
	}
	return rows
}

func taskColumns() []string {
	return []string{"", "ID", "TITLE", "WORKER", "PRIORITY", "STATUS", "DEADLINE"}
}

// taskRows lists open tasks first, most urgent at the top.
func taskRows(s *Snapshot, now time.Time) [][]string {
	tasks := slices.Clone(s.Tasks)
	slices.SortFunc(tasks, func(a, b *task.Task) int {
		if c := cmp.Compare(openRank(a.Status), openRank(b.Status)); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return a.Deadline.Compare(b.Deadline)
	})
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			iconFor(string(t.Status)),
			shortID(t.ID),
			t.Title,
			t.AssignedTo,
			t.Priority.String(),
			string(t.Status),
			deadlineLabel(t, now),
		})
	}
	return rows
}

func openRank(s task.Status) int {
	switch s {
	case task.StatusActive:
		return 0
	case task.StatusPending:
		return 1
	case task.StatusFailed:
		return 2
	default:
		return 3
	}
}

func alertColumns() []string {
	return []string{"SEVERITY", "TYPE", "WORKER", "TASK", "AGE", "MESSAGE"}
}

// alertRows lists the most severe alerts first, newest first within a severity.
func alertRows(s *Snapshot, now time.Time) [][]string {
	alerts := slices.Clone(s.Alerts)
	slices.SortFunc(alerts, func(a, b monitor.Alert) int {
		if c := cmp.Compare(b.Severity.Rank(), a.Severity.Rank()); c != 0 {
			return c
		}
		return b.DetectedAt.Compare(a.DetectedAt)
	})
	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []string{
			string(a.Severity),
			string(a.Type),
			a.WorkerID,
			orDash(shortID(a.TaskID)),
			humanize(now.Sub(a.DetectedAt)),
			a.Message,
		})
	}
	return rows
}

func deadlineLabel(t *task.Task, now time.Time) string {
	if t.Status.IsTerminal() {
		return "-"
	}
	left := t.Deadline.Sub(now)
	if left < 0 {
		return "overdue " + humanize(-left)
	}
	return "in " + humanize(left)
}

func humanize(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
