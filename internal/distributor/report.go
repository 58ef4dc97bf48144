package distributor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Iron-Ham/foreman/internal/task"
)

// StatusReport is the body of a status message a worker posts to the
// coordinator inbox when it finishes a task.
type StatusReport struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
	Note   string      `json:"note,omitempty"`
}

// Encode returns the JSON message content.
func (r StatusReport) Encode() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// DecodeStatusReport parses message content produced by Encode.
func DecodeStatusReport(content string) (StatusReport, error) {
	var r StatusReport
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return r, err
	}
	if r.TaskID == "" {
		return r, fmt.Errorf("status report has no task_id")
	}
	if r.Status != task.StatusCompleted && r.Status != task.StatusFailed {
		return r, fmt.Errorf("status report for %s has unsupported status %q", r.TaskID, r.Status)
	}
	return r, nil
}

// ApplyReport records a worker's outcome for one of its Active tasks. The
// report is ignored unless workerID is the current assignee and the report
// was sent after the task was last activated, so stale reports from a
// previous assignment cannot fail a redistributed task.
func (d *Distributor) ApplyReport(workerID string, sentAt time.Time, r StatusReport) bool {
	if r.Status != task.StatusCompleted && r.Status != task.StatusFailed {
		return false
	}
	d.mu.Lock()
	t, ok := d.tasks[r.TaskID]
	if !ok || t.AssignedTo != workerID || t.Status != task.StatusActive {
		d.mu.Unlock()
		return false
	}
	if t.StartedAt != nil && sentAt.Before(*t.StartedAt) {
		d.mu.Unlock()
		return false
	}
	if !d.canMoveLocked(t, r.Status) {
		d.mu.Unlock()
		return false
	}
	if r.Note != "" {
		if t.Metadata == nil {
			t.Metadata = make(map[string]string)
		}
		t.Metadata["report_note"] = r.Note
	}
	d.finishUpdateLocked(t, r.Status)
	return true
}
