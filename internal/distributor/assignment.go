package distributor

import (
	"encoding/json"
	"time"

	"github.com/Iron-Ham/foreman/internal/task"
)

// Assignment is the body of a task_assignment message. Workers decode it
// from the message content.
type Assignment struct {
	TaskID          string        `json:"task_id"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	Priority        task.Priority `json:"priority"`
	EstimatedHours  float64       `json:"estimated_hours"`
	Deadline        time.Time     `json:"deadline"`
	ExpectedOutputs []string      `json:"expected_outputs,omitempty"`
	Tags            []string      `json:"tags,omitempty"`
}

func newAssignment(t *task.Task) Assignment {
	return Assignment{
		TaskID:          t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Priority:        t.Priority,
		EstimatedHours:  t.EstimatedHours,
		Deadline:        t.Deadline,
		ExpectedOutputs: t.ExpectedOutputs,
		Tags:            t.Tags,
	}
}

// Encode returns the JSON message content.
func (a Assignment) Encode() string {
	data, err := json.Marshal(a)
	if err != nil {
		// Only an out-of-range priority fails to marshal.
		return a.TaskID
	}
	return string(data)
}

// DecodeAssignment parses message content produced by Encode.
func DecodeAssignment(content string) (Assignment, error) {
	var a Assignment
	err := json.Unmarshal([]byte(content), &a)
	return a, err
}
