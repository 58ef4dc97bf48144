package distributor

import "github.com/Iron-Ham/foreman/internal/task"

// dependenciesMetLocked reports whether every dependency of t is Completed.
// A dependency that does not exist counts as not completed.
func (d *Distributor) dependenciesMetLocked(t *task.Task) bool {
	for _, depID := range t.Dependencies {
		dep, ok := d.tasks[depID]
		if !ok || dep.Status != task.StatusCompleted {
			return false
		}
	}
	return true
}

// isDistributableLocked returns true if t is Pending with all dependencies met.
func (d *Distributor) isDistributableLocked(t *task.Task) bool {
	return t.Status == task.StatusPending && d.dependenciesMetLocked(t)
}

// unblockedByLocked returns the IDs of Pending tasks that became
// distributable because taskID completed.
func (d *Distributor) unblockedByLocked(taskID string) []string {
	var unblocked []string
	for _, id := range d.order {
		t := d.tasks[id]
		if t.Status != task.StatusPending {
			continue
		}
		dependsOnCompleted := false
		for _, depID := range t.Dependencies {
			if depID == taskID {
				dependsOnCompleted = true
				break
			}
		}
		if dependsOnCompleted && d.dependenciesMetLocked(t) {
			unblocked = append(unblocked, id)
		}
	}
	return unblocked
}

// BlockedBy returns the dependency IDs of taskID that are not yet Completed,
// or nil if the task does not exist.
func (d *Distributor) BlockedBy(taskID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tasks[taskID]
	if !ok {
		return nil
	}
	var blocked []string
	for _, depID := range t.Dependencies {
		dep, ok := d.tasks[depID]
		if !ok || dep.Status != task.StatusCompleted {
			blocked = append(blocked, depID)
		}
	}
	return blocked
}
