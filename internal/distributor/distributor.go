package distributor

import (
	"cmp"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/mailbox"
	"github.com/Iron-Ham/foreman/internal/task"
)

// DefaultMaxConcurrent is the per-worker active task limit used by
// BatchDistribute when the caller passes a non-positive limit.
const DefaultMaxConcurrent = 3

// MetaRedistribute is the metadata key set by FlagForRedistribution.
const MetaRedistribute = "redistribute"

// MetaUrgentNotified records the worker that was last sent an urgent
// deadline notice for a task.
const MetaUrgentNotified = "urgent_notified"

// Distributor is the authoritative store and lifecycle manager for tasks.
type Distributor struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
	order []string // task IDs in creation order

	sender   mailbox.Sender
	bus      *event.Bus
	logger   *logging.Logger
	now      func() time.Time
	defaults Defaults
}

// New creates an empty Distributor.
func New(opts ...Option) *Distributor {
	d := &Distributor{
		tasks:    make(map[string]*task.Task),
		logger:   logging.NopLogger(),
		now:      time.Now,
		defaults: DefaultDefaults(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateRequest describes a new task. Zero-valued optional fields take the
// distributor's defaults.
type CreateRequest struct {
	// ID is normally generated. Imports set it so dependencies can refer to
	// tasks defined in the same file.
	ID              string
	Title           string
	Description     string
	AssignedTo      string
	CreatedBy       string
	Priority        *task.Priority
	EstimatedHours  float64
	DeadlineOffset  time.Duration
	Deadline        time.Time // Overrides DeadlineOffset when set
	Dependencies    []string
	ExpectedOutputs []string
	Tags            []string
	Metadata        map[string]string
}

// Create registers a new Pending task and returns a copy of it.
func (d *Distributor) Create(req CreateRequest) (*task.Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.NewValidationError("title is required").WithField("title")
	}
	if strings.TrimSpace(req.AssignedTo) == "" {
		return nil, errors.NewValidationError("assignee is required").WithField("assigned_to")
	}
	if req.EstimatedHours < 0 {
		return nil, errors.NewValidationError("estimated hours must not be negative").
			WithField("estimated_hours").WithValue(req.EstimatedHours)
	}

	priority := d.defaults.Priority
	if req.Priority != nil {
		if !req.Priority.IsValid() {
			return nil, errors.NewValidationError("unknown priority").
				WithField("priority").WithValue(int(*req.Priority))
		}
		priority = *req.Priority
	}
	hours := req.EstimatedHours
	if hours == 0 {
		hours = d.defaults.EstimatedHours
	}

	d.mu.Lock()
	now := d.now()
	deadline := req.Deadline
	if deadline.IsZero() {
		offset := req.DeadlineOffset
		if offset <= 0 {
			offset = d.defaults.DeadlineOffset
		}
		deadline = now.Add(offset)
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, exists := d.tasks[id]; exists {
		d.mu.Unlock()
		return nil, errors.NewValidationError("task ID already exists").WithField("id").WithValue(id)
	}

	t := &task.Task{
		ID:              id,
		Title:           req.Title,
		Description:     req.Description,
		AssignedTo:      req.AssignedTo,
		CreatedBy:       req.CreatedBy,
		Priority:        priority,
		Status:          task.StatusPending,
		Dependencies:    nonNil(req.Dependencies),
		ExpectedOutputs: nonNil(req.ExpectedOutputs),
		EstimatedHours:  hours,
		CreatedAt:       now,
		Deadline:        deadline,
		Tags:            nonNil(req.Tags),
		Metadata:        maps.Clone(req.Metadata),
	}
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	d.tasks[id] = t
	d.order = append(d.order, id)
	cp := t.Clone()
	d.mu.Unlock()

	d.logger.WithTask(id).Info("task created",
		"worker_id", cp.AssignedTo,
		"priority", cp.Priority.String(),
	)
	d.bus.Publish(event.NewTaskCreatedEvent(id, cp.AssignedTo, cp.Priority.String()))
	return cp, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

// Get returns a copy of the task, or false if it does not exist.
func (d *Distributor) Get(taskID string) (*task.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Filter selects tasks for List. Zero fields match everything.
type Filter struct {
	WorkerID string
	Statuses []task.Status
	Tag      string
}

func (f Filter) matches(t *task.Task) bool {
	if f.WorkerID != "" && t.AssignedTo != f.WorkerID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if f.Tag != "" && !t.HasTag(f.Tag) {
		return false
	}
	return true
}

// List returns copies of the matching tasks in creation order.
func (d *Distributor) List(f Filter) []*task.Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*task.Task
	for _, id := range d.order {
		if t := d.tasks[id]; f.matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Workers returns every worker that has ever been assigned a task, sorted.
func (d *Distributor) Workers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[string]struct{})
	for _, t := range d.tasks {
		seen[t.AssignedTo] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Counts returns the number of tasks in each status. Every status is present.
func (d *Distributor) Counts() map[task.Status]int {
	d.mu.Lock()
	defer d.mu.Unlock()

	counts := make(map[task.Status]int, len(task.Statuses()))
	for _, s := range task.Statuses() {
		counts[s] = 0
	}
	for _, t := range d.tasks {
		counts[t.Status]++
	}
	return counts
}

// Len returns the number of tasks.
func (d *Distributor) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Load returns the estimated hours of the worker's Active and Pending tasks.
func (d *Distributor) Load(workerID string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hoursLocked(workerID, task.StatusActive, task.StatusPending)
}

// ActiveLoad returns the estimated hours of the worker's Active tasks.
func (d *Distributor) ActiveLoad(workerID string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hoursLocked(workerID, task.StatusActive)
}

func (d *Distributor) hoursLocked(workerID string, statuses ...task.Status) float64 {
	var total float64
	for _, t := range d.tasks {
		if t.AssignedTo == workerID && slices.Contains(statuses, t.Status) {
			total += t.EstimatedHours
		}
	}
	return total
}

// Workload summarizes the worker's Active and Pending tasks.
func (d *Distributor) Workload(workerID string) task.Workload {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	w := task.Workload{
		WorkerID:          workerID,
		PriorityBreakdown: make(map[task.Priority]int),
	}
	var deadlineSum float64
	for _, t := range d.tasks {
		if t.AssignedTo != workerID {
			continue
		}
		switch t.Status {
		case task.StatusActive:
			w.ActiveCount++
		case task.StatusPending:
			w.PendingCount++
		default:
			continue
		}
		w.TotalHours += t.EstimatedHours
		w.PriorityBreakdown[t.Priority]++
		deadlineSum += t.TimeToDeadline(now).Seconds()
	}
	if n := w.ActiveCount + w.PendingCount; n > 0 {
		w.MeanSecondsToDeadline = deadlineSum / float64(n)
	}
	return w
}

// backlogLocked returns the worker's Pending tasks ordered by priority
// descending, then deadline, then creation time.
func (d *Distributor) backlogLocked(workerID string) []*task.Task {
	var backlog []*task.Task
	for _, id := range d.order {
		t := d.tasks[id]
		if t.AssignedTo == workerID && t.Status == task.StatusPending {
			backlog = append(backlog, t)
		}
	}
	slices.SortStableFunc(backlog, func(a, b *task.Task) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := a.Deadline.Compare(b.Deadline); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return backlog
}

func (d *Distributor) activeCountLocked(workerID string) int {
	n := 0
	for _, t := range d.tasks {
		if t.AssignedTo == workerID && t.Status == task.StatusActive {
			n++
		}
	}
	return n
}
