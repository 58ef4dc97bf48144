package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/foreman/internal/balance"
	"github.com/Iron-Ham/foreman/internal/clock"
	"github.com/Iron-Ham/foreman/internal/distributor"
	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/intake"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/mailbox"
	"github.com/Iron-Ham/foreman/internal/monitor"
	"github.com/Iron-Ham/foreman/internal/task"
)

// TaskStore is the part of the distributor the coordinator reads and
// mutates. All task movement goes through it.
type TaskStore interface {
	Get(taskID string) (*task.Task, bool)
	List(f distributor.Filter) []*task.Task
	Workers() []string
	Counts() map[task.Status]int
	Load(workerID string) float64
	Reassign(taskID, newWorkerID, reason string) bool
	SetPriority(taskID string, p task.Priority) bool
	FlagForRedistribution(taskID, reason string) bool
	MarkUrgentNotified(taskID, workerID string) bool
	RedistributeFailed(taskID, newWorkerID string) bool
	BatchDistribute(ctx context.Context, workerID string, maxConcurrent int) []*task.Task
	SaveState(dir string) error
}

// Health is the part of the status monitor the coordinator uses.
type Health interface {
	Cycle(ctx context.Context) error
	Workload(workerID string) float64
	Statuses() []monitor.WorkerStatus
	Unresolved() []monitor.Alert
	Resolve(alertID string) bool
	PruneResolved(olderThan time.Duration) int
	SaveAlerts(dir string) error
}

// History stores reports.
type History interface {
	Append(ctx context.Context, r *Report) error
}

// Intake applies worker status reports before each assessment.
type Intake interface {
	Drain(ctx context.Context) (intake.Result, error)
}

// Coordinator owns the control loop. Its methods are safe for concurrent
// use, but cycles never overlap.
type Coordinator struct {
	tasks    TaskStore
	health   Health
	history  History
	intake   Intake
	registry *balance.Registry
	sender   mailbox.Sender
	bus      *event.Bus
	logger   *logging.Logger
	clock    clock.Clock

	interval           time.Duration
	backoff            time.Duration
	deadlineWindow     time.Duration
	urgentWindow       time.Duration
	overloadHours      float64
	underloadHours     float64
	maxConcurrent      int
	maxRedistributions int
	autoDistribute     bool
	stateDir           string
	alertRetention     time.Duration

	// cycleMu serializes RunCycle.
	cycleMu sync.Mutex

	mu       sync.Mutex
	mode     Mode
	override Mode
	strategy balance.Strategy
	queued   []Action
	last     *Report
	cycle    uint64
}

// New creates a Coordinator over the given distributor and monitor.
func New(tasks TaskStore, health Health, opts ...Option) *Coordinator {
	c := &Coordinator{
		tasks:              tasks,
		health:             health,
		registry:           balance.NewRegistry(),
		logger:             logging.NopLogger(),
		clock:              clock.Real{},
		interval:           DefaultInterval,
		backoff:            DefaultBackoff,
		deadlineWindow:     DefaultDeadlineWindow,
		urgentWindow:       DefaultUrgentWindow,
		overloadHours:      DefaultOverloadHours,
		underloadHours:     DefaultUnderloadHours,
		maxConcurrent:      DefaultMaxConcurrent,
		maxRedistributions: DefaultMaxRedistributions,
		autoDistribute:     true,
		mode:               ModeNormal,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.strategy == nil {
		c.strategy = balance.NewRoundRobin()
	}
	return c
}

// Mode returns the mode of the latest cycle, or the override if one is set.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Override returns the manual override, or "" when classification is
// automatic.
func (c *Coordinator) Override() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.override
}

// ForceEmergencyMode pins the coordinator to Emergency.
func (c *Coordinator) ForceEmergencyMode() {
	c.setOverride(ModeEmergency)
}

// ResetToNormalMode pins the coordinator to Normal.
func (c *Coordinator) ResetToNormalMode() {
	c.setOverride(ModeNormal)
}

// EnterMaintenance pins the coordinator to Maintenance. Cycles keep
// assessing and reporting but take no action.
func (c *Coordinator) EnterMaintenance() {
	c.setOverride(ModeMaintenance)
}

// ClearOverride returns to automatic classification from the next cycle.
func (c *Coordinator) ClearOverride() {
	c.mu.Lock()
	c.override = ""
	c.mu.Unlock()
	c.logger.Info("mode override cleared")
}

func (c *Coordinator) setOverride(m Mode) {
	c.mu.Lock()
	from := c.mode
	c.override = m
	c.mode = m
	c.mu.Unlock()

	c.logger.Info("mode override set", "mode", string(m))
	if from != m {
		c.bus.Publish(event.NewModeChangedEvent(string(from), string(m), true))
	}
}

// Strategy returns the active balancing strategy.
func (c *Coordinator) Strategy() balance.Strategy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strategy
}

// SetStrategy swaps the active balancing strategy. The change applies from
// the next placement decision.
func (c *Coordinator) SetStrategy(s balance.Strategy) {
	if s == nil {
		return
	}
	c.mu.Lock()
	prev := c.strategy.Name()
	c.strategy = s
	c.mu.Unlock()
	if prev != s.Name() {
		c.logger.Info("balancing strategy changed", "from", prev, "to", s.Name())
	}
}

// Registry returns the capability registry consulted by the skill-based
// strategy.
func (c *Coordinator) Registry() *balance.Registry {
	return c.registry
}

// LastReport returns the report of the latest completed cycle, or nil.
func (c *Coordinator) LastReport() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Queued returns the actions waiting for the next cycle.
func (c *Coordinator) Queued() []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Action(nil), c.queued...)
}
