package coordinator

import (
	"maps"
	"slices"

	"github.com/Iron-Ham/foreman/internal/balance"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/monitor"
	"github.com/Iron-Ham/foreman/internal/task"
)

// placement tracks worker loads while a cycle moves tasks, so each
// decision sees the effect of the ones before it.
type placement struct {
	strategy balance.Strategy
	workers  []string
	loads    map[string]float64
	states   map[string]monitor.WorkerState
}

func (c *Coordinator) newPlacement() *placement {
	p := &placement{
		strategy: c.Strategy(),
		loads:    make(map[string]float64),
		states:   make(map[string]monitor.WorkerState),
	}
	for _, st := range c.health.Statuses() {
		p.states[st.WorkerID] = st.State
	}
	known := make(map[string]struct{})
	for _, w := range c.tasks.Workers() {
		known[w] = struct{}{}
	}
	for w := range c.registry.Snapshot() {
		known[w] = struct{}{}
	}
	p.workers = slices.Sorted(maps.Keys(known))
	for _, w := range p.workers {
		p.loads[w] = c.tasks.Load(w)
	}
	return p
}

// reachable reports whether w may receive work. Workers the monitor has
// not polled yet are given the benefit of the doubt.
func (p *placement) reachable(w string) bool {
	st, ok := p.states[w]
	return !ok || st.IsReachable()
}

// candidates lists reachable workers other than skip whose load passes keep.
func (p *placement) candidates(skip string, keep func(load float64) bool) []balance.Candidate {
	var out []balance.Candidate
	for _, w := range p.workers {
		if w == skip || !p.reachable(w) {
			continue
		}
		if keep != nil && !keep(p.loads[w]) {
			continue
		}
		out = append(out, balance.Candidate{
			WorkerID:   w,
			Load:       p.loads[w],
			Overloaded: p.states[w] == monitor.StateOverloaded,
		})
	}
	return out
}

// counted reports whether t contributes to its worker's load.
func counted(t *task.Task) bool {
	return t.Status == task.StatusPending || t.Status == task.StatusActive
}

// choose asks the strategy for a worker for t, treating t as already
// removed from its current worker.
func (p *placement) choose(t *task.Task, skip string, keep func(load float64) bool) (string, bool) {
	if counted(t) {
		p.loads[t.AssignedTo] -= t.EstimatedHours
		defer func() { p.loads[t.AssignedTo] += t.EstimatedHours }()
	}
	return p.strategy.Select(t, p.candidates(skip, keep))
}

// moved records that t now belongs to worker to.
func (p *placement) moved(t *task.Task, to string) {
	if counted(t) {
		p.loads[t.AssignedTo] -= t.EstimatedHours
	}
	p.loads[to] += t.EstimatedHours
}

// rebalance moves t to the worker the strategy picks. It returns false when
// the strategy keeps t where it is or the distributor refuses the move.
func (c *Coordinator) rebalance(p *placement, t *task.Task, skip, reason string, log *logging.Logger) bool {
	to, ok := p.choose(t, skip, nil)
	if !ok || to == t.AssignedTo {
		return false
	}
	return c.move(p, t, to, reason, log)
}

func (c *Coordinator) move(p *placement, t *task.Task, to, reason string, log *logging.Logger) bool {
	if !c.tasks.Reassign(t.ID, to, reason) {
		return false
	}
	p.moved(t, to)
	log.WithTask(t.ID).Info("task moved", "from", t.AssignedTo, "to", to, "reason", reason)
	return true
}
