package coordinator

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/foreman/internal/distributor"
	"github.com/Iron-Ham/foreman/internal/monitor"
	"github.com/Iron-Ham/foreman/internal/task"
)

func (c *Coordinator) buildReport(n uint64, start time.Time, mode Mode, manual bool, moved int, snap Snapshot, p *placement) *Report {
	statuses := c.health.Statuses()
	active := 0
	for _, st := range statuses {
		if st.State.IsReachable() {
			active++
		}
	}
	totals := TotalsFromCounts(c.tasks.Counts())

	r := &Report{
		Cycle:          n,
		Timestamp:      start,
		Mode:           mode,
		Manual:         manual,
		Totals:         totals,
		ActiveWorkers:  active,
		AvgWorkload:    snap.AvgWorkload,
		CompletionRate: totals.CompletionRate(),
		Moved:          moved,
		Bottlenecks:    c.health.Unresolved(),
		Workers:        snap.Workers,
	}
	r.Recommendations = c.recommend(r, statuses)
	r.NextActions = c.planActions(p)
	r.Duration = c.clock.Now().Sub(start)
	return r
}

// recommend produces operator-facing advice for the report.
func (c *Coordinator) recommend(r *Report, statuses []monitor.WorkerStatus) []string {
	var recs []string
	if r.Mode == ModeMaintenance {
		recs = append(recs, "maintenance mode: no corrective action taken")
	}

	overloaded := 0
	for _, st := range statuses {
		switch st.State {
		case monitor.StateUnavailable:
			recs = append(recs, fmt.Sprintf("worker %s is unreachable; check its process", st.WorkerID))
		case monitor.StateError:
			recs = append(recs, fmt.Sprintf("worker %s has %d errors, last: %s", st.WorkerID, st.ErrorCount, st.LastError))
		case monitor.StateOverloaded:
			overloaded++
		}
	}
	if len(statuses) > 0 && overloaded == len(statuses) {
		recs = append(recs, "every worker is overloaded; add workers")
	} else if r.AvgWorkload > OptimizingWorkload {
		recs = append(recs, fmt.Sprintf("average workload %.0f%%; consider adding workers", r.AvgWorkload*100))
	}

	if r.CompletionRate < EmergencyCompletionRate {
		recs = append(recs, fmt.Sprintf("completion rate %.0f%%; review failing tasks", r.CompletionRate*100))
	}
	for _, t := range c.tasks.List(distributor.Filter{Statuses: []task.Status{task.StatusFailed}}) {
		if t.RedistributionCount >= c.maxRedistributions {
			recs = append(recs, fmt.Sprintf("task %s failed after %d redistributions; needs manual attention", t.ID, t.RedistributionCount))
		}
	}
	for _, t := range c.tasks.List(distributor.Filter{Statuses: []task.Status{task.StatusActive}}) {
		if reason, ok := t.Metadata[distributor.MetaRedistribute]; ok {
			recs = append(recs, fmt.Sprintf("task %s on %s flagged for redistribution (%s)", t.ID, t.AssignedTo, reason))
		}
	}
	if len(r.Bottlenecks) > EmergencyBottlenecks {
		recs = append(recs, fmt.Sprintf("%d unresolved bottlenecks: %s", len(r.Bottlenecks), alertSummary(r.Bottlenecks)))
	}
	return recs
}

// planActions schedules work for the next cycle.
func (c *Coordinator) planActions(p *placement) []Action {
	var actions []Action
	for _, t := range c.tasks.List(distributor.Filter{Statuses: []task.Status{task.StatusFailed}}) {
		if t.RedistributionCount >= c.maxRedistributions {
			continue
		}
		to, ok := p.choose(t, t.AssignedTo, nil)
		if !ok {
			to = t.AssignedTo
		}
		actions = append(actions, Action{
			Kind:     ActionRedistribute,
			TaskID:   t.ID,
			WorkerID: to,
			Reason:   fmt.Sprintf("failed on %s", t.AssignedTo),
		})
	}

	if !c.autoDistribute {
		return actions
	}
	for _, w := range p.workers {
		if !p.reachable(w) {
			continue
		}
		pending := len(c.tasks.List(distributor.Filter{WorkerID: w, Statuses: []task.Status{task.StatusPending}}))
		active := len(c.tasks.List(distributor.Filter{WorkerID: w, Statuses: []task.Status{task.StatusActive}}))
		if pending == 0 || active >= c.maxConcurrent {
			continue
		}
		actions = append(actions, Action{
			Kind:     ActionDistribute,
			WorkerID: w,
			Reason:   fmt.Sprintf("%d pending, %d of %d slots in use", pending, active, c.maxConcurrent),
		})
	}
	return actions
}

func alertSummary(alerts []monitor.Alert) string {
	counts := make(map[monitor.AlertType]int)
	var order []monitor.AlertType
	for _, a := range alerts {
		if counts[a.Type] == 0 {
			order = append(order, a.Type)
		}
		counts[a.Type]++
	}
	parts := make([]string, 0, len(order))
	for _, typ := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", typ, counts[typ]))
	}
	return strings.Join(parts, ", ")
}
