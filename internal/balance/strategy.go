package balance

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Iron-Ham/foreman/internal/task"
)

// Strategy names accepted by New and the configuration file.
const (
	NameRoundRobin    = "round_robin"
	NamePriorityBased = "priority_based"
	NameLeastLoaded   = "least_loaded"
	NameSkillBased    = "skill_based"
)

// Names returns every strategy name.
func Names() []string {
	return []string{NameRoundRobin, NameLeastLoaded, NamePriorityBased, NameSkillBased}
}

// Candidate is a worker eligible to receive a task.
type Candidate struct {
	WorkerID string

	// Load is the estimated hours of the worker's Active and Pending tasks.
	Load float64

	// Overloaded is set when the monitor reports the worker above its
	// overload threshold.
	Overloaded bool
}

// Strategy chooses a worker for a task.
type Strategy interface {
	// Name returns the configuration name of the strategy.
	Name() string

	// Select returns the chosen worker ID, or false when no candidate fits.
	Select(t *task.Task, candidates []Candidate) (string, bool)
}

// New returns the strategy registered under name. The registry is consulted
// only by the skill-based strategy and may be nil for the others.
func New(name string, registry *Registry) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameRoundRobin, "":
		return NewRoundRobin(), nil
	case NameLeastLoaded:
		return LeastLoaded{}, nil
	case NamePriorityBased:
		return NewPriorityBased(), nil
	case NameSkillBased:
		if registry == nil {
			registry = NewRegistry()
		}
		return NewSkillBased(registry), nil
	default:
		return nil, fmt.Errorf("unknown balancing strategy %q (valid: %s)", name, strings.Join(Names(), ", "))
	}
}

// sortedByID returns candidates ordered by worker ID so strategies behave
// the same regardless of input order.
func sortedByID(candidates []Candidate) []Candidate {
	sorted := slices.Clone(candidates)
	slices.SortFunc(sorted, func(a, b Candidate) int {
		return strings.Compare(a.WorkerID, b.WorkerID)
	})
	return sorted
}

// RoundRobin cycles through candidates in worker ID order.
type RoundRobin struct {
	mu   sync.Mutex
	last string
}

// NewRoundRobin creates a RoundRobin strategy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Name implements Strategy.
func (r *RoundRobin) Name() string { return NameRoundRobin }

// Select returns the first candidate whose ID sorts after the previous pick,
// wrapping around. The rotation is keyed on the last ID, not an index, so it
// survives changes to the candidate set.
func (r *RoundRobin) Select(_ *task.Task, candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	sorted := sortedByID(candidates)

	r.mu.Lock()
	defer r.mu.Unlock()
	pick := sorted[0].WorkerID
	for _, c := range sorted {
		if c.WorkerID > r.last {
			pick = c.WorkerID
			break
		}
	}
	r.last = pick
	return pick, true
}

// LeastLoaded picks the candidate with the lowest Load, breaking ties by
// worker ID.
type LeastLoaded struct{}

// Name implements Strategy.
func (LeastLoaded) Name() string { return NameLeastLoaded }

// Select implements Strategy.
func (LeastLoaded) Select(_ *task.Task, candidates []Candidate) (string, bool) {
	return leastLoaded(candidates)
}

func leastLoaded(candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	best := slices.MinFunc(sortedByID(candidates), func(a, b Candidate) int {
		return cmp.Compare(a.Load, b.Load)
	})
	return best.WorkerID, true
}

// PriorityBased sends High and Critical tasks to the least-loaded worker
// and rotates Low and Medium tasks across workers that are not overloaded.
type PriorityBased struct {
	rr *RoundRobin
}

// NewPriorityBased creates a PriorityBased strategy.
func NewPriorityBased() *PriorityBased {
	return &PriorityBased{rr: NewRoundRobin()}
}

// Name implements Strategy.
func (p *PriorityBased) Name() string { return NamePriorityBased }

// Select implements Strategy. When every candidate is overloaded, Low and
// Medium tasks fall back to the least-loaded worker.
func (p *PriorityBased) Select(t *task.Task, candidates []Candidate) (string, bool) {
	if t != nil && t.Priority >= task.PriorityHigh {
		return leastLoaded(candidates)
	}
	var open []Candidate
	for _, c := range candidates {
		if !c.Overloaded {
			open = append(open, c)
		}
	}
	if len(open) == 0 {
		return leastLoaded(candidates)
	}
	return p.rr.Select(t, open)
}

// SkillBased restricts the choice to workers whose registered capabilities
// cover the task's tags and picks the least loaded of them. If no worker
// covers every tag, the workers covering the most tags are used.
type SkillBased struct {
	registry *Registry
}

// NewSkillBased creates a SkillBased strategy over registry.
func NewSkillBased(registry *Registry) *SkillBased {
	return &SkillBased{registry: registry}
}

// Name implements Strategy.
func (s *SkillBased) Name() string { return NameSkillBased }

// Select implements Strategy.
func (s *SkillBased) Select(t *task.Task, candidates []Candidate) (string, bool) {
	if t == nil || len(t.Tags) == 0 {
		return leastLoaded(candidates)
	}
	bestScore := -1
	var best []Candidate
	for _, c := range candidates {
		score := s.registry.Coverage(c.WorkerID, t.Tags)
		switch {
		case score > bestScore:
			bestScore = score
			best = []Candidate{c}
		case score == bestScore:
			best = append(best, c)
		}
	}
	return leastLoaded(best)
}
