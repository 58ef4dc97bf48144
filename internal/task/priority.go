package task

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Priority orders tasks for assignment. Higher values are more urgent.
type Priority int

const (
	// PriorityLow is background work.
	PriorityLow Priority = iota

	// PriorityMedium is the default priority for new tasks.
	PriorityMedium

	// PriorityHigh is work that should run ahead of the normal backlog.
	PriorityHigh

	// PriorityCritical is work that preempts everything else.
	PriorityCritical
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// IsValid reports whether p is one of the four defined priorities.
func (p Priority) IsValid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// Escalate returns the next priority up, saturating at critical.
func (p Priority) Escalate() Priority {
	if p >= PriorityCritical {
		return PriorityCritical
	}
	return p + 1
}

// ParsePriority converts a name such as "high" into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "medium", "":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityMedium, fmt.Errorf("unknown priority %q", s)
	}
}

// MarshalText encodes the priority by name so JSON and YAML stay readable.
func (p Priority) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a priority name.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// UnmarshalJSON accepts either the name or the ordinal.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if !Priority(n).IsValid() {
			return fmt.Errorf("invalid priority %d", n)
		}
		*p = Priority(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return p.UnmarshalText([]byte(s))
}

// Priorities returns every priority from lowest to highest.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
}

// Ptr returns a pointer to a copy of p, for optional priority fields.
func (p Priority) Ptr() *Priority {
	return &p
}
