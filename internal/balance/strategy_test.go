package balance

import (
	"testing"

	"github.com/Iron-Ham/foreman/internal/task"
)

func newTask(p task.Priority, tags ...string) *task.Task {
	return &task.Task{ID: "t", Priority: p, Tags: tags}
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		s, err := New(name, nil)
		if err != nil {
			t.Fatalf("New(%q) error = %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, s.Name())
		}
	}
	if s, err := New("", nil); err != nil || s.Name() != NameRoundRobin {
		t.Errorf("New(\"\") = %v, %v; want round_robin", s, err)
	}
	if _, err := New("random", nil); err == nil {
		t.Error("New(unknown) should fail")
	}
}

func TestRoundRobin(t *testing.T) {
	rr := NewRoundRobin()
	candidates := []Candidate{{WorkerID: "c"}, {WorkerID: "a"}, {WorkerID: "b"}}

	var picks []string
	for range 4 {
		id, ok := rr.Select(nil, candidates)
		if !ok {
			t.Fatal("Select() ok = false")
		}
		picks = append(picks, id)
	}
	want := []string{"a", "b", "c", "a"}
	for i := range want {
		if picks[i] != want[i] {
			t.Errorf("pick %d = %s, want %s", i, picks[i], want[i])
		}
	}

	// Removing the next worker continues the rotation past it.
	id, _ := rr.Select(nil, []Candidate{{WorkerID: "a"}, {WorkerID: "c"}})
	if id != "c" {
		t.Errorf("after a, with b gone, pick = %s, want c", id)
	}

	if _, ok := rr.Select(nil, nil); ok {
		t.Error("Select(no candidates) ok = true")
	}
}

func TestLeastLoaded(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		want       string
	}{
		{"lowest load", []Candidate{{"a", 5, false}, {"b", 1, false}, {"c", 3, false}}, "b"},
		{"tie by id", []Candidate{{"z", 2, false}, {"m", 2, false}}, "m"},
		{"ignores overload flag", []Candidate{{"a", 0, true}, {"b", 1, false}}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LeastLoaded{}.Select(nil, tt.candidates)
			if !ok || got != tt.want {
				t.Errorf("Select() = %s, %v; want %s", got, ok, tt.want)
			}
		})
	}
	if _, ok := (LeastLoaded{}).Select(nil, nil); ok {
		t.Error("Select(no candidates) ok = true")
	}
}

func TestPriorityBased(t *testing.T) {
	candidates := []Candidate{
		{WorkerID: "a", Load: 6, Overloaded: false},
		{WorkerID: "b", Load: 1, Overloaded: false},
		{WorkerID: "c", Load: 0, Overloaded: true},
	}

	pb := NewPriorityBased()
	if got, _ := pb.Select(newTask(task.PriorityCritical), candidates); got != "c" {
		t.Errorf("critical task went to %s, want least loaded c", got)
	}
	if got, _ := pb.Select(newTask(task.PriorityHigh), candidates); got != "c" {
		t.Errorf("high task went to %s, want c", got)
	}

	first, _ := pb.Select(newTask(task.PriorityLow), candidates)
	second, _ := pb.Select(newTask(task.PriorityMedium), candidates)
	if first != "a" || second != "b" {
		t.Errorf("low/medium rotation = %s, %s; want a, b", first, second)
	}

	allOverloaded := []Candidate{{"a", 9, true}, {"b", 8.5, true}}
	if got, _ := pb.Select(newTask(task.PriorityLow), allOverloaded); got != "b" {
		t.Errorf("fallback = %s, want least loaded b", got)
	}
}

func TestSkillBased(t *testing.T) {
	reg := NewRegistry()
	reg.UpdateCapabilities("go-dev", []string{"go", "sql"})
	reg.UpdateCapabilities("go-dev-2", []string{"go", "sql", "k8s"})
	reg.UpdateCapabilities("designer", []string{"figma"})
	s := NewSkillBased(reg)

	candidates := []Candidate{
		{WorkerID: "go-dev", Load: 4},
		{WorkerID: "go-dev-2", Load: 2},
		{WorkerID: "designer", Load: 0},
	}

	tests := []struct {
		name string
		task *task.Task
		want string
	}{
		{"full coverage, least loaded", newTask(task.PriorityMedium, "go", "sql"), "go-dev-2"},
		{"partial coverage wins", newTask(task.PriorityMedium, "k8s", "rust"), "go-dev-2"},
		{"no tags falls back to least loaded", newTask(task.PriorityMedium), "designer"},
		{"nobody covers, least loaded overall", newTask(task.PriorityMedium, "cobol"), "designer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Select(tt.task, candidates)
			if !ok || got != tt.want {
				t.Errorf("Select() = %s, %v; want %s", got, ok, tt.want)
			}
		})
	}
}
