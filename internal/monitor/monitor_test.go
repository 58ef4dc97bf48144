package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/foreman/internal/clock"
	"github.com/Iron-Ham/foreman/internal/distributor"
	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/mailbox"
	"github.com/Iron-Ham/foreman/internal/task"
)

var testStart = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

type relayed struct {
	to       string
	priority task.Priority
	kind     mailbox.Kind
}

type recordingSender struct {
	mu   sync.Mutex
	sent []relayed
}

func (s *recordingSender) Send(_ context.Context, to, _ string, p task.Priority, k mailbox.Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, relayed{to, p, k})
	return true
}

func (s *recordingSender) messages() []relayed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relayed(nil), s.sent...)
}

type fixture struct {
	clk    *clock.Fake
	dist   *distributor.Distributor
	prober *StaticProber
	sender *recordingSender
	mon    *Monitor
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		clk:    clock.NewFake(testStart),
		prober: NewStaticProber(),
		sender: &recordingSender{},
	}
	f.dist = distributor.New(distributor.WithClock(f.clk.Now))
	opts = append([]Option{WithClock(f.clk.Now), WithSender(f.sender)}, opts...)
	f.mon = New(f.dist, f.prober, opts...)
	return f
}

// activeTask creates and distributes a task for worker.
func (f *fixture) activeTask(t *testing.T, worker string, hours float64, p task.Priority) *task.Task {
	t.Helper()
	created, err := f.dist.Create(distributor.CreateRequest{
		Title:          "work",
		AssignedTo:     worker,
		EstimatedHours: hours,
		Priority:       p.Ptr(),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !f.dist.Distribute(context.Background(), created.ID) {
		t.Fatalf("Distribute(%s) = false", created.ID)
	}
	return created
}

func (f *fixture) cycle(t *testing.T) {
	t.Helper()
	if err := f.mon.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
}

func alertsOfType(alerts []Alert, typ AlertType) []Alert {
	var out []Alert
	for _, a := range alerts {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func TestWorkload(t *testing.T) {
	f := newFixture(t)

	if got := f.mon.Workload("w1"); got != 0 {
		t.Errorf("Workload(empty) = %v, want 0", got)
	}
	f.activeTask(t, "w1", 2, task.PriorityMedium)
	if got := f.mon.Workload("w1"); got != 0.25 {
		t.Errorf("Workload(2h) = %v, want 0.25", got)
	}
	f.activeTask(t, "w1", 2, task.PriorityMedium)
	if got := f.mon.Workload("w1"); got != 0.5 {
		t.Errorf("Workload(4h) = %v, want 0.5", got)
	}

	// Pending work does not count.
	if _, err := f.dist.Create(distributor.CreateRequest{Title: "later", AssignedTo: "w1", EstimatedHours: 6}); err != nil {
		t.Fatal(err)
	}
	if got := f.mon.Workload("w1"); got != 0.5 {
		t.Errorf("Workload(with pending) = %v, want 0.5", got)
	}
}

func TestWorkload_DecreasesAsTasksComplete(t *testing.T) {
	f := newFixture(t)
	a := f.activeTask(t, "w1", 3, task.PriorityMedium)
	b := f.activeTask(t, "w1", 3, task.PriorityMedium)

	before := f.mon.Workload("w1")
	f.dist.UpdateStatus(a.ID, task.StatusCompleted)
	mid := f.mon.Workload("w1")
	f.dist.UpdateStatus(b.ID, task.StatusCompleted)
	after := f.mon.Workload("w1")

	if !(before > mid && mid > after) || after != 0 {
		t.Errorf("workload %v -> %v -> %v, want strictly decreasing to 0", before, mid, after)
	}
}

func TestCycle_OverloadedWorker(t *testing.T) {
	f := newFixture(t)
	bus := event.NewBus()
	f.mon.bus = bus

	var changes []event.WorkerStateChangedEvent
	bus.Subscribe("worker.state_changed", func(e event.Event) {
		changes = append(changes, e.(event.WorkerStateChangedEvent))
	})

	f.activeTask(t, "w1", 3, task.PriorityMedium)
	f.activeTask(t, "w1", 3, task.PriorityMedium)
	f.activeTask(t, "w1", 3, task.PriorityMedium)
	f.prober.Touch("w1", testStart)

	f.cycle(t)

	if got := f.mon.Workload("w1"); got != 1.0 {
		t.Errorf("Workload() = %v, want 1.0", got)
	}
	st, ok := f.mon.Status("w1")
	if !ok {
		t.Fatal("Status(w1) not found")
	}
	if st.State != StateOverloaded {
		t.Errorf("State = %s, want %s", st.State, StateOverloaded)
	}
	if len(st.ActiveTaskIDs) != 3 {
		t.Errorf("ActiveTaskIDs = %v, want 3 ids", st.ActiveTaskIDs)
	}
	overloads := alertsOfType(f.mon.Unresolved(), AlertWorkerOverloaded)
	if len(overloads) != 1 || overloads[0].Severity != SeverityWarning {
		t.Fatalf("overload alerts = %+v, want one warning", overloads)
	}
	if len(changes) != 1 || changes[0].To != string(StateOverloaded) {
		t.Errorf("state change events = %+v", changes)
	}

	msgs := f.sender.messages()
	if len(msgs) != 1 || msgs[0].to != "w1" || msgs[0].kind != mailbox.KindAlert || msgs[0].priority != task.PriorityHigh {
		t.Errorf("relayed = %+v, want one high-priority alert to w1", msgs)
	}
}

func TestCycle_StatesFromWorkload(t *testing.T) {
	tests := []struct {
		name  string
		hours []float64
		want  WorkerState
	}{
		{"idle", nil, StateIdle},
		{"working", []float64{4}, StateWorking},
		{"at threshold", []float64{6.4}, StateWorking},
		{"overloaded", []float64{7}, StateOverloaded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			// Give the worker a pending task so it is known even when idle.
			if _, err := f.dist.Create(distributor.CreateRequest{Title: "queued", AssignedTo: "w1"}); err != nil {
				t.Fatal(err)
			}
			for _, h := range tt.hours {
				f.activeTask(t, "w1", h, task.PriorityMedium)
			}
			f.prober.Touch("w1", testStart)
			f.cycle(t)

			st, _ := f.mon.Status("w1")
			if st.State != tt.want {
				t.Errorf("State = %s, want %s", st.State, tt.want)
			}
		})
	}
}

func TestCycle_AlertsAreNotDuplicated(t *testing.T) {
	f := newFixture(t)
	f.activeTask(t, "w1", 9, task.PriorityMedium)
	f.prober.Touch("w1", testStart)

	f.cycle(t)
	f.cycle(t)
	f.cycle(t)

	if got := alertsOfType(f.mon.Unresolved(), AlertWorkerOverloaded); len(got) != 1 {
		t.Fatalf("overload alerts = %d, want 1", len(got))
	}

	// Once resolved, a persisting condition is reported again.
	id := alertsOfType(f.mon.Unresolved(), AlertWorkerOverloaded)[0].ID
	if !f.mon.Resolve(id) {
		t.Fatal("Resolve() = false")
	}
	f.cycle(t)
	if got := alertsOfType(f.mon.Unresolved(), AlertWorkerOverloaded); len(got) != 1 || got[0].ID == id {
		t.Errorf("after resolve: %+v, want one new alert", got)
	}
}

func TestCycle_WorkerTimeout(t *testing.T) {
	f := newFixture(t)
	f.activeTask(t, "w1", 1, task.PriorityMedium)
	f.prober.Touch("w1", testStart)
	f.cycle(t)

	f.clk.Advance(DefaultUnavailableTimeout + time.Second)
	f.cycle(t)

	st, _ := f.mon.Status("w1")
	if st.State != StateUnavailable {
		t.Fatalf("State = %s, want %s", st.State, StateUnavailable)
	}
	timeouts := alertsOfType(f.mon.Unresolved(), AlertWorkerTimeout)
	if len(timeouts) != 1 || timeouts[0].Severity != SeverityCritical {
		t.Fatalf("timeout alerts = %+v", timeouts)
	}
	msgs := f.sender.messages()
	if len(msgs) == 0 || msgs[len(msgs)-1].priority != task.PriorityCritical {
		t.Errorf("critical alert not relayed at critical priority: %+v", msgs)
	}

	// Fresh contact brings the worker back.
	f.prober.Touch("w1", f.clk.Now())
	f.cycle(t)
	if st, _ := f.mon.Status("w1"); st.State != StateWorking {
		t.Errorf("State after contact = %s, want %s", st.State, StateWorking)
	}
}

func TestCycle_NeverHeardFromIsTimedFromFirstSight(t *testing.T) {
	f := newFixture(t)
	f.activeTask(t, "w1", 1, task.PriorityMedium)

	f.cycle(t)
	st, _ := f.mon.Status("w1")
	if st.State == StateUnavailable {
		t.Fatal("worker unavailable on first sight")
	}
	if !st.FirstSeen.Equal(testStart) {
		t.Errorf("FirstSeen = %v, want %v", st.FirstSeen, testStart)
	}

	f.clk.Advance(DefaultUnavailableTimeout / 2)
	f.cycle(t)
	if st, _ := f.mon.Status("w1"); st.State == StateUnavailable {
		t.Fatal("worker unavailable before timeout")
	}

	f.clk.Advance(DefaultUnavailableTimeout)
	f.cycle(t)
	if st, _ := f.mon.Status("w1"); st.State != StateUnavailable {
		t.Errorf("State = %s, want %s", st.State, StateUnavailable)
	}
}

func TestCycle_ErrorPersistsUntilNewerContact(t *testing.T) {
	f := newFixture(t)
	f.activeTask(t, "w1", 1, task.PriorityMedium)
	f.prober.Touch("w1", testStart)
	f.cycle(t)

	f.clk.Advance(time.Minute)
	f.prober.Fail("w1", errors.New("inbox unreadable"))
	f.cycle(t)

	st, _ := f.mon.Status("w1")
	if st.State != StateError || st.ErrorCount != 1 || st.LastError != "inbox unreadable" {
		t.Fatalf("status = %+v, want error state with one error", st)
	}
	if got := alertsOfType(f.mon.Unresolved(), AlertWorkerError); len(got) != 1 {
		t.Fatalf("worker_error alerts = %d, want 1", len(got))
	}

	// The probe recovers but reports only the old contact.
	f.clk.Advance(time.Minute)
	f.prober.Touch("w1", testStart)
	f.cycle(t)
	if st, _ := f.mon.Status("w1"); st.State != StateError {
		t.Fatalf("State = %s, want error to persist", st.State)
	}

	f.prober.Touch("w1", f.clk.Now())
	f.cycle(t)
	if st, _ := f.mon.Status("w1"); st.State != StateWorking {
		t.Errorf("State = %s, want %s", st.State, StateWorking)
	}
}

func TestCycle_SlowProbeCountsAsSilence(t *testing.T) {
	f := newFixture(t, WithProbeTimeout(10*time.Millisecond))
	f.mon.prober = ProberFunc(func(ctx context.Context, _ string) (time.Time, error) {
		<-ctx.Done()
		return time.Time{}, ctx.Err()
	})
	f.activeTask(t, "w1", 1, task.PriorityMedium)

	f.cycle(t)
	st, _ := f.mon.Status("w1")
	if st.State == StateError {
		t.Errorf("State = %s, slow probe must not count as an error", st.State)
	}
}

func TestCycle_Canceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.mon.Cycle(ctx); err == nil {
		t.Error("Cycle(canceled) error = nil")
	}
}

func TestCycle_StuckTask(t *testing.T) {
	f := newFixture(t)
	stuck := f.activeTask(t, "w1", 1, task.PriorityMedium)
	f.prober.Touch("w1", testStart)

	f.clk.Advance(119 * time.Minute)
	f.prober.Touch("w1", f.clk.Now())
	f.cycle(t)
	if got := alertsOfType(f.mon.Unresolved(), AlertStuckTask); len(got) != 0 {
		t.Fatalf("stuck alert before 2x estimate: %+v", got)
	}

	f.clk.Advance(2 * time.Minute)
	f.prober.Touch("w1", f.clk.Now())
	f.cycle(t)
	got := alertsOfType(f.mon.Unresolved(), AlertStuckTask)
	if len(got) != 1 || got[0].TaskID != stuck.ID || got[0].Severity != SeverityWarning {
		t.Errorf("stuck alerts = %+v", got)
	}
}

func TestCycle_DeadlineAlerts(t *testing.T) {
	f := newFixture(t)
	soon, err := f.dist.Create(distributor.CreateRequest{
		Title:      "report",
		AssignedTo: "w1",
		Priority:   task.PriorityLow.Ptr(),
		Deadline:   testStart.Add(90 * time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.dist.Create(distributor.CreateRequest{
		Title:      "later",
		AssignedTo: "w1",
		Deadline:   testStart.Add(5 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	f.prober.Touch("w1", testStart)

	f.cycle(t)

	warnings := alertsOfType(f.mon.Unresolved(), AlertDeadlineWarning)
	if len(warnings) != 1 || warnings[0].TaskID != soon.ID || warnings[0].Severity != SeverityInfo {
		t.Fatalf("deadline warnings = %+v", warnings)
	}
	// Info alerts stay in the log only.
	if msgs := f.sender.messages(); len(msgs) != 0 {
		t.Errorf("info alert relayed: %+v", msgs)
	}

	f.clk.Advance(2 * time.Hour)
	f.prober.Touch("w1", f.clk.Now())
	f.cycle(t)
	exceeded := alertsOfType(f.mon.Unresolved(), AlertDeadlineExceeded)
	if len(exceeded) != 1 || exceeded[0].Severity != SeverityCritical {
		t.Errorf("deadline exceeded = %+v", exceeded)
	}

	// Terminal tasks are not checked.
	f.dist.UpdateStatus(soon.ID, task.StatusCancelled)
	for _, a := range f.mon.Unresolved() {
		f.mon.Resolve(a.ID)
	}
	f.cycle(t)
	if got := alertsOfType(f.mon.Unresolved(), AlertDeadlineExceeded); len(got) != 0 {
		t.Errorf("alerts for cancelled task: %+v", got)
	}
}

func TestCycle_HandledTaskAlertStaysQuiet(t *testing.T) {
	f := newFixture(t)
	late, err := f.dist.Create(distributor.CreateRequest{
		Title:          "migration",
		AssignedTo:     "w1",
		EstimatedHours: 4,
		Deadline:       testStart.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !f.dist.Distribute(context.Background(), late.ID) {
		t.Fatal("Distribute() = false")
	}
	f.clk.Advance(time.Hour)

	exceeded := func() []Alert {
		return alertsOfType(f.mon.Alerts(AlertFilter{IncludeResolved: true}), AlertDeadlineExceeded)
	}
	relays := func() int {
		n := 0
		for _, m := range f.sender.messages() {
			if m.to == "w1" && m.kind == mailbox.KindAlert && m.priority == task.PriorityCritical {
				n++
			}
		}
		return n
	}

	// Each cycle's alerts are handled and resolved before the next.
	for range 5 {
		f.prober.Touch("w1", f.clk.Now())
		f.cycle(t)
		for _, a := range f.mon.Unresolved() {
			f.mon.Resolve(a.ID)
		}
		f.clk.Advance(time.Minute)
	}
	if got := exceeded(); len(got) != 1 {
		t.Fatalf("deadline_exceeded alerts over 5 cycles = %d, want 1", len(got))
	}
	if n := relays(); n != 1 {
		t.Errorf("critical relays over 5 cycles = %d, want 1", n)
	}

	// A status change makes the condition new again.
	if !f.dist.UpdateStatus(late.ID, task.StatusFailed) {
		t.Fatal("UpdateStatus(failed) = false")
	}
	f.prober.Touch("w1", f.clk.Now())
	f.cycle(t)
	f.cycle(t)
	if got := exceeded(); len(got) != 2 || got[1].Resolved {
		t.Errorf("after status change: %+v, want a second unresolved alert", got)
	}
	if n := relays(); n != 2 {
		t.Errorf("critical relays after status change = %d, want 2", n)
	}
}

func TestCycle_CompletionStats(t *testing.T) {
	f := newFixture(t)
	a := f.activeTask(t, "w1", 1, task.PriorityMedium)
	f.clk.Advance(30 * time.Minute)
	f.dist.UpdateStatus(a.ID, task.StatusCompleted)
	b := f.activeTask(t, "w1", 1, task.PriorityMedium)
	f.clk.Advance(90 * time.Minute)
	f.dist.UpdateStatus(b.ID, task.StatusCompleted)
	f.prober.Touch("w1", f.clk.Now())

	f.cycle(t)

	st, _ := f.mon.Status("w1")
	if st.CompletedCount != 2 {
		t.Errorf("CompletedCount = %d, want 2", st.CompletedCount)
	}
	if st.AvgCompletion != time.Hour {
		t.Errorf("AvgCompletion = %v, want 1h", st.AvgCompletion)
	}
}

func TestCycle_ManyWorkersConcurrently(t *testing.T) {
	f := newFixture(t, WithPollConcurrency(3))
	workers := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, w := range workers {
		f.activeTask(t, w, 2, task.PriorityMedium)
		f.prober.Touch(w, testStart)
	}

	f.cycle(t)

	statuses := f.mon.Statuses()
	if len(statuses) != len(workers) {
		t.Fatalf("Statuses() = %d, want %d", len(statuses), len(workers))
	}
	for i, st := range statuses {
		if st.WorkerID != workers[i] {
			t.Errorf("Statuses()[%d] = %s, want %s", i, st.WorkerID, workers[i])
		}
		if st.State != StateWorking {
			t.Errorf("%s state = %s, want working", st.WorkerID, st.State)
		}
	}
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	bus := event.NewBus()
	f.mon.bus = bus
	var resolved []string
	bus.Subscribe("alert.resolved", func(e event.Event) {
		resolved = append(resolved, e.(event.AlertResolvedEvent).AlertID)
	})

	f.activeTask(t, "w1", 9, task.PriorityMedium)
	f.prober.Touch("w1", testStart)
	f.cycle(t)
	id := f.mon.Unresolved()[0].ID

	if f.mon.Resolve("missing") {
		t.Error("Resolve(missing) = true")
	}
	if !f.mon.Resolve(id) {
		t.Fatal("Resolve() = false")
	}
	if f.mon.Resolve(id) {
		t.Error("second Resolve() = true")
	}
	if len(resolved) != 1 || resolved[0] != id {
		t.Errorf("resolved events = %v", resolved)
	}

	// Resolved alerts remain queryable.
	all := f.mon.Alerts(AlertFilter{IncludeResolved: true})
	if len(all) != 1 || !all[0].Resolved || all[0].ResolvedAt.IsZero() {
		t.Errorf("Alerts(IncludeResolved) = %+v", all)
	}
	if got := f.mon.Unresolved(); len(got) != 0 {
		t.Errorf("Unresolved() = %+v, want none", got)
	}
}

func TestAlerts_Filter(t *testing.T) {
	f := newFixture(t)
	f.activeTask(t, "w1", 9, task.PriorityMedium)
	f.activeTask(t, "w2", 1, task.PriorityMedium)
	f.prober.Touch("w1", testStart)
	f.prober.Fail("w2", errors.New("boom"))
	if _, err := f.dist.Create(distributor.CreateRequest{
		Title: "due", AssignedTo: "w2", Deadline: testStart.Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	f.cycle(t)

	tests := []struct {
		name   string
		filter AlertFilter
		want   int
	}{
		{"all unresolved", AlertFilter{}, 3},
		{"by worker", AlertFilter{WorkerID: "w2"}, 2},
		{"by type", AlertFilter{Types: []AlertType{AlertWorkerError}}, 1},
		{"min warning", AlertFilter{MinSeverity: SeverityWarning}, 2},
		{"min critical", AlertFilter{MinSeverity: SeverityCritical}, 0},
		{"since future", AlertFilter{Since: testStart.Add(time.Minute)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.mon.Alerts(tt.filter); len(got) != tt.want {
				t.Errorf("Alerts(%+v) = %d alerts, want %d", tt.filter, len(got), tt.want)
			}
		})
	}
}

func TestPruneResolved(t *testing.T) {
	f := newFixture(t)
	f.activeTask(t, "w1", 9, task.PriorityMedium)
	f.activeTask(t, "w2", 1, task.PriorityMedium)
	f.prober.Touch("w1", testStart)
	f.prober.Fail("w2", errors.New("boom"))
	f.cycle(t)

	overload := alertsOfType(f.mon.Unresolved(), AlertWorkerOverloaded)[0]
	f.mon.Resolve(overload.ID)

	f.clk.Advance(30 * time.Minute)
	if n := f.mon.PruneResolved(time.Hour); n != 0 {
		t.Errorf("PruneResolved() = %d, want 0 before retention", n)
	}

	f.clk.Advance(2 * time.Hour)
	if n := f.mon.PruneResolved(time.Hour); n != 1 {
		t.Errorf("PruneResolved() = %d, want 1", n)
	}
	if f.mon.Resolve(overload.ID) {
		t.Error("pruned alert still resolvable")
	}
	if got := f.mon.Unresolved(); len(got) != 1 || got[0].Type != AlertWorkerError {
		t.Errorf("unresolved after prune = %+v", got)
	}
}

func TestSaveLoadAlerts(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t)
	f.activeTask(t, "w1", 9, task.PriorityMedium)
	f.activeTask(t, "w2", 1, task.PriorityMedium)
	f.prober.Touch("w1", testStart)
	f.prober.Fail("w2", errors.New("boom"))
	f.cycle(t)
	first := f.mon.Unresolved()[0]
	f.mon.Resolve(first.ID)

	if err := f.mon.SaveAlerts(dir); err != nil {
		t.Fatalf("SaveAlerts() error = %v", err)
	}

	g := newFixture(t)
	if err := g.mon.LoadAlerts(dir); err != nil {
		t.Fatalf("LoadAlerts() error = %v", err)
	}
	want := f.mon.Alerts(AlertFilter{IncludeResolved: true})
	got := g.mon.Alerts(AlertFilter{IncludeResolved: true})
	if len(got) != len(want) {
		t.Fatalf("loaded %d alerts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Resolved != want[i].Resolved ||
			!got[i].DetectedAt.Equal(want[i].DetectedAt) || got[i].Type != want[i].Type {
			t.Errorf("alert %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// Loaded unresolved alerts still suppress duplicates.
	g.activeTask(t, "w2", 1, task.PriorityMedium)
	g.prober.Fail("w2", errors.New("boom"))
	g.cycle(t)
	if n := len(alertsOfType(g.mon.Unresolved(), AlertWorkerError)); n != 1 {
		t.Errorf("worker_error alerts after reload = %d, want 1", n)
	}
}

func TestLoadAlerts_Missing(t *testing.T) {
	f := newFixture(t)
	if err := f.mon.LoadAlerts(t.TempDir()); err != nil {
		t.Fatalf("LoadAlerts(empty dir) error = %v", err)
	}
	if got := f.mon.Alerts(AlertFilter{IncludeResolved: true}); len(got) != 0 {
		t.Errorf("alerts = %+v, want none", got)
	}
}
