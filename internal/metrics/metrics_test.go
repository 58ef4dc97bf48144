package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/foreman/internal/event"
)

func TestCollector_CycleEvents(t *testing.T) {
	c := New()
	bus := event.NewBus()
	detach := c.Attach(bus)
	defer detach()

	counts := map[string]int{"pending": 4, "active": 2, "completed": 7, "failed": 1, "cancelled": 0}
	bus.Publish(event.NewCycleCompletedEvent(1, "optimizing", 40*time.Millisecond, 0.75, 0.875, 2, 3, counts))
	bus.Publish(event.NewCycleCompletedEvent(2, "optimizing", 20*time.Millisecond, 0.5, 0.875, 0, 0, counts))
	bus.Publish(event.NewCycleFailedEvent(3, "boom"))

	if got := testutil.ToFloat64(c.cycles); got != 2 {
		t.Errorf("cycles_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.cycleFailures); got != 1 {
		t.Errorf("cycle_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.avgWorkload); got != 0.5 {
		t.Errorf("avg_workload_ratio = %v, want 0.5", got)
	}
	if got := testutil.ToFloat64(c.tasks.WithLabelValues("pending")); got != 4 {
		t.Errorf("tasks{pending} = %v, want 4", got)
	}
	if got := testutil.ToFloat64(c.mode.WithLabelValues("optimizing")); got != 1 {
		t.Errorf("mode{optimizing} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.mode.WithLabelValues("normal")); got != 0 {
		t.Errorf("mode{normal} = %v, want 0", got)
	}
	if n := testutil.CollectAndCount(c.cycleDuration); n != 1 {
		t.Errorf("cycle_duration_seconds series = %d, want 1", n)
	}
}

func TestCollector_ModeChange(t *testing.T) {
	c := New()
	bus := event.NewBus()
	c.Attach(bus)

	bus.Publish(event.NewModeChangedEvent("normal", "emergency", true))

	for mode, want := range map[string]float64{"normal": 0, "emergency": 1, "optimizing": 0, "maintenance": 0} {
		if got := testutil.ToFloat64(c.mode.WithLabelValues(mode)); got != want {
			t.Errorf("mode{%s} = %v, want %v", mode, got, want)
		}
	}
}

func TestCollector_AlertsAndMoves(t *testing.T) {
	c := New()
	bus := event.NewBus()
	c.Attach(bus)

	bus.Publish(event.NewAlertRaisedEvent("a1", "w1", "", "worker_overloaded", "warning", "busy"))
	bus.Publish(event.NewAlertRaisedEvent("a2", "w2", "", "worker_overloaded", "warning", "busy"))
	bus.Publish(event.NewAlertRaisedEvent("a3", "w1", "t1", "deadline_exceeded", "critical", "late"))
	bus.Publish(event.NewAlertResolvedEvent("a1", "worker_overloaded"))
	bus.Publish(event.NewTaskReassignedEvent("t1", "w1", "w2", "emergency"))
	bus.Publish(event.NewTaskRedistributedEvent("t2", "w1", "w2", 1))
	bus.Publish(event.NewWorkerStateChangedEvent("w1", "working", "overloaded", 0.9))
	bus.Publish(event.NewMessageSentEvent("m1", "coordinator", "w1", "urgent", "critical"))

	if got := testutil.ToFloat64(c.alertsRaised.WithLabelValues("worker_overloaded", "warning")); got != 2 {
		t.Errorf("alerts_raised{overloaded} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.alertsResolved); got != 1 {
		t.Errorf("alerts_resolved_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.tasksMoved.WithLabelValues("emergency")); got != 1 {
		t.Errorf("tasks_moved{emergency} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.tasksMoved.WithLabelValues("redistribute")); got != 1 {
		t.Errorf("tasks_moved{redistribute} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.workerStates.WithLabelValues("overloaded")); got != 1 {
		t.Errorf("worker_state_changes{overloaded} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.messagesSent.WithLabelValues("urgent")); got != 1 {
		t.Errorf("messages_sent{urgent} = %v, want 1", got)
	}
}

func TestCollector_Detach(t *testing.T) {
	c := New()
	bus := event.NewBus()
	detach := c.Attach(bus)
	detach()

	bus.Publish(event.NewCycleFailedEvent(1, "boom"))
	if got := testutil.ToFloat64(c.cycleFailures); got != 0 {
		t.Errorf("cycle_failures_total = %v after detach, want 0", got)
	}
	bus.Publish(event.NewModeChangedEvent("normal", "emergency", false))
	if got := testutil.ToFloat64(c.mode.WithLabelValues("emergency")); got != 0 {
		t.Errorf("mode{emergency} = %v after detach, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	c := New()
	bus := event.NewBus()
	c.Attach(bus)
	bus.Publish(event.NewCycleCompletedEvent(1, "normal", time.Millisecond, 0.1, 1, 0, 0, nil))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"foreman_cycles_total 1", "foreman_mode{mode=\"normal\"} 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
