// Package metrics exposes coordinator activity as Prometheus metrics.
//
// A Collector listens on the event bus, so the components it observes need
// no knowledge of Prometheus. Metrics live on a private registry and are
// served by Handler.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/logging"
)

const namespace = "foreman"

// Collector holds every foreman metric.
type Collector struct {
	registry *prometheus.Registry

	cycles         prometheus.Counter
	cycleFailures  prometheus.Counter
	cycleDuration  prometheus.Histogram
	mode           *prometheus.GaugeVec
	avgWorkload    prometheus.Gauge
	completionRate prometheus.Gauge
	unresolved     prometheus.Gauge
	tasks          *prometheus.GaugeVec
	alertsRaised   *prometheus.CounterVec
	alertsResolved prometheus.Counter
	tasksMoved     *prometheus.CounterVec
	workerStates   *prometheus.CounterVec
	messagesSent   *prometheus.CounterVec
}

// modes lists the values of the mode gauge. Kept here so the package does
// not depend on the coordinator.
var modes = []string{"normal", "optimizing", "emergency", "maintenance"}

// New creates a Collector on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed coordination cycles.",
		}),
		cycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_failures_total",
			Help:      "Coordination cycles that returned an error or panicked.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a coordination cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "Current coordination mode, 1 for the active mode.",
		}, []string{"mode"}),
		avgWorkload: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "avg_workload_ratio",
			Help:      "Average worker workload ratio at the last cycle.",
		}),
		completionRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "completion_rate",
			Help:      "Completed over completed plus failed tasks at the last cycle.",
		}),
		unresolved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unresolved_alerts",
			Help:      "Unresolved alerts at the end of the last cycle.",
		}),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks",
			Help:      "Tasks by status at the last cycle.",
		}, []string{"status"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by the status monitor.",
		}, []string{"type", "severity"}),
		alertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_resolved_total",
			Help:      "Alerts marked resolved.",
		}),
		tasksMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_moved_total",
			Help:      "Tasks moved between workers.",
		}, []string{"reason"}),
		workerStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_state_changes_total",
			Help:      "Worker state transitions by target state.",
		}, []string{"state"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Mailbox messages accepted, by kind.",
		}, []string{"kind"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.cycles,
		c.cycleFailures,
		c.cycleDuration,
		c.mode,
		c.avgWorkload,
		c.completionRate,
		c.unresolved,
		c.tasks,
		c.alertsRaised,
		c.alertsResolved,
		c.tasksMoved,
		c.workerStates,
		c.messagesSent,
	)
	for _, m := range modes {
		c.mode.WithLabelValues(m).Set(0)
	}
	c.mode.WithLabelValues("normal").Set(1)
	return c
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Attach subscribes the collector to bus. The returned function removes
// the subscriptions.
func (c *Collector) Attach(bus *event.Bus) func() {
	ids := []string{
		bus.Subscribe("coordinator.cycle_completed", c.onCycleCompleted),
		bus.Subscribe("coordinator.cycle_failed", func(event.Event) { c.cycleFailures.Inc() }),
		bus.Subscribe("coordinator.mode_changed", c.onModeChanged),
		bus.Subscribe("alert.raised", c.onAlertRaised),
		bus.Subscribe("alert.resolved", func(event.Event) { c.alertsResolved.Inc() }),
		bus.Subscribe("task.reassigned", c.onTaskReassigned),
		bus.Subscribe("task.redistributed", func(event.Event) { c.tasksMoved.WithLabelValues("redistribute").Inc() }),
		bus.Subscribe("worker.state_changed", c.onWorkerStateChanged),
		bus.Subscribe("mailbox.message_sent", c.onMessageSent),
	}
	return func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
	}
}

func (c *Collector) onCycleCompleted(e event.Event) {
	evt, ok := e.(event.CycleCompletedEvent)
	if !ok {
		return
	}
	c.cycles.Inc()
	c.cycleDuration.Observe(evt.Duration.Seconds())
	c.avgWorkload.Set(evt.AvgWorkload)
	c.completionRate.Set(evt.CompletionRate)
	c.unresolved.Set(float64(evt.Unresolved))
	for status, n := range evt.TaskCounts {
		c.tasks.WithLabelValues(status).Set(float64(n))
	}
	c.setMode(evt.Mode)
}

func (c *Collector) onModeChanged(e event.Event) {
	if evt, ok := e.(event.ModeChangedEvent); ok {
		c.setMode(evt.To)
	}
}

func (c *Collector) setMode(mode string) {
	for _, m := range modes {
		v := 0.0
		if m == mode {
			v = 1
		}
		c.mode.WithLabelValues(m).Set(v)
	}
}

func (c *Collector) onAlertRaised(e event.Event) {
	if evt, ok := e.(event.AlertRaisedEvent); ok {
		c.alertsRaised.WithLabelValues(evt.AlertType, evt.Severity).Inc()
	}
}

func (c *Collector) onTaskReassigned(e event.Event) {
	if evt, ok := e.(event.TaskReassignedEvent); ok {
		c.tasksMoved.WithLabelValues(evt.Reason).Inc()
	}
}

func (c *Collector) onWorkerStateChanged(e event.Event) {
	if evt, ok := e.(event.WorkerStateChangedEvent); ok {
		c.workerStates.WithLabelValues(evt.To).Inc()
	}
}

func (c *Collector) onMessageSent(e event.Event) {
	if evt, ok := e.(event.MessageSentEvent); ok {
		c.messagesSent.WithLabelValues(evt.Kind).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on addr until ctx is canceled.
func (c *Collector) Serve(ctx context.Context, addr string, logger *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("metrics server listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
