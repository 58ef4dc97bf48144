package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/foreman/internal/balance"
	"github.com/Iron-Ham/foreman/internal/config"
	"github.com/Iron-Ham/foreman/internal/coordinator"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/event"
	"github.com/Iron-Ham/foreman/internal/intake"
	"github.com/Iron-Ham/foreman/internal/logging"
	"github.com/Iron-Ham/foreman/internal/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the coordination loop",
	Long: `Run the coordination loop against the state directory.

Each cycle drains worker status reports, polls worker health, classifies
the system mode, takes corrective action, and appends a report to the
history store. State is checkpointed after every cycle, so a restarted
coordinator resumes where it stopped.

Only one coordinator may run on a state directory at a time.`,
	RunE: runRun,
}

var (
	runOnce    bool
	runMode    string
	runMetrics bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
	runCmd.Flags().StringVar(&runMode, "mode", "", "pin the mode instead of classifying: normal, emergency, maintenance")
	runCmd.Flags().BoolVar(&runMetrics, "metrics", false, "serve Prometheus metrics (overrides metrics.enabled)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	lock, err := acquireRunLock(e.stateDir)
	if err != nil {
		if errors.Is(err, errors.ErrStateLocked) {
			return fmt.Errorf("another coordinator is already running on %s", e.stateDir)
		}
		return err
	}
	defer func() { _ = lock.Unlock() }()

	coord, cleanup, err := e.buildCoordinator()
	if err != nil {
		return err
	}
	defer cleanup()

	switch runMode {
	case "":
	case string(coordinator.ModeNormal):
		coord.ResetToNormalMode()
	case string(coordinator.ModeEmergency):
		coord.ForceEmergencyMode()
	case string(coordinator.ModeMaintenance):
		coord.EnterMaintenance()
	default:
		return fmt.Errorf("invalid --mode %q: must be normal, emergency, or maintenance", runMode)
	}

	untrace := traceEvents(e.bus, e.logger)
	defer untrace()

	out := cmd.OutOrStdout()
	if runOnce {
		report, err := coord.RunCycle(ctx)
		if report != nil {
			printReport(out, report)
		}
		return err
	}

	collector := metrics.New()
	detach := collector.Attach(e.bus)
	defer detach()

	e.watchConfig(coord)

	var wg conc.WaitGroup
	if runMetrics || e.cfg.Metrics.Enabled {
		wg.Go(func() {
			if err := collector.Serve(ctx, e.cfg.Metrics.Addr, e.logger); err != nil {
				e.logger.Error("metrics server failed", "error", err.Error())
			}
		})
	}

	fmt.Fprintf(out, "foreman coordinating %s (interval %s, strategy %s)\n",
		e.stateDir, e.cfg.Coordinator.Interval(), coord.Strategy().Name())
	runErr := coord.Run(ctx)
	stop()
	wg.Wait()
	return runErr
}

// traceEvents logs every bus event at debug level. The returned function
// removes the subscription.
func traceEvents(bus *event.Bus, logger *logging.Logger) func() {
	log := logger.WithComponent("events")
	id := bus.SubscribeAll(func(ev event.Event) {
		log.Debug("event", "type", ev.EventType())
	})
	return func() { bus.Unsubscribe(id) }
}

// buildCoordinator wires the distributor, monitor, intake, history, and
// registry from the state directory into a Coordinator.
func (e *env) buildCoordinator() (*coordinator.Coordinator, func(), error) {
	dist, err := e.openDistributor()
	if err != nil {
		return nil, nil, err
	}
	mon := e.newMonitor(dist)
	if err := mon.LoadAlerts(e.stateDir); err != nil {
		return nil, nil, err
	}
	registry, err := e.openRegistry()
	if err != nil {
		return nil, nil, err
	}
	strategy, err := balance.New(e.cfg.Coordinator.Strategy, registry)
	if err != nil {
		return nil, nil, err
	}
	store, err := e.openHistory()
	if err != nil {
		return nil, nil, err
	}

	cc := e.cfg.Coordinator
	coord := coordinator.New(dist, mon,
		coordinator.WithInterval(cc.Interval()),
		coordinator.WithBackoff(cc.Backoff()),
		coordinator.WithStrategy(strategy),
		coordinator.WithRegistry(registry),
		coordinator.WithHistory(store),
		coordinator.WithIntake(intake.New(e.box, dist, intake.WithLogger(e.logger))),
		coordinator.WithSender(e.box),
		coordinator.WithBus(e.bus),
		coordinator.WithLogger(e.logger),
		coordinator.WithStateDir(e.stateDir),
		coordinator.WithDeadlineWindow(cc.DeadlineWindow()),
		coordinator.WithUrgentWindow(cc.UrgentWindow()),
		coordinator.WithEmergencyHours(cc.OverloadHours, cc.UnderloadHours),
		coordinator.WithMaxConcurrent(cc.MaxConcurrent),
		coordinator.WithAutoDistribute(cc.AutoDistribute),
		coordinator.WithMaxRedistributions(cc.MaxRedistributions),
		coordinator.WithAlertRetention(cc.AlertRetention()),
	)
	cleanup := func() { _ = store.Close() }
	return coord, cleanup, nil
}

// watchConfig applies log level and strategy changes from the config file
// to the running coordinator. Nothing is watched when no file was loaded.
func (e *env) watchConfig(coord *coordinator.Coordinator) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	config.Watch(viper.GetViper(), e.cfg, e.logger, func(c config.Change) {
		if c.Has("logging.level") {
			e.logger.SetLevel(c.New.Logging.Level)
		}
		if c.Has("coordinator.strategy") {
			registry := coord.Registry()
			strategy, err := balance.New(c.New.Coordinator.Strategy, registry)
			if err != nil {
				e.logger.Warn("strategy not applied", "error", err.Error())
				return
			}
			coord.SetStrategy(strategy)
		}
	})
}
