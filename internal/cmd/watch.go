package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/foreman/internal/distributor"
	"github.com/Iron-Ham/foreman/internal/task"
	"github.com/Iron-Ham/foreman/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of workers, tasks, and alerts",
	Long: `Show a live dashboard of the state directory a coordinator is
checkpointing into. The dashboard refreshes on an interval and works whether
or not a coordinator is running.

When stdout is not a terminal, or with --once, a single snapshot is printed
instead.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchInterval time.Duration
	watchOnce     bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "refresh interval")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "print one snapshot and exit")
}

// snapshotSource reads the dashboard snapshot from the state directory.
func (e *env) snapshotSource() tui.Source {
	return tui.SourceFunc(func(ctx context.Context) (*tui.Snapshot, error) {
		d, err := e.openDistributor()
		if err != nil {
			return nil, err
		}
		mon := e.newMonitor(d)
		if err := mon.LoadAlerts(e.stateDir); err != nil {
			return nil, err
		}
		store, err := e.openHistory()
		if err != nil {
			return nil, err
		}
		defer func() { _ = store.Close() }()
		latest, err := store.Latest(ctx)
		if err != nil {
			return nil, err
		}

		workers := d.Workers()
		loads := make([]task.Workload, 0, len(workers))
		for _, w := range workers {
			loads = append(loads, d.Workload(w))
		}
		return &tui.Snapshot{
			Taken:         time.Now(),
			Report:        latest,
			Tasks:         d.List(distributor.Filter{}),
			Alerts:        mon.Unresolved(),
			Workers:       loads,
			CapacityHours: e.cfg.Monitor.CapacityHours,
		}, nil
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	source := e.snapshotSource()
	if watchOnce || !term.IsTerminal(int(os.Stdout.Fd())) {
		snap, err := source.Load(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), tui.Render(snap, time.Now()))
		return nil
	}
	return tui.Run(cmd.Context(), source, watchInterval)
}
