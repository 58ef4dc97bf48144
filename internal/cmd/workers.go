package cmd

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foreman/internal/task"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Inspect worker load and capabilities",
}

var workersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show each worker's workload",
	Args:  cobra.NoArgs,
	RunE:  runWorkersList,
}

var workersCapsCmd = &cobra.Command{
	Use:   "caps <worker-id> [tag...]",
	Short: "Show or set a worker's capability tags",
	Long: `Show or set the capability tags the skill-based strategy matches
against task tags. With no tags, prints the current set. Use --clear to
remove every tag.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWorkersCaps,
}

var capsClear bool

func init() {
	rootCmd.AddCommand(workersCmd)
	workersCmd.AddCommand(workersListCmd, workersCapsCmd)

	workersCapsCmd.Flags().BoolVar(&capsClear, "clear", false, "remove every capability tag")
}

func runWorkersList(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	d, err := e.openDistributor()
	if err != nil {
		return err
	}
	registry, err := e.openRegistry()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	workers := d.Workers()
	if len(workers) == 0 {
		fmt.Fprintln(out, "No workers have tasks yet.")
		return nil
	}
	capacity := e.cfg.Monitor.CapacityHours
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKER\tACTIVE\tPENDING\tHOURS\tLOAD\tPRIORITIES\tTO DEADLINE\tCAPABILITIES")
	for _, id := range workers {
		wl := d.Workload(id)
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\t%.0f%%\t%s\t%s\t%s\n",
			id, wl.ActiveCount, wl.PendingCount, wl.TotalHours,
			wl.TotalHours/capacity*100,
			priorityBreakdown(wl.PriorityBreakdown),
			meanDeadline(wl),
			dash(strings.Join(registry.Capabilities(id), ",")))
	}
	return w.Flush()
}

// priorityBreakdown renders counts as "critical:1 high:2", most urgent first.
func priorityBreakdown(counts map[task.Priority]int) string {
	var parts []string
	for _, p := range slices.Backward(task.Priorities()) {
		if n := counts[p]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", p, n))
		}
	}
	return dash(strings.Join(parts, " "))
}

func meanDeadline(wl task.Workload) string {
	if wl.ActiveCount+wl.PendingCount == 0 {
		return "-"
	}
	d := time.Duration(wl.MeanSecondsToDeadline * float64(time.Second)).Round(time.Minute)
	if d < 0 {
		return fmt.Sprintf("%s overdue", -d)
	}
	return "in " + d.String()
}

func runWorkersCaps(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	workerID, tags := args[0], args[1:]
	out := cmd.OutOrStdout()
	if len(tags) == 0 && !capsClear {
		registry, err := e.openRegistry()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", workerID, dash(strings.Join(registry.Capabilities(workerID), ", ")))
		return nil
	}

	return e.offline(func() error {
		registry, err := e.openRegistry()
		if err != nil {
			return err
		}
		registry.UpdateCapabilities(workerID, tags)
		if err := registry.Save(e.stateDir); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", workerID, dash(strings.Join(registry.Capabilities(workerID), ", ")))
		return nil
	})
}
