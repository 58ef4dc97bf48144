package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foreman/internal/coordinator"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/history"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Browse coordination reports",
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent cycles",
	Args:  cobra.NoArgs,
	RunE:  runReportList,
}

var reportShowCmd = &cobra.Command{
	Use:   "show [latest|<cycle>]",
	Short: "Show one coordination report",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReportShow,
}

var (
	reportLimit int
	reportJSON  bool
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportListCmd, reportShowCmd)

	reportListCmd.Flags().IntVarP(&reportLimit, "limit", "n", 20, "number of cycles to list (0 for all)")
	reportShowCmd.Flags().BoolVar(&reportJSON, "json", false, "output as JSON")
}

func runReportList(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	store, err := e.openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	reports, err := store.List(cmd.Context(), reportLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(reports) == 0 {
		fmt.Fprintln(out, "No reports yet. Start the coordinator with 'foreman run'.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CYCLE\tTIME\tMODE\tTASKS\tACTIVE\tWORKERS\tLOAD\tDONE\tMOVED\tALERTS")
	for _, r := range reports {
		mode := string(r.Mode)
		if r.Manual {
			mode += "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%.0f%%\t%.0f%%\t%d\t%d\n",
			r.Cycle, r.Timestamp.Local().Format(time.DateTime), mode,
			r.Totals.Total, r.Totals.Active, r.ActiveWorkers,
			r.AvgWorkload*100, r.CompletionRate*100, r.Moved, len(r.Bottlenecks))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	total, err := store.Count(cmd.Context())
	if err != nil {
		return err
	}
	if total > len(reports) {
		fmt.Fprintf(out, "Showing the last %d of %d reports (use -n 0 for all).\n", len(reports), total)
	}
	return nil
}

func runReportShow(cmd *cobra.Command, args []string) error {
	which := "latest"
	if len(args) == 1 {
		which = args[0]
	}
	var cycle uint64
	if which != "latest" {
		n, err := strconv.ParseUint(which, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid cycle %q: expected 'latest' or a cycle number", which)
		}
		cycle = n
	}

	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	store, err := e.openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var report *coordinator.Report
	if cycle == 0 {
		report, err = store.Latest(cmd.Context())
	} else {
		report, err = findCycle(cmd.Context(), store, cycle)
	}
	if err != nil {
		return err
	}
	if report == nil {
		return errors.NewNotFoundError("report", which)
	}

	out := cmd.OutOrStdout()
	if reportJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(out, report)
	return nil
}

// findCycle scans the stored reports for one cycle number. Cycle numbers
// restart from 1 when a coordinator restarts, so the newest match wins.
func findCycle(ctx context.Context, store history.Store, cycle uint64) (*coordinator.Report, error) {
	reports, err := store.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := len(reports) - 1; i >= 0; i-- {
		if reports[i].Cycle == cycle {
			return reports[i], nil
		}
	}
	return nil, nil
}

// printReport renders a report for the terminal.
func printReport(out io.Writer, r *coordinator.Report) {
	mode := string(r.Mode)
	if r.Manual {
		mode += " (manual)"
	}
	fmt.Fprintf(out, "Cycle %d at %s: %s mode, %s\n",
		r.Cycle, r.Timestamp.Local().Format(time.DateTime), mode, r.Duration.Round(time.Millisecond))
	t := r.Totals
	fmt.Fprintf(out, "Tasks: %d total, %d pending, %d active, %d completed, %d failed, %d cancelled\n",
		t.Total, t.Pending, t.Active, t.Completed, t.Failed, t.Cancelled)
	fmt.Fprintf(out, "Workers: %d reachable, average load %.0f%%, completion rate %.0f%%, %d tasks moved\n",
		r.ActiveWorkers, r.AvgWorkload*100, r.CompletionRate*100, r.Moved)

	if len(r.Workers) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WORKER\tSTATE\tHOURS\tLOAD")
		for _, wl := range r.Workers {
			fmt.Fprintf(w, "%s\t%s\t%.1f\t%.0f%%\n", wl.WorkerID, wl.State, wl.Hours, wl.Workload*100)
		}
		_ = w.Flush()
	}
	if len(r.Bottlenecks) > 0 {
		fmt.Fprintf(out, "\nBottlenecks (%d):\n", len(r.Bottlenecks))
		for _, a := range r.Bottlenecks {
			fmt.Fprintf(out, "  [%s] %s: %s\n", a.Severity, a.Type, a.Message)
		}
	}
	if len(r.Recommendations) > 0 {
		fmt.Fprintln(out, "\nRecommendations:")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(out, "  - %s\n", rec)
		}
	}
	if len(r.NextActions) > 0 {
		fmt.Fprintln(out, "\nNext cycle:")
		for _, a := range r.NextActions {
			target := a.WorkerID
			if a.TaskID != "" {
				target = a.TaskID + " -> " + a.WorkerID
			}
			fmt.Fprintf(out, "  - %s %s (%s)\n", a.Kind, target, a.Reason)
		}
	}
}
