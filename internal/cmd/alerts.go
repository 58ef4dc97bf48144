package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/monitor"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and resolve bottleneck alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runAlertsList,
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>...",
	Short: "Mark alerts as resolved",
	Long: `Mark alerts as resolved. A resolved alert is raised again if the
monitor still detects the condition on its next cycle.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAlertsResolve,
}

var (
	alertsAll      bool
	alertsWorker   string
	alertsSeverity string
)

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd, alertsResolveCmd)

	alertsListCmd.Flags().BoolVarP(&alertsAll, "all", "a", false, "include resolved alerts")
	alertsListCmd.Flags().StringVarP(&alertsWorker, "worker", "w", "", "only alerts for this worker")
	alertsListCmd.Flags().StringVar(&alertsSeverity, "severity", "", "minimum severity: info, warning, critical")
}

func (e *env) loadMonitor() (*monitor.Monitor, error) {
	d, err := e.openDistributor()
	if err != nil {
		return nil, err
	}
	mon := e.newMonitor(d)
	if err := mon.LoadAlerts(e.stateDir); err != nil {
		return nil, err
	}
	return mon, nil
}

func runAlertsList(cmd *cobra.Command, args []string) error {
	filter := monitor.AlertFilter{
		WorkerID:        alertsWorker,
		IncludeResolved: alertsAll,
		MinSeverity:     monitor.Severity(alertsSeverity),
	}
	switch filter.MinSeverity {
	case "", monitor.SeverityInfo, monitor.SeverityWarning, monitor.SeverityCritical:
	default:
		return fmt.Errorf("invalid --severity %q", alertsSeverity)
	}

	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	mon, err := e.loadMonitor()
	if err != nil {
		return err
	}
	alerts := mon.Alerts(filter)
	out := cmd.OutOrStdout()
	if len(alerts) == 0 {
		fmt.Fprintln(out, "No alerts.")
		return nil
	}
	printAlerts(out, alerts, time.Now())
	return nil
}

func printAlerts(out io.Writer, alerts []monitor.Alert, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEVERITY\tTYPE\tWORKER\tTASK\tAGE\tMESSAGE")
	for _, a := range alerts {
		sev := string(a.Severity)
		if a.Resolved {
			sev += " (resolved)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, sev, a.Type, a.WorkerID, dash(a.TaskID),
			now.Sub(a.DetectedAt).Truncate(time.Second), a.Message)
	}
	_ = w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runAlertsResolve(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	return e.offline(func() error {
		mon, err := e.loadMonitor()
		if err != nil {
			return err
		}
		var missing []error
		for _, id := range args {
			if !mon.Resolve(id) {
				missing = append(missing, errors.NewNotFoundError("open alert", id))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: resolved\n", id)
		}
		if err := mon.SaveAlerts(e.stateDir); err != nil {
			return err
		}
		return errors.Join(missing...)
	})
}
