package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/foreman/internal/distributor"
	"github.com/Iron-Ham/foreman/internal/errors"
	"github.com/Iron-Ham/foreman/internal/mailbox"
	"github.com/Iron-Ham/foreman/internal/task"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create, inspect, and update tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Register a new pending task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCreate,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskDistributeCmd = &cobra.Command{
	Use:   "distribute <task-id>...",
	Short: "Activate pending tasks and notify their workers",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskDistribute,
}

var taskBatchCmd = &cobra.Command{
	Use:   "batch <worker-id>",
	Short: "Fill a worker's free slots from its backlog",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskBatch,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id> <status>",
	Short: "Move a task to a new status",
	Long: `Move a task to a new status: active, completed, failed, or cancelled.

This edits the saved state directly and is refused while a coordinator is
running. Workers should use 'foreman task report' instead.`,
	Args: cobra.ExactArgs(2),
	RunE: runTaskStatus,
}

var taskRedistributeCmd = &cobra.Command{
	Use:   "redistribute <task-id> <worker-id>",
	Short: "Return a failed task to pending on another worker",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskRedistribute,
}

var taskReportCmd = &cobra.Command{
	Use:   "report <task-id> <completed|failed>",
	Short: "Report a task outcome to the coordinator",
	Long: `Report a task outcome to the coordinator inbox.

The running coordinator applies the report at the start of its next cycle.
Reports are ignored when the task is no longer active on the reporting
worker.`,
	Args: cobra.ExactArgs(2),
	RunE: runTaskReport,
}

var taskImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create tasks from a YAML file",
	Long: `Create tasks from a YAML file. Tasks are created in file order, so a
task may depend on any task listed before it by ID.

  tasks:
    - id: schema
      title: Design schema
      assigned_to: alice
      priority: high
      estimated_hours: 3
    - title: Write migrations
      assigned_to: bob
      dependencies: [schema]`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskImport,
}

var (
	createAssignee    string
	createPriority    string
	createHours       float64
	createDeadline    string
	createDescription string
	createDepends     []string
	createOutputs     []string
	createTags        []string
	createMeta        []string
	createDistribute  bool

	listWorker string
	listStatus []string
	listTag    string
	listJSON   bool

	batchMax int

	reportWorker string
	reportNote   string

	importDistribute bool
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskCreateCmd, taskListCmd, taskShowCmd, taskDistributeCmd, taskBatchCmd,
		taskStatusCmd, taskRedistributeCmd, taskReportCmd, taskImportCmd)

	f := taskCreateCmd.Flags()
	f.StringVarP(&createAssignee, "assignee", "a", "", "worker ID to assign (required)")
	f.StringVarP(&createPriority, "priority", "p", "", "low, medium, high, or critical (default from config)")
	f.Float64Var(&createHours, "hours", 0, "estimated hours (default from config)")
	f.StringVar(&createDeadline, "deadline", "", "deadline as a duration from now (8h) or RFC 3339 time")
	f.StringVarP(&createDescription, "description", "d", "", "task description")
	f.StringSliceVar(&createDepends, "depends", nil, "IDs of tasks that must complete first")
	f.StringSliceVar(&createOutputs, "output", nil, "expected outputs")
	f.StringSliceVar(&createTags, "tag", nil, "tags used by skill-based balancing")
	f.StringSliceVar(&createMeta, "meta", nil, "metadata as key=value")
	f.BoolVar(&createDistribute, "distribute", false, "distribute immediately when dependencies allow")
	_ = taskCreateCmd.MarkFlagRequired("assignee")

	taskListCmd.Flags().StringVarP(&listWorker, "worker", "w", "", "only tasks assigned to this worker")
	taskListCmd.Flags().StringSliceVarP(&listStatus, "status", "s", nil, "only tasks with these statuses")
	taskListCmd.Flags().StringVar(&listTag, "tag", "", "only tasks with this tag")
	taskListCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")

	taskBatchCmd.Flags().IntVar(&batchMax, "max", 0, "maximum concurrent active tasks (default from config)")

	taskReportCmd.Flags().StringVarP(&reportWorker, "worker", "w", "", "reporting worker ID (required)")
	taskReportCmd.Flags().StringVar(&reportNote, "note", "", "free-form note stored on the task")
	_ = taskReportCmd.MarkFlagRequired("worker")

	taskImportCmd.Flags().BoolVar(&importDistribute, "distribute", false, "distribute every task whose dependencies allow")
}

// parseDeadline accepts a duration from now or an absolute RFC 3339 time.
func parseDeadline(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("deadline %q must be in the future", s)
		}
		return now.Add(d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline %q: use a duration such as 8h or an RFC 3339 time", s)
	}
	return t, nil
}

func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected key=value", p)
		}
		meta[strings.TrimSpace(k)] = v
	}
	return meta, nil
}

func parseStatus(s string) (task.Status, error) {
	st := task.Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	req := distributor.CreateRequest{
		Title:           args[0],
		Description:     createDescription,
		AssignedTo:      createAssignee,
		CreatedBy:       currentUser(),
		EstimatedHours:  createHours,
		Dependencies:    createDepends,
		ExpectedOutputs: createOutputs,
		Tags:            createTags,
	}
	if createPriority != "" {
		p, err := task.ParsePriority(createPriority)
		if err != nil {
			return err
		}
		req.Priority = p.Ptr()
	}
	deadline, err := parseDeadline(createDeadline, time.Now())
	if err != nil {
		return err
	}
	req.Deadline = deadline
	if req.Metadata, err = parseMeta(createMeta); err != nil {
		return err
	}

	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	return e.editTasks(func(d *distributor.Distributor) error {
		for _, dep := range req.Dependencies {
			if _, ok := d.Get(dep); !ok {
				return errors.NewNotFoundError("task", dep)
			}
		}
		t, err := d.Create(req)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created task %s for %s (%s, %.1fh, due %s)\n",
			t.ID, t.AssignedTo, t.Priority, t.EstimatedHours, t.Deadline.Local().Format(time.DateTime))
		if createDistribute {
			if d.Distribute(cmd.Context(), t.ID) {
				fmt.Fprintln(out, "Distributed")
			} else {
				fmt.Fprintf(out, "Not distributed: waiting on %s\n", strings.Join(d.BlockedBy(t.ID), ", "))
			}
		}
		return nil
	})
}

func runTaskList(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	d, err := e.openDistributor()
	if err != nil {
		return err
	}
	filter := distributor.Filter{WorkerID: listWorker, Tag: listTag}
	for _, s := range listStatus {
		st, err := parseStatus(s)
		if err != nil {
			return err
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	tasks := d.List(filter)

	out := cmd.OutOrStdout()
	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks.")
		return nil
	}
	printTasks(out, tasks, time.Now())
	return nil
}

func printTasks(out io.Writer, tasks []*task.Task, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tWORKER\tPRIORITY\tSTATUS\tHOURS\tDEADLINE")
	for _, t := range tasks {
		due := t.Deadline.Local().Format(time.DateTime)
		if !t.Status.IsTerminal() && t.Deadline.Before(now) {
			due += " (overdue)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f\t%s\n",
			t.ID, truncate(t.Title, 40), t.AssignedTo, t.Priority, t.Status, t.EstimatedHours, due)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	d, err := e.openDistributor()
	if err != nil {
		return err
	}
	t, ok := d.Get(args[0])
	if !ok {
		return errors.NewNotFoundError("task", args[0])
	}
	out := cmd.OutOrStdout()
	if err := printYAML(out, t); err != nil {
		return err
	}
	if blocked := d.BlockedBy(t.ID); len(blocked) > 0 {
		fmt.Fprintf(out, "# waiting on: %s\n", strings.Join(blocked, ", "))
	}
	return nil
}

func runTaskDistribute(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	return e.editTasks(func(d *distributor.Distributor) error {
		out := cmd.OutOrStdout()
		var failed int
		for _, id := range args {
			switch {
			case d.Distribute(cmd.Context(), id):
				fmt.Fprintf(out, "%s: distributed\n", id)
			default:
				failed++
				t, ok := d.Get(id)
				switch {
				case !ok:
					fmt.Fprintf(out, "%s: not found\n", id)
				case t.Status != task.StatusPending:
					fmt.Fprintf(out, "%s: is %s, not pending\n", id, t.Status)
				default:
					fmt.Fprintf(out, "%s: waiting on %s\n", id, strings.Join(d.BlockedBy(id), ", "))
				}
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d tasks not distributed", failed, len(args))
		}
		return nil
	})
}

func runTaskBatch(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	limit := batchMax
	if limit <= 0 {
		limit = e.cfg.Coordinator.MaxConcurrent
	}
	return e.editTasks(func(d *distributor.Distributor) error {
		started := d.BatchDistribute(cmd.Context(), args[0], limit)
		out := cmd.OutOrStdout()
		if len(started) == 0 {
			fmt.Fprintf(out, "Nothing distributed to %s\n", args[0])
			return nil
		}
		for _, t := range started {
			fmt.Fprintf(out, "%s: distributed (%s, %s)\n", t.ID, t.Priority, t.Title)
		}
		return nil
	})
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	status, err := parseStatus(args[1])
	if err != nil {
		return err
	}
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	return e.editTasks(func(d *distributor.Distributor) error {
		t, ok := d.Get(args[0])
		if !ok {
			return errors.NewNotFoundError("task", args[0])
		}
		if !d.UpdateStatus(t.ID, status) {
			if status == task.StatusActive && len(d.BlockedBy(t.ID)) > 0 {
				return fmt.Errorf("%w: %s waits on %s", errors.ErrDependenciesPending, t.ID, strings.Join(d.BlockedBy(t.ID), ", "))
			}
			return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, t.Status, status)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", t.ID, t.Status, status)
		return nil
	})
}

func runTaskRedistribute(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	return e.editTasks(func(d *distributor.Distributor) error {
		t, ok := d.Get(args[0])
		if !ok {
			return errors.NewNotFoundError("task", args[0])
		}
		if !d.RedistributeFailed(t.ID, args[1]) {
			return fmt.Errorf("%w: only failed tasks can be redistributed (%s is %s)", errors.ErrInvalidTransition, t.ID, t.Status)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: pending on %s (was %s)\n", t.ID, args[1], t.AssignedTo)
		return nil
	})
}

func runTaskReport(cmd *cobra.Command, args []string) error {
	status, err := parseStatus(args[1])
	if err != nil {
		return err
	}
	report := distributor.StatusReport{TaskID: args[0], Status: status, Note: reportNote}
	// Validate locally so a typo fails here rather than in the coordinator log
	if _, err := distributor.DecodeStatusReport(report.Encode()); err != nil {
		return err
	}

	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	err = e.box.Post(cmd.Context(), mailbox.Message{
		From:     reportWorker,
		To:       mailbox.CoordinatorID,
		Kind:     mailbox.KindStatus,
		Priority: task.PriorityHigh,
		Content:  report.Encode(),
	})
	if err != nil {
		return fmt.Errorf("failed to post report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reported %s %s\n", args[0], status)
	return nil
}

// importFile is the YAML layout read by 'task import'.
type importFile struct {
	Tasks []importTask `yaml:"tasks"`
}

type importTask struct {
	ID              string            `yaml:"id"`
	Title           string            `yaml:"title"`
	Description     string            `yaml:"description"`
	AssignedTo      string            `yaml:"assigned_to"`
	Priority        *task.Priority    `yaml:"priority"`
	EstimatedHours  float64           `yaml:"estimated_hours"`
	Deadline        string            `yaml:"deadline"`
	Dependencies    []string          `yaml:"dependencies"`
	ExpectedOutputs []string          `yaml:"expected_outputs"`
	Tags            []string          `yaml:"tags"`
	Metadata        map[string]string `yaml:"metadata"`
}

func readImportFile(path string, now time.Time) ([]distributor.CreateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f importFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(f.Tasks) == 0 {
		return nil, fmt.Errorf("%s: no tasks", path)
	}
	reqs := make([]distributor.CreateRequest, 0, len(f.Tasks))
	for i, t := range f.Tasks {
		deadline, err := parseDeadline(t.Deadline, now)
		if err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		reqs = append(reqs, distributor.CreateRequest{
			ID:              t.ID,
			Title:           t.Title,
			Description:     t.Description,
			AssignedTo:      t.AssignedTo,
			CreatedBy:       currentUser(),
			Priority:        t.Priority,
			EstimatedHours:  t.EstimatedHours,
			Deadline:        deadline,
			Dependencies:    t.Dependencies,
			ExpectedOutputs: t.ExpectedOutputs,
			Tags:            t.Tags,
			Metadata:        t.Metadata,
		})
	}
	return reqs, nil
}

func runTaskImport(cmd *cobra.Command, args []string) error {
	reqs, err := readImportFile(args[0], time.Now())
	if err != nil {
		return err
	}
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	// All or nothing: a failure leaves the saved state untouched.
	return e.editTasks(func(d *distributor.Distributor) error {
		created := make([]*task.Task, 0, len(reqs))
		for i, req := range reqs {
			for _, dep := range req.Dependencies {
				if _, ok := d.Get(dep); !ok {
					return fmt.Errorf("tasks[%d]: %w", i, errors.NewNotFoundError("task", dep))
				}
			}
			t, err := d.Create(req)
			if err != nil {
				return fmt.Errorf("tasks[%d]: %w", i, err)
			}
			created = append(created, t)
		}
		out := cmd.OutOrStdout()
		var distributed int
		if importDistribute {
			for _, t := range created {
				if d.Distribute(cmd.Context(), t.ID) {
					distributed++
				}
			}
		}
		fmt.Fprintf(out, "Imported %d tasks", len(created))
		if importDistribute {
			fmt.Fprintf(out, ", distributed %d", distributed)
		}
		fmt.Fprintln(out)
		return nil
	})
}

// printYAML renders v as YAML using its JSON field names, so the output
// matches the keys in the state files.
func printYAML(out io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// currentUser names the creator recorded on tasks made from the CLI.
func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
