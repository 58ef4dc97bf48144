package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foreman/internal/mailbox"
)

var inboxCmd = &cobra.Command{
	Use:   "inbox <worker-id>",
	Short: "Show the messages waiting for a worker",
	Long: `Show the unexpired messages addressed to a worker, including
broadcasts. Use 'coordinator' as the worker ID to see status reports that
workers have sent.`,
	Args: cobra.ExactArgs(1),
	RunE: runInbox,
}

var (
	inboxKinds []string
	inboxSince time.Duration
	inboxFrom  string
	inboxMax   int
)

func init() {
	rootCmd.AddCommand(inboxCmd)
	inboxCmd.Flags().StringSliceVarP(&inboxKinds, "kind", "k", nil, "only these kinds: task_assignment, status, alert, urgent, heartbeat")
	inboxCmd.Flags().DurationVar(&inboxSince, "since", 0, "only messages newer than this (e.g. 30m)")
	inboxCmd.Flags().StringVar(&inboxFrom, "from", "", "only messages from this sender")
	inboxCmd.Flags().IntVarP(&inboxMax, "max", "n", 0, "show at most this many messages")
}

func runInbox(cmd *cobra.Command, args []string) error {
	opts := mailbox.FilterOptions{From: inboxFrom, MaxMessages: inboxMax}
	for _, k := range inboxKinds {
		kind := mailbox.Kind(strings.ToLower(k))
		if !mailbox.ValidKind(kind) {
			return fmt.Errorf("invalid --kind %q", k)
		}
		opts.Kinds = append(opts.Kinds, kind)
	}
	if inboxSince > 0 {
		opts.Since = time.Now().Add(-inboxSince)
	}

	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	msgs, err := e.box.Receive(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	msgs = mailbox.Filter(msgs, opts)
	out := cmd.OutOrStdout()
	if len(msgs) == 0 {
		fmt.Fprintf(out, "No messages for %s.\n", args[0])
		return nil
	}
	fmt.Fprint(out, mailbox.Format(msgs))
	return nil
}
