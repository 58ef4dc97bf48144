package mailbox

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// FilterOptions controls which messages Filter keeps.
type FilterOptions struct {
	Kinds       []Kind    // Only include these kinds (empty = all)
	Since       time.Time // Only messages sent after this time (zero = all)
	From        string    // Only messages from this sender (empty = all)
	MaxMessages int       // Keep at most the first N matches (0 = unlimited)
}

// Filter returns the messages matching opts, preserving input order.
func Filter(messages []Message, opts FilterOptions) []Message {
	var out []Message
	for _, msg := range messages {
		if len(opts.Kinds) > 0 && !slices.Contains(opts.Kinds, msg.Kind) {
			continue
		}
		if !opts.Since.IsZero() && !msg.SentAt.After(opts.Since) {
			continue
		}
		if opts.From != "" && msg.From != opts.From {
			continue
		}
		out = append(out, msg)
	}
	if opts.MaxMessages > 0 && len(out) > opts.MaxMessages {
		out = out[:opts.MaxMessages]
	}
	return out
}

// Format renders messages as a plain-text block grouped by kind, in the
// order each kind first appears. Returns an empty string for no messages.
func Format(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	groups := make(map[Kind][]Message)
	var order []Kind
	for _, msg := range messages {
		if _, exists := groups[msg.Kind]; !exists {
			order = append(order, msg.Kind)
		}
		groups[msg.Kind] = append(groups[msg.Kind], msg)
	}

	var b strings.Builder
	for i, k := range order {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s]\n", strings.ToUpper(string(k)))
		for _, msg := range groups[k] {
			fmt.Fprintf(&b, "  %s  %-8s from %s\n", msg.SentAt.Format(time.DateTime), msg.Priority, msg.From)
			fmt.Fprintf(&b, "  %s\n", msg.Content)
		}
	}
	return b.String()
}
