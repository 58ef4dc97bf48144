package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/Iron-Ham/foreman/internal/tui/styles"
)

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(styles.Header.Width(max(m.width-2, 20)).Render(header(m.snap, m.now())))
	b.WriteString("\n")

	tabs := make([]string, 0, viewCount)
	for v := range viewCount {
		label := fmt.Sprintf("%d %s", int(v)+1, v)
		if m.snap != nil {
			label += fmt.Sprintf(" (%d)", m.count(v))
		}
		if v == m.view {
			tabs = append(tabs, styles.TabActive.Render(label))
		} else {
			tabs = append(tabs, styles.TabInactive.Render(label))
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n")

	switch {
	case m.snap == nil && m.err == nil:
		b.WriteString(styles.ContentBox.Render(styles.Muted.Render("loading…")))
	default:
		b.WriteString(styles.ContentBox.Render(m.tables[m.view].View()))
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(styles.ErrorMsg.Render("refresh failed: " + m.err.Error()))
		b.WriteString("\n")
	}
	if recs := recommendations(m.snap); len(recs) > 0 && m.view == viewAlerts {
		for _, r := range recs {
			b.WriteString(styles.Recommendation.Render("→ " + r))
			b.WriteString("\n")
		}
	}
	b.WriteString(help())
	return b.String()
}

func (m Model) count(v view) int {
	switch v {
	case viewTasks:
		return len(m.snap.Tasks)
	case viewAlerts:
		return len(m.snap.Alerts)
	default:
		return len(m.snap.Workers)
	}
}

func help() string {
	keys := []struct{ key, desc string }{
		{"tab", "switch view"},
		{"1-3", "jump"},
		{"↑/↓", "scroll"},
		{"r", "refresh"},
		{"q", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, styles.HelpKey.Render(k.key)+" "+k.desc)
	}
	return styles.HelpBar.Render(strings.Join(parts, "  "))
}

// header summarizes the latest report on one line.
func header(s *Snapshot, now time.Time) string {
	title := styles.Title.Render("foreman")
	if s == nil || s.Report == nil {
		return title + styles.Subtitle.Render("  waiting for the first coordination cycle")
	}
	r := s.Report
	mode := string(r.Mode)
	if r.Manual {
		mode += " (manual)"
	}
	badge := styles.ModeBadge.Background(styles.ModeColor(string(r.Mode))).Render(strings.ToUpper(mode))
	stats := fmt.Sprintf("  cycle %d · %s ago · load %.0f%% · completion %.0f%% · %d/%d workers · %d pending %d active %d failed",
		r.Cycle,
		humanize(now.Sub(r.Timestamp)),
		r.AvgWorkload*100,
		r.CompletionRate*100,
		r.ActiveWorkers, len(r.Workers),
		r.Totals.Pending, r.Totals.Active, r.Totals.Failed,
	)
	return title + badge + styles.Muted.Render(stats)
}

func recommendations(s *Snapshot) []string {
	if s == nil || s.Report == nil {
		return nil
	}
	return s.Report.Recommendations
}

func iconFor(state string) string {
	if state == "" {
		return " "
	}
	return styles.StateIcon(state)
}

// Render draws the snapshot once without a terminal program, for piping
// and non-interactive output.
func Render(s *Snapshot, now time.Time) string {
	var b strings.Builder
	b.WriteString(header(s, now))
	b.WriteString("\n")
	if s == nil {
		return b.String()
	}

	section := func(title string, cols []string, rows [][]string, colored int) {
		b.WriteString(styles.SectionTitle.Render(fmt.Sprintf("%s (%d)", title, len(rows))))
		b.WriteString("\n")
		if len(rows) == 0 {
			b.WriteString(styles.Muted.Render("  none"))
			b.WriteString("\n")
			return
		}
		t := ltable.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(styles.BorderColor)).
			Headers(cols...).
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				base := lipgloss.NewStyle().Padding(0, 1)
				if row == ltable.HeaderRow {
					return base.Bold(true).Foreground(styles.PrimaryColor)
				}
				if col == colored && row >= 0 && row < len(rows) {
					value := rows[row][col]
					if title == "Alerts" {
						return base.Foreground(styles.SeverityColor(value))
					}
					return base.Foreground(styles.StateColor(value))
				}
				return base
			})
		b.WriteString(t.Render())
		b.WriteString("\n")
	}

	section("Workers", workerColumns(), workerRows(s), 2)
	section("Tasks", taskColumns(), taskRows(s, now), 5)
	section("Alerts", alertColumns(), alertRows(s, now), 0)

	if recs := recommendations(s); len(recs) > 0 {
		b.WriteString(styles.SectionTitle.Render("Recommendations"))
		b.WriteString("\n")
		for _, r := range recs {
			b.WriteString(styles.Recommendation.Render("→ " + r))
			b.WriteString("\n")
		}
	}
	return b.String()
}
