package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/foreman/internal/tui/styles"
)

// view identifies the table on screen.
type view int

const (
	viewWorkers view = iota
	viewTasks
	viewAlerts
	viewCount
)

func (v view) String() string {
	switch v {
	case viewWorkers:
		return "Workers"
	case viewTasks:
		return "Tasks"
	case viewAlerts:
		return "Alerts"
	default:
		return "?"
	}
}

func (v view) titles() []string {
	switch v {
	case viewTasks:
		return taskColumns()
	case viewAlerts:
		return alertColumns()
	default:
		return workerColumns()
	}
}

// Messages
type (
	tickMsg     time.Time
	snapshotMsg struct {
		snap *Snapshot
		err  error
	}
)

// Model is the bubbletea model for the watch dashboard.
type Model struct {
	source   Source
	interval time.Duration
	now      func() time.Time

	snap   *Snapshot
	err    error
	view   view
	tables [viewCount]table.Model

	width  int
	height int
}

// NewModel creates a dashboard that refreshes from source every interval.
func NewModel(source Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	m := Model{
		source:   source,
		interval: interval,
		now:      time.Now,
		width:    120,
		height:   30,
	}
	tableStyles := table.DefaultStyles()
	tableStyles.Header = styles.TableHeader
	tableStyles.Selected = styles.TableSelected

	for v := range viewCount {
		m.tables[v] = table.New(
			table.WithColumns(columns(v.titles(), m.width)),
			table.WithHeight(m.tableHeight()),
		)
		m.tables[v].SetStyles(tableStyles)
	}
	m.tables[m.view].Focus()
	return m
}

// Init starts the first load and the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.tick())
}

func (m Model) load() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := source.Load(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles input, refresh ticks, and loaded snapshots.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "right", "l":
			m.setView((m.view + 1) % viewCount)
			return m, nil
		case "shift+tab", "left", "h":
			m.setView((m.view + viewCount - 1) % viewCount)
			return m, nil
		case "1":
			m.setView(viewWorkers)
			return m, nil
		case "2":
			m.setView(viewTasks)
			return m, nil
		case "3":
			m.setView(viewAlerts)
			return m, nil
		case "r":
			return m, m.load()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.load(), m.tick())

	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil && msg.snap != nil {
			m.snap = msg.snap
			m.refreshRows()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.tables[m.view], cmd = m.tables[m.view].Update(msg)
	return m, cmd
}

func (m *Model) setView(v view) {
	m.tables[m.view].Blur()
	m.view = v
	m.tables[m.view].Focus()
}

func (m *Model) refreshRows() {
	now := m.now()
	m.tables[viewWorkers].SetRows(toRows(workerRows(m.snap)))
	m.tables[viewTasks].SetRows(toRows(taskRows(m.snap, now)))
	m.tables[viewAlerts].SetRows(toRows(alertRows(m.snap, now)))
}

func (m *Model) resize() {
	for v := range viewCount {
		m.tables[v].SetColumns(columns(v.titles(), m.width))
		m.tables[v].SetHeight(m.tableHeight())
		m.tables[v].SetWidth(max(m.width-4, 20))
	}
}

// tableHeight leaves room for the header, tabs, box border, and help bar.
func (m Model) tableHeight() int {
	return max(m.height-12, 3)
}

func toRows(rows [][]string) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = table.Row(r)
	}
	return out
}

// columns sizes columns to width: narrow fixed columns and one flexible
// last column that takes what is left.
func columns(titles []string, width int) []table.Column {
	cols := make([]table.Column, len(titles))
	used := 0
	for i, title := range titles {
		w := fixedWidth(title)
		if i == len(titles)-1 {
			w = max(width-used-4-2*len(titles), len(title)+2)
		}
		cols[i] = table.Column{Title: title, Width: w}
		used += w
	}
	return cols
}

func fixedWidth(title string) int {
	switch title {
	case "":
		return 2
	case "ID", "TASK":
		return 8
	case "TITLE":
		return 28
	case "WORKER", "TYPE":
		return 18
	case "STATE", "STATUS", "SEVERITY", "PRIORITY":
		return 11
	default:
		return max(len(title)+2, 8)
	}
}
