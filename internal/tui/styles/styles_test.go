package styles

import "testing"

func TestModeColor(t *testing.T) {
	tests := []struct {
		mode     string
		expected string
	}{
		{"normal", "#10B981"},
		{"optimizing", "#F59E0B"},
		{"emergency", "#F87171"},
		{"maintenance", "#60A5FA"},
		{"unknown", "#9CA3AF"}, // Should fall back to MutedColor
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got := ModeColor(tt.mode)
			if string(got) != tt.expected {
				t.Errorf("ModeColor(%q) = %q, want %q", tt.mode, got, tt.expected)
			}
		})
	}
}

func TestStateColor(t *testing.T) {
	tests := []struct {
		state    string
		expected string
	}{
		{"working", "#10B981"},
		{"active", "#10B981"},
		{"idle", "#9CA3AF"},
		{"overloaded", "#FB923C"},
		{"unavailable", "#F87171"},
		{"failed", "#F87171"},
		{"completed", "#A78BFA"},
		{"cancelled", "#6B7280"},
		{"unknown", "#9CA3AF"},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			got := StateColor(tt.state)
			if string(got) != tt.expected {
				t.Errorf("StateColor(%q) = %q, want %q", tt.state, got, tt.expected)
			}
		})
	}
}

func TestStateIcon(t *testing.T) {
	tests := []struct {
		state    string
		expected string
	}{
		{"working", "●"},
		{"pending", "○"},
		{"overloaded", "▲"},
		{"unavailable", "⏰"},
		{"error", "✗"},
		{"completed", "✓"},
		{"unknown", "●"}, // Should fall back to default
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			got := StateIcon(tt.state)
			if got != tt.expected {
				t.Errorf("StateIcon(%q) = %q, want %q", tt.state, got, tt.expected)
			}
		})
	}
}

func TestSeverityColor(t *testing.T) {
	if got := SeverityColor("critical"); got != ErrorColor {
		t.Errorf("SeverityColor(critical) = %q", got)
	}
	if got := SeverityColor("info"); got != BlueColor {
		t.Errorf("SeverityColor(info) = %q", got)
	}
}
