package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// FileCounts holds the count of files in each pipeline outcome.
type FileCounts struct {
	Generated int
	Fixed     int
	Failed    int
	Building  int
}

// Footer renders the cost line, file counts, and keyboard hints.
type Footer struct {
	message    string
	success    bool
	buildDone  bool
	cost       string
	gateHints  string
	width      int
	fileCounts FileCounts

	successStyle lipgloss.Style
	errorStyle   lipgloss.Style
	hintStyle    lipgloss.Style
	costStyle    lipgloss.Style
	sepStyle     lipgloss.Style
}

// NewFooter creates a new Footer instance.
func NewFooter() *Footer {
	return &Footer{
		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		costStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("178")).
			Bold(true),

		sepStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("236")),
	}
}

// SetMessage sets the status message.
func (f *Footer) SetMessage(message string, success bool) {
	f.message = message
	f.success = success
}

// SetBuildDone marks the build as finished.
func (f *Footer) SetBuildDone(success bool, message string) {
	f.buildDone = true
	f.success = success
	f.message = message
}

// SetCost updates the running spend display.
func (f *Footer) SetCost(cost string) {
	f.cost = cost
}

// SetGateHints sets gate-specific key hints, replacing the defaults.
func (f *Footer) SetGateHints(hints string) {
	f.gateHints = hints
}

// SetWidth sets the footer width.
func (f *Footer) SetWidth(width int) {
	f.width = width
}

// SetFileCounts updates the file counts for display.
func (f *Footer) SetFileCounts(counts FileCounts) {
	f.fileCounts = counts
}

// View renders the footer.
func (f *Footer) View() string {
	var left string

	total := f.fileCounts.Generated + f.fileCounts.Fixed + f.fileCounts.Failed + f.fileCounts.Building
	if total > 0 {
		counts := fmt.Sprintf("✓%d", f.fileCounts.Generated)
		if f.fileCounts.Fixed > 0 {
			counts += fmt.Sprintf(" ⚒%d", f.fileCounts.Fixed)
		}
		if f.fileCounts.Failed > 0 {
			counts += f.errorStyle.Render(fmt.Sprintf(" ✗%d", f.fileCounts.Failed))
		}
		if f.fileCounts.Building > 0 {
			counts += fmt.Sprintf(" ⏳%d", f.fileCounts.Building)
		}
		left = counts
	}

	if f.buildDone {
		if f.success {
			left = f.successStyle.Render("✓ " + f.message)
		} else {
			left = f.errorStyle.Render("✗ " + f.message)
		}
	} else if f.message != "" && left == "" {
		left = f.hintStyle.Render(f.message)
	}

	sep := f.sepStyle.Render(" │ ")

	var parts []string
	if left != "" {
		parts = append(parts, left)
	}
	if f.cost != "" {
		parts = append(parts, f.costStyle.Render(f.cost))
	}
	parts = append(parts, f.keyboardHints())

	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// keyboardHints returns context-sensitive keyboard hints.
func (f *Footer) keyboardHints() string {
	if f.buildDone {
		return f.hintStyle.Render("Press q to exit")
	}
	if f.gateHints != "" {
		return f.hintStyle.Render(f.gateHints)
	}
	return f.hintStyle.Render("↑/↓ scroll │ i interject │ q cancel")
}
