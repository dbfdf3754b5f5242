package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Header renders the ForgeGuard logo and the current phase line.
type Header struct {
	width int
	phase string
}

// NewHeader creates a new Header.
func NewHeader() *Header {
	return &Header{
		width: 80,
	}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// SetPhase sets the phase label shown under the logo.
func (h *Header) SetPhase(label string) {
	h.phase = label
}

// View renders the header.
func (h *Header) View() string {
	// Gradient colors for the logo
	colors := []string{"#FF8E53", "#FFC857", "#96E6A1", "#4ECDC4", "#45B7D1"}

	logo := []string{
		" ███████╗ ██████╗ ██████╗  ██████╗ ███████╗",
		" ██╔════╝██╔═══██╗██╔══██╗██╔════╝ ██╔════╝",
		" █████╗  ██║   ██║██████╔╝██║  ███╗█████╗  ",
		" ██╔══╝  ██║   ██║██╔══██╗██║   ██║██╔══╝  ",
		" ██║     ╚██████╔╝██║  ██║╚██████╔╝███████╗",
	}

	var styledLines []string
	for i, line := range logo {
		color := colors[i%len(colors)]
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
		styledLines = append(styledLines, style.Render(line))
	}
	logoBlock := lipgloss.JoinVertical(lipgloss.Left, styledLines...)

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Italic(true).
		Render("ForgeGuard Build Engine")

	phase := h.phase
	if phase == "" {
		phase = "waiting for build"
	}
	phaseLine := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true).
		Render(phase)

	logoStyle := lipgloss.NewStyle().
		Width(h.width).
		Align(lipgloss.Center).
		MarginTop(1).
		PaddingBottom(1)

	return logoStyle.Render(lipgloss.JoinVertical(lipgloss.Center, logoBlock, subtitle, phaseLine))
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 10 // 1 margin + 5 logo lines + 1 subtitle + 1 phase + 1 padding + 1 newline
}
