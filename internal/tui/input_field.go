package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TextSubmittedMsg is sent when the user submits the input field.
type TextSubmittedMsg struct {
	Text string
}

// InputField is a single-line text input used for clarification answers,
// rejection reasons, and interjections.
type InputField struct {
	input textinput.Model
	label string
	width int
}

// NewInputField creates a new InputField.
func NewInputField() *InputField {
	ti := textinput.New()
	ti.Placeholder = "Type and press Enter..."
	ti.CharLimit = 500
	ti.Width = 60

	return &InputField{
		input: ti,
		width: 80,
	}
}

// Focus activates the field with a prompt label.
func (f *InputField) Focus(label string) {
	f.label = label
	f.input.Reset()
	f.input.Focus()
}

// Blur deactivates the field.
func (f *InputField) Blur() {
	f.input.Blur()
}

// Focused reports whether the field is capturing keys.
func (f *InputField) Focused() bool {
	return f.input.Focused()
}

// SetWidth sets the width of the input field.
func (f *InputField) SetWidth(width int) {
	f.width = width
	f.input.Width = width - 4 // Account for prompt and padding
}

// Update handles messages for the input field.
func (f *InputField) Update(msg tea.Msg) (*InputField, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			text := f.input.Value()
			if text != "" {
				f.input.Reset()
				f.input.Blur()
				return f, func() tea.Msg {
					return TextSubmittedMsg{Text: text}
				}
			}
		case "esc":
			f.input.Reset()
			f.input.Blur()
			return f, nil
		}
	}

	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	return f, cmd
}

// View renders the input field with its label.
func (f *InputField) View() string {
	if !f.Focused() {
		return ""
	}

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(f.width - 2)

	return labelStyle.Render(f.label) + "\n" + boxStyle.Render(f.input.View())
}

// Height returns the rendered height in lines.
func (f *InputField) Height() int {
	if !f.Focused() {
		return 0
	}
	return 4 // label + bordered single-line input
}
