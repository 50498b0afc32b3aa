package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/frontdesk-notify/internal/theme"
)

// CommandMsg is emitted when the user executes a command.
type CommandMsg string

// CancelMsg is emitted when the palette is closed with esc.
type CancelMsg struct{}

// maxHistory bounds the recalled commands.
const maxHistory = 20

// Model is the command palette view. Up and down recall earlier commands.
type Model struct {
	input   textinput.Model
	history []string
	recall  int
	width   int
	height  int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "volume 40, test booking, reset permission..."
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				m.recall = len(m.history)
				return m, func() tea.Msg { return CancelMsg{} }
			}
			m.remember(line)
			return m, func() tea.Msg { return CommandMsg(line) }
		case "esc":
			m.input.Reset()
			m.recall = len(m.history)
			return m, func() tea.Msg { return CancelMsg{} }
		case "up":
			if m.recall > 0 {
				m.recall--
				m.input.SetValue(m.history[m.recall])
				m.input.CursorEnd()
			}
			return m, nil
		case "down":
			if m.recall < len(m.history) {
				m.recall++
				if m.recall == len(m.history) {
					m.input.SetValue("")
				} else {
					m.input.SetValue(m.history[m.recall])
					m.input.CursorEnd()
				}
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) remember(line string) {
	if n := len(m.history); n == 0 || m.history[n-1] != line {
		m.history = append(m.history, line)
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
	}
	m.recall = len(m.history)
}

// Value returns the text currently typed in the palette.
func (m Model) Value() string {
	return m.input.Value()
}

// View renders the command palette. A line that does not parse is flagged
// before it is submitted.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		Render("Command")

	lines := []string{title, "", m.input.View()}
	if v := strings.TrimSpace(m.input.Value()); v != "" {
		if _, err := Parse(v); err != nil {
			lines = append(lines, theme.WarningStyle.Render(err.Error()))
		}
	}

	content := lipgloss.JoinVertical(lipgloss.Left, lines...)

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
