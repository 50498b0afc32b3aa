// Package prompt asks the operator whether audible alerts may play.
package prompt

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/frontdesk-notify/internal/theme"
)

// ResultMsg is dispatched when the prompt closes. Decided is false when
// the operator dismissed it without answering.
type ResultMsg struct {
	Decided bool
	Allow   bool
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	allow bool
}

// Model is the Bubble Tea model for the sound permission prompt.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	width  int
	height int
}

// New creates an inactive prompt.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{allow: true},
		width:  width,
		height: height,
	}
}

// Start shows the prompt.
func (m *Model) Start() tea.Cmd {
	m.fb.allow = true

	km := huh.NewDefaultKeyMap()
	km.Quit = key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "not now"))

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Play a sound for new bookings and payments?").
				Description("Alerts play only while this console is in front. You can change this later with :reset permission.").
				Affirmative("Allow").
				Negative("Don't allow").
				Value(&m.fb.allow),
		),
	).WithShowHelp(false).WithKeyMap(km)
	return m.form.Init()
}

// Active reports whether the prompt is showing.
func (m Model) Active() bool {
	return m.form != nil
}

// Update handles messages for the prompt.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		allow := m.fb.allow
		m.form = nil
		return m, func() tea.Msg { return ResultMsg{Decided: true, Allow: allow} }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return ResultMsg{} }
	}

	return m, cmd
}

// View renders the prompt.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Sound alerts") + "\n" + m.form.View()

	return theme.PanelStyle.
		Width(max(m.width-4, 20)).
		Render(content)
}

// SetSize updates the prompt dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
