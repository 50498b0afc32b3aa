// Package toasts renders the display queue as a stack of notification
// cards with a movable selection.
package toasts

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/frontdesk-notify/internal/keys"
	"github.com/nhle/frontdesk-notify/internal/model"
	"github.com/nhle/frontdesk-notify/internal/theme"
)

// Model is the notification stack view.
type Model struct {
	keys     *keys.KeyMap
	items    []model.Notification
	expanded map[string]bool
	cursor   int
	width    int
	height   int
	now      func() time.Time
}

// New creates an empty stack view.
func New(keys *keys.KeyMap, width, height int) Model {
	return Model{
		keys:     keys,
		expanded: map[string]bool{},
		width:    width,
		height:   height,
		now:      time.Now,
	}
}

// SetItems replaces the rendered notifications, newest first. The
// selection follows the previously selected notification when it is
// still present.
func (m *Model) SetItems(items []model.Notification, expanded func(id string) bool) {
	selected, hadSelection := m.Selected()

	m.items = items
	m.expanded = make(map[string]bool, len(items))
	for _, n := range items {
		if expanded != nil && expanded(n.ID) {
			m.expanded[n.ID] = true
		}
	}

	if hadSelection {
		for i, n := range items {
			if n.ID == selected.ID {
				m.cursor = i
				return
			}
		}
	}
	m.cursor = min(m.cursor, max(len(items)-1, 0))
}

// Selected returns the notification under the cursor.
func (m Model) Selected() (model.Notification, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return model.Notification{}, false
	}
	return m.items[m.cursor], true
}

// Len returns the number of rendered notifications.
func (m Model) Len() int {
	return len(m.items)
}

// Update handles selection movement.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	}
	return m, nil
}

// View renders the card stack.
func (m Model) View() string {
	if len(m.items) == 0 {
		return lipgloss.NewStyle().
			Padding(1, 2).
			Render(theme.HelpStyle.Render("No notifications. Waiting for the front desk feed…"))
	}

	cards := make([]string, 0, len(m.items))
	for i, n := range m.items {
		cards = append(cards, m.renderCard(n, i == m.cursor))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

// renderCard draws a single notification.
func (m Model) renderCard(n model.Notification, selected bool) string {
	badge := theme.TypeStyle(string(n.Type)).Render(strings.ToUpper(string(n.Type)))
	title := lipgloss.NewStyle().Bold(true).Render(n.Title)
	when := theme.DimmedStyle.Render(relativeTime(m.now().Sub(n.Timestamp)))

	lines := []string{fmt.Sprintf("%s %s  %s", badge, title, when)}
	if n.Message != "" {
		lines = append(lines, n.Message)
	}

	if m.expanded[n.ID] {
		lines = append(lines, theme.DimmedStyle.Render(
			n.Timestamp.Local().Format("Mon Jan 2 15:04:05")+" · "+n.ID,
		))
		for _, k := range sortedKeys(n.Data) {
			lines = append(lines, theme.DimmedStyle.Render(fmt.Sprintf("%s: %v", k, n.Data[k])))
		}
	} else if !n.AutoHide {
		lines[0] += theme.DimmedStyle.Render("  (pinned)")
	}

	style := theme.CardStyle
	if selected {
		style = theme.SelectedCardStyle
	}
	return style.Width(max(m.width-2, 10)).Render(strings.Join(lines, "\n"))
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func sortedKeys(data map[string]any) []string {
	out := make([]string, 0, len(data))
	for k := range data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// relativeTime returns a human-friendly age.
func relativeTime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
