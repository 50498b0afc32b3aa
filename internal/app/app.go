package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/frontdesk-notify/internal/connection"
	"github.com/nhle/frontdesk-notify/internal/events"
	"github.com/nhle/frontdesk-notify/internal/keys"
	"github.com/nhle/frontdesk-notify/internal/model"
	appsync "github.com/nhle/frontdesk-notify/internal/sync"
	"github.com/nhle/frontdesk-notify/internal/theme"
	"github.com/nhle/frontdesk-notify/internal/ui"
	"github.com/nhle/frontdesk-notify/internal/ui/command"
	helpview "github.com/nhle/frontdesk-notify/internal/ui/help"
	"github.com/nhle/frontdesk-notify/internal/ui/prompt"
	"github.com/nhle/frontdesk-notify/internal/ui/toasts"
)

// refreshInterval re-renders relative timestamps.
const refreshInterval = 30 * time.Second

// volumeStep is the change applied by the volume keys.
const volumeStep = 10

// busEventMsg carries an event from the service bus into the UI.
type busEventMsg struct {
	event events.Event
}

// flashMsg sets a transient status bar message.
type flashMsg string

// tickMsg triggers a periodic re-render.
type tickMsg time.Time

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewMain ViewState = iota
	ViewHelp
	ViewCommand
	ViewPrompt
)

// Model is the root Bubble Tea model. It renders the display queue and
// forwards focus changes and key presses to the sound engine.
type Model struct {
	ctx      context.Context
	services *Services
	events   <-chan events.Event
	cancel   func()

	currentView ViewState
	layout      ui.Layout
	keys        *keys.KeyMap
	toasts      toasts.Model
	helpView    helpview.Model
	commandView command.Model
	promptView  prompt.Model
	spinner     spinner.Model
	spinning    bool

	conn    model.ConnectionState
	audio   model.AudioState
	sources []appsync.SyncStatus
	flash   string
	ready   bool
}

// New creates the root model. It subscribes to the service bus right
// away so no event published after New is missed.
func New(ctx context.Context, s *Services) Model {
	k := keys.DefaultKeyMap()
	ch, cancel := s.Bus.Subscribe()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.DimmedStyle

	theme.Apply(s.Config.Display.Theme)

	m := Model{
		ctx:         ctx,
		services:    s,
		events:      ch,
		cancel:      cancel,
		keys:        k,
		layout:      ui.NewLayout(80, 24),
		toasts:      toasts.New(k, 80, 22),
		helpView:    helpview.New(k, 80, 22),
		commandView: command.New(80, 22),
		promptView:  prompt.New(80, 22),
		spinner:     sp,
	}
	m.refresh()
	return m
}

// Init starts listening to the bus and the re-render ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), tick())
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.toasts.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		m.promptView.SetSize(contentWidth, contentHeight)
		return m.updateActiveView(msg)

	case tea.FocusMsg:
		m.services.Sound.SetVisible(true)
		m.refresh()
		return m, nil

	case tea.BlurMsg:
		m.services.Sound.SetVisible(false)
		m.refresh()
		return m, nil

	case busEventMsg:
		cmd := m.handleEvent(msg.event)
		spin := m.startSpinner()
		return m, tea.Batch(cmd, spin, m.waitForEvent())

	case spinner.TickMsg:
		if !m.busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.refresh()
		return m, tick()

	case flashMsg:
		m.flash = string(msg)
		return m, nil

	case prompt.ResultMsg:
		m.currentView = ViewMain
		cmd := m.resolvePrompt(msg)
		m.refresh()
		return m, cmd

	case command.CommandMsg:
		m.currentView = ViewMain
		return m, m.executeCommand(string(msg))

	case command.CancelMsg:
		m.currentView = ViewMain
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateActiveView(msg)
}

// handleKey treats every key press as a user gesture before routing it.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Recorded before any command runs so a batched play request sees it.
	m.services.Sound.NoteGesture()
	unlock := m.unlockCmd()

	if msg.String() == "ctrl+c" {
		return m, m.quit()
	}

	switch m.currentView {
	case ViewPrompt, ViewCommand:
		next, cmd := m.updateActiveView(msg)
		return next, tea.Batch(unlock, cmd)

	case ViewHelp:
		if key.Matches(msg, m.keys.Help, m.keys.Back, m.keys.Quit) {
			m.currentView = ViewMain
		}
		return m, unlock
	}

	ctx := m.ctx
	s := m.services

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit()

	case key.Matches(msg, m.keys.Help):
		m.currentView = ViewHelp
		return m, unlock

	case key.Matches(msg, m.keys.Command):
		m.currentView = ViewCommand
		return m, tea.Batch(unlock, m.commandView.Focus())

	case key.Matches(msg, m.keys.Toggle):
		if n, ok := m.toasts.Selected(); ok {
			s.Display.Toggle(n.ID)
		}

	case key.Matches(msg, m.keys.Dismiss):
		if n, ok := m.toasts.Selected(); ok {
			s.Display.Dismiss(n.ID)
		}

	case key.Matches(msg, m.keys.Clear):
		s.Display.Clear()

	case key.Matches(msg, m.keys.VolumeUp):
		s.Sound.SetVolume(ctx, s.Sound.AudioState().Volume.Percentage+volumeStep)

	case key.Matches(msg, m.keys.VolumeDown):
		s.Sound.SetVolume(ctx, s.Sound.AudioState().Volume.Percentage-volumeStep)

	case key.Matches(msg, m.keys.Mute):
		s.Sound.ToggleMute(ctx)

	case key.Matches(msg, m.keys.TestSound):
		return m, tea.Batch(unlock, m.testSound(model.NotificationSystem))

	case key.Matches(msg, m.keys.Reconnect):
		m.flash = "reconnecting…"
		return m, tea.Batch(unlock, m.reconnect())

	case key.Matches(msg, m.keys.Refresh):
		s.Poller.RefreshAll()
		m.flash = "checking mailbox…"

	default:
		var cmd tea.Cmd
		m.toasts, cmd = m.toasts.Update(msg)
		return m, tea.Batch(unlock, cmd)
	}

	m.refresh()
	return m, unlock
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewMain:
		m.toasts, cmd = m.toasts.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewPrompt:
		m.promptView, cmd = m.promptView.Update(msg)
	}

	return m, cmd
}

// handleEvent folds a bus event into the view state.
func (m *Model) handleEvent(e events.Event) tea.Cmd {
	switch e := e.(type) {
	case events.ConnectionChanged:
		m.conn = e.State
		var exhausted *connection.ReconnectExhaustedError
		if errors.As(e.Err, &exhausted) {
			m.flash = fmt.Sprintf("connection lost after %d attempts, press r to retry", exhausted.Attempts)
		}

	case events.PermissionPromptRequested:
		if m.services.Sound.Permission() == model.PermissionUndetermined && !m.promptView.Active() {
			m.currentView = ViewPrompt
			m.refresh()
			return m.promptView.Start()
		}

	case events.SourceStatusChanged:
		if e.Err != nil {
			m.flash = fmt.Sprintf("mailbox %s: %v", e.SourceID, e.Err)
		}
	}

	m.refresh()
	return nil
}

// resolvePrompt applies the operator's answer to the permission prompt.
// Granting primes the audio backend, so it runs off the UI goroutine.
func (m *Model) resolvePrompt(r prompt.ResultMsg) tea.Cmd {
	s := m.services.Sound
	switch {
	case r.Decided && r.Allow:
		s.NoteGesture()
		ctx := m.ctx
		m.flash = "enabling sound alerts…"
		return func() tea.Msg {
			s.GrantPermission(ctx)
			return flashMsg("sound alerts enabled")
		}
	case r.Decided:
		s.DenyPermission(m.ctx)
		m.flash = "sound alerts blocked, use :reset permission to change"
	default:
		s.DismissPrompt()
	}
	return nil
}

// executeCommand handles a command string from the command palette.
func (m *Model) executeCommand(input string) tea.Cmd {
	c, err := command.Parse(input)
	if err != nil {
		m.flash = err.Error()
		return nil
	}

	s := m.services
	switch c.Kind {
	case command.KindVolume:
		s.Sound.SetVolumePercentage(m.ctx, c.Volume)
	case command.KindMute:
		s.Sound.SetSoundEnabled(m.ctx, false)
	case command.KindUnmute:
		s.Sound.SetSoundEnabled(m.ctx, true)
	case command.KindTest:
		return m.testSound(c.Type)
	case command.KindResetPermission:
		s.Sound.ResetPermission(m.ctx)
		m.flash = "sound permission reset"
	case command.KindReconnect:
		m.flash = "reconnecting…"
		return m.reconnect()
	case command.KindSync:
		s.Poller.RefreshAll()
		m.flash = "checking mailbox…"
	case command.KindClear:
		s.Display.Clear()
	case command.KindState:
		m.flash = describeAudio(s.Sound.AudioState())
	case command.KindQuit:
		return m.quit()
	}

	m.refresh()
	return nil
}

// refresh pulls fresh snapshots from the services.
func (m *Model) refresh() {
	s := m.services
	m.toasts.SetItems(s.Display.Items(), s.Display.IsExpanded)
	m.audio = s.Sound.AudioState()
	m.conn = s.Connection.State()
	m.sources = s.Poller.GetStatuses()
}

// busy reports whether a connection attempt or a mailbox poll is running.
func (m Model) busy() bool {
	if m.conn.Status == model.ConnectionConnecting || m.conn.Status == model.ConnectionReconnecting {
		return true
	}
	for _, st := range m.sources {
		if st.State == appsync.SyncRunning {
			return true
		}
	}
	return false
}

// startSpinner resumes the header spinner when work has started.
func (m *Model) startSpinner() tea.Cmd {
	if m.spinning || !m.busy() {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

// unlockCmd asks the engine to unlock playback with a genuine gesture.
// Priming may start an audio tool, so it runs off the UI goroutine.
func (m Model) unlockCmd() tea.Cmd {
	if m.audio.Gate == model.GateUnlocked {
		return nil
	}
	engine := m.services.Sound
	return func() tea.Msg {
		if err := engine.Unlock(true); err != nil {
			return flashMsg("audio unavailable: " + err.Error())
		}
		return nil
	}
}

func (m Model) testSound(t model.NotificationType) tea.Cmd {
	engine := m.services.Sound
	return func() tea.Msg {
		return flashMsg(fmt.Sprintf("test %s sound: %s", t, engine.RequestPlay(t)))
	}
}

func (m Model) reconnect() tea.Cmd {
	ctx := m.ctx
	conn := m.services.Connection
	return func() tea.Msg {
		if err := conn.Reconnect(ctx); err != nil {
			return flashMsg("reconnect failed: " + err.Error())
		}
		return flashMsg("")
	}
}

func (m Model) quit() tea.Cmd {
	m.cancel()
	return tea.Quit
}

// waitForEvent returns a tea.Cmd that waits for the next bus event.
// After the event is handled a new waitForEvent is issued to keep
// listening.
func (m Model) waitForEvent() tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return busEventMsg{event: e}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "Front Desk"
	if n := m.toasts.Len(); n > 0 {
		title = fmt.Sprintf("Front Desk [%d]", n)
	}
	header := m.layout.RenderHeader(title, m.connectionStatus())
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.audioStatus())

	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View() + "\n" + m.toasts.View()
	case ViewPrompt:
		return m.promptView.View() + "\n" + m.toasts.View()
	default:
		return m.toasts.View()
	}
}

// connectionStatus describes the connection and mailbox sources.
func (m Model) connectionStatus() string {
	status := string(m.conn.Status)
	switch m.conn.Status {
	case model.ConnectionReconnecting:
		status = fmt.Sprintf("reconnecting (%d)", m.conn.Attempt)
	case model.ConnectionFailed:
		status = "offline, press r"
	}

	dot := "● "
	if m.spinning && m.busy() {
		dot = m.spinner.View() + " "
	}
	parts := []string{theme.ConnectionStyle(string(m.conn.Status)).Render(dot + status)}
	if mail := m.sourceStatus(); mail != "" {
		parts = append(parts, mail)
	}
	return strings.Join(parts, "  ")
}

// sourceStatus returns a short string describing the combined poll state.
func (m Model) sourceStatus() string {
	if len(m.sources) == 0 {
		return ""
	}

	running := 0
	var failing []string
	for _, s := range m.sources {
		switch s.State {
		case appsync.SyncRunning:
			running++
		case appsync.SyncError:
			failing = append(failing, s.SourceID)
		}
	}

	switch {
	case running > 0:
		return fmt.Sprintf("mail: checking (%d)", running)
	case len(failing) > 0:
		return theme.WarningStyle.Render("mail unreachable: " + strings.Join(failing, ", "))
	default:
		return "mail: idle"
	}
}

// audioStatus summarizes the sound engine for the status bar.
func (m Model) audioStatus() string {
	a := m.audio
	switch {
	case a.Permission == model.PermissionDenied:
		return "alerts blocked"
	case !a.Volume.Audible():
		return "muted"
	case a.Gate != model.GateUnlocked:
		return fmt.Sprintf("vol %d%% · press any key to enable audio", a.Volume.Percentage)
	case !a.Visible && a.QueueSize > 0:
		return fmt.Sprintf("vol %d%% · %d deferred", a.Volume.Percentage, a.QueueSize)
	default:
		return fmt.Sprintf("vol %d%%", a.Volume.Percentage)
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc cancel"
	case ViewPrompt:
		return "←/→ choose | enter confirm | esc not now"
	}
	if m.flash != "" {
		return m.flash
	}
	return "q quit | ? help | enter expand | x dismiss | +/- volume | m mute | t test"
}

func describeAudio(a model.AudioState) string {
	return fmt.Sprintf(
		"gate=%s permission=%s volume=%d%% enabled=%t visible=%t queued=%d backend=%s",
		a.Gate, a.Permission, a.Volume.Percentage, a.Volume.Enabled, a.Visible, a.QueueSize, a.Backend,
	)
}
