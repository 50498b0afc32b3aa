package app

import (
	"context"
	"errors"
	"io"
	gosync "sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/frontdesk-notify/internal/connection"
	"github.com/nhle/frontdesk-notify/internal/events"
	"github.com/nhle/frontdesk-notify/internal/model"
	"github.com/nhle/frontdesk-notify/internal/store"
	"github.com/nhle/frontdesk-notify/internal/ui/command"
	"github.com/nhle/frontdesk-notify/internal/ui/prompt"
)

type quietPipeline struct {
	mu    gosync.Mutex
	plays int
	gains []float64
}

func (p *quietPipeline) Name() string { return "quiet" }

func (p *quietPipeline) Play(_ context.Context, _ model.NotificationType, gain float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	p.gains = append(p.gains, gain)
	return nil
}

// audible counts plays above the priming gain.
func (p *quietPipeline) audible() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, g := range p.gains {
		if g > 0.05 {
			n++
		}
	}
	return n
}

func newTestOptions(t *testing.T) Options {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := model.DefaultAppConfig()
	cfg.Notifications.Desktop = false

	return Options{
		Config:  cfg,
		Logger:  logger,
		Clock:   clock.NewMock(),
		Store:   st,
		Primary: &quietPipeline{},
		Secret:  func(string) (string, error) { return "", nil },
	}
}

func newTestModel(t *testing.T) (Model, *Services) {
	t.Helper()

	root := NewRoot(newTestOptions(t))
	s, err := root.Services(context.Background())
	require.NoError(t, err)
	t.Cleanup(root.Close)

	m := New(context.Background(), s)
	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, s
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// run executes cmd and any batched commands, returning their messages.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestRoot_ReturnsSameInstance(t *testing.T) {
	t.Parallel()

	root := NewRoot(newTestOptions(t))
	t.Cleanup(root.Close)

	first, err := root.Services(context.Background())
	require.NoError(t, err)
	second, err := root.Services(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Same(t, first.Sound, second.Sound)

	_, err = NewRoot(Options{}).Services(context.Background())
	require.Error(t, err)
}

func TestModel_FocusDrivesVisibility(t *testing.T) {
	t.Parallel()

	m, s := newTestModel(t)

	m, _ = update(m, tea.BlurMsg{})
	assert.False(t, s.Sound.AudioState().Visible)

	_, _ = update(m, tea.FocusMsg{})
	assert.True(t, s.Sound.AudioState().Visible)
}

func TestModel_KeyPressUnlocksAudio(t *testing.T) {
	t.Parallel()

	m, s := newTestModel(t)
	require.False(t, s.Sound.IsReady())

	_, cmd := update(m, keyPress('j'))
	run(cmd)
	assert.True(t, s.Sound.IsReady())
}

func TestModel_VolumeKeys(t *testing.T) {
	t.Parallel()

	m, s := newTestModel(t)

	m, _ = update(m, keyPress('+'))
	assert.Equal(t, 80, s.Sound.AudioState().Volume.Percentage)

	m, _ = update(m, keyPress('-'))
	m, _ = update(m, keyPress('-'))
	assert.Equal(t, 60, s.Sound.AudioState().Volume.Percentage)

	m, _ = update(m, keyPress('m'))
	assert.False(t, s.Sound.IsSoundEnabled())
	assert.Contains(t, m.View(), "muted")

	_, _ = update(m, keyPress('m'))
	assert.True(t, s.Sound.IsSoundEnabled())
}

func TestModel_DisplaysAndDismissesNotifications(t *testing.T) {
	t.Parallel()

	m, s := newTestModel(t)

	n := s.Dispatcher.TriggerBooking(context.Background(), "Room 12", "Checked in early")
	m, _ = update(m, busEventMsg{event: events.NotificationAdded{Notification: n}})
	require.Equal(t, 1, m.toasts.Len())
	assert.Contains(t, m.View(), "Room 12")
	assert.Contains(t, m.View(), "Front Desk [1]")

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, s.Display.IsExpanded(n.ID))

	m, _ = update(m, keyPress('x'))
	assert.Zero(t, s.Display.Len())
	assert.Zero(t, m.toasts.Len())

	history, err := s.Store.GetHistory(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, n.ID, history[0].ID)
}

func TestModel_PermissionPrompt(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		result prompt.ResultMsg
		want   model.SoundPermission
	}{
		"allow":     {result: prompt.ResultMsg{Decided: true, Allow: true}, want: model.PermissionGranted},
		"deny":      {result: prompt.ResultMsg{Decided: true}, want: model.PermissionDenied},
		"dismissed": {result: prompt.ResultMsg{}, want: model.PermissionUndetermined},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, s := newTestModel(t)

			m, _ = update(m, busEventMsg{event: events.PermissionPromptRequested{}})
			require.Equal(t, ViewPrompt, m.currentView)
			assert.Contains(t, m.View(), "Sound alerts")

			m, cmd := update(m, tc.result)
			run(cmd)
			assert.Equal(t, ViewMain, m.currentView)
			assert.Equal(t, tc.want, s.Sound.Permission())
		})
	}
}

func TestModel_Commands(t *testing.T) {
	t.Parallel()

	m, s := newTestModel(t)

	m, _ = update(m, keyPress(':'))
	require.Equal(t, ViewCommand, m.currentView)

	m, _ = update(m, commandMsg("volume 35"))
	assert.Equal(t, ViewMain, m.currentView)
	assert.Equal(t, 35, s.Sound.AudioState().Volume.Percentage)

	m, _ = update(m, commandMsg("mute"))
	assert.False(t, s.Sound.IsSoundEnabled())

	m, _ = update(m, commandMsg("unmute"))
	assert.True(t, s.Sound.IsSoundEnabled())

	m, _ = update(m, commandMsg("state"))
	assert.Contains(t, m.flash, "gate=locked")

	m, _ = update(m, commandMsg("dance"))
	assert.Contains(t, m.flash, "unknown command")

	s.Dispatcher.TriggerSystem(context.Background(), "Night audit", "Starts at 02:00")
	m, _ = update(m, commandMsg("clear"))
	assert.Zero(t, s.Display.Len())

	_, cmd := update(m, commandMsg("quit"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_ConnectionExhaustedIsReported(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)

	m, _ = update(m, busEventMsg{event: events.ConnectionChanged{
		State: model.ConnectionState{Status: model.ConnectionFailed, Attempt: 5},
		Err:   &connection.ReconnectExhaustedError{Attempts: 5, MaxAttempts: 5, LastErr: errors.New("refused")},
	}})
	assert.Contains(t, m.flash, "after 5 attempts")
}

func commandMsg(s string) tea.Msg {
	return command.CommandMsg(s)
}

func TestModel_SpinnerFollowsBusyState(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(t)
	assert.Nil(t, m.startSpinner(), "idle console does not spin")

	m.conn = model.ConnectionState{Status: model.ConnectionReconnecting, Attempt: 2}
	require.NotNil(t, m.startSpinner())
	assert.True(t, m.spinning)
	assert.Nil(t, m.startSpinner(), "already spinning")
	assert.Contains(t, m.connectionStatus(), "reconnecting (2)")

	m.conn = model.ConnectionState{Status: model.ConnectionConnected}
	m, cmd := update(m, spinner.TickMsg{})
	assert.Nil(t, cmd)
	assert.False(t, m.spinning)
}

func TestModel_FirstKeyTestSoundPlaysOnce(t *testing.T) {
	t.Parallel()

	opts := newTestOptions(t)
	pipeline := opts.Primary.(*quietPipeline)
	root := NewRoot(opts)
	s, err := root.Services(context.Background())
	require.NoError(t, err)
	t.Cleanup(root.Close)
	require.True(t, s.Config.Sound.AutoplayRestricted)

	m := New(context.Background(), s)
	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 30})

	_, cmd := update(m, keyPress('t'))
	require.NotNil(t, cmd)
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)

	// The play request runs before the unlock command.
	var msgs []tea.Msg
	for i := len(batch) - 1; i >= 0; i-- {
		msgs = append(msgs, run(batch[i])...)
	}
	s.Sound.Wait()

	assert.Contains(t, msgs, flashMsg("test system sound: played"))
	assert.True(t, s.Sound.IsReady())
	assert.Equal(t, 1, pipeline.audible())
}

func TestModel_GrantRunsOffUpdate(t *testing.T) {
	t.Parallel()

	m, s := newTestModel(t)
	m, _ = update(m, busEventMsg{event: events.PermissionPromptRequested{}})

	_, cmd := update(m, prompt.ResultMsg{Decided: true, Allow: true})
	require.NotNil(t, cmd)
	assert.Equal(t, model.PermissionUndetermined, s.Sound.Permission(), "grant waits for the command")
	assert.False(t, s.Sound.IsReady())

	assert.Equal(t, []tea.Msg{flashMsg("sound alerts enabled")}, run(cmd))
	s.Sound.Wait()
	assert.Equal(t, model.PermissionGranted, s.Sound.Permission())
	assert.True(t, s.Sound.IsReady())
}
