package sound

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/frontdesk-notify/internal/events"
	"github.com/nhle/frontdesk-notify/internal/model"
	"github.com/nhle/frontdesk-notify/internal/prefs"
)

type playCall struct {
	t    model.NotificationType
	gain float64
}

// fakePipeline records playback attempts. Calls at primingGain are
// counted as priming.
type fakePipeline struct {
	name string

	mu        sync.Mutex
	plays     []playCall
	primes    int
	resumes   int
	err       error
	primeErr  error
	resumeErr error
	block     chan struct{}
}

func (f *fakePipeline) Name() string { return f.name }

func (f *fakePipeline) Resume(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	return f.resumeErr
}

func (f *fakePipeline) Play(_ context.Context, t model.NotificationType, gain float64) error {
	f.mu.Lock()
	if gain == primingGain {
		f.primes++
		err := f.primeErr
		f.mu.Unlock()
		return err
	}
	f.plays = append(f.plays, playCall{t: t, gain: gain})
	err, block := f.err, f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return err
}

func (f *fakePipeline) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plays)
}

func (f *fakePipeline) primeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.primes
}

type harness struct {
	engine   *Engine
	clock    *clock.Mock
	primary  *fakePipeline
	fallback *fakePipeline
	repo     *prefs.MemoryRepository
	bus      *events.Bus
}

func newHarness(t *testing.T, restricted bool, stored map[string]string) *harness {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := &harness{
		clock:    clock.NewMock(),
		primary:  &fakePipeline{name: "tool"},
		fallback: &fakePipeline{name: "beep"},
		repo:     prefs.NewMemoryRepository(stored),
		bus:      events.NewBus(),
	}
	h.engine = h.build(restricted, logger)
	t.Cleanup(h.engine.Close)
	return h
}

func (h *harness) build(restricted bool, logger *logrus.Logger) *Engine {
	return NewEngine(context.Background(), Options{
		Throttle:           500 * time.Millisecond,
		SettleDelay:        300 * time.Millisecond,
		PromptDelay:        3 * time.Second,
		AutoplayRestricted: restricted,
		Clock:              h.clock,
		Logger:             logrus.NewEntry(logger),
		Bus:                h.bus,
	}, prefs.New(h.repo), h.primary, h.fallback)
}

func TestRequestPlay_IneligibleTypesNeverPlay(t *testing.T) {
	t.Parallel()
	tests := map[string]model.NotificationType{
		"empty":      "",
		"unknown":    "reservation",
		"wrong case": "BOOKING",
		"alert":      "alert",
	}
	for name, typ := range tests {
		typ := typ
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, false, nil)

			assert.Equal(t, Ineligible, h.engine.RequestPlay(typ))
			h.engine.Wait()
			assert.Zero(t, h.primary.playCount())
			assert.Zero(t, h.primary.primeCount())
			assert.Zero(t, h.fallback.playCount())
		})
	}
}

func TestRequestPlay_Throttle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false, nil)

	assert.Equal(t, Played, h.engine.RequestPlay(model.NotificationSystem))
	h.engine.Wait()
	h.clock.Add(499 * time.Millisecond)
	assert.Equal(t, Throttled, h.engine.RequestPlay(model.NotificationSystem))
	h.engine.Wait()
	assert.Equal(t, 1, h.primary.playCount())

	h.clock.Add(time.Millisecond)
	assert.Equal(t, Played, h.engine.RequestPlay(model.NotificationSystem))
	h.engine.Wait()
	assert.Equal(t, 2, h.primary.playCount())
}

func TestScenarioA_VolumeAndThrottle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false, nil)
	h.engine.SetVolume(context.Background(), 70)

	assert.Equal(t, Played, h.engine.RequestPlay(model.NotificationPromotion))
	assert.Equal(t, Throttled, h.engine.RequestPlay(model.NotificationPromotion))
	h.engine.Wait()

	require.Equal(t, 1, h.primary.playCount())
	assert.Equal(t, model.NotificationPromotion, h.primary.plays[0].t)
	assert.InDelta(t, 0.7, h.primary.plays[0].gain, 0.001)
}

func TestVisibility_DefersAndReplaysOne(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false, nil)
	h.engine.SetVisible(false)

	for _, typ := range []model.NotificationType{
		model.NotificationBooking,
		model.NotificationPayment,
		model.NotificationPromotion,
	} {
		assert.Equal(t, Queued, h.engine.RequestPlay(typ))
	}
	assert.Equal(t, 3, h.engine.AudioState().QueueSize)
	assert.Zero(t, h.primary.playCount())

	h.engine.SetVisible(true)
	assert.Zero(t, h.engine.AudioState().QueueSize)
	assert.Zero(t, h.primary.playCount())

	h.clock.Add(300 * time.Millisecond)
	require.Eventually(t, func() bool { return h.primary.playCount() == 1 }, time.Second, 5*time.Millisecond)
	h.engine.Wait()

	// Nothing else is replayed later.
	h.clock.Add(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	h.engine.Wait()
	assert.Equal(t, 1, h.primary.playCount())
	assert.Equal(t, model.NotificationPromotion, h.primary.plays[0].t)
	assert.Zero(t, h.engine.AudioState().QueueSize)
}

func TestVisibility_QueueDropsOldest(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false, nil)
	h.engine.SetVisible(false)

	for _, typ := range []model.NotificationType{
		model.NotificationSystem,
		model.NotificationBooking,
		model.NotificationPayment,
		model.NotificationPromotion,
		model.NotificationBooking,
	} {
		h.engine.RequestPlay(typ)
	}
	assert.Equal(t, 3, h.engine.AudioState().QueueSize)

	// Becoming hidden again without a restore keeps the queue intact.
	h.engine.SetVisible(false)
	assert.Equal(t, 3, h.engine.AudioState().QueueSize)

	h.engine.SetVisible(true)
	h.clock.Add(300 * time.Millisecond)
	require.Eventually(t, func() bool { return h.primary.playCount() == 1 }, time.Second, 5*time.Millisecond)
	h.engine.Wait()
	assert.Equal(t, model.NotificationBooking, h.primary.plays[0].t)
}

func TestUnlock_CollapsesToOnePriming(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true, nil)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.engine.Unlock(true)
		}(i)
	}
	wg.Wait()
	require.NoError(t, h.engine.Unlock(true))
	require.NoError(t, h.engine.Unlock(false))

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, h.primary.primeCount())
	assert.True(t, h.engine.IsReady())
	assert.Equal(t, "tool", h.engine.AudioState().Backend)
}

func TestUnlock_RequiresGestureWhenRestricted(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true, nil)

	assert.ErrorIs(t, h.engine.Unlock(false), ErrGestureRequired)
	assert.Equal(t, Locked, h.engine.RequestPlay(model.NotificationBooking))
	h.engine.Wait()
	assert.Zero(t, h.primary.playCount())
	assert.Zero(t, h.primary.primeCount())
	assert.Equal(t, model.GateLocked, h.engine.AudioState().Gate)
	assert.False(t, h.engine.IsReady())

	// A key press later unlocks; the next request plays once the throttle
	// window has passed.
	require.NoError(t, h.engine.Unlock(true))
	h.clock.Add(time.Second)
	assert.Equal(t, Played, h.engine.RequestPlay(model.NotificationBooking))
	h.engine.Wait()
	assert.Equal(t, 1, h.primary.playCount())
}

func TestUnlock_PrimingFailure(t *testing.T) {
	t.Parallel()

	t.Run("falls back to beeper", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false, nil)
		h.primary.resumeErr = errors.New("paplay not found")

		require.NoError(t, h.engine.Unlock(false))
		assert.Equal(t, "beep", h.engine.AudioState().Backend)
		assert.True(t, h.engine.IsReady())
	})

	t.Run("stays locked without fallback", func(t *testing.T) {
		t.Parallel()
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		h := &harness{
			clock:   clock.NewMock(),
			primary: &fakePipeline{name: "tool", primeErr: errors.New("device busy")},
			repo:    prefs.NewMemoryRepository(nil),
		}
		h.engine = NewEngine(context.Background(), Options{Clock: h.clock, Logger: logrus.NewEntry(logger)},
			prefs.New(h.repo), h.primary, nil)

		err := h.engine.Unlock(false)
		var perr *PlaybackError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "prime", perr.Stage)
		assert.Equal(t, model.GateLocked, h.engine.AudioState().Gate)
		assert.Equal(t, Locked, h.engine.RequestPlay(model.NotificationSystem))
	})
}

func TestPlay_FallbackChain(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		primaryErr    error
		fallbackErr   error
		wantFallbacks int
	}{
		"primary succeeds": {},
		"primary fails": {
			primaryErr:    errors.New("exit status 1"),
			wantFallbacks: 1,
		},
		"both fail": {
			primaryErr:    errors.New("exit status 1"),
			fallbackErr:   errors.New("no beeper"),
			wantFallbacks: 1,
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, false, nil)
			h.primary.err = tt.primaryErr
			h.fallback.err = tt.fallbackErr

			assert.NotPanics(t, func() {
				assert.Equal(t, Played, h.engine.RequestPlay(model.NotificationPayment))
				h.engine.Wait()
			})
			assert.Equal(t, 1, h.primary.playCount())
			assert.Equal(t, tt.wantFallbacks, h.fallback.playCount())
		})
	}
}

func TestRequestPlay_Busy(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false, nil)
	h.primary.block = make(chan struct{})

	assert.Equal(t, Played, h.engine.RequestPlay(model.NotificationBooking))
	require.Eventually(t, func() bool { return h.primary.playCount() == 1 }, time.Second, 5*time.Millisecond)

	h.clock.Add(time.Second)
	assert.Equal(t, Busy, h.engine.RequestPlay(model.NotificationBooking))

	close(h.primary.block)
	h.engine.Wait()
	assert.Equal(t, 1, h.primary.playCount())
}

func TestRequestPlay_MutedAndDenied(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		stored map[string]string
		want   Decision
	}{
		"volume zero": {
			stored: map[string]string{prefs.KeySoundVolume: "0"},
			want:   Muted,
		},
		"disabled": {
			stored: map[string]string{prefs.KeySoundEnabled: "false"},
			want:   Muted,
		},
		"denied": {
			stored: map[string]string{prefs.KeySoundPermission: "denied"},
			want:   Denied,
		},
		"undetermined plays": {
			stored: nil,
			want:   Played,
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, false, tt.stored)
			assert.Equal(t, tt.want, h.engine.RequestPlay(model.NotificationBooking))
			h.engine.Wait()
		})
	}
}

func TestSetVolume_Invariants(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, false, nil)
	sub, cancel := h.bus.Subscribe()
	defer cancel()

	h.engine.SetVolume(ctx, 0)
	assert.False(t, h.engine.IsSoundEnabled())
	assert.Equal(t, model.VolumeSetting{Percentage: 0, Enabled: false}, h.engine.AudioState().Volume)

	h.engine.SetVolume(ctx, 40)
	assert.True(t, h.engine.IsSoundEnabled())

	h.engine.SetVolume(ctx, 180)
	assert.Equal(t, 100, h.engine.AudioState().Volume.Percentage)

	h.engine.SetVolumePercentage(ctx, 55.6)
	assert.Equal(t, 56, h.engine.AudioState().Volume.Percentage)

	assert.Equal(t, map[string]string{
		prefs.KeySoundVolume:  "56",
		prefs.KeySoundEnabled: "true",
	}, h.repo.Snapshot())

	var got []events.Event
	for len(sub) > 0 {
		got = append(got, <-sub)
	}
	assert.Equal(t, []events.Event{
		events.VolumeChanged{Volume: model.VolumeSetting{Percentage: 0, Enabled: false}},
		events.SoundToggled{Enabled: false},
		events.VolumeChanged{Volume: model.VolumeSetting{Percentage: 40, Enabled: true}},
		events.SoundToggled{Enabled: true},
		events.VolumeChanged{Volume: model.VolumeSetting{Percentage: 100, Enabled: true}},
		events.VolumeChanged{Volume: model.VolumeSetting{Percentage: 56, Enabled: true}},
	}, got)
}

func TestSetSoundEnabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, false, nil)

	h.engine.SetSoundEnabled(ctx, false)
	assert.False(t, h.engine.IsSoundEnabled())
	assert.Equal(t, 70, h.engine.AudioState().Volume.Percentage)

	h.engine.ToggleMute(ctx)
	assert.True(t, h.engine.IsSoundEnabled())

	h.engine.SetVolume(ctx, 0)
	h.engine.SetSoundEnabled(ctx, true)
	assert.Equal(t, model.VolumeSetting{Percentage: model.DefaultVolume, Enabled: true}, h.engine.AudioState().Volume)
}

func countPrompts(sub <-chan events.Event, n *int) {
	for {
		select {
		case e := <-sub:
			if _, ok := e.(events.PermissionPromptRequested); ok {
				*n++
			}
		default:
			return
		}
	}
}

func TestScenarioB_PromptOncePerSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true, nil)
	sub, cancel := h.bus.Subscribe()
	defer cancel()

	h.engine.Start()
	h.engine.Start()

	prompts := 0
	h.clock.Add(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	countPrompts(sub, &prompts)
	assert.Zero(t, prompts)

	h.clock.Add(time.Second)
	require.Eventually(t, func() bool {
		countPrompts(sub, &prompts)
		return prompts == 1
	}, time.Second, 5*time.Millisecond)

	h.engine.Start()
	h.clock.Add(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	countPrompts(sub, &prompts)
	assert.Equal(t, 1, prompts)

	h.engine.DenyPermission(context.Background())
	assert.Equal(t, "denied", h.repo.Snapshot()[prefs.KeySoundPermission])

	// A fresh engine reading the persisted state never prompts again.
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	reloaded := h.build(true, logger)
	defer reloaded.Close()
	reloaded.Start()
	h.clock.Add(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	countPrompts(sub, &prompts)
	assert.Equal(t, 1, prompts)
	assert.Equal(t, model.PermissionDenied, reloaded.Permission())
	assert.Equal(t, Denied, reloaded.RequestPlay(model.NotificationBooking))
}

func TestResetPermission_RearmsPrompt(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true, map[string]string{prefs.KeySoundPermission: "denied"})
	sub, cancel := h.bus.Subscribe()
	defer cancel()

	h.engine.Start()
	h.engine.ResetPermission(context.Background())
	_, stored := h.repo.Snapshot()[prefs.KeySoundPermission]
	assert.False(t, stored)

	prompts := 0
	h.clock.Add(3 * time.Second)
	require.Eventually(t, func() bool {
		countPrompts(sub, &prompts)
		return prompts == 1
	}, time.Second, 5*time.Millisecond)
}

func TestGrantPermission_UnlocksAndConfirms(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true, nil)

	h.engine.GrantPermission(context.Background())
	h.engine.Wait()

	assert.Equal(t, model.PermissionGranted, h.engine.Permission())
	assert.True(t, h.engine.IsReady())
	assert.Equal(t, 1, h.primary.primeCount())
	require.Equal(t, 1, h.primary.playCount())
	assert.Equal(t, model.NotificationSystem, h.primary.plays[0].t)
	assert.Equal(t, "granted", h.repo.Snapshot()[prefs.KeySoundPermission])
}

func TestNoteGesture_LetsInlineUnlockProceed(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true, nil)

	h.engine.NoteGesture()
	assert.False(t, h.engine.IsReady(), "noting a gesture does not unlock")

	assert.Equal(t, Played, h.engine.RequestPlay(model.NotificationBooking))
	h.engine.Wait()
	assert.Equal(t, 1, h.primary.primeCount())
	assert.Equal(t, 1, h.primary.playCount())
	assert.True(t, h.engine.IsReady())
}
