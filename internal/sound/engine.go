// Package sound decides whether and when an audible alert is played, under
// autoplay restrictions, view visibility and user preferences, and drives
// the playback pipelines.
package sound

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/frontdesk-notify/internal/events"
	"github.com/nhle/frontdesk-notify/internal/model"
	"github.com/nhle/frontdesk-notify/internal/prefs"
)

const (
	// deferredCapacity bounds the queue of sounds requested while hidden.
	deferredCapacity = 3

	primingGain = 0.01
	playTimeout = 10 * time.Second
)

// Decision is the outcome of a play request.
type Decision string

const (
	Played     Decision = "played"
	Queued     Decision = "queued"
	Throttled  Decision = "throttled"
	Muted      Decision = "muted"
	Ineligible Decision = "ineligible"
	Locked     Decision = "locked"
	Denied     Decision = "denied"
	Busy       Decision = "busy"
)

// Options tunes an Engine.
type Options struct {
	Throttle    time.Duration
	SettleDelay time.Duration
	PromptDelay time.Duration

	// AutoplayRestricted keeps the gate locked until Unlock is called with
	// a genuine user gesture.
	AutoplayRestricted bool

	Clock  clock.Clock
	Logger *logrus.Entry
	Bus    *events.Bus
}

// Engine arbitrates sound playback. It is safe for concurrent use.
type Engine struct {
	opts     Options
	prefs    *prefs.Preferences
	primary  Pipeline
	fallback Pipeline
	log      *logrus.Entry

	mu          sync.Mutex
	gate        model.GateState
	initialized bool
	gestureSeen bool
	permission  model.SoundPermission
	volume      model.VolumeSetting
	visible     bool
	deferred    []model.NotificationType
	lastPlay    time.Time
	backend     string
	promptShown bool
	promptTimer *clock.Timer
	settleTimer *clock.Timer

	unlockGroup singleflight.Group
	inFlight    atomic.Bool
	playing     sync.WaitGroup
}

// NewEngine builds an engine and loads the persisted volume and
// permission. Either pipeline may be nil, not both.
func NewEngine(ctx context.Context, opts Options, p *prefs.Preferences, primary, fallback Pipeline) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	e := &Engine{
		opts:       opts,
		prefs:      p,
		primary:    primary,
		fallback:   fallback,
		log:        opts.Logger.WithField("component", "sound"),
		gate:       model.GateLocked,
		permission: model.PermissionUndetermined,
		volume:     model.VolumeSetting{Percentage: model.DefaultVolume, Enabled: true},
		visible:    true,
	}

	vol, err := p.Volume(ctx)
	if err != nil {
		e.log.WithError(err).Warn("loading volume, using default")
	}
	e.volume = vol

	perm, err := p.Permission(ctx)
	if err != nil {
		e.log.WithError(err).Warn("loading sound permission")
	}
	e.permission = perm

	return e
}

// Start arms the one-time permission prompt.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.armPromptLocked()
}

func (e *Engine) armPromptLocked() {
	if e.promptShown || e.permission != model.PermissionUndetermined || e.promptTimer != nil {
		return
	}
	e.promptTimer = e.opts.Clock.AfterFunc(e.opts.PromptDelay, e.firePrompt)
}

func (e *Engine) firePrompt() {
	e.mu.Lock()
	e.promptTimer = nil
	if e.promptShown || e.permission != model.PermissionUndetermined {
		e.mu.Unlock()
		return
	}
	e.promptShown = true
	e.mu.Unlock()

	e.log.Debug("requesting sound permission prompt")
	e.opts.Bus.Publish(events.PermissionPromptRequested{})
}

// Close stops pending timers and waits for in-flight playback.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.promptTimer != nil {
		e.promptTimer.Stop()
		e.promptTimer = nil
	}
	if e.settleTimer != nil {
		e.settleTimer.Stop()
		e.settleTimer = nil
	}
	e.mu.Unlock()
	e.Wait()
}

// Wait blocks until in-flight playback has finished.
func (e *Engine) Wait() {
	e.playing.Wait()
}

// PlayNotificationSound requests an alert for t.
func (e *Engine) PlayNotificationSound(t model.NotificationType) {
	e.RequestPlay(t)
}

// RequestPlay runs the arbitration for a single alert and reports the
// outcome. Playback itself happens asynchronously.
func (e *Engine) RequestPlay(t model.NotificationType) Decision {
	log := e.log.WithField("type", t)

	e.mu.Lock()
	if !e.volume.Audible() {
		e.mu.Unlock()
		log.Debug("sound muted")
		return Muted
	}
	if !t.IsSoundEligible() {
		e.mu.Unlock()
		log.Debug("type not sound eligible")
		return Ineligible
	}
	if e.permission == model.PermissionDenied {
		e.mu.Unlock()
		log.Debug("sound permission denied")
		return Denied
	}
	if !e.visible {
		if len(e.deferred) >= deferredCapacity {
			e.deferred = e.deferred[1:]
		}
		e.deferred = append(e.deferred, t)
		size := len(e.deferred)
		e.mu.Unlock()
		log.WithField("queue_size", size).Debug("view hidden, sound deferred")
		return Queued
	}

	now := e.opts.Clock.Now()
	if !e.lastPlay.IsZero() && now.Sub(e.lastPlay) < e.opts.Throttle {
		e.mu.Unlock()
		log.Debug("sound throttled")
		return Throttled
	}
	// Claimed before the attempt so a failing pipeline is not retried in
	// a tight loop.
	e.lastPlay = now
	gain := e.volume.Gain()
	ready := e.gate == model.GateUnlocked
	e.mu.Unlock()

	if !ready {
		if err := e.Unlock(false); err != nil {
			log.WithError(err).Debug("playback gate locked, sound abandoned")
			return Locked
		}
	}

	if !e.inFlight.CompareAndSwap(false, true) {
		log.Debug("playback already in flight")
		return Busy
	}

	e.playing.Add(1)
	go e.play(t, gain)
	return Played
}

func (e *Engine) play(t model.NotificationType, gain float64) {
	defer e.playing.Done()
	defer e.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	log := e.log.WithFields(logrus.Fields{"type": t, "gain": gain})

	var primaryErr error
	if e.primary != nil {
		primaryErr = e.primary.Play(ctx, t, gain)
		if primaryErr == nil {
			log.WithField("pipeline", e.primary.Name()).Debug("alert played")
			return
		}
		log.WithError(&PlaybackError{Stage: "primary", Pipeline: e.primary.Name(), Err: primaryErr}).
			Warn("primary playback failed, falling back")
	} else {
		primaryErr = ErrNoPipeline
	}

	if e.fallback == nil {
		log.WithError(&PlaybackError{Stage: "primary", Pipeline: pipelineName(e.primary), Err: primaryErr}).
			Error("alert abandoned")
		return
	}

	if err := e.fallback.Play(ctx, t, gain); err != nil {
		log.WithError(&PlaybackError{
			Stage:    "fallback",
			Pipeline: e.fallback.Name(),
			Err:      errors.Join(primaryErr, err),
		}).Error("alert abandoned")
		return
	}
	log.WithField("pipeline", e.fallback.Name()).Debug("alert played")
}

// NoteGesture records a genuine user interaction without unlocking. Later
// inline unlock attempts may then proceed even when autoplay is restricted.
func (e *Engine) NoteGesture() {
	e.mu.Lock()
	e.gestureSeen = true
	e.mu.Unlock()
}

// Unlock opens the playback gate. gesture reports whether the call comes
// directly from a user interaction. Concurrent calls share one attempt;
// calls after success are no-ops.
func (e *Engine) Unlock(gesture bool) error {
	e.mu.Lock()
	if gesture {
		e.gestureSeen = true
	}
	if e.gate == model.GateUnlocked {
		e.mu.Unlock()
		return nil
	}
	if e.opts.AutoplayRestricted && !e.gestureSeen {
		e.mu.Unlock()
		return ErrGestureRequired
	}
	e.mu.Unlock()

	_, err, _ := e.unlockGroup.Do("unlock", func() (any, error) {
		return nil, e.unlock()
	})
	return err
}

func (e *Engine) unlock() error {
	e.mu.Lock()
	if e.gate == model.GateUnlocked {
		e.mu.Unlock()
		return nil
	}
	e.gate = model.GateUnlocking
	e.mu.Unlock()
	e.opts.Bus.Publish(events.GateChanged{Gate: model.GateUnlocking})

	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	backend, err := e.prime(ctx)

	e.mu.Lock()
	if err != nil {
		e.gate = model.GateLocked
	} else {
		e.gate = model.GateUnlocked
		e.initialized = true
		e.backend = backend
	}
	gate := e.gate
	e.mu.Unlock()
	e.opts.Bus.Publish(events.GateChanged{Gate: gate})

	if err != nil {
		e.log.WithError(err).Warn("unlocking playback failed")
		return err
	}
	e.log.WithField("backend", backend).Info("playback unlocked")
	return nil
}

// prime resumes the primary backend and plays a near-silent trial clip.
// A primary that cannot be primed is tolerated when a fallback exists.
func (e *Engine) prime(ctx context.Context) (string, error) {
	if e.primary == nil {
		if e.fallback == nil {
			return "", ErrNoPipeline
		}
		return e.fallback.Name(), nil
	}

	err := e.resume(ctx)
	if err == nil {
		err = e.primary.Play(ctx, model.NotificationSystem, primingGain)
	}
	if err == nil {
		return e.primary.Name(), nil
	}

	perr := &PlaybackError{Stage: "prime", Pipeline: e.primary.Name(), Err: err}
	if e.fallback == nil {
		return "", perr
	}
	e.log.WithError(perr).Warn("primary pipeline unavailable, using fallback")
	return e.fallback.Name(), nil
}

func (e *Engine) resume(ctx context.Context) error {
	if r, ok := e.primary.(Resumer); ok {
		return r.Resume(ctx)
	}
	return nil
}

// SetVisible reports whether the view is visible. On a hidden-to-visible
// transition the most recently deferred sound is replayed after the settle
// delay and the rest are discarded.
func (e *Engine) SetVisible(visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	was := e.visible
	e.visible = visible
	if !visible || was || len(e.deferred) == 0 {
		return
	}

	token := e.deferred[len(e.deferred)-1]
	dropped := len(e.deferred) - 1
	e.deferred = nil

	if e.settleTimer != nil {
		e.settleTimer.Stop()
	}
	e.settleTimer = e.opts.Clock.AfterFunc(e.opts.SettleDelay, func() {
		e.mu.Lock()
		e.settleTimer = nil
		e.mu.Unlock()
		e.RequestPlay(token)
	})
	e.log.WithFields(logrus.Fields{"type": token, "dropped": dropped}).Debug("view visible, replaying deferred sound")
}

// SetVolume clamps and persists percentage. Raising above 0 enables
// sound, setting 0 disables it.
func (e *Engine) SetVolume(ctx context.Context, percentage int) {
	p := model.ClampVolume(percentage)
	e.applyVolume(ctx, model.VolumeSetting{Percentage: p, Enabled: p > 0})
}

// SetVolumePercentage sets the volume from a possibly fractional
// percentage, as produced by sliders.
func (e *Engine) SetVolumePercentage(ctx context.Context, percentage float64) {
	e.SetVolume(ctx, int(math.Round(percentage)))
}

// SetSoundEnabled switches sound on or off. Enabling at 0% restores the
// default volume.
func (e *Engine) SetSoundEnabled(ctx context.Context, enabled bool) {
	e.mu.Lock()
	vol := e.volume
	e.mu.Unlock()

	vol.Enabled = enabled
	if enabled && vol.Percentage == 0 {
		vol.Percentage = model.DefaultVolume
	}
	e.applyVolume(ctx, vol)
}

// ToggleMute flips the enabled flag.
func (e *Engine) ToggleMute(ctx context.Context) {
	e.SetSoundEnabled(ctx, !e.IsSoundEnabled())
}

func (e *Engine) applyVolume(ctx context.Context, vol model.VolumeSetting) {
	e.mu.Lock()
	prev := e.volume
	e.volume = vol
	e.mu.Unlock()

	if err := e.prefs.SetVolume(ctx, vol); err != nil {
		e.log.WithError(err).Warn("persisting volume")
	}

	e.opts.Bus.Publish(events.VolumeChanged{Volume: vol})
	if prev.Enabled != vol.Enabled {
		e.opts.Bus.Publish(events.SoundToggled{Enabled: vol.Enabled})
	}
	e.log.WithFields(logrus.Fields{"volume": vol.Percentage, "enabled": vol.Enabled}).Debug("volume changed")
}

// IsSoundEnabled reports whether alerts are currently audible.
func (e *Engine) IsSoundEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume.Audible()
}

// IsReady reports whether the gate is unlocked and the backend primed.
func (e *Engine) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate == model.GateUnlocked && e.initialized
}

// Permission returns the current permission decision.
func (e *Engine) Permission() model.SoundPermission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.permission
}

// GrantPermission persists the grant, unlocks playback and plays a
// confirmation alert. It must be called from a user interaction.
func (e *Engine) GrantPermission(ctx context.Context) {
	e.setPermission(ctx, model.PermissionGranted)
	if err := e.Unlock(true); err != nil {
		e.log.WithError(err).Warn("unlock after grant failed")
		return
	}
	e.RequestPlay(model.NotificationSystem)
}

// DenyPermission persists the denial. No prompt or playback follows for
// the rest of the session.
func (e *Engine) DenyPermission(ctx context.Context) {
	e.setPermission(ctx, model.PermissionDenied)
}

// DismissPrompt records that the prompt was closed without a decision.
// It is not shown again this session.
func (e *Engine) DismissPrompt() {
	e.mu.Lock()
	e.promptShown = true
	e.mu.Unlock()
}

// ResetPermission clears the persisted decision and re-arms the prompt.
func (e *Engine) ResetPermission(ctx context.Context) {
	e.setPermission(ctx, model.PermissionUndetermined)
	e.mu.Lock()
	e.promptShown = false
	e.armPromptLocked()
	e.mu.Unlock()
}

func (e *Engine) setPermission(ctx context.Context, perm model.SoundPermission) {
	e.mu.Lock()
	e.permission = perm
	if perm != model.PermissionUndetermined {
		e.promptShown = true
		if e.promptTimer != nil {
			e.promptTimer.Stop()
			e.promptTimer = nil
		}
	}
	e.mu.Unlock()

	if err := e.prefs.SetPermission(ctx, perm); err != nil {
		e.log.WithError(err).Warn("persisting sound permission")
	}
	e.opts.Bus.Publish(events.PermissionChanged{Permission: perm})
	e.log.WithField("permission", perm).Info("sound permission changed")
}

// AudioState returns a diagnostic snapshot.
func (e *Engine) AudioState() model.AudioState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.AudioState{
		Gate:        e.gate,
		Permission:  e.permission,
		Volume:      e.volume,
		Visible:     e.visible,
		QueueSize:   len(e.deferred),
		Initialized: e.initialized,
		LastPlayAt:  e.lastPlay,
		Backend:     e.backend,
	}
}

func pipelineName(p Pipeline) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}
