// Package prefs exposes the persisted user preferences behind an explicit
// repository interface. Engine and connection code depend only on
// Repository (or the typed Preferences view over it).
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/nhle/frontdesk-notify/internal/model"
	"github.com/nhle/frontdesk-notify/internal/store"
)

// Well-known preference keys.
const (
	KeySoundEnabled    = "sound.enabled"
	KeySoundVolume     = "sound.volume"
	KeySoundPermission = "sound.permission"
	KeyUserID          = "session.user_id"
)

// CursorKey returns the key under which a source's sync cursor is stored.
func CursorKey(sourceID string) string {
	return "source." + sourceID + ".cursor"
}

// Change describes a single preference mutation. Deleted is set when the
// key was removed.
type Change struct {
	Key     string
	Value   string
	Deleted bool
}

// Repository is a key/value preference store with change notification.
type Repository interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Subscribe returns a channel of subsequent changes and a cancel func.
	Subscribe() (<-chan Change, func())
}

// StoreRepository implements Repository on top of the SQLite store.
type StoreRepository struct {
	store store.Store

	mu        sync.RWMutex
	listeners map[chan Change]struct{}
}

// NewStoreRepository wraps s.
func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{
		store:     s,
		listeners: make(map[chan Change]struct{}),
	}
}

// Get implements Repository.
func (r *StoreRepository) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.store.GetPreference(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements Repository.
func (r *StoreRepository) Set(ctx context.Context, key, value string) error {
	if err := r.store.SetPreference(ctx, key, value); err != nil {
		return err
	}
	r.notify(Change{Key: key, Value: value})
	return nil
}

// Delete implements Repository.
func (r *StoreRepository) Delete(ctx context.Context, key string) error {
	if err := r.store.DeletePreference(ctx, key); err != nil {
		return err
	}
	r.notify(Change{Key: key, Deleted: true})
	return nil
}

// Subscribe implements Repository.
func (r *StoreRepository) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 16)

	r.mu.Lock()
	r.listeners[ch] = struct{}{}
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		if _, ok := r.listeners[ch]; ok {
			delete(r.listeners, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
}

func (r *StoreRepository) notify(c Change) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ch := range r.listeners {
		select {
		case ch <- c:
		default:
		}
	}
}

// Preferences is a typed view over a Repository. Getters fall back to
// defaults when the value is absent or unreadable so callers never fail on
// a broken store; the error is still returned for logging.
type Preferences struct {
	repo Repository
}

// New returns a typed view over repo.
func New(repo Repository) *Preferences {
	return &Preferences{repo: repo}
}

// Repository returns the underlying repository.
func (p *Preferences) Repository() Repository {
	return p.repo
}

// Volume returns the persisted volume setting. Defaults: enabled, 70%.
func (p *Preferences) Volume(ctx context.Context) (model.VolumeSetting, error) {
	vol := model.VolumeSetting{Percentage: model.DefaultVolume, Enabled: true}

	raw, ok, err := p.repo.Get(ctx, KeySoundVolume)
	if err != nil {
		return vol, fmt.Errorf("reading volume: %w", err)
	}
	if ok {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return vol, fmt.Errorf("parsing volume %q: %w", raw, convErr)
		}
		vol.Percentage = model.ClampVolume(n)
	}

	raw, ok, err = p.repo.Get(ctx, KeySoundEnabled)
	if err != nil {
		return vol, fmt.Errorf("reading sound enabled: %w", err)
	}
	if ok {
		enabled, convErr := strconv.ParseBool(raw)
		if convErr != nil {
			return vol, fmt.Errorf("parsing sound enabled %q: %w", raw, convErr)
		}
		vol.Enabled = enabled
	}

	if vol.Percentage == 0 {
		vol.Enabled = false
	}
	return vol, nil
}

// SetVolume persists both halves of the volume setting.
func (p *Preferences) SetVolume(ctx context.Context, v model.VolumeSetting) error {
	if err := p.repo.Set(ctx, KeySoundVolume, strconv.Itoa(model.ClampVolume(v.Percentage))); err != nil {
		return fmt.Errorf("saving volume: %w", err)
	}
	if err := p.repo.Set(ctx, KeySoundEnabled, strconv.FormatBool(v.Enabled)); err != nil {
		return fmt.Errorf("saving sound enabled: %w", err)
	}
	return nil
}

// Permission returns the persisted permission decision.
func (p *Preferences) Permission(ctx context.Context) (model.SoundPermission, error) {
	raw, ok, err := p.repo.Get(ctx, KeySoundPermission)
	if err != nil {
		return model.PermissionUndetermined, fmt.Errorf("reading permission: %w", err)
	}
	if !ok {
		return model.PermissionUndetermined, nil
	}
	return model.ParseSoundPermission(raw), nil
}

// SetPermission persists a decision. Undetermined deletes the key.
func (p *Preferences) SetPermission(ctx context.Context, perm model.SoundPermission) error {
	var err error
	if perm == model.PermissionUndetermined {
		err = p.repo.Delete(ctx, KeySoundPermission)
	} else {
		err = p.repo.Set(ctx, KeySoundPermission, string(perm))
	}
	if err != nil {
		return fmt.Errorf("saving permission: %w", err)
	}
	return nil
}

// UserID returns the current session's user identifier, or "".
func (p *Preferences) UserID(ctx context.Context) (string, error) {
	v, _, err := p.repo.Get(ctx, KeyUserID)
	if err != nil {
		return "", fmt.Errorf("reading user id: %w", err)
	}
	return v, nil
}

// SetUserID stores the session user identifier. An empty id logs out.
func (p *Preferences) SetUserID(ctx context.Context, id string) error {
	var err error
	if id == "" {
		err = p.repo.Delete(ctx, KeyUserID)
	} else {
		err = p.repo.Set(ctx, KeyUserID, id)
	}
	if err != nil {
		return fmt.Errorf("saving user id: %w", err)
	}
	return nil
}

// Cursor returns the stored sync cursor for a source.
func (p *Preferences) Cursor(ctx context.Context, sourceID string) (string, error) {
	v, _, err := p.repo.Get(ctx, CursorKey(sourceID))
	if err != nil {
		return "", fmt.Errorf("reading cursor for %s: %w", sourceID, err)
	}
	return v, nil
}

// SetCursor stores the sync cursor for a source.
func (p *Preferences) SetCursor(ctx context.Context, sourceID, cursor string) error {
	if err := p.repo.Set(ctx, CursorKey(sourceID), cursor); err != nil {
		return fmt.Errorf("saving cursor for %s: %w", sourceID, err)
	}
	return nil
}
