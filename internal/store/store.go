package store

import (
	"context"
	"errors"

	"github.com/nhle/frontdesk-notify/internal/model"
)

// ErrNotFound is returned when a preference key has no stored value.
var ErrNotFound = errors.New("not found")

// DefaultHistoryLimit caps the persisted notification history.
const DefaultHistoryLimit = 50

// Store defines the persistence interface for preferences and the
// notification history.
type Store interface {
	// === Preferences ===

	GetPreference(ctx context.Context, key string) (string, error)
	SetPreference(ctx context.Context, key, value string) error
	DeletePreference(ctx context.Context, key string) error
	ListPreferences(ctx context.Context) (map[string]string, error)

	// === History ===

	AppendHistory(ctx context.Context, n model.Notification, limit int) error
	GetHistory(ctx context.Context, limit int) ([]model.Notification, error)
	ClearHistory(ctx context.Context) error

	Close() error
}
