package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/frontdesk-notify/internal/model"
	"github.com/nhle/frontdesk-notify/internal/store"
	"github.com/nhle/frontdesk-notify/internal/testutil"
)

func TestPreferences_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	_, err := s.GetPreference(ctx, "sound.volume")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SetPreference(ctx, "sound.volume", "70"))
	require.NoError(t, s.SetPreference(ctx, "sound.volume", "40"))

	got, err := s.GetPreference(ctx, "sound.volume")
	require.NoError(t, err)
	assert.Equal(t, "40", got)

	all, err := s.ListPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sound.volume": "40"}, all)

	require.NoError(t, s.DeletePreference(ctx, "sound.volume"))
	require.NoError(t, s.DeletePreference(ctx, "sound.volume"))
	_, err = s.GetPreference(ctx, "sound.volume")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHistory_AppendTrimsToLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		err := s.AppendHistory(ctx, model.Notification{
			ID:        fmt.Sprintf("n-%d", i),
			Type:      model.NotificationBooking,
			Title:     "New booking",
			Message:   fmt.Sprintf("Room %d", 100+i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			AutoHide:  true,
			Duration:  8 * time.Second,
		}, 5)
		require.NoError(t, err)
	}

	history, err := s.GetHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, "n-7", history[0].ID)
	assert.Equal(t, "n-3", history[4].ID)
	assert.Equal(t, 8*time.Second, history[0].Duration)
	assert.True(t, history[0].AutoHide)
	assert.True(t, history[0].Timestamp.Equal(base.Add(7*time.Minute)))

	limited, err := s.GetHistory(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, s.ClearHistory(ctx))
	history, err = s.GetHistory(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistory_PreservesData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	require.NoError(t, s.AppendHistory(ctx, model.Notification{
		Type:      model.NotificationPayment,
		Message:   "Invoice paid",
		Timestamp: time.Now(),
		Data:      map[string]any{"amount": 120.5, "currency": "EUR"},
	}, 0))

	history, err := s.GetHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.NotEmpty(t, history[0].ID)
	assert.Equal(t, model.NotificationPayment, history[0].Type)
	assert.Equal(t, "EUR", history[0].Data["currency"])
	assert.InDelta(t, 120.5, history[0].Data["amount"], 0.001)
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "frontdesk.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetPreference(ctx, "session.user_id", "hotel-42"))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetPreference(ctx, "session.user_id")
	require.NoError(t, err)
	assert.Equal(t, "hotel-42", got)
}
