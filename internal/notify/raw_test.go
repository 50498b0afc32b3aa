package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/frontdesk-notify/internal/model"
)

func TestDecodeRawEvent(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		input string
		want  RawEvent
	}{
		"object": {
			input: `{"id":"b-1","type":"booking","title":"New booking","message":"Room 12"}`,
			want:  RawEvent{ID: "b-1", Type: "booking", Title: "New booking", Message: "Room 12"},
		},
		"bare string": {
			input: `"Kitchen closes at 22:00"`,
			want:  RawEvent{Type: "system", Message: "Kitchen closes at 22:00"},
		},
		"garbage": {
			input: `<html>502</html>`,
			want:  RawEvent{Type: "system", Message: "<html>502</html>"},
		},
		"array": {
			input: ` [1,2] `,
			want:  RawEvent{Type: "system", Message: "[1,2]"},
		},
		"numeric id": {
			input: `{"id":42,"type":"booking","title":"Room 12","message":"2 nights"}`,
			want:  RawEvent{ID: "42", Type: "booking", Title: "Room 12", Message: "2 nights"},
		},
		"epoch millis timestamp": {
			input: `{"type":"payment","title":"Deposit","timestamp":1714815000000}`,
			want:  RawEvent{Type: "payment", Title: "Deposit", Timestamp: "1714815000000"},
		},
		"string autoHide and duration": {
			input: `{"type":"promotion","autoHide":"false","duration":"1500"}`,
			want:  RawEvent{Type: "promotion", AutoHide: ptr(false), Duration: ptr(int64(1500))},
		},
		"unreadable fields dropped": {
			input: `{"type":"booking","title":["Room 12"],"autoHide":"maybe","data":{"room":12}}`,
			want:  RawEvent{Type: "booking", Data: []byte(`{"room":12}`)},
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DecodeRawEvent([]byte(tt.input)))
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestNormalize_MistypedFieldsKeepType(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

	n := Normalize(DecodeRawEvent([]byte(`{"id":42,"type":"booking","title":"Room 12","timestamp":1714815000000}`)), now)
	assert.Equal(t, "42", n.ID)
	assert.Equal(t, model.NotificationBooking, n.Type)
	assert.Equal(t, "Room 12", n.Title)
	assert.Equal(t, 8*time.Second, n.Duration)
	assert.True(t, n.Timestamp.Equal(time.UnixMilli(1714815000000)))

	n = Normalize(DecodeRawEvent([]byte(`{"type":"promotion","autoHide":"false"}`)), now)
	assert.Equal(t, model.NotificationPromotion, n.Type)
	assert.Equal(t, "Promotion", n.Title)
	assert.False(t, n.AutoHide)
}

func TestNormalize_Defaults(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	tests := map[string]struct {
		typ      string
		duration time.Duration
		title    string
	}{
		"booking":   {typ: "booking", duration: 8 * time.Second, title: "New booking"},
		"payment":   {typ: "payment", duration: 7 * time.Second, title: "Payment received"},
		"promotion": {typ: "promotion", duration: 6 * time.Second, title: "Promotion"},
		"system":    {typ: "system", duration: 5 * time.Second, title: "System notice"},
		"missing":   {typ: "", duration: 5 * time.Second, title: "System notice"},
		"unknown":   {typ: "laundry", duration: 5 * time.Second, title: "System notice"},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			n := Normalize(RawEvent{Type: tt.typ}, now)
			assert.NotEmpty(t, n.ID)
			assert.True(t, n.AutoHide)
			assert.Equal(t, tt.duration, n.Duration)
			assert.Equal(t, tt.title, n.Title)
			assert.Equal(t, now, n.Timestamp)
			if tt.typ == "" {
				assert.Equal(t, model.NotificationSystem, n.Type)
			}
		})
	}
}

func TestNormalize_Overrides(t *testing.T) {
	t.Parallel()
	autoHide := false
	duration := int64(1500)
	n := Normalize(RawEvent{
		ID:        "p-9",
		Type:      "payment",
		Title:     "Deposit",
		Timestamp: "2026-05-04T08:00:00+02:00",
		Data:      []byte(`{"amount":90}`),
		AutoHide:  &autoHide,
		Duration:  &duration,
	}, time.Now())

	assert.Equal(t, "p-9", n.ID)
	assert.Equal(t, "Deposit", n.Title)
	assert.False(t, n.AutoHide)
	assert.Equal(t, 1500*time.Millisecond, n.Duration)
	assert.True(t, n.Timestamp.Equal(time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC)))
	assert.Equal(t, map[string]any{"amount": float64(90)}, n.Data)
}

func TestNormalize_BadTimestampAndScalarData(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	n := Normalize(RawEvent{Type: "booking", Timestamp: "yesterday", Data: []byte(`"vip"`)}, now)
	assert.Equal(t, now, n.Timestamp)
	assert.Equal(t, map[string]any{"value": "vip"}, n.Data)
}
