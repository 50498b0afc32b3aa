package notify

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/frontdesk-notify/internal/model"
)

// RawEvent is an inbound notification payload before normalization. Every
// field is optional.
type RawEvent struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type,omitempty"`
	Title     string          `json:"title,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	AutoHide  *bool           `json:"autoHide,omitempty"`
	// Duration is in milliseconds.
	Duration *int64 `json:"duration,omitempty"`
}

// DecodeRawEvent parses an inbound payload. It never fails: an object
// with mistyped fields keeps every field that can be read, and anything
// that is not a JSON object becomes a system event carrying the raw text.
func DecodeRawEvent(data []byte) RawEvent {
	trimmed := bytes.TrimSpace(data)

	var raw RawEvent
	if err := json.Unmarshal(trimmed, &raw); err == nil {
		return raw
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err == nil {
		return decodeFields(fields)
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return RawEvent{Type: string(model.NotificationSystem), Message: text}
	}
	return RawEvent{Type: string(model.NotificationSystem), Message: string(trimmed)}
}

// Normalize fills every missing field of raw with its default.
func Normalize(raw RawEvent, now time.Time) model.Notification {
	typ := model.NotificationType(strings.TrimSpace(raw.Type))
	if typ == "" {
		typ = model.NotificationSystem
	}

	n := model.Notification{
		ID:       raw.ID,
		Type:     typ,
		Title:    raw.Title,
		Message:  raw.Message,
		AutoHide: true,
		Duration: typ.DefaultDuration(),
		Data:     decodeData(raw.Data),
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Title == "" {
		n.Title = typ.DefaultTitle()
	}
	if raw.AutoHide != nil {
		n.AutoHide = *raw.AutoHide
	}
	if raw.Duration != nil && *raw.Duration > 0 {
		n.Duration = time.Duration(*raw.Duration) * time.Millisecond
	}

	n.Timestamp = now
	if ts, ok := parseTimestamp(raw.Timestamp); ok {
		n.Timestamp = ts
	}

	return n
}

// decodeFields reads each field on its own. A field of the wrong kind is
// left empty and later defaulted.
func decodeFields(fields map[string]json.RawMessage) RawEvent {
	raw := RawEvent{
		ID:        textField(fields["id"]),
		Type:      textField(fields["type"]),
		Title:     textField(fields["title"]),
		Message:   textField(fields["message"]),
		Timestamp: textField(fields["timestamp"]),
		AutoHide:  boolField(fields["autoHide"]),
		Duration:  millisField(fields["duration"]),
	}
	if d, ok := fields["data"]; ok {
		raw.Data = d
	}
	return raw
}

// textField accepts a string or a number, which is kept in its JSON text.
func textField(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

// boolField accepts a bool or a string such as "false".
func boolField(v json.RawMessage) *bool {
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return &b
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return &b
		}
	}
	return nil
}

// millisField accepts a number or a numeric string of milliseconds.
func millisField(v json.RawMessage) *int64 {
	text := textField(v)
	if text == "" {
		return nil
	}
	if ms, err := strconv.ParseInt(text, 10, 64); err == nil {
		return &ms
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		ms := int64(f)
		return &ms
	}
	return nil
}

// parseTimestamp accepts RFC 3339 or epoch milliseconds.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// decodeData keeps object payloads as maps and wraps anything else under
// "value".
func decodeData(data json.RawMessage) map[string]any {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj
	}
	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		return map[string]any{"value": v}
	}
	return map[string]any{"value": string(data)}
}
